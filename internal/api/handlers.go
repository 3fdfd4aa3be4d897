package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

func secretMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "habitbot"}))
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if s.webhookSecret != "" && !secretMatches(r.Header.Get(WebhookSecretHeader), s.webhookSecret) {
		slog.Warn("Server.webhookHandler: secret mismatch", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}
	if err := s.webhook.HandleWebhookUpdate(r.Context(), r); err != nil {
		slog.Warn("Server.webhookHandler: invalid update", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid update")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// authorized checks the bearer token shared by the sweep triggers.
func (s *Server) authorized(r *http.Request) bool {
	if s.reminderToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && secretMatches(token, s.reminderToken)
}

func (s *Server) remindersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !s.authorized(r) {
		slog.Warn("Server.remindersHandler: unauthorized", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	res, err := s.reminders.Run(r.Context(), s.now())
	if err != nil {
		slog.Error("Server.remindersHandler: sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to run reminders")
		return
	}
	slog.Info("Server.remindersHandler: sweep done", "users", res.Users, "sent", res.Sent, "failed", res.Failed)
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) reportsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !s.authorized(r) {
		slog.Warn("Server.reportsHandler: unauthorized", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	res, err := s.reports.Run(r.Context(), s.now())
	if err != nil {
		slog.Error("Server.reportsHandler: sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to run reports")
		return
	}
	slog.Info("Server.reportsHandler: sweep done", "users", res.Users, "sent", res.Sent, "failed", res.Failed)
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}
