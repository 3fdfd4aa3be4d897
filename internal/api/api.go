// Package api provides the HTTP surface of HabitPipe.
//
// It exposes the Telegram webhook, triggers for the hourly reminder and weekly report sweeps
// (for external schedulers) and a health check.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/HabitPipe/internal/reminder"
	"github.com/BTreeMap/HabitPipe/internal/report"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// Routes.
const (
	PathWebhook   = "/telegram/webhook"
	PathReminders = "/reminders/run"
	PathReports   = "/reports/run"
	PathHealth    = "/health"
)

// WebhookSecretHeader carries the secret Telegram echoes back on webhook calls.
const WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookReceiver accepts a Telegram webhook request.
type WebhookReceiver interface {
	HandleWebhookUpdate(ctx context.Context, r *http.Request) error
}

// ReminderRunner runs one reminder sweep.
type ReminderRunner interface {
	Run(ctx context.Context, now time.Time) (reminder.Result, error)
}

// ReportRunner runs one weekly report sweep.
type ReportRunner interface {
	Run(ctx context.Context, now time.Time) (report.Result, error)
}

// Server serves the HTTP endpoints.
type Server struct {
	addr          string
	webhook       WebhookReceiver
	webhookSecret string
	reminders     ReminderRunner
	reports       ReportRunner
	reminderToken string
	now           func() time.Time
	router        *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithWebhook enables the Telegram webhook. A non-empty secret must match WebhookSecretHeader.
func WithWebhook(receiver WebhookReceiver, secret string) Option {
	return func(s *Server) {
		s.webhook = receiver
		s.webhookSecret = secret
	}
}

// WithReminders enables the reminder trigger. A non-empty token must be sent as a bearer token.
func WithReminders(runner ReminderRunner, token string) Option {
	return func(s *Server) {
		s.reminders = runner
		s.reminderToken = token
	}
}

// WithReports enables the report trigger. It is guarded by the WithReminders token.
func WithReports(runner ReportRunner) Option {
	return func(s *Server) { s.reports = runner }
}

// WithClock overrides the time passed to sweeps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer creates a Server. Endpoints whose dependency is not configured respond 404.
func NewServer(opts ...Option) *Server {
	s := &Server{addr: DefaultAddr, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Use(logRequests)
	r.HandleFunc(PathHealth, s.healthHandler).Methods(http.MethodGet)
	if s.webhook != nil {
		r.HandleFunc(PathWebhook, s.webhookHandler).Methods(http.MethodPost)
	}
	if s.reminders != nil {
		r.HandleFunc(PathReminders, s.remindersHandler).Methods(http.MethodPost)
	}
	if s.reports != nil {
		r.HandleFunc(PathReports, s.reportsHandler).Methods(http.MethodPost)
	}
	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
