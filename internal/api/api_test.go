package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/reminder"
	"github.com/BTreeMap/HabitPipe/internal/report"
	"github.com/BTreeMap/HabitPipe/internal/testutil"
)

type fakeReceiver struct {
	bodies []string
	err    error
}

func (f *fakeReceiver) HandleWebhookUpdate(ctx context.Context, r *http.Request) error {
	b, _ := io.ReadAll(r.Body)
	f.bodies = append(f.bodies, string(b))
	return f.err
}

type fakeRunner struct {
	calls []time.Time
	res   reminder.Result
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, now time.Time) (reminder.Result, error) {
	f.calls = append(f.calls, now)
	return f.res, f.err
}

type fakeReporter struct {
	calls int
	res   report.Result
	err   error
}

func (f *fakeReporter) Run(ctx context.Context, now time.Time) (report.Result, error) {
	f.calls++
	return f.res, f.err
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	rr := do(t, NewServer().Handler(), http.MethodGet, PathHealth, "", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr, "health")
	body := testutil.AssertAPIStatus(t, rr, models.APIStatusOK)
	assert.Equal(t, "habitbot", body.Get("result.service").String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestWebhook_DisabledWithoutReceiver(t *testing.T) {
	rr := do(t, NewServer().Handler(), http.MethodPost, PathWebhook, "{}", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWebhook_SecretChecked(t *testing.T) {
	recv := &fakeReceiver{}
	h := NewServer(WithWebhook(recv, "s3cret")).Handler()

	rr := do(t, h, http.MethodPost, PathWebhook, `{"update_id":1}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = do(t, h, http.MethodPost, PathWebhook, `{"update_id":1}`, map[string]string{WebhookSecretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, recv.bodies)

	rr = do(t, h, http.MethodPost, PathWebhook, `{"update_id":1}`, map[string]string{WebhookSecretHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{`{"update_id":1}`}, recv.bodies)
}

func TestWebhook_NoSecretConfigured(t *testing.T) {
	recv := &fakeReceiver{}
	rr := do(t, NewServer(WithWebhook(recv, "")).Handler(), http.MethodPost, PathWebhook, `{"update_id":2}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, recv.bodies, 1)
}

func TestWebhook_BadUpdate(t *testing.T) {
	recv := &fakeReceiver{err: errors.New("decode")}
	rr := do(t, NewServer(WithWebhook(recv, "")).Handler(), http.MethodPost, PathWebhook, `not json`, nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr, "bad update")
	testutil.AssertAPIStatus(t, rr, models.APIStatusError)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	rr := do(t, NewServer(WithWebhook(&fakeReceiver{}, "")).Handler(), http.MethodGet, PathWebhook, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestReminders_Run(t *testing.T) {
	now := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	runner := &fakeRunner{res: reminder.Result{Users: 3, Sent: 5, Failed: 1}}
	h := NewServer(WithReminders(runner, ""), WithClock(func() time.Time { return now })).Handler()

	rr := do(t, h, http.MethodPost, PathReminders, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	assert.Equal(t, int64(3), gjson.Get(body, "result.users").Int())
	assert.Equal(t, int64(5), gjson.Get(body, "result.sent").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "result.failed").Int())
	assert.Equal(t, []time.Time{now}, runner.calls)
}

func TestReminders_Token(t *testing.T) {
	runner := &fakeRunner{}
	h := NewServer(WithReminders(runner, "tok")).Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, PathReminders, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, PathReminders, "", map[string]string{"Authorization": "Bearer nope"}).Code)
	assert.Empty(t, runner.calls)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, PathReminders, "", map[string]string{"Authorization": "Bearer tok"}).Code)
	assert.Len(t, runner.calls, 1)
}

func TestReminders_Failure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("store down")}
	rr := do(t, NewServer(WithReminders(runner, "")).Handler(), http.MethodPost, PathReminders, "", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to run reminders", gjson.Get(rr.Body.String(), "message").String())
}

func TestReports_Run(t *testing.T) {
	reporter := &fakeReporter{res: report.Result{Users: 2, Sent: 1}}
	h := NewServer(WithReminders(&fakeRunner{}, "tok"), WithReports(reporter)).Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, PathReports, "", nil).Code)
	assert.Zero(t, reporter.calls)

	rr := do(t, h, http.MethodPost, PathReports, "", map[string]string{"Authorization": "Bearer tok"})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr, "reports")
	body := testutil.AssertAPIStatus(t, rr, models.APIStatusOK)
	assert.Equal(t, int64(2), body.Get("result.users").Int())
	assert.Equal(t, int64(1), body.Get("result.sent").Int())
	assert.Equal(t, 1, reporter.calls)
}

func TestReports_DisabledAndFailure(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, do(t, NewServer().Handler(), http.MethodPost, PathReports, "", nil).Code)

	rr := do(t, NewServer(WithReports(&fakeReporter{err: errors.New("store down")})).Handler(), http.MethodPost, PathReports, "", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to run reports", gjson.Get(rr.Body.String(), "message").String())
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewServer(WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
