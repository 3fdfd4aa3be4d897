package scheduler

import (
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 job, got %d", s.Len())
	}
}

func TestSchedulerRejectsInvalidExpr(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("every hour", func() {}); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
	// Seconds field is not accepted by the 5-field parser.
	if err := s.AddJob("0 0 * * * *", func() {}); err == nil {
		t.Error("Expected error for 6-field expression")
	}
}

func TestSchedulerHourlyRunsAtMinuteZero(t *testing.T) {
	s := NewScheduler(WithLocation(time.UTC))
	defer s.Stop()
	if err := s.AddJob(HourlyExpr, func() {}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	// Entries are scheduled asynchronously after the cron loop picks them up.
	deadline := time.Now().Add(time.Second)
	var next time.Time
	for time.Now().Before(deadline) {
		if next = s.Next(); !next.IsZero() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if next.IsZero() {
		t.Fatal("Expected a scheduled next run")
	}
	if next.Minute() != 0 || next.Second() != 0 {
		t.Errorf("Expected next run at minute 0, got %v", next)
	}
	if !next.After(time.Now()) {
		t.Errorf("Expected next run in the future, got %v", next)
	}
}
