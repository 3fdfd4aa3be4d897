package store

import (
	"context"
	"time"
)

// DefaultDedupRetention is how long processed update records are kept before pruning.
// Telegram stops redelivering an update well within a day.
const DefaultDedupRetention = 48 * time.Hour

// DedupRecord is one received Telegram update.
type DedupRecord struct {
	UpdateID    string     `json:"update_id"`
	ChatKey     string     `json:"chat_key"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo records received update ids. Telegram redelivers updates after webhook timeouts
// and long-poll restarts.
type DedupRepo interface {
	IsDuplicate(ctx context.Context, updateID string) (bool, error)
	// RecordInbound stores updateID and reports whether it was new.
	RecordInbound(ctx context.Context, updateID, chatKey string) (bool, error)
	MarkProcessed(ctx context.Context, updateID string) error
	// PruneInbound deletes processed records received before cutoff and returns how many.
	// Unprocessed records are kept.
	PruneInbound(ctx context.Context, cutoff time.Time) (int64, error)
}
