package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ DedupRepo = (*PostgresStore)(nil)

func (s *PostgresStore) IsDuplicate(ctx context.Context, updateID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM inbound_dedup WHERE update_id = $1)`, updateID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check %s: %w", updateID, err)
	}
	return exists, nil
}

func (s *PostgresStore) RecordInbound(ctx context.Context, updateID, chatKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (update_id, chat_key, received_at) VALUES ($1, $2, $3) ON CONFLICT (update_id) DO NOTHING`,
		updateID, chatKey, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record update %s: %w", updateID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record update %s: %w", updateID, err)
	}
	return n == 1, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, updateID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET processed_at = $1 WHERE update_id = $2`, time.Now().UTC(), updateID); err != nil {
		return fmt.Errorf("mark update %s processed: %w", updateID, err)
	}
	return nil
}

func (s *PostgresStore) PruneInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM inbound_dedup WHERE processed_at IS NOT NULL AND received_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune inbound updates: %w", err)
	}
	return res.RowsAffected()
}
