package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Has reports whether the segment identified by key was already delivered.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	ctx = ensureContext(ctx)
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM delivered WHERE key = ?", key).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query delivered %q: %w", key, err)
	default:
		return true, nil
	}
}

// MarkDelivered adds key to the delivered set. Marking a key twice keeps the
// first record; the set only grows.
func (s *Store) MarkDelivered(ctx context.Context, key, outputName string, at time.Time) error {
	if key == "" {
		return errors.New("mark delivered: empty key")
	}
	if _, err := s.exec(ctx,
		"INSERT OR IGNORE INTO delivered (key, output_name, delivered_at) VALUES (?, ?, ?)",
		key, outputName, at.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("mark delivered %q: %w", key, err)
	}
	return nil
}

// DeliveredCount returns the size of the delivered set.
func (s *Store) DeliveredCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM delivered").Scan(&n); err != nil {
		return 0, fmt.Errorf("count delivered: %w", err)
	}
	return n, nil
}
