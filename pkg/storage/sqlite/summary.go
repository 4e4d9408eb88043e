package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/recallkit/recall/pkg/storage"
)

// GetSummary returns the user's rolling summary.
func (s *Store) GetSummary(ctx context.Context, userID string) (*storage.Summary, error) {
	var (
		sum     storage.Summary
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, content, version, updated_at FROM memory_summary WHERE user_id = ?`, userID,
	).Scan(&sum.UserID, &sum.Content, &sum.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{EntityType: "summary", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	sum.UpdatedAt = fromMillis(updated)
	return &sum, nil
}

// SaveSummary archives the current summary and writes the next version.
func (s *Store) SaveSummary(ctx context.Context, userID, content string, at time.Time) (*storage.Summary, error) {
	out := &storage.Summary{UserID: userID, Content: content, UpdatedAt: at}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			prevContent string
			prevVersion int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT content, version FROM memory_summary WHERE user_id = ?`, userID,
		).Scan(&prevContent, &prevVersion)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("load summary: %w", err)
		default:
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO memory_summary_versions (id, user_id, version, content, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, uuid.NewString(), userID, prevVersion, prevContent, toMillis(at)); err != nil {
				return fmt.Errorf("archive summary: %w", err)
			}
		}

		out.Version = prevVersion + 1
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_summary (user_id, content, version, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				content = excluded.content,
				version = excluded.version,
				updated_at = excluded.updated_at
		`, userID, content, out.Version, toMillis(at))
		if err != nil {
			return fmt.Errorf("save summary: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSummaryVersions returns archived versions, newest first.
func (s *Store) ListSummaryVersions(ctx context.Context, userID string, limit int) ([]*storage.SummaryVersion, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, version, content, created_at FROM memory_summary_versions
		WHERE user_id = ?
		ORDER BY version DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list summary versions: %w", err)
	}
	defer rows.Close()

	var versions []*storage.SummaryVersion
	for rows.Next() {
		var (
			v       storage.SummaryVersion
			created int64
		)
		if err := rows.Scan(&v.ID, &v.UserID, &v.Version, &v.Content, &created); err != nil {
			return nil, fmt.Errorf("scan summary version: %w", err)
		}
		v.CreatedAt = fromMillis(created)
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}
