package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/recallkit/recall/pkg/storage"
)

func insertEntry(ctx context.Context, tx *sql.Tx, e *storage.DistilledEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO distilled_memory (id, user_id, tier, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.UserID, int(e.Tier), e.Content, toMillis(e.CreatedAt))
	if err != nil {
		if isConstraint(err) {
			return &storage.DuplicateKeyError{EntityType: "distilled entry", ID: e.ID}
		}
		return fmt.Errorf("insert distilled entry: %w", err)
	}
	for _, chatID := range e.SourceChatIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO distilled_sources (entry_id, chat_id) VALUES (?, ?)`,
			e.ID, chatID); err != nil {
			return fmt.Errorf("insert distilled source: %w", err)
		}
	}
	return nil
}

// InsertEntry stores a distilled entry and its sources. A session entry is
// rejected with a ConflictError when another entry of the user already
// covers one of its source chats.
func (s *Store) InsertEntry(ctx context.Context, entry *storage.DistilledEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if entry.Tier == storage.TierSession && len(entry.SourceChatIDs) > 0 {
			var covered int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM distilled_sources s
				JOIN distilled_memory d ON d.id = s.entry_id
				WHERE d.user_id = ? AND s.chat_id IN (`+placeholders(len(entry.SourceChatIDs))+`)
			`, stringArgs(entry.SourceChatIDs, entry.UserID)...).Scan(&covered)
			if err != nil {
				return fmt.Errorf("check distilled sources: %w", err)
			}
			if covered > 0 {
				return &storage.ConflictError{EntityType: "distilled entry", ID: entry.ID}
			}
		}
		return insertEntry(ctx, tx, entry)
	})
}

// ListEntries returns entries of one tier, newest first.
func (s *Store) ListEntries(ctx context.Context, userID string, tier storage.Tier, createdBefore time.Time, limit int) ([]*storage.DistilledEntry, error) {
	query := `SELECT id, user_id, tier, content, created_at FROM distilled_memory WHERE user_id = ? AND tier = ?`
	args := []any{userID, int(tier)}
	if !createdBefore.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, toMillis(createdBefore))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEntries(ctx, query, args...)
}

// GetEntries returns the user's entries among ids.
func (s *Store) GetEntries(ctx context.Context, userID string, ids []string) ([]*storage.DistilledEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryEntries(ctx, `
		SELECT id, user_id, tier, content, created_at FROM distilled_memory
		WHERE user_id = ? AND id IN (`+placeholders(len(ids))+`)
		ORDER BY created_at DESC, id DESC
	`, stringArgs(ids, userID)...)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]*storage.DistilledEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list distilled entries: %w", err)
	}
	var (
		entries []*storage.DistilledEntry
		byID    = map[string]*storage.DistilledEntry{}
	)
	for rows.Next() {
		var (
			e       storage.DistilledEntry
			tier    int
			created int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &tier, &e.Content, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan distilled entry: %w", err)
		}
		e.Tier = storage.Tier(tier)
		e.CreatedAt = fromMillis(created)
		entries = append(entries, &e)
		byID[e.ID] = &e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distilled entries: %w", err)
	}
	if len(entries) == 0 {
		return entries, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	srcRows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, chat_id FROM distilled_sources
		WHERE entry_id IN (`+placeholders(len(ids))+`)
		ORDER BY chat_id
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("load distilled sources: %w", err)
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var entryID, chatID string
		if err := srcRows.Scan(&entryID, &chatID); err != nil {
			return nil, fmt.Errorf("scan distilled source: %w", err)
		}
		if e := byID[entryID]; e != nil {
			e.SourceChatIDs = append(e.SourceChatIDs, chatID)
		}
	}
	return entries, srcRows.Err()
}

// CompactEntries inserts out and deletes the consumed entries, with any
// embeddings stored for them, in one transaction. If any consumed entry is
// already gone the transaction rolls back with a ConflictError.
func (s *Store) CompactEntries(ctx context.Context, out *storage.DistilledEntry, consumedIDs []string) error {
	consumedIDs = uniqueStrings(consumedIDs)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertEntry(ctx, tx, out); err != nil {
			return err
		}
		if len(consumedIDs) > 0 {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM distilled_memory WHERE user_id = ? AND id IN (`+placeholders(len(consumedIDs))+`)`,
				stringArgs(consumedIDs, out.UserID)...)
			if err != nil {
				return fmt.Errorf("delete consumed entries (%s): %w", strings.Join(consumedIDs, ","), err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete consumed entries: %w", err)
			}
			if int(n) != len(consumedIDs) {
				return &storage.ConflictError{EntityType: "distilled entry", ID: out.ID}
			}
			_, err = tx.ExecContext(ctx,
				`DELETE FROM embeddings WHERE user_id = ? AND source_type = 'distilled' AND source_id IN (`+placeholders(len(consumedIDs))+`)`,
				stringArgs(consumedIDs, out.UserID)...)
			if err != nil {
				return fmt.Errorf("delete consumed embeddings: %w", err)
			}
		}
		return nil
	})
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
