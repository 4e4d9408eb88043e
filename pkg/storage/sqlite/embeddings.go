package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/recallkit/recall/pkg/storage"
)

// EmbeddingStore keeps vectors in the same database as the chats. Close is
// a no-op; the owning Store closes the handle.
type EmbeddingStore struct {
	db *sql.DB
}

var _ storage.EmbeddingStore = (*EmbeddingStore)(nil)

// NewEmbeddingStore shares the database of s.
func NewEmbeddingStore(s *Store) *EmbeddingStore {
	return &EmbeddingStore{db: s.db}
}

// PutEmbeddings inserts or replaces embeddings.
func (e *EmbeddingStore) PutEmbeddings(ctx context.Context, embs []*storage.Embedding) error {
	if len(embs) == 0 {
		return nil
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embeddings (source_type, source_id, user_id, chat_id, model, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare put embedding: %w", err)
	}
	defer stmt.Close()

	for _, emb := range embs {
		blob, err := storage.EncodeVector(emb.Vector)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, string(emb.SourceType), emb.SourceID, emb.UserID,
			emb.ChatID, emb.Model, blob, toMillis(emb.CreatedAt)); err != nil {
			return fmt.Errorf("put embedding: %w", err)
		}
	}
	return tx.Commit()
}

// ListEmbeddings returns the user's embeddings of one source type.
func (e *EmbeddingStore) ListEmbeddings(ctx context.Context, userID string, sourceType storage.SourceType) ([]*storage.Embedding, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT source_id, chat_id, model, vector, created_at FROM embeddings
		WHERE user_id = ? AND source_type = ?
	`, userID, string(sourceType))
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var out []*storage.Embedding
	for rows.Next() {
		var (
			emb     = storage.Embedding{UserID: userID, SourceType: sourceType}
			blob    []byte
			created int64
		)
		if err := rows.Scan(&emb.SourceID, &emb.ChatID, &emb.Model, &blob, &created); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if emb.Vector, err = storage.DecodeVector(blob); err != nil {
			return nil, err
		}
		emb.CreatedAt = fromMillis(created)
		out = append(out, &emb)
	}
	return out, rows.Err()
}

// HasEmbeddings reports which ids already have an embedding.
func (e *EmbeddingStore) HasEmbeddings(ctx context.Context, userID string, sourceType storage.SourceType, ids []string) (map[string]bool, error) {
	has := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return has, nil
	}
	rows, err := e.db.QueryContext(ctx, `
		SELECT source_id FROM embeddings
		WHERE user_id = ? AND source_type = ? AND source_id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids, userID, string(sourceType))...)
	if err != nil {
		return nil, fmt.Errorf("has embeddings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan embedding id: %w", err)
		}
		has[id] = true
	}
	return has, rows.Err()
}

// DeleteEmbeddings removes embeddings by source id.
func (e *EmbeddingStore) DeleteEmbeddings(ctx context.Context, userID string, sourceType storage.SourceType, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := e.db.ExecContext(ctx, `
		DELETE FROM embeddings
		WHERE user_id = ? AND source_type = ? AND source_id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids, userID, string(sourceType))...)
	if err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// DeleteUser removes all of the user's embeddings.
func (e *EmbeddingStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := e.db.ExecContext(ctx, `DELETE FROM embeddings WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user embeddings: %w", err)
	}
	return nil
}

// Close is a no-op.
func (e *EmbeddingStore) Close() error { return nil }
