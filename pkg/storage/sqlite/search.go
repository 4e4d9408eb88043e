package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/recallkit/recall/pkg/storage"
)

// matchExpression quotes every term and ORs them so user input is never
// parsed as FTS5 query syntax.
func matchExpression(query string) string {
	terms := storage.QueryTerms(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// SearchMessages runs an FTS5 query scoped to the user's chats.
func (s *Store) SearchMessages(ctx context.Context, userID, query string, limit int) ([]storage.LexicalHit, error) {
	expr := matchExpression(query)
	if expr == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.chat_id, m.role, m.created_at,
			snippet(messages_fts, 0, '**', '**', '...', 32),
			bm25(messages_fts)
		FROM messages_fts
		JOIN messages m ON m.seq = messages_fts.rowid
		JOIN chats c ON c.id = m.chat_id
		WHERE messages_fts MATCH ? AND c.user_id = ?
		ORDER BY bm25(messages_fts), m.seq
		LIMIT ?
	`, expr, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var hits []storage.LexicalHit
	for rows.Next() {
		var (
			h       storage.LexicalHit
			created int64
			score   float64
		)
		if err := rows.Scan(&h.MessageID, &h.ChatID, &h.Role, &created, &h.Snippet, &score); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		h.CreatedAt = fromMillis(created)
		h.Rank = -score
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical hits: %w", err)
	}
	return hits, nil
}
