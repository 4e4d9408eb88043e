package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/recallkit/recall/pkg/storage"
)

const chatColumns = `id, user_id, title, visibility, created_at, last_activity_at,
	finalized_at, summarized_at, summary_version, message_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*storage.Chat, error) {
	var (
		c                       storage.Chat
		visibility              string
		createdAt, activityAt   int64
		finalizedAt, summarized sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &visibility, &createdAt, &activityAt,
		&finalizedAt, &summarized, &c.SummaryVersion, &c.MessageCount); err != nil {
		return nil, err
	}
	c.Visibility = storage.Visibility(visibility)
	c.CreatedAt = fromMillis(createdAt)
	c.LastActivityAt = fromMillis(activityAt)
	c.FinalizedAt = fromNullable(finalizedAt)
	c.SummarizedAt = fromNullable(summarized)
	return &c, nil
}

func scanChats(rows *sql.Rows) ([]*storage.Chat, error) {
	defer rows.Close()
	var chats []*storage.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

// CreateChat inserts a new chat.
func (s *Store) CreateChat(ctx context.Context, chat *storage.Chat) error {
	visibility := chat.Visibility
	if visibility == "" {
		visibility = storage.VisibilityPrivate
	}
	lastActivity := chat.LastActivityAt
	if lastActivity.IsZero() {
		lastActivity = chat.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (`+chatColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chat.ID, chat.UserID, chat.Title, string(visibility), toMillis(chat.CreatedAt), toMillis(lastActivity),
		nullableMillis(chat.FinalizedAt), nullableMillis(chat.SummarizedAt), chat.SummaryVersion, chat.MessageCount)
	if err != nil {
		if isConstraint(err) {
			return &storage.DuplicateKeyError{EntityType: "chat", ID: chat.ID}
		}
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

// GetChat returns a chat by id.
func (s *Store) GetChat(ctx context.Context, chatID string) (*storage.Chat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, chatID)
	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{EntityType: "chat", ID: chatID}
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

// AppendMessages inserts messages and touches the chat in one transaction.
func (s *Store) AppendMessages(ctx context.Context, chatID string, msgs []*storage.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var lastActivity int64
		err := tx.QueryRowContext(ctx, `SELECT last_activity_at FROM chats WHERE id = ?`, chatID).Scan(&lastActivity)
		if errors.Is(err, sql.ErrNoRows) {
			return &storage.NotFoundError{EntityType: "chat", ID: chatID}
		}
		if err != nil {
			return fmt.Errorf("load chat: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO messages (id, chat_id, role, parts, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert message: %w", err)
		}
		defer stmt.Close()

		for _, m := range msgs {
			parts, err := marshalParts(m.Parts)
			if err != nil {
				return err
			}
			created := toMillis(m.CreatedAt)
			if _, err := stmt.ExecContext(ctx, m.ID, chatID, m.Role, parts, m.Text(), created); err != nil {
				if isConstraint(err) {
					return &storage.DuplicateKeyError{EntityType: "message", ID: m.ID}
				}
				return fmt.Errorf("insert message: %w", err)
			}
			if created > lastActivity {
				lastActivity = created
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE chats SET last_activity_at = ?, message_count = message_count + ?
			WHERE id = ?
		`, lastActivity, len(msgs), chatID)
		if err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}
		return nil
	})
}

func scanMessages(rows *sql.Rows) ([]*storage.Message, error) {
	defer rows.Close()
	var msgs []*storage.Message
	for rows.Next() {
		var (
			m       storage.Message
			parts   string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &parts, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		p, err := unmarshalParts(parts)
		if err != nil {
			return nil, err
		}
		m.Parts = p
		m.CreatedAt = fromMillis(created)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// GetMessages returns a chat's messages in creation order.
func (s *Store) GetMessages(ctx context.Context, chatID string) ([]*storage.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, parts, created_at FROM messages
		WHERE chat_id = ?
		ORDER BY created_at, seq
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return scanMessages(rows)
}

// GetMessagesByIDs returns the user's messages among ids.
func (s *Store) GetMessagesByIDs(ctx context.Context, userID string, ids []string) ([]*storage.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.chat_id, m.role, m.parts, m.created_at
		FROM messages m JOIN chats c ON c.id = m.chat_id
		WHERE c.user_id = ? AND m.id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids, userID)...)
	if err != nil {
		return nil, fmt.Errorf("get messages by ids: %w", err)
	}
	return scanMessages(rows)
}

// FinalizeChat is a compare-and-set on finalized_at.
func (s *Store) FinalizeChat(ctx context.Context, chatID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET finalized_at = ? WHERE id = ? AND finalized_at IS NULL`,
		toMillis(at), chatID)
	if err != nil {
		return false, fmt.Errorf("finalize chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize chat: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return false, err
	}
	return false, nil
}

// MarkChatSummarized stamps the chat with the absorbing summary version.
func (s *Store) MarkChatSummarized(ctx context.Context, chatID string, version int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET summarized_at = ?, summary_version = ? WHERE id = ?`,
		toMillis(at), version, chatID)
	if err != nil {
		return fmt.Errorf("mark chat summarized: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &storage.NotFoundError{EntityType: "chat", ID: chatID}
	}
	return nil
}

// ListIdleChats returns unfinalized chats idle since before the cutoff.
func (s *Store) ListIdleChats(ctx context.Context, before time.Time, limit int) ([]*storage.Chat, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE finalized_at IS NULL AND last_activity_at < ?
		ORDER BY last_activity_at, id
		LIMIT ?
	`, toMillis(before), limit)
	if err != nil {
		return nil, fmt.Errorf("list idle chats: %w", err)
	}
	return scanChats(rows)
}

// ListDistillableChats returns finalized chats not yet used as a distillation source.
func (s *Store) ListDistillableChats(ctx context.Context, userID string, finalizedBefore time.Time) ([]*storage.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chatColumns+` FROM chats c
		WHERE c.user_id = ?
		  AND c.finalized_at IS NOT NULL
		  AND c.finalized_at < ?
		  AND NOT EXISTS (
			SELECT 1 FROM distilled_sources s
			JOIN distilled_memory d ON d.id = s.entry_id
			WHERE s.chat_id = c.id AND d.user_id = c.user_id
		  )
		ORDER BY c.finalized_at, c.id
	`, userID, toMillis(finalizedBefore))
	if err != nil {
		return nil, fmt.Errorf("list distillable chats: %w", err)
	}
	return scanChats(rows)
}

// ListUserIDs returns every chat owner.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM chats ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
