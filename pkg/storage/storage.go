// Package storage defines persistence for chats, messages, rolling summaries,
// distilled memory and embeddings.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Storage is the relational store behind the memory pipeline. A single
// backend owns chats, messages, summaries, distilled entries and the
// lexical index over message text.
type Storage interface {
	ChatStore
	SummaryStore
	DistilledStore
	LexicalIndex

	// DeleteUser removes every chat, message, summary, summary version and
	// distilled entry owned by userID.
	DeleteUser(ctx context.Context, userID string) error

	Ping(ctx context.Context) error
	Close() error
}

// ChatStore persists chats and their messages.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, chatID string) (*Chat, error)

	// AppendMessages stores messages and touches the chat: last activity
	// moves to the newest message time and the message count grows.
	AppendMessages(ctx context.Context, chatID string, msgs []*Message) error

	// GetMessages returns a chat's messages in creation order.
	GetMessages(ctx context.Context, chatID string) ([]*Message, error)

	// GetMessagesByIDs returns the messages among ids that belong to chats
	// owned by userID. Order is unspecified.
	GetMessagesByIDs(ctx context.Context, userID string, ids []string) ([]*Message, error)

	// FinalizeChat sets finalized_at only if it is unset and reports
	// whether this call performed the transition.
	FinalizeChat(ctx context.Context, chatID string, at time.Time) (bool, error)

	// MarkChatSummarized stamps the chat with the summary version that absorbed it.
	MarkChatSummarized(ctx context.Context, chatID string, version int, at time.Time) error

	// ListIdleChats returns unfinalized chats whose last activity is before the cutoff.
	ListIdleChats(ctx context.Context, before time.Time, limit int) ([]*Chat, error)

	// ListDistillableChats returns the user's chats finalized before the
	// cutoff that no distilled entry of the user lists as a source.
	ListDistillableChats(ctx context.Context, userID string, finalizedBefore time.Time) ([]*Chat, error)

	// ListUserIDs returns every user owning at least one chat, sorted.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// SummaryStore persists the rolling summary and its version history.
type SummaryStore interface {
	// GetSummary returns a NotFoundError when the user has no summary yet.
	GetSummary(ctx context.Context, userID string) (*Summary, error)

	// SaveSummary archives the current summary, if any, and writes content
	// as the next version.
	SaveSummary(ctx context.Context, userID, content string, at time.Time) (*Summary, error)

	// ListSummaryVersions returns archived versions, newest first.
	ListSummaryVersions(ctx context.Context, userID string, limit int) ([]*SummaryVersion, error)
}

// DistilledStore persists tiered distilled memory.
type DistilledStore interface {
	InsertEntry(ctx context.Context, entry *DistilledEntry) error

	// ListEntries returns the user's entries of one tier, newest first.
	// A zero createdBefore means no age bound; limit <= 0 means no limit.
	ListEntries(ctx context.Context, userID string, tier Tier, createdBefore time.Time, limit int) ([]*DistilledEntry, error)

	GetEntries(ctx context.Context, userID string, ids []string) ([]*DistilledEntry, error)

	// CompactEntries inserts out and deletes the consumed entries in one transaction.
	CompactEntries(ctx context.Context, out *DistilledEntry, consumedIDs []string) error
}

// LexicalIndex is full-text search over message text.
type LexicalIndex interface {
	// SearchMessages ranks the user's messages against a free-text query,
	// best first. An empty query yields no hits.
	SearchMessages(ctx context.Context, userID, query string, limit int) ([]LexicalHit, error)
}

// EmbeddingStore persists vectors for messages and distilled entries.
type EmbeddingStore interface {
	// PutEmbeddings inserts or replaces embeddings keyed by source.
	PutEmbeddings(ctx context.Context, embs []*Embedding) error
	ListEmbeddings(ctx context.Context, userID string, sourceType SourceType) ([]*Embedding, error)

	// HasEmbeddings reports which of ids already carry an embedding.
	HasEmbeddings(ctx context.Context, userID string, sourceType SourceType, ids []string) (map[string]bool, error)
	DeleteEmbeddings(ctx context.Context, userID string, sourceType SourceType, ids []string) error
	DeleteUser(ctx context.Context, userID string) error
	Close() error
}

// Visibility of a chat.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Chat is a conversation owned by one user.
type Chat struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	Visibility     Visibility `json:"visibility"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	FinalizedAt    *time.Time `json:"finalized_at,omitempty"`
	SummarizedAt   *time.Time `json:"summarized_at,omitempty"`
	SummaryVersion int        `json:"summary_version"`
	MessageCount   int        `json:"message_count"`
}

// Finalized reports whether the chat has been finalized.
func (c *Chat) Finalized() bool { return c.FinalizedAt != nil }

// Part is one piece of message content.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is an immutable chat message.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

// Text joins the message's text parts with newlines.
func (m *Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Summary is a user's rolling summary.
type Summary struct {
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SummaryVersion is an archived, immutable summary.
type SummaryVersion struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Tier of a distilled entry.
type Tier int

const (
	TierSession  Tier = 1
	TierWeekly   Tier = 2
	TierLongTerm Tier = 3
)

// Valid reports whether t is one of the three tiers.
func (t Tier) Valid() bool { return t >= TierSession && t <= TierLongTerm }

// DistilledEntry is compacted memory produced by distillation.
type DistilledEntry struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Tier          Tier      `json:"tier"`
	Content       string    `json:"content"`
	SourceChatIDs []string  `json:"source_chat_ids"`
	CreatedAt     time.Time `json:"created_at"`
}

// SourceType identifies what an embedding was computed from.
type SourceType string

const (
	SourceMessage   SourceType = "message"
	SourceDistilled SourceType = "distilled"
)

// Embedding is a normalized vector for a message or distilled entry.
type Embedding struct {
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	UserID     string     `json:"user_id"`
	ChatID     string     `json:"chat_id,omitempty"`
	Model      string     `json:"model"`
	Vector     []float32  `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

// LexicalHit is one ranked full-text match.
type LexicalHit struct {
	MessageID string
	ChatID    string
	Role      string
	CreatedAt time.Time
	Snippet   string
	Rank      float64
}

// QueryTerms splits free text into lowercase search terms, dropping
// punctuation and duplicates. Han characters become single-rune terms.
func QueryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	add := func(t string) {
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}

	var cur strings.Builder
	for _, r := range strings.ToLower(query) {
		switch {
		case unicode.Is(unicode.Han, r):
			add(cur.String())
			cur.Reset()
			add(string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			add(cur.String())
			cur.Reset()
		}
	}
	add(cur.String())
	return terms
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// DuplicateKeyError indicates that an entity with the given ID already exists.
type DuplicateKeyError struct {
	EntityType string
	ID         string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsDuplicate reports whether err is or wraps a DuplicateKeyError.
func IsDuplicate(err error) bool {
	var dk *DuplicateKeyError
	return errors.As(err, &dk)
}

// ConflictError indicates that a write lost a race with a concurrent writer,
// for example a compaction whose inputs were already consumed.
type ConflictError struct {
	EntityType string
	ID         string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.EntityType, e.ID)
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
