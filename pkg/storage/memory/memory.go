// Package memory provides an in-memory implementation of the storage
// interfaces, including a BM25 lexical index.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recallkit/recall/pkg/storage"
)

// MemoryStorage implements storage.Storage using in-memory maps.
type MemoryStorage struct {
	mu        sync.RWMutex
	chats     map[string]*storage.Chat
	messages  map[string][]*storage.Message // chatID -> messages in append order
	byID      map[string]*storage.Message
	seqs      map[string]int64
	seq       int64
	summaries map[string]*storage.Summary
	versions  map[string][]*storage.SummaryVersion
	entries   map[string]*storage.DistilledEntry
	index     *bm25Index
}

var _ storage.Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		chats:     make(map[string]*storage.Chat),
		messages:  make(map[string][]*storage.Message),
		byID:      make(map[string]*storage.Message),
		seqs:      make(map[string]int64),
		summaries: make(map[string]*storage.Summary),
		versions:  make(map[string][]*storage.SummaryVersion),
		entries:   make(map[string]*storage.DistilledEntry),
		index:     newBM25Index(1.2, 0.75),
	}
}

func copyChat(c *storage.Chat) *storage.Chat {
	cp := *c
	if c.FinalizedAt != nil {
		t := *c.FinalizedAt
		cp.FinalizedAt = &t
	}
	if c.SummarizedAt != nil {
		t := *c.SummarizedAt
		cp.SummarizedAt = &t
	}
	return &cp
}

func copyMessage(m *storage.Message) *storage.Message {
	cp := *m
	cp.Parts = append([]storage.Part(nil), m.Parts...)
	return &cp
}

func copyEntry(e *storage.DistilledEntry) *storage.DistilledEntry {
	cp := *e
	cp.SourceChatIDs = append([]string(nil), e.SourceChatIDs...)
	return &cp
}

// CreateChat stores a new chat.
func (m *MemoryStorage) CreateChat(ctx context.Context, chat *storage.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chats[chat.ID]; exists {
		return &storage.DuplicateKeyError{EntityType: "chat", ID: chat.ID}
	}
	cp := copyChat(chat)
	if cp.Visibility == "" {
		cp.Visibility = storage.VisibilityPrivate
	}
	if cp.LastActivityAt.IsZero() {
		cp.LastActivityAt = cp.CreatedAt
	}
	m.chats[chat.ID] = cp
	return nil
}

// GetChat retrieves a chat by ID.
func (m *MemoryStorage) GetChat(ctx context.Context, chatID string) (*storage.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, ok := m.chats[chatID]
	if !ok {
		return nil, &storage.NotFoundError{EntityType: "chat", ID: chatID}
	}
	return copyChat(chat), nil
}

// AppendMessages stores messages and touches the chat. Either all messages
// are stored or none.
func (m *MemoryStorage) AppendMessages(ctx context.Context, chatID string, msgs []*storage.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[chatID]
	if !ok {
		return &storage.NotFoundError{EntityType: "chat", ID: chatID}
	}
	seen := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		_, dup := seen[msg.ID]
		if _, exists := m.byID[msg.ID]; exists || dup {
			return &storage.DuplicateKeyError{EntityType: "message", ID: msg.ID}
		}
		seen[msg.ID] = struct{}{}
	}

	for _, msg := range msgs {
		cp := copyMessage(msg)
		cp.ChatID = chatID
		m.seq++
		m.seqs[cp.ID] = m.seq
		m.byID[cp.ID] = cp
		m.messages[chatID] = append(m.messages[chatID], cp)
		m.index.add(cp.ID, chat.UserID, cp.Text())
		if cp.CreatedAt.After(chat.LastActivityAt) {
			chat.LastActivityAt = cp.CreatedAt
		}
	}
	chat.MessageCount += len(msgs)
	return nil
}

// GetMessages returns a chat's messages in creation order.
func (m *MemoryStorage) GetMessages(ctx context.Context, chatID string) ([]*storage.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.messages[chatID]
	out := make([]*storage.Message, len(src))
	for i, msg := range src {
		out[i] = copyMessage(msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetMessagesByIDs returns the user's messages among ids.
func (m *MemoryStorage) GetMessagesByIDs(ctx context.Context, userID string, ids []string) ([]*storage.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*storage.Message
	for _, id := range ids {
		msg, ok := m.byID[id]
		if !ok {
			continue
		}
		if chat, ok := m.chats[msg.ChatID]; ok && chat.UserID == userID {
			out = append(out, copyMessage(msg))
		}
	}
	return out, nil
}

// FinalizeChat sets finalized_at if unset.
func (m *MemoryStorage) FinalizeChat(ctx context.Context, chatID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[chatID]
	if !ok {
		return false, &storage.NotFoundError{EntityType: "chat", ID: chatID}
	}
	if chat.FinalizedAt != nil {
		return false, nil
	}
	chat.FinalizedAt = &at
	return true, nil
}

// MarkChatSummarized stamps the chat with the absorbing summary version.
func (m *MemoryStorage) MarkChatSummarized(ctx context.Context, chatID string, version int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[chatID]
	if !ok {
		return &storage.NotFoundError{EntityType: "chat", ID: chatID}
	}
	chat.SummarizedAt = &at
	chat.SummaryVersion = version
	return nil
}

// ListIdleChats returns unfinalized chats idle since before the cutoff.
func (m *MemoryStorage) ListIdleChats(ctx context.Context, before time.Time, limit int) ([]*storage.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*storage.Chat
	for _, c := range m.chats {
		if c.FinalizedAt == nil && c.LastActivityAt.Before(before) {
			out = append(out, copyChat(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.Before(out[j].LastActivityAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDistillableChats returns finalized chats no distilled entry sources.
func (m *MemoryStorage) ListDistillableChats(ctx context.Context, userID string, finalizedBefore time.Time) ([]*storage.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sourced := make(map[string]struct{})
	for _, e := range m.entries {
		if e.UserID != userID {
			continue
		}
		for _, id := range e.SourceChatIDs {
			sourced[id] = struct{}{}
		}
	}

	var out []*storage.Chat
	for _, c := range m.chats {
		if c.UserID != userID || c.FinalizedAt == nil || !c.FinalizedAt.Before(finalizedBefore) {
			continue
		}
		if _, ok := sourced[c.ID]; ok {
			continue
		}
		out = append(out, copyChat(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FinalizedAt.Equal(*out[j].FinalizedAt) {
			return out[i].FinalizedAt.Before(*out[j].FinalizedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListUserIDs returns every chat owner, sorted.
func (m *MemoryStorage) ListUserIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var users []string
	for _, c := range m.chats {
		if _, ok := seen[c.UserID]; !ok {
			seen[c.UserID] = struct{}{}
			users = append(users, c.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// GetSummary returns the user's rolling summary.
func (m *MemoryStorage) GetSummary(ctx context.Context, userID string) (*storage.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.summaries[userID]
	if !ok {
		return nil, &storage.NotFoundError{EntityType: "summary", ID: userID}
	}
	cp := *s
	return &cp, nil
}

// SaveSummary archives the current summary and stores the next version.
func (m *MemoryStorage) SaveSummary(ctx context.Context, userID, content string, at time.Time) (*storage.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := &storage.Summary{UserID: userID, Content: content, Version: 1, UpdatedAt: at}
	if prev, ok := m.summaries[userID]; ok {
		m.versions[userID] = append(m.versions[userID], &storage.SummaryVersion{
			ID:        uuid.NewString(),
			UserID:    userID,
			Version:   prev.Version,
			Content:   prev.Content,
			CreatedAt: at,
		})
		next.Version = prev.Version + 1
	}
	m.summaries[userID] = next
	cp := *next
	return &cp, nil
}

// ListSummaryVersions returns archived versions, newest first.
func (m *MemoryStorage) ListSummaryVersions(ctx context.Context, userID string, limit int) ([]*storage.SummaryVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.versions[userID]
	out := make([]*storage.SummaryVersion, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		cp := *src[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// InsertEntry stores a distilled entry.
// A session entry whose source chats are already covered is a conflict.
func (m *MemoryStorage) InsertEntry(ctx context.Context, entry *storage.DistilledEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Tier == storage.TierSession && m.coversAnyLocked(entry.UserID, entry.SourceChatIDs) {
		return &storage.ConflictError{EntityType: "distilled entry", ID: entry.ID}
	}
	return m.insertEntryLocked(entry)
}

func (m *MemoryStorage) coversAnyLocked(userID string, chatIDs []string) bool {
	for _, e := range m.entries {
		if e.UserID != userID {
			continue
		}
		for _, src := range e.SourceChatIDs {
			for _, id := range chatIDs {
				if src == id {
					return true
				}
			}
		}
	}
	return false
}

func (m *MemoryStorage) insertEntryLocked(entry *storage.DistilledEntry) error {
	if _, exists := m.entries[entry.ID]; exists {
		return &storage.DuplicateKeyError{EntityType: "distilled entry", ID: entry.ID}
	}
	cp := copyEntry(entry)
	sort.Strings(cp.SourceChatIDs)
	m.entries[entry.ID] = cp
	return nil
}

// ListEntries returns the user's entries of one tier, newest first.
func (m *MemoryStorage) ListEntries(ctx context.Context, userID string, tier storage.Tier, createdBefore time.Time, limit int) ([]*storage.DistilledEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*storage.DistilledEntry
	for _, e := range m.entries {
		if e.UserID != userID || e.Tier != tier {
			continue
		}
		if !createdBefore.IsZero() && !e.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, copyEntry(e))
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetEntries returns the user's entries among ids, newest first.
func (m *MemoryStorage) GetEntries(ctx context.Context, userID string, ids []string) ([]*storage.DistilledEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*storage.DistilledEntry
	for _, id := range ids {
		if e, ok := m.entries[id]; ok && e.UserID == userID {
			out = append(out, copyEntry(e))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(entries []*storage.DistilledEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}

// CompactEntries inserts out and deletes the consumed entries under one lock.
// Nothing changes if a consumed entry is already gone.
func (m *MemoryStorage) CompactEntries(ctx context.Context, out *storage.DistilledEntry, consumedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range consumedIDs {
		if e, ok := m.entries[id]; !ok || e.UserID != out.UserID {
			return &storage.ConflictError{EntityType: "distilled entry", ID: out.ID}
		}
	}
	if err := m.insertEntryLocked(out); err != nil {
		return err
	}
	for _, id := range consumedIDs {
		delete(m.entries, id)
	}
	return nil
}

// SearchMessages ranks the user's messages with BM25.
func (m *MemoryStorage) SearchMessages(ctx context.Context, userID, query string, limit int) ([]storage.LexicalHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := m.index.queryTerms(storage.QueryTerms(query))
	docs := m.index.search(userID, terms)
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].score != docs[j].score {
			return docs[i].score > docs[j].score
		}
		return m.seqs[docs[i].id] < m.seqs[docs[j].id]
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}

	hits := make([]storage.LexicalHit, 0, len(docs))
	for _, d := range docs {
		msg := m.byID[d.id]
		hits = append(hits, storage.LexicalHit{
			MessageID: msg.ID,
			ChatID:    msg.ChatID,
			Role:      msg.Role,
			CreatedAt: msg.CreatedAt,
			Snippet:   snippet(msg.Text(), terms),
			Rank:      d.score,
		})
	}
	return hits, nil
}

// DeleteUser removes everything owned by userID.
func (m *MemoryStorage) DeleteUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.chats {
		if c.UserID != userID {
			continue
		}
		for _, msg := range m.messages[id] {
			m.index.remove(msg.ID)
			delete(m.byID, msg.ID)
			delete(m.seqs, msg.ID)
		}
		delete(m.messages, id)
		delete(m.chats, id)
	}
	for id, e := range m.entries {
		if e.UserID == userID {
			delete(m.entries, id)
		}
	}
	delete(m.summaries, userID)
	delete(m.versions, userID)
	return nil
}

// Ping always succeeds.
func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

// Close is a no-op for memory storage.
func (m *MemoryStorage) Close() error { return nil }
