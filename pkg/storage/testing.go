package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// StorageTestSuite runs the same behavioural checks against any Storage.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Storage
}

// RunAllTests runs every storage test against the implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("ChatLifecycle", s.TestChatLifecycle)
	t.Run("AppendMessagesTouchesChat", s.TestAppendMessagesTouchesChat)
	t.Run("GetMessagesByIDsScopedToUser", s.TestGetMessagesByIDsScopedToUser)
	t.Run("FinalizeChatCompareAndSet", s.TestFinalizeChatCompareAndSet)
	t.Run("ConcurrentFinalize", s.TestConcurrentFinalize)
	t.Run("ListIdleChats", s.TestListIdleChats)
	t.Run("ListDistillableChats", s.TestListDistillableChats)
	t.Run("ListUserIDs", s.TestListUserIDs)
	t.Run("SummaryVersions", s.TestSummaryVersions)
	t.Run("DistilledEntries", s.TestDistilledEntries)
	t.Run("CompactEntries", s.TestCompactEntries)
	t.Run("CompactEntriesConsumedTwice", s.TestCompactEntriesConsumedTwice)
	t.Run("SessionEntrySourcesUnique", s.TestSessionEntrySourcesUnique)
	t.Run("LexicalSearch", s.TestLexicalSearch)
	t.Run("LexicalSearchHostileQuery", s.TestLexicalSearchHostileQuery)
	t.Run("DeleteUser", s.TestDeleteUser)
}

var suiteBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func mustCreateChat(t *testing.T, store Storage, id, userID string) *Chat {
	t.Helper()
	chat := &Chat{
		ID:             id,
		UserID:         userID,
		Title:          "chat " + id,
		Visibility:     VisibilityPrivate,
		CreatedAt:      suiteBase,
		LastActivityAt: suiteBase,
	}
	if err := store.CreateChat(context.Background(), chat); err != nil {
		t.Fatalf("CreateChat(%s) failed: %v", id, err)
	}
	return chat
}

func textMessage(id, chatID, role, text string, at time.Time) *Message {
	return &Message{
		ID:        id,
		ChatID:    chatID,
		Role:      role,
		Parts:     []Part{{Type: "text", Text: text}},
		CreatedAt: at,
	}
}

func mustAppend(t *testing.T, store Storage, chatID string, msgs ...*Message) {
	t.Helper()
	if err := store.AppendMessages(context.Background(), chatID, msgs); err != nil {
		t.Fatalf("AppendMessages(%s) failed: %v", chatID, err)
	}
}

// TestChatLifecycle covers create, get and the typed errors.
func (s *StorageTestSuite) TestChatLifecycle(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateChat(t, store, "chat-1", "user-1")

	got, err := store.GetChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if got.UserID != "user-1" || got.Title != "chat chat-1" {
		t.Errorf("unexpected chat %+v", got)
	}
	if got.Visibility != VisibilityPrivate {
		t.Errorf("expected private visibility, got %s", got.Visibility)
	}
	if got.Finalized() {
		t.Error("new chat must not be finalized")
	}

	err = store.CreateChat(ctx, &Chat{ID: "chat-1", UserID: "user-1", CreatedAt: suiteBase, LastActivityAt: suiteBase})
	if !IsDuplicate(err) {
		t.Errorf("expected DuplicateKeyError, got %v", err)
	}

	if _, err := store.GetChat(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

// TestAppendMessagesTouchesChat checks ordering, count and last activity.
func (s *StorageTestSuite) TestAppendMessagesTouchesChat(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateChat(t, store, "chat-1", "user-1")
	t1 := suiteBase.Add(time.Minute)
	t2 := suiteBase.Add(2 * time.Minute)

	mustAppend(t, store, "chat-1",
		textMessage("m-1", "chat-1", "user", "hello", t1),
		&Message{ID: "m-2", ChatID: "chat-1", Role: "assistant", CreatedAt: t2, Parts: []Part{
			{Type: "text", Text: "first"},
			{Type: "image"},
			{Type: "text", Text: "second"},
		}},
	)

	chat, err := store.GetChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if chat.MessageCount != 2 {
		t.Errorf("expected message count 2, got %d", chat.MessageCount)
	}
	if !chat.LastActivityAt.Equal(t2) {
		t.Errorf("expected last activity %v, got %v", t2, chat.LastActivityAt)
	}

	msgs, err := store.GetMessages(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m-1" || msgs[1].ID != "m-2" {
		t.Errorf("unexpected order %s, %s", msgs[0].ID, msgs[1].ID)
	}
	if got := msgs[1].Text(); got != "first\nsecond" {
		t.Errorf("unexpected flattened text %q", got)
	}
	if len(msgs[1].Parts) != 3 {
		t.Errorf("expected parts to round-trip, got %d", len(msgs[1].Parts))
	}
	if !msgs[0].CreatedAt.Equal(t1) {
		t.Errorf("expected created at %v, got %v", t1, msgs[0].CreatedAt)
	}

	err = store.AppendMessages(ctx, "missing", []*Message{textMessage("m-3", "missing", "user", "x", t1)})
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError for unknown chat, got %v", err)
	}
}

// TestGetMessagesByIDsScopedToUser checks hydration never crosses users.
func (s *StorageTestSuite) TestGetMessagesByIDsScopedToUser(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateChat(t, store, "chat-a", "user-a")
	mustCreateChat(t, store, "chat-b", "user-b")
	mustAppend(t, store, "chat-a", textMessage("a-1", "chat-a", "user", "alpha", suiteBase))
	mustAppend(t, store, "chat-b", textMessage("b-1", "chat-b", "user", "beta", suiteBase))

	msgs, err := store.GetMessagesByIDs(ctx, "user-a", []string{"a-1", "b-1", "nope"})
	if err != nil {
		t.Fatalf("GetMessagesByIDs failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "a-1" {
		t.Errorf("expected only a-1, got %v", msgs)
	}

	msgs, err = store.GetMessagesByIDs(ctx, "user-a", nil)
	if err != nil || len(msgs) != 0 {
		t.Errorf("expected empty result for no ids, got %v, %v", msgs, err)
	}
}

// TestFinalizeChatCompareAndSet checks the transition happens once.
func (s *StorageTestSuite) TestFinalizeChatCompareAndSet(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateChat(t, store, "chat-1", "user-1")
	at := suiteBase.Add(time.Hour)

	ok, err := store.FinalizeChat(ctx, "chat-1", at)
	if err != nil || !ok {
		t.Fatalf("first FinalizeChat = %v, %v; want true, nil", ok, err)
	}
	ok, err = store.FinalizeChat(ctx, "chat-1", at.Add(time.Hour))
	if err != nil || ok {
		t.Fatalf("second FinalizeChat = %v, %v; want false, nil", ok, err)
	}

	chat, err := store.GetChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if chat.FinalizedAt == nil || !chat.FinalizedAt.Equal(at) {
		t.Errorf("expected finalized at %v, got %v", at, chat.FinalizedAt)
	}

	if err := store.MarkChatSummarized(ctx, "chat-1", 3, at); err != nil {
		t.Fatalf("MarkChatSummarized failed: %v", err)
	}
	chat, _ = store.GetChat(ctx, "chat-1")
	if chat.SummaryVersion != 3 || chat.SummarizedAt == nil {
		t.Errorf("expected summary stamp, got version=%d at=%v", chat.SummaryVersion, chat.SummarizedAt)
	}

	if _, err := store.FinalizeChat(ctx, "missing", at); !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

// TestConcurrentFinalize checks exactly one concurrent caller wins.
func (s *StorageTestSuite) TestConcurrentFinalize(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateChat(t, store, "chat-1", "user-1")

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.FinalizeChat(ctx, "chat-1", suiteBase)
			if err != nil {
				t.Errorf("FinalizeChat failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

// TestListIdleChats checks the idle cutoff and that finalized chats are skipped.
func (s *StorageTestSuite) TestListIdleChats(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateChat(t, store, "old", "user-1")
	mustCreateChat(t, store, "fresh", "user-1")
	mustCreateChat(t, store, "done", "user-2")
	mustAppend(t, store, "fresh", textMessage("f-1", "fresh", "user", "hi", suiteBase.Add(2*time.Hour)))
	if _, err := store.FinalizeChat(ctx, "done", suiteBase); err != nil {
		t.Fatalf("FinalizeChat failed: %v", err)
	}

	idle, err := store.ListIdleChats(ctx, suiteBase.Add(time.Hour), 100)
	if err != nil {
		t.Fatalf("ListIdleChats failed: %v", err)
	}
	if len(idle) != 1 || idle[0].ID != "old" {
		t.Errorf("expected only 'old', got %v", chatIDs(idle))
	}
}

// TestListDistillableChats checks age and source-membership exclusion.
func (s *StorageTestSuite) TestListDistillableChats(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "recent", "open"} {
		mustCreateChat(t, store, id, "user-1")
	}
	mustCreateChat(t, store, "other", "user-2")
	old := suiteBase.Add(-72 * time.Hour)
	for _, id := range []string{"a", "b", "other"} {
		if _, err := store.FinalizeChat(ctx, id, old); err != nil {
			t.Fatalf("FinalizeChat(%s) failed: %v", id, err)
		}
	}
	if _, err := store.FinalizeChat(ctx, "recent", suiteBase); err != nil {
		t.Fatalf("FinalizeChat failed: %v", err)
	}
	if err := store.InsertEntry(ctx, &DistilledEntry{
		ID: "e-1", UserID: "user-1", Tier: TierWeekly, Content: "x",
		SourceChatIDs: []string{"a"}, CreatedAt: suiteBase,
	}); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	chats, err := store.ListDistillableChats(ctx, "user-1", suiteBase.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("ListDistillableChats failed: %v", err)
	}
	if got := chatIDs(chats); len(got) != 1 || got[0] != "b" {
		t.Errorf("expected [b], got %v", got)
	}
}

// TestListUserIDs checks that every chat owner is listed once, sorted.
func (s *StorageTestSuite) TestListUserIDs(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	mustCreateChat(t, store, "c-1", "zed")
	mustCreateChat(t, store, "c-2", "amy")
	mustCreateChat(t, store, "c-3", "zed")

	users, err := store.ListUserIDs(context.Background())
	if err != nil {
		t.Fatalf("ListUserIDs failed: %v", err)
	}
	if strings.Join(users, ",") != "amy,zed" {
		t.Errorf("expected [amy zed], got %v", users)
	}
}

// TestSummaryVersions checks archive-before-overwrite versioning.
func (s *StorageTestSuite) TestSummaryVersions(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	if _, err := store.GetSummary(ctx, "user-1"); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError before first save, got %v", err)
	}

	first, err := store.SaveSummary(ctx, "user-1", "likes go", suiteBase)
	if err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}
	if first.Version != 1 {
		t.Errorf("expected version 1, got %d", first.Version)
	}
	second, err := store.SaveSummary(ctx, "user-1", "likes go and rust", suiteBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Version)
	}

	got, err := store.GetSummary(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if got.Content != "likes go and rust" || got.Version != 2 {
		t.Errorf("unexpected summary %+v", got)
	}

	versions, err := store.ListSummaryVersions(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("ListSummaryVersions failed: %v", err)
	}
	if len(versions) != 1 || versions[0].Version != 1 || versions[0].Content != "likes go" {
		t.Errorf("expected archived version 1, got %+v", versions)
	}
}

// TestDistilledEntries checks listing order, age bound, limit and sources.
func (s *StorageTestSuite) TestDistilledEntries(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		err := store.InsertEntry(ctx, &DistilledEntry{
			ID:            fmt.Sprintf("e-%d", i),
			UserID:        "user-1",
			Tier:          TierSession,
			Content:       fmt.Sprintf("entry %d", i),
			SourceChatIDs: []string{fmt.Sprintf("chat-%d", i)},
			CreatedAt:     suiteBase.Add(time.Duration(i) * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("InsertEntry failed: %v", err)
		}
	}
	if err := store.InsertEntry(ctx, &DistilledEntry{
		ID: "w-1", UserID: "user-1", Tier: TierWeekly, Content: "weekly", CreatedAt: suiteBase,
	}); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	all, err := store.ListEntries(ctx, "user-1", TierSession, time.Time{}, 0)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if got := entryIDs(all); strings.Join(got, ",") != "e-3,e-2,e-1,e-0" {
		t.Errorf("expected newest first, got %v", got)
	}
	if len(all[0].SourceChatIDs) != 1 || all[0].SourceChatIDs[0] != "chat-3" {
		t.Errorf("expected sources to round-trip, got %v", all[0].SourceChatIDs)
	}

	aged, err := store.ListEntries(ctx, "user-1", TierSession, suiteBase.Add(36*time.Hour), 0)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if got := entryIDs(aged); strings.Join(got, ",") != "e-1,e-0" {
		t.Errorf("expected age-bounded entries, got %v", got)
	}

	limited, err := store.ListEntries(ctx, "user-1", TierSession, time.Time{}, 2)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 entries, got %d", len(limited))
	}

	got, err := store.GetEntries(ctx, "user-1", []string{"e-0", "w-1", "missing"})
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 entries, got %d", len(got))
	}
}

// TestCompactEntries checks insert-new plus delete-consumed.
func (s *StorageTestSuite) TestCompactEntries(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for i, src := range []string{"chat-a", "chat-b"} {
		if err := store.InsertEntry(ctx, &DistilledEntry{
			ID: fmt.Sprintf("e-%d", i), UserID: "user-1", Tier: TierSession,
			Content: "x", SourceChatIDs: []string{src}, CreatedAt: suiteBase,
		}); err != nil {
			t.Fatalf("InsertEntry failed: %v", err)
		}
	}

	out := &DistilledEntry{
		ID: "w-1", UserID: "user-1", Tier: TierWeekly, Content: "weekly",
		SourceChatIDs: []string{"chat-a", "chat-b"}, CreatedAt: suiteBase.Add(time.Hour),
	}
	if err := store.CompactEntries(ctx, out, []string{"e-0", "e-1"}); err != nil {
		t.Fatalf("CompactEntries failed: %v", err)
	}

	tier1, _ := store.ListEntries(ctx, "user-1", TierSession, time.Time{}, 0)
	if len(tier1) != 0 {
		t.Errorf("expected consumed entries to be deleted, got %v", entryIDs(tier1))
	}
	tier2, _ := store.ListEntries(ctx, "user-1", TierWeekly, time.Time{}, 0)
	if len(tier2) != 1 || len(tier2[0].SourceChatIDs) != 2 {
		t.Fatalf("expected one weekly entry with 2 sources, got %+v", tier2)
	}

	err := store.CompactEntries(ctx, &DistilledEntry{
		ID: "w-1", UserID: "user-1", Tier: TierWeekly, Content: "dup", CreatedAt: suiteBase,
	}, []string{"w-1"})
	if err == nil {
		t.Error("expected duplicate output id to fail")
	}
	tier2, _ = store.ListEntries(ctx, "user-1", TierWeekly, time.Time{}, 0)
	if len(tier2) != 1 || tier2[0].Content != "weekly" {
		t.Errorf("failed compaction must not delete inputs, got %+v", tier2)
	}
}

// TestCompactEntriesConsumedTwice checks that a compaction whose inputs were
// already consumed fails with a conflict and changes nothing.
func (s *StorageTestSuite) TestCompactEntriesConsumedTwice(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for i, src := range []string{"chat-a", "chat-b"} {
		if err := store.InsertEntry(ctx, &DistilledEntry{
			ID: fmt.Sprintf("e-%d", i), UserID: "user-1", Tier: TierSession,
			Content: "x", SourceChatIDs: []string{src}, CreatedAt: suiteBase,
		}); err != nil {
			t.Fatalf("InsertEntry failed: %v", err)
		}
	}
	first := &DistilledEntry{
		ID: "w-1", UserID: "user-1", Tier: TierWeekly, Content: "first",
		SourceChatIDs: []string{"chat-a", "chat-b"}, CreatedAt: suiteBase.Add(time.Hour),
	}
	if err := store.CompactEntries(ctx, first, []string{"e-0", "e-1"}); err != nil {
		t.Fatalf("CompactEntries failed: %v", err)
	}

	second := &DistilledEntry{
		ID: "w-2", UserID: "user-1", Tier: TierWeekly, Content: "second",
		SourceChatIDs: []string{"chat-a", "chat-b"}, CreatedAt: suiteBase.Add(time.Hour),
	}
	err := store.CompactEntries(ctx, second, []string{"e-0", "e-1"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict for consumed inputs, got %v", err)
	}
	tier2, _ := store.ListEntries(ctx, "user-1", TierWeekly, time.Time{}, 0)
	if len(tier2) != 1 || tier2[0].ID != "w-1" {
		t.Errorf("expected only the first compaction output, got %v", entryIDs(tier2))
	}

	if err := store.InsertEntry(ctx, &DistilledEntry{
		ID: "e-2", UserID: "user-1", Tier: TierSession,
		Content: "x", SourceChatIDs: []string{"chat-c"}, CreatedAt: suiteBase,
	}); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	err = store.CompactEntries(ctx, &DistilledEntry{
		ID: "w-3", UserID: "user-1", Tier: TierWeekly, Content: "partial",
		SourceChatIDs: []string{"chat-a", "chat-c"}, CreatedAt: suiteBase.Add(time.Hour),
	}, []string{"e-0", "e-2"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict for partly consumed inputs, got %v", err)
	}
	tier1, _ := store.ListEntries(ctx, "user-1", TierSession, time.Time{}, 0)
	if len(tier1) != 1 || tier1[0].ID != "e-2" {
		t.Errorf("failed compaction must keep surviving inputs, got %v", entryIDs(tier1))
	}
}

// TestSessionEntrySourcesUnique checks that a chat feeds at most one
// session entry, and none once a compacted entry covers it.
func (s *StorageTestSuite) TestSessionEntrySourcesUnique(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	insert := func(id string, tier Tier, userID string, sources ...string) error {
		return store.InsertEntry(ctx, &DistilledEntry{
			ID: id, UserID: userID, Tier: tier, Content: "x",
			SourceChatIDs: sources, CreatedAt: suiteBase,
		})
	}
	if err := insert("e-1", TierSession, "user-1", "chat-1"); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	if err := insert("e-2", TierSession, "user-1", "chat-1"); !IsConflict(err) {
		t.Errorf("expected conflict for a chat already distilled, got %v", err)
	}
	if err := insert("w-1", TierWeekly, "user-1", "chat-2"); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	if err := insert("e-3", TierSession, "user-1", "chat-2"); !IsConflict(err) {
		t.Errorf("expected conflict for a chat covered by a weekly entry, got %v", err)
	}
	if err := insert("e-4", TierSession, "user-2", "chat-1"); err != nil {
		t.Errorf("sources of another user must not conflict: %v", err)
	}

	tier1, _ := store.ListEntries(ctx, "user-1", TierSession, time.Time{}, 0)
	if len(tier1) != 1 || tier1[0].ID != "e-1" {
		t.Errorf("expected only e-1, got %v", entryIDs(tier1))
	}
}

// TestLexicalSearch checks ranking, snippets and user scoping.
func (s *StorageTestSuite) TestLexicalSearch(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateChat(t, store, "chat-1", "user-1")
	mustCreateChat(t, store, "chat-2", "user-2")
	mustAppend(t, store, "chat-1",
		textMessage("m-1", "chat-1", "user", "I deploy with kubernetes every friday", suiteBase),
		textMessage("m-2", "chat-1", "assistant", "Kubernetes deployments on kubernetes clusters", suiteBase.Add(time.Minute)),
		textMessage("m-3", "chat-1", "user", "completely unrelated text about cooking", suiteBase.Add(2*time.Minute)),
	)
	mustAppend(t, store, "chat-2", textMessage("x-1", "chat-2", "user", "kubernetes for user two", suiteBase))

	hits, err := store.SearchMessages(ctx, "user-1", "Kubernetes?", 10)
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.ChatID != "chat-1" {
			t.Errorf("hit from foreign chat %s", h.ChatID)
		}
		if !strings.Contains(h.Snippet, "**") {
			t.Errorf("expected highlighted snippet, got %q", h.Snippet)
		}
		if h.Role == "" || h.CreatedAt.IsZero() {
			t.Errorf("expected role and time on hit, got %+v", h)
		}
	}
	if hits[0].MessageID != "m-2" {
		t.Errorf("expected denser match first, got %s", hits[0].MessageID)
	}

	limited, err := store.SearchMessages(ctx, "user-1", "kubernetes", 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("expected 1 hit with limit, got %d, %v", len(limited), err)
	}

	none, err := store.SearchMessages(ctx, "user-1", "   ", 10)
	if err != nil || len(none) != 0 {
		t.Errorf("expected no hits for blank query, got %d, %v", len(none), err)
	}
}

// TestLexicalSearchHostileQuery checks that query syntax is never interpreted.
func (s *StorageTestSuite) TestLexicalSearchHostileQuery(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateChat(t, store, "chat-1", "user-1")
	mustAppend(t, store, "chat-1", textMessage("m-1", "chat-1", "user", "the NEAR operator and quotes", suiteBase))

	for _, q := range []string{`"unbalanced`, `AND OR NOT`, `col:value*`, `(((`, `NEAR(a b)`, `-`, `^*`} {
		if _, err := store.SearchMessages(ctx, "user-1", q, 5); err != nil {
			t.Errorf("SearchMessages(%q) failed: %v", q, err)
		}
	}
	hits, err := store.SearchMessages(ctx, "user-1", `"operator"`, 5)
	if err != nil || len(hits) != 1 {
		t.Errorf("expected quoted term to match, got %d, %v", len(hits), err)
	}
}

// TestDeleteUser checks that deletion removes all user data and nothing else.
func (s *StorageTestSuite) TestDeleteUser(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateChat(t, store, "chat-1", "user-1")
	mustCreateChat(t, store, "chat-2", "user-2")
	mustAppend(t, store, "chat-1", textMessage("m-1", "chat-1", "user", "secret plans", suiteBase))
	mustAppend(t, store, "chat-2", textMessage("m-2", "chat-2", "user", "secret plans", suiteBase))
	if _, err := store.SaveSummary(ctx, "user-1", "summary", suiteBase); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}
	if _, err := store.SaveSummary(ctx, "user-1", "summary 2", suiteBase); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}
	if err := store.InsertEntry(ctx, &DistilledEntry{
		ID: "e-1", UserID: "user-1", Tier: TierSession, Content: "x",
		SourceChatIDs: []string{"chat-1"}, CreatedAt: suiteBase,
	}); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}

	if err := store.DeleteUser(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	if _, err := store.GetChat(ctx, "chat-1"); !IsNotFound(err) {
		t.Errorf("expected chat to be deleted, got %v", err)
	}
	if _, err := store.GetSummary(ctx, "user-1"); !IsNotFound(err) {
		t.Errorf("expected summary to be deleted, got %v", err)
	}
	if versions, _ := store.ListSummaryVersions(ctx, "user-1", 10); len(versions) != 0 {
		t.Errorf("expected versions to be deleted, got %d", len(versions))
	}
	if entries, _ := store.ListEntries(ctx, "user-1", TierSession, time.Time{}, 0); len(entries) != 0 {
		t.Errorf("expected entries to be deleted, got %d", len(entries))
	}
	if hits, _ := store.SearchMessages(ctx, "user-1", "secret", 10); len(hits) != 0 {
		t.Errorf("expected lexical index to be purged, got %d hits", len(hits))
	}
	if hits, _ := store.SearchMessages(ctx, "user-2", "secret", 10); len(hits) != 1 {
		t.Errorf("other users must be untouched, got %d hits", len(hits))
	}
}

func chatIDs(chats []*Chat) []string {
	ids := make([]string, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	return ids
}

func entryIDs(entries []*DistilledEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// EmbeddingStoreTestSuite runs the same checks against any EmbeddingStore.
type EmbeddingStoreTestSuite struct {
	NewStore func(t *testing.T) EmbeddingStore
}

// RunAllTests runs every embedding store test.
func (s *EmbeddingStoreTestSuite) RunAllTests(t *testing.T) {
	t.Run("PutAndList", s.TestPutAndList)
	t.Run("Replace", s.TestReplace)
	t.Run("HasEmbeddings", s.TestHasEmbeddings)
	t.Run("Delete", s.TestDelete)
	t.Run("DeleteUser", s.TestDeleteUser)
}

func embedding(st SourceType, id, userID string, v ...float32) *Embedding {
	return &Embedding{
		SourceType: st,
		SourceID:   id,
		UserID:     userID,
		ChatID:     "chat-" + id,
		Model:      "test-model",
		Vector:     v,
		CreatedAt:  suiteBase,
	}
}

// TestPutAndList checks round-tripping and per-user, per-type scoping.
func (s *EmbeddingStoreTestSuite) TestPutAndList(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	err := store.PutEmbeddings(ctx, []*Embedding{
		embedding(SourceMessage, "m-1", "user-1", 0.6, 0.8),
		embedding(SourceMessage, "m-2", "user-1", 1, 0),
		embedding(SourceDistilled, "e-1", "user-1", 0, 1),
		embedding(SourceMessage, "m-3", "user-2", 1, 0),
	})
	if err != nil {
		t.Fatalf("PutEmbeddings failed: %v", err)
	}

	msgs, err := store.ListEmbeddings(ctx, "user-1", SourceMessage)
	if err != nil {
		t.Fatalf("ListEmbeddings failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 message embeddings, got %d", len(msgs))
	}
	byID := map[string]*Embedding{}
	for _, e := range msgs {
		byID[e.SourceID] = e
	}
	e := byID["m-1"]
	if e == nil || len(e.Vector) != 2 || e.Vector[0] != 0.6 || e.Vector[1] != 0.8 {
		t.Errorf("vector did not round-trip: %+v", e)
	}
	if e != nil && (e.ChatID != "chat-m-1" || e.Model != "test-model" || !e.CreatedAt.Equal(suiteBase)) {
		t.Errorf("metadata did not round-trip: %+v", e)
	}

	distilled, _ := store.ListEmbeddings(ctx, "user-1", SourceDistilled)
	if len(distilled) != 1 {
		t.Errorf("expected 1 distilled embedding, got %d", len(distilled))
	}
}

// TestReplace checks that a second put for a source overwrites the first.
func (s *EmbeddingStoreTestSuite) TestReplace(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	_ = store.PutEmbeddings(ctx, []*Embedding{embedding(SourceMessage, "m-1", "user-1", 1, 0)})
	if err := store.PutEmbeddings(ctx, []*Embedding{embedding(SourceMessage, "m-1", "user-1", 0, 1)}); err != nil {
		t.Fatalf("PutEmbeddings failed: %v", err)
	}
	list, _ := store.ListEmbeddings(ctx, "user-1", SourceMessage)
	if len(list) != 1 || list[0].Vector[1] != 1 {
		t.Errorf("expected replaced vector, got %+v", list)
	}
}

// TestHasEmbeddings checks membership reporting.
func (s *EmbeddingStoreTestSuite) TestHasEmbeddings(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	_ = store.PutEmbeddings(ctx, []*Embedding{embedding(SourceMessage, "m-1", "user-1", 1)})
	has, err := store.HasEmbeddings(ctx, "user-1", SourceMessage, []string{"m-1", "m-2"})
	if err != nil {
		t.Fatalf("HasEmbeddings failed: %v", err)
	}
	if !has["m-1"] || has["m-2"] {
		t.Errorf("unexpected membership %v", has)
	}
}

// TestDelete checks deletion by source id.
func (s *EmbeddingStoreTestSuite) TestDelete(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	_ = store.PutEmbeddings(ctx, []*Embedding{
		embedding(SourceDistilled, "e-1", "user-1", 1),
		embedding(SourceDistilled, "e-2", "user-1", 1),
	})
	if err := store.DeleteEmbeddings(ctx, "user-1", SourceDistilled, []string{"e-1", "missing"}); err != nil {
		t.Fatalf("DeleteEmbeddings failed: %v", err)
	}
	list, _ := store.ListEmbeddings(ctx, "user-1", SourceDistilled)
	if len(list) != 1 || list[0].SourceID != "e-2" {
		t.Errorf("expected only e-2, got %+v", list)
	}
}

// TestDeleteUser checks that deletion is scoped to one user.
func (s *EmbeddingStoreTestSuite) TestDeleteUser(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	_ = store.PutEmbeddings(ctx, []*Embedding{
		embedding(SourceMessage, "m-1", "user-1", 1),
		embedding(SourceDistilled, "e-1", "user-1", 1),
		embedding(SourceMessage, "m-2", "user-10", 1),
	})
	if err := store.DeleteUser(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	for _, st := range []SourceType{SourceMessage, SourceDistilled} {
		if list, _ := store.ListEmbeddings(ctx, "user-1", st); len(list) != 0 {
			t.Errorf("expected %s embeddings deleted, got %d", st, len(list))
		}
	}
	if list, _ := store.ListEmbeddings(ctx, "user-10", SourceMessage); len(list) != 1 {
		t.Errorf("user-10 must be untouched, got %d", len(list))
	}
}
