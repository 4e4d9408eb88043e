package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/recallkit/recall/pkg/storage"
)

const day = 24 * time.Hour

func finalizeAll(t *testing.T, env *testEnv, userID string, chatIDs ...string) {
	t.Helper()
	for _, id := range chatIDs {
		if ok, err := env.hub.FinalizeChatAndSummarize(context.Background(), id, userID); err != nil || !ok {
			t.Fatalf("finalize %s: ok=%v err=%v", id, ok, err)
		}
	}
}

func TestDistillUser_EndToEnd(t *testing.T) {
	env := newTestEnv(t, hashEmbedder())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		env.seedChat(t, "u1", fmt.Sprintf("c%d", i), baseTime.Add(-time.Hour), fmt.Sprintf("topic %d discussion", i), "answer")
	}
	finalizeAll(t, env, "u1", "c0", "c1", "c2")

	counts, err := env.hub.DistillUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if counts != (TierCounts{}) {
		t.Fatalf("fresh chats should not be distilled: %+v", counts)
	}

	env.clock.advance(49 * time.Hour)
	counts, err = env.hub.DistillUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if counts != (TierCounts{Tier1: 3}) {
		t.Fatalf("counts = %+v", counts)
	}
	if got := len(env.entries(t, "u1", storage.TierSession)); got != 3 {
		t.Fatalf("tier-1 entries = %d", got)
	}

	counts, _ = env.hub.DistillUser(ctx, "u1")
	if counts != (TierCounts{}) {
		t.Fatalf("rerun should create nothing: %+v", counts)
	}

	env.clock.advance(8 * day)
	counts, err = env.hub.DistillUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if counts != (TierCounts{Tier2: 1}) {
		t.Fatalf("counts = %+v", counts)
	}
	if got := len(env.entries(t, "u1", storage.TierSession)); got != 0 {
		t.Errorf("tier-1 entries left = %d", got)
	}
	weekly := env.entries(t, "u1", storage.TierWeekly)
	if len(weekly) != 1 {
		t.Fatalf("tier-2 entries = %d", len(weekly))
	}
	sources := append([]string(nil), weekly[0].SourceChatIDs...)
	sort.Strings(sources)
	if strings.Join(sources, ",") != "c0,c1,c2" {
		t.Errorf("sources = %v", sources)
	}
	if !strings.Contains(env.gen.last(), "\n\n---\n\n") {
		t.Error("weekly prompt should join entries with the separator")
	}

	embs, _ := env.vectors.ListEmbeddings(ctx, "u1", storage.SourceDistilled)
	if len(embs) != 1 || embs[0].SourceID != weekly[0].ID {
		t.Errorf("distilled embeddings = %+v", embs)
	}

	counts, _ = env.hub.DistillUser(ctx, "u1")
	if counts != (TierCounts{}) {
		t.Errorf("compacted chats must not be distilled again: %+v", counts)
	}
}

func TestDistillUser_CompactionFloor(t *testing.T) {
	env := newTestEnv(t, nil)
	old := baseTime.Add(-10 * day)
	env.insertEntry(t, "u1", "a", storage.TierSession, "first", old, "c1")

	counts, err := env.hub.DistillUser(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if counts.Tier2 != 0 || env.gen.calls() != 0 {
		t.Fatalf("single entry must not compact: %+v", counts)
	}

	env.insertEntry(t, "u1", "b", storage.TierSession, "second", old, "c2")
	env.insertEntry(t, "u1", "fresh", storage.TierSession, "too new", baseTime, "c3")
	counts, err = env.hub.DistillUser(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if counts.Tier2 != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	left := env.entries(t, "u1", storage.TierSession)
	if len(left) != 1 || left[0].ID != "fresh" {
		t.Errorf("remaining tier-1 = %+v", left)
	}
}

func TestDistillUser_LongTerm(t *testing.T) {
	env := newTestEnv(t, nil)
	old := baseTime.Add(-40 * day)
	env.insertEntry(t, "u1", "w1", storage.TierWeekly, "weekly one", old, "c1", "c2")
	env.insertEntry(t, "u1", "w2", storage.TierWeekly, "weekly two", old.Add(time.Hour), "c2", "c3")
	env.gen.reply = func(string) (string, error) { return repeat("z", 5000), nil }

	counts, err := env.hub.DistillUser(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if counts != (TierCounts{Tier3: 1}) {
		t.Fatalf("counts = %+v", counts)
	}
	if !strings.Contains(env.gen.last(), "long-term patterns") {
		t.Error("expected the long-term prompt")
	}
	lt := env.entries(t, "u1", storage.TierLongTerm)
	if len(lt) != 1 || charLen(lt[0].Content) != Tier3OutputCap || len(lt[0].SourceChatIDs) != 3 {
		t.Fatalf("tier-3 = %+v", lt)
	}
}

func TestDistillUser_Caps(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedChat(t, "u1", "big", baseTime.Add(-5*day), repeat("word ", 3000))
	finalizeAll(t, env, "u1", "big")
	env.clock.advance(3 * day)
	env.gen.reply = func(string) (string, error) { return repeat("y", 4000), nil }

	if _, err := env.hub.DistillUser(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	prompt := env.gen.last()
	overhead := charLen(sessionPrompt) - 2
	if got := charLen(prompt) - overhead; got != 6000 {
		t.Errorf("tier-1 input = %d chars, want 6000", got)
	}
	entries := env.entries(t, "u1", storage.TierSession)
	if len(entries) != 1 || charLen(entries[0].Content) != Tier1OutputCap {
		t.Fatalf("tier-1 entries = %+v", entries)
	}
}

func TestDistillUser_GenerationFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.insertEntry(t, "u1", "a", storage.TierSession, "one", baseTime.Add(-9*day), "c1")
	env.insertEntry(t, "u1", "b", storage.TierSession, "two", baseTime.Add(-9*day), "c2")
	env.gen.reply = func(string) (string, error) { return "", errors.New("provider down") }

	if _, err := env.hub.DistillUser(context.Background(), "u1"); err == nil {
		t.Fatal("expected error")
	}
	if got := len(env.entries(t, "u1", storage.TierSession)); got != 2 {
		t.Errorf("failed compaction must keep its inputs, got %d", got)
	}
}

func TestCompressAll(t *testing.T) {
	notifier := &recordingNotifier{}
	env := newTestEnv(t, nil, WithNotifier(notifier))
	env.hub.cfg.Distill.Workers = 3
	for _, u := range []string{"ok1", "bad", "ok2", "idle"} {
		env.seedChat(t, u, u+"-chat", baseTime.Add(-time.Hour), "conversation of "+u)
	}
	finalizeAll(t, env, "ok1", "ok1-chat")
	finalizeAll(t, env, "bad", "bad-chat")
	finalizeAll(t, env, "ok2", "ok2-chat")
	env.clock.advance(3 * day)
	env.gen.reply = func(p string) (string, error) {
		if strings.Contains(p, "conversation of bad") {
			return "", errors.New("boom")
		}
		return "- bullet", nil
	}

	report, err := env.hub.CompressAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := CompressionReport{
		"ok1":  {Tier1: 1},
		"ok2":  {Tier1: 1},
		"bad":  {Tier1: -1, Tier2: -1, Tier3: -1},
		"idle": {},
	}
	if len(report) != len(want) {
		t.Fatalf("report = %+v", report)
	}
	for u, c := range want {
		if report[u] != c {
			t.Errorf("report[%s] = %+v, want %+v", u, report[u], c)
		}
	}
	if report.Failures() != 1 {
		t.Errorf("failures = %d", report.Failures())
	}
	if len(notifier.distilled) != 2 {
		t.Errorf("distilled notifications = %d", len(notifier.distilled))
	}
}

// runConcurrently starts two DistillUser runs whose generator calls wait for
// each other, so both runs read the same inputs before either writes.
func runConcurrently(t *testing.T, env *testEnv, userID string) TierCounts {
	t.Helper()
	var arrived sync.WaitGroup
	arrived.Add(2)
	env.gen.reply = func(string) (string, error) {
		arrived.Done()
		arrived.Wait()
		return "- merged", nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		total  TierCounts
		errs   []error
		doneCh = make(chan struct{})
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts, err := env.hub.DistillUser(context.Background(), userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			total.Tier1 += counts.Tier1
			total.Tier2 += counts.Tier2
			total.Tier3 += counts.Tier3
		}()
	}
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent distill runs did not finish")
	}
	for _, err := range errs {
		t.Errorf("DistillUser() error = %v", err)
	}
	return total
}

func TestDistillUser_ConcurrentSessionRuns(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedChat(t, "u1", "c1", baseTime.Add(-time.Hour), "planning a bike tour", "sounds fun")
	finalizeAll(t, env, "u1", "c1")
	env.clock.advance(49 * time.Hour)

	total := runConcurrently(t, env, "u1")
	if total != (TierCounts{Tier1: 1}) {
		t.Errorf("combined counts = %+v, want one tier-1 entry", total)
	}
	sessions := env.entries(t, "u1", storage.TierSession)
	if len(sessions) != 1 {
		t.Fatalf("tier-1 entries = %d, want 1", len(sessions))
	}
	if got := sessions[0].SourceChatIDs; len(got) != 1 || got[0] != "c1" {
		t.Errorf("sources = %v", got)
	}
}

func TestDistillUser_ConcurrentCompaction(t *testing.T) {
	env := newTestEnv(t, nil)
	old := baseTime.Add(-10 * day)
	env.insertEntry(t, "u1", "a", storage.TierSession, "one", old, "c1")
	env.insertEntry(t, "u1", "b", storage.TierSession, "two", old, "c2")

	total := runConcurrently(t, env, "u1")
	if total != (TierCounts{Tier2: 1}) {
		t.Errorf("combined counts = %+v, want one tier-2 entry", total)
	}
	if got := len(env.entries(t, "u1", storage.TierSession)); got != 0 {
		t.Errorf("tier-1 entries left = %d", got)
	}
	weekly := env.entries(t, "u1", storage.TierWeekly)
	if len(weekly) != 1 {
		t.Fatalf("tier-2 entries = %d, want 1", len(weekly))
	}
	sources := append([]string(nil), weekly[0].SourceChatIDs...)
	sort.Strings(sources)
	if strings.Join(sources, ",") != "c1,c2" {
		t.Errorf("sources = %v", sources)
	}
}
