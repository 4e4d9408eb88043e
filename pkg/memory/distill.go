package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/storage"
	"github.com/recallkit/recall/pkg/telemetry/tracing"
)

// Output caps of distilled entries, in characters.
const (
	Tier1OutputCap = 2000
	Tier2OutputCap = 1500
	Tier3OutputCap = 1000
)

// FailedCount marks every tier of a user whose distillation failed.
const FailedCount = -1

// TierCounts is the number of entries one distillation run created per tier.
type TierCounts struct {
	Tier1 int `json:"tier1"`
	Tier2 int `json:"tier2"`
	Tier3 int `json:"tier3"`
}

// Failed reports whether the counts carry the failure sentinel.
func (c TierCounts) Failed() bool { return c.Tier1 == FailedCount }

func failedCounts() TierCounts {
	return TierCounts{Tier1: FailedCount, Tier2: FailedCount, Tier3: FailedCount}
}

// CompressionReport maps user ids to their distillation outcome.
type CompressionReport map[string]TierCounts

// Failures returns how many users failed.
func (r CompressionReport) Failures() int {
	n := 0
	for _, c := range r {
		if c.Failed() {
			n++
		}
	}
	return n
}

// compaction describes one tier-2 or tier-3 pass.
type compaction struct {
	from      storage.Tier
	to        storage.Tier
	after     time.Duration
	prompt    string
	outputCap int
}

// DistillUser runs tier 1, tier 2 and tier 3 in order for one user. Every
// pass only consumes what is eligible, so repeated runs converge.
func (h *Hub) DistillUser(ctx context.Context, userID string) (counts TierCounts, err error) {
	if userID == "" {
		return counts, ErrInvalidUserID
	}
	ctx, span := tracing.Start(ctx, "memory.distill", attribute.String("user_id", userID))
	defer func() { tracing.End(span, err) }()

	cfg := h.Config().Distill

	if counts.Tier1, err = h.distillSessions(ctx, userID, cfg); err != nil {
		return counts, fmt.Errorf("tier 1: %w", err)
	}
	if counts.Tier2, err = h.compact(ctx, userID, cfg, compaction{
		from: storage.TierSession, to: storage.TierWeekly,
		after: cfg.Tier2After, prompt: weeklyPrompt, outputCap: Tier2OutputCap,
	}); err != nil {
		return counts, fmt.Errorf("tier 2: %w", err)
	}
	if counts.Tier3, err = h.compact(ctx, userID, cfg, compaction{
		from: storage.TierWeekly, to: storage.TierLongTerm,
		after: cfg.Tier3After, prompt: longTermPrompt, outputCap: Tier3OutputCap,
	}); err != nil {
		return counts, fmt.Errorf("tier 3: %w", err)
	}

	if counts.Tier1+counts.Tier2+counts.Tier3 > 0 {
		h.invalidate(ctx, userID)
		h.notifier.MemoryDistilled(userID, counts.Tier1, counts.Tier2, counts.Tier3)
	}
	h.metrics.RecordDistilled(int(storage.TierSession), counts.Tier1)
	h.metrics.RecordDistilled(int(storage.TierWeekly), counts.Tier2)
	h.metrics.RecordDistilled(int(storage.TierLongTerm), counts.Tier3)
	return counts, nil
}

// distillSessions turns each old, not yet distilled chat into a tier-1 entry.
func (h *Hub) distillSessions(ctx context.Context, userID string, cfg config.DistillConfig) (int, error) {
	chats, err := h.store.ListDistillableChats(ctx, userID, h.now().Add(-cfg.Tier1After))
	if err != nil {
		return 0, fmt.Errorf("list distillable chats: %w", err)
	}

	created := 0
	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		msgs, err := h.store.GetMessages(ctx, chat.ID)
		if err != nil {
			return created, fmt.Errorf("load messages of %s: %w", chat.ID, err)
		}
		if len(msgs) == 0 {
			continue
		}

		input := truncate(transcript(msgs), cfg.Tier1InputCap)
		out, err := h.gen.Generate(ctx, fmt.Sprintf(sessionPrompt, input))
		if err != nil {
			return created, fmt.Errorf("generate session summary for %s: %w", chat.ID, err)
		}

		entry := &storage.DistilledEntry{
			ID:            h.newID(),
			UserID:        userID,
			Tier:          storage.TierSession,
			Content:       truncate(out, Tier1OutputCap),
			SourceChatIDs: []string{chat.ID},
			CreatedAt:     h.now(),
		}
		if err := h.store.InsertEntry(ctx, entry); err != nil {
			if storage.IsConflict(err) {
				h.logger.Debug("chat already distilled by a concurrent run",
					"user_id", userID, "chat_id", chat.ID)
				continue
			}
			return created, fmt.Errorf("insert tier-1 entry: %w", err)
		}
		h.embedEntry(ctx, entry)
		created++
	}
	return created, nil
}

// compact folds every eligible entry of one tier into a single entry of the
// next tier. Fewer than two eligible entries is a no-op.
func (h *Hub) compact(ctx context.Context, userID string, cfg config.DistillConfig, c compaction) (int, error) {
	cutoff := h.now().Add(-c.after)
	aged, err := h.store.ListEntries(ctx, userID, c.from, cutoff, cfg.ScanLimit)
	if err != nil {
		return 0, fmt.Errorf("list tier-%d entries: %w", c.from, err)
	}
	var eligible []*storage.DistilledEntry
	for _, e := range aged {
		if e.CreatedAt.Before(cutoff) {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) < 2 {
		return 0, nil
	}

	contents := make([]string, len(eligible))
	consumed := make([]string, len(eligible))
	var sources []string
	seen := make(map[string]struct{})
	for i, e := range eligible {
		contents[i] = e.Content
		consumed[i] = e.ID
		for _, chatID := range e.SourceChatIDs {
			if _, ok := seen[chatID]; ok {
				continue
			}
			seen[chatID] = struct{}{}
			sources = append(sources, chatID)
		}
	}

	input := truncate(strings.Join(contents, entrySeparator), cfg.CompactInputCap)
	out, err := h.gen.Generate(ctx, fmt.Sprintf(c.prompt, input))
	if err != nil {
		return 0, fmt.Errorf("generate tier-%d summary: %w", c.to, err)
	}

	entry := &storage.DistilledEntry{
		ID:            h.newID(),
		UserID:        userID,
		Tier:          c.to,
		Content:       truncate(out, c.outputCap),
		SourceChatIDs: sources,
		CreatedAt:     h.now(),
	}
	if err := h.store.CompactEntries(ctx, entry, consumed); err != nil {
		if storage.IsConflict(err) {
			h.logger.Info("compaction skipped, inputs consumed by a concurrent run",
				"user_id", userID, "tier", int(c.from))
			return 0, nil
		}
		return 0, fmt.Errorf("compact tier-%d entries: %w", c.from, err)
	}
	if h.vectors != nil {
		if err := h.vectors.DeleteEmbeddings(ctx, userID, storage.SourceDistilled, consumed); err != nil {
			h.logger.Warn("deleting consumed embeddings failed",
				"user_id", userID, "tier", int(c.from), "error", err)
		}
	}
	h.embedEntry(ctx, entry)

	h.logger.Info("distilled entries compacted",
		"user_id", userID,
		"tier", int(c.to),
		"consumed", len(consumed),
		"sources", len(sources),
	)
	return 1, nil
}

// embedEntry stores the embedding of a distilled entry. It never fails the
// caller; a missing embedding only hides the entry from distilled search.
func (h *Hub) embedEntry(ctx context.Context, entry *storage.DistilledEntry) {
	if h.vectors == nil || !h.embedder.Available(ctx) {
		return
	}
	vecs := h.embedder.Embed(ctx, []string{entry.Content})
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return
	}
	err := h.vectors.PutEmbeddings(ctx, []*storage.Embedding{{
		SourceType: storage.SourceDistilled,
		SourceID:   entry.ID,
		UserID:     entry.UserID,
		Model:      h.embedder.Model(),
		Vector:     vecs[0],
		CreatedAt:  entry.CreatedAt,
	}})
	if err != nil {
		h.logger.Warn("storing distilled embedding failed",
			"user_id", entry.UserID, "entry_id", entry.ID, "error", err)
	}
}

// CompressAll distills every known user. Users run on a bounded worker pool;
// a failing user is logged and reported with the failure sentinel without
// stopping the others.
func (h *Hub) CompressAll(ctx context.Context) (CompressionReport, error) {
	users, err := h.store.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	workers := h.Config().Distill.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		report = make(CompressionReport, len(users))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, userID := range users {
		g.Go(func() error {
			counts, err := h.DistillUser(gctx, userID)
			if err != nil {
				h.logger.Error("distillation failed", "user_id", userID, "error", err)
				h.metrics.RecordDistillFailure()
				counts = failedCounts()
			}
			mu.Lock()
			report[userID] = counts
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return report, ctx.Err()
}
