package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/recallkit/recall/pkg/storage"
	"github.com/recallkit/recall/pkg/telemetry/tracing"
)

// Section headers of a built context.
const (
	headerSummary  = "### Rolling Summary"
	headerSearch   = "### Relevant Past Messages"
	headerSessions = "### Recent Sessions (last 48h)"
	headerWeekly   = "### Weekly Patterns"

	sectionSeparator = "\n\n"
	dateLayout       = "2006-01-02"
)

// BuildContext assembles the memory context injected into a prompt: the
// rolling summary, messages relevant to message, recent session entries and
// weekly patterns, in that order and never longer than the context budget.
// It reports false when the user has no memory at all.
func (h *Hub) BuildContext(ctx context.Context, userID, message string) (string, bool) {
	if userID == "" {
		return "", false
	}
	// The generation is read before the build so a concurrent
	// invalidation keeps this build's result out of the newer generation.
	var (
		generation int64
		cacheable  bool
	)
	if h.cache != nil {
		content, gen, ok, err := h.cache.Get(ctx, userID, message)
		if err != nil {
			h.logger.Warn("context cache read failed", "user_id", userID, "error", err)
		} else {
			generation, cacheable = gen, true
		}
		h.metrics.RecordContextCache(ok)
		if ok {
			return content, content != ""
		}
	}

	ctx, span := tracing.Start(ctx, "memory.context", attribute.String("user_id", userID))
	content := h.buildContext(ctx, userID, message)
	span.SetAttributes(attribute.Int("chars", charLen(content)))
	tracing.End(span, nil)

	if cacheable {
		if err := h.cache.Set(ctx, userID, message, content, generation); err != nil {
			h.logger.Warn("context cache write failed", "user_id", userID, "error", err)
		}
	}
	return content, content != ""
}

func (h *Hub) buildContext(ctx context.Context, userID, message string) string {
	cfg := h.Config().Memory
	b := contextBuilder{budget: cfg.ContextBudget, minSection: cfg.ContextMinSection}

	summary, err := h.store.GetSummary(ctx, userID)
	switch {
	case err == nil:
		if summary.Content != "" {
			b.add(headerSummary+"\n"+summary.Content, true)
		}
	case storage.IsNotFound(err):
	default:
		h.logger.Warn("loading rolling summary failed", "user_id", userID, "error", err)
	}

	if strings.TrimSpace(message) != "" && cfg.ContextSearchLimit > 0 && b.room() {
		results, err := h.Search(ctx, userID, message, cfg.ContextSearchLimit)
		if err != nil {
			h.logger.Warn("context search failed", "user_id", userID, "error", err)
		} else if len(results) > 0 {
			lines := make([]string, len(results))
			for i, r := range results {
				lines[i] = fmt.Sprintf("- [%s, %s] %s", r.Role, r.CreatedAt.UTC().Format(dateLayout), r.Snippet)
			}
			b.add(headerSearch+"\n"+strings.Join(lines, "\n"), false)
		}
	}

	h.addEntries(ctx, &b, userID, storage.TierSession, cfg.ContextTier1Limit, headerSessions)
	h.addEntries(ctx, &b, userID, storage.TierWeekly, cfg.ContextTier2Limit, headerWeekly)

	return b.String()
}

func (h *Hub) addEntries(ctx context.Context, b *contextBuilder, userID string, tier storage.Tier, limit int, header string) {
	if limit <= 0 || !b.room() {
		return
	}
	entries, err := h.store.ListEntries(ctx, userID, tier, time.Time{}, limit)
	if err != nil {
		h.logger.Warn("loading distilled entries failed", "user_id", userID, "tier", int(tier), "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = "- " + e.Content
	}
	b.add(header+"\n"+strings.Join(lines, "\n"), false)
}

// contextBuilder joins sections under a character budget. The separator
// between sections counts against the budget.
type contextBuilder struct {
	budget     int
	minSection int
	parts      []string
	used       int
}

// remaining is the budget left for the next section's own text.
func (b *contextBuilder) remaining() int {
	r := b.budget - b.used
	if len(b.parts) > 0 {
		r -= charLen(sectionSeparator)
	}
	return r
}

// room reports whether a non-exempt section would still be added.
func (b *contextBuilder) room() bool {
	return b.remaining() >= b.minSection && b.remaining() > 0
}

// add appends section, truncated to the remaining budget. Sections other
// than exempt ones are skipped once the remainder drops below minSection.
func (b *contextBuilder) add(section string, exempt bool) {
	r := b.remaining()
	if r <= 0 || (!exempt && r < b.minSection) {
		return
	}
	section = truncate(section, r)
	if len(b.parts) > 0 {
		b.used += charLen(sectionSeparator)
	}
	b.parts = append(b.parts, section)
	b.used += charLen(section)
}

func (b *contextBuilder) String() string {
	return strings.Join(b.parts, sectionSeparator)
}
