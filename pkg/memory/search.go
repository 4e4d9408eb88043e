package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/recallkit/recall/pkg/storage"
	"github.com/recallkit/recall/pkg/telemetry/tracing"
)

const (
	// MaxSearchLimit caps the number of search results.
	MaxSearchLimit = 50

	defaultSearchLimit  = 10
	defaultSnippetChars = 120
)

var errEmbedderUnavailable = errors.New("memory: embedder unavailable")

// SearchResult is one hydrated search hit.
type SearchResult struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"created_at"`
}

// signal is the outcome of one retrieval signal: ranked candidate ids, or
// the reason the signal could not be produced.
type signal struct {
	name       string
	candidates []string
	cause      error
}

func (s signal) available() bool { return s.cause == nil }

// signalMix labels which signals contributed to a search.
func signalMix(lexical, semantic signal) string {
	switch {
	case lexical.available() && semantic.available():
		return "hybrid"
	case lexical.available():
		return "lexical"
	case semantic.available():
		return "semantic"
	default:
		return "none"
	}
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return limit
}

// Search runs hybrid retrieval over the user's messages. Lexical and
// semantic candidates are fused by reciprocal rank. A failing signal only
// removes its candidates; the empty user id is the only error.
func (h *Hub) Search(ctx context.Context, userID, query string, limit int) ([]SearchResult, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if strings.TrimSpace(query) == "" {
		return []SearchResult{}, nil
	}
	cfg := h.Config().Memory
	limit = clampLimit(limit, cfg.SearchLimit)

	ctx, span := tracing.Start(ctx, "memory.search",
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
	)
	start := time.Now()

	pool := 2 * limit
	lexical, hits := h.lexicalSignal(ctx, userID, query, pool)
	semantic := h.semanticSignal(ctx, userID, query, pool, cfg.RecencyDecay)

	fused := RRFMerge(lexical.candidates, semantic.candidates, limit, cfg.RRFK)
	results := h.hydrate(ctx, userID, fused, hits, cfg.SnippetChars)

	mix := signalMix(lexical, semantic)
	span.SetAttributes(attribute.String("signals", mix), attribute.Int("results", len(results)))
	tracing.End(span, nil)
	h.metrics.RecordSearch(mix, len(results), time.Since(start))
	return results, nil
}

func (h *Hub) lexicalSignal(ctx context.Context, userID, query string, pool int) (signal, map[string]storage.LexicalHit) {
	sig := signal{name: "lexical"}
	hits, err := h.store.SearchMessages(ctx, userID, query, pool)
	if err != nil {
		h.logger.Warn("lexical search failed", "user_id", userID, "error", err)
		sig.cause = err
		return sig, nil
	}
	byID := make(map[string]storage.LexicalHit, len(hits))
	for _, hit := range hits {
		sig.candidates = append(sig.candidates, hit.MessageID)
		byID[hit.MessageID] = hit
	}
	return sig, byID
}

type scoredID struct {
	id    string
	score float64
}

func (h *Hub) semanticSignal(ctx context.Context, userID, query string, pool int, decay float64) signal {
	sig := signal{name: "semantic"}
	if h.vectors == nil || !h.embedder.Available(ctx) {
		sig.cause = errEmbedderUnavailable
		return sig
	}
	qv := h.embedder.Embed(ctx, []string{query})
	if len(qv) != 1 || len(qv[0]) == 0 {
		sig.cause = errEmbedderUnavailable
		return sig
	}

	embs, err := h.vectors.ListEmbeddings(ctx, userID, storage.SourceMessage)
	if err != nil {
		h.logger.Warn("loading message embeddings failed", "user_id", userID, "error", err)
		sig.cause = err
		return sig
	}
	for _, c := range rankByVector(qv[0], embs, h.embedder.Model(), h.now(), decay, pool) {
		sig.candidates = append(sig.candidates, c.id)
	}
	return sig
}

// rankByVector scores embeddings of model against q with recency decay and
// returns the top ids with their scores, best first.
func rankByVector(q []float32, embs []*storage.Embedding, model string, now time.Time, decay float64, top int) []scoredID {
	scored := make([]scoredID, 0, len(embs))
	for _, e := range embs {
		if e.Model != model || len(e.Vector) != len(q) {
			continue
		}
		boost := &RecencyBoost{AgeDays: AgeDays(now, e.CreatedAt), Decay: decay}
		scored = append(scored, scoredID{id: e.SourceID, score: CosineSimilarity(q, e.Vector, boost)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})
	if len(scored) > top {
		scored = scored[:top]
	}
	return scored
}

func (h *Hub) hydrate(ctx context.Context, userID string, ids []string, hits map[string]storage.LexicalHit, snippetChars int) []SearchResult {
	results := make([]SearchResult, 0, len(ids))
	if len(ids) == 0 {
		return results
	}
	if snippetChars <= 0 {
		snippetChars = defaultSnippetChars
	}
	msgs, err := h.store.GetMessagesByIDs(ctx, userID, ids)
	if err != nil {
		h.logger.Warn("hydrating search results failed", "user_id", userID, "error", err)
		return results
	}
	byID := make(map[string]*storage.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			continue
		}
		content := m.Text()
		snippet := truncate(content, snippetChars)
		if hit, ok := hits[id]; ok && hit.Snippet != "" {
			snippet = hit.Snippet
		}
		results = append(results, SearchResult{
			MessageID: m.ID,
			ChatID:    m.ChatID,
			Role:      m.Role,
			Content:   content,
			Snippet:   snippet,
			CreatedAt: m.CreatedAt,
		})
	}
	return results
}

// DistilledResult is one semantic hit over distilled memory.
type DistilledResult struct {
	Entry *storage.DistilledEntry `json:"entry"`
	Score float64                 `json:"score"`
}

// SearchDistilled ranks the user's distilled entries against query by
// embedding similarity. It returns nothing when the embedder is unavailable.
func (h *Hub) SearchDistilled(ctx context.Context, userID, query string, limit int) ([]DistilledResult, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	results := []DistilledResult{}
	if strings.TrimSpace(query) == "" || h.vectors == nil || !h.embedder.Available(ctx) {
		return results, nil
	}
	cfg := h.Config().Memory
	limit = clampLimit(limit, cfg.SearchLimit)

	qv := h.embedder.Embed(ctx, []string{query})
	if len(qv) != 1 || len(qv[0]) == 0 {
		return results, nil
	}
	embs, err := h.vectors.ListEmbeddings(ctx, userID, storage.SourceDistilled)
	if err != nil {
		h.logger.Warn("loading distilled embeddings failed", "user_id", userID, "error", err)
		return results, nil
	}

	ranked := rankByVector(qv[0], embs, h.embedder.Model(), h.now(), cfg.RecencyDecay, limit)
	if len(ranked) == 0 {
		return results, nil
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
	}

	entries, err := h.store.GetEntries(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*storage.DistilledEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	for _, r := range ranked {
		if e, ok := byID[r.id]; ok {
			results = append(results, DistilledResult{Entry: e, Score: r.score})
		}
	}
	return results, nil
}
