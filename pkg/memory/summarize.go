package memory

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/recallkit/recall/pkg/storage"
	"github.com/recallkit/recall/pkg/telemetry/tracing"
)

const defaultSummaryCap = 8000

// chatFor loads a chat and checks that userID owns it.
func (h *Hub) chatFor(ctx context.Context, chatID, userID string) (*storage.Chat, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if chatID == "" {
		return nil, ErrInvalidChatID
	}
	chat, err := h.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrChatNotOwned
	}
	return chat, nil
}

// SummarizeChat folds the chat's transcript into the user's rolling summary
// with one generation call. Chats without messages are left alone.
func (h *Hub) SummarizeChat(ctx context.Context, chatID, userID string) (err error) {
	if _, err := h.chatFor(ctx, chatID, userID); err != nil {
		return err
	}

	ctx, span := tracing.Start(ctx, "memory.summarize",
		attribute.String("user_id", userID),
		attribute.String("chat_id", chatID),
	)
	start := time.Now()
	status := "ok"
	defer func() {
		if err != nil {
			status = "error"
		}
		tracing.End(span, err)
		h.metrics.RecordSummary(status, time.Since(start))
	}()

	msgs, err := h.store.GetMessages(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) == 0 {
		status = "skipped"
		return nil
	}

	prior := ""
	current, err := h.store.GetSummary(ctx, userID)
	switch {
	case err == nil:
		prior = current.Content
	case storage.IsNotFound(err):
	default:
		return fmt.Errorf("load summary: %w", err)
	}

	out, err := h.gen.Generate(ctx, fmt.Sprintf(summaryPrompt, prior, transcript(msgs)))
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}

	limit := h.Config().Memory.SummaryCap
	if limit <= 0 {
		limit = defaultSummaryCap
	}
	now := h.now()
	saved, err := h.store.SaveSummary(ctx, userID, truncateAtSentence(out, limit), now)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	if err := h.store.MarkChatSummarized(ctx, chatID, saved.Version, now); err != nil {
		return fmt.Errorf("mark chat summarized: %w", err)
	}

	h.invalidate(ctx, userID)
	h.notifier.SummaryUpdated(userID, saved.Version)
	h.logger.Info("rolling summary updated",
		"user_id", userID,
		"chat_id", chatID,
		"version", saved.Version,
		"chars", charLen(saved.Content),
	)
	return nil
}

// FinalizeChatAndSummarize finalizes the chat at most once and folds it into
// the rolling summary. It reports whether this call performed the
// finalization. Summarization failures are logged; finalization stands.
func (h *Hub) FinalizeChatAndSummarize(ctx context.Context, chatID, userID string) (bool, error) {
	chat, err := h.chatFor(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	if chat.Finalized() {
		return false, nil
	}

	finalized, err := h.store.FinalizeChat(ctx, chatID, h.now())
	if err != nil {
		return false, fmt.Errorf("finalize chat: %w", err)
	}
	if !finalized {
		return false, nil
	}

	summarized := true
	if err := h.SummarizeChat(ctx, chatID, userID); err != nil {
		summarized = false
		h.logger.Error("summarizing finalized chat failed",
			"user_id", userID, "chat_id", chatID, "error", err)
	}
	h.notifier.ChatFinalized(userID, chatID, summarized)
	return true, nil
}

// EmbedChatMessages embeds the chat's messages that carry no embedding yet
// and returns how many were stored. It is a no-op while the embedder is
// unavailable.
func (h *Hub) EmbedChatMessages(ctx context.Context, chatID, userID string) (int, error) {
	if h.vectors == nil || !h.embedder.Available(ctx) {
		return 0, nil
	}
	msgs, err := h.store.GetMessages(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("load messages: %w", err)
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	have, err := h.vectors.HasEmbeddings(ctx, userID, storage.SourceMessage, ids)
	if err != nil {
		return 0, fmt.Errorf("check embeddings: %w", err)
	}

	var (
		pending []*storage.Message
		texts   []string
	)
	for _, m := range msgs {
		text := m.Text()
		if have[m.ID] || text == "" {
			continue
		}
		pending = append(pending, m)
		texts = append(texts, text)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	vecs := h.embedder.Embed(ctx, texts)
	embs := make([]*storage.Embedding, 0, len(pending))
	for i, m := range pending {
		if len(vecs[i]) == 0 {
			continue
		}
		embs = append(embs, &storage.Embedding{
			SourceType: storage.SourceMessage,
			SourceID:   m.ID,
			UserID:     userID,
			ChatID:     chatID,
			Model:      h.embedder.Model(),
			Vector:     vecs[i],
			CreatedAt:  m.CreatedAt,
		})
	}
	if len(embs) == 0 {
		return 0, nil
	}
	if err := h.vectors.PutEmbeddings(ctx, embs); err != nil {
		return 0, fmt.Errorf("store embeddings: %w", err)
	}
	h.invalidate(ctx, userID)
	return len(embs), nil
}

// FinalizeReport is the outcome of one idle finalization sweep.
type FinalizeReport struct {
	Checked   int `json:"checked"`
	Finalized int `json:"finalized"`
	Embedded  int `json:"embedded"`
}

// FinalizeIdle finalizes and summarizes every chat idle since before the
// cutoff, then embeds messages of the chats it finalized when embed is set.
// Per-chat failures are logged and skipped.
func (h *Hub) FinalizeIdle(ctx context.Context, idleBefore time.Time, embed bool) (FinalizeReport, error) {
	var report FinalizeReport
	chats, err := h.store.ListIdleChats(ctx, idleBefore, 0)
	if err != nil {
		return report, fmt.Errorf("list idle chats: %w", err)
	}
	report.Checked = len(chats)

	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ok, err := h.FinalizeChatAndSummarize(ctx, chat.ID, chat.UserID)
		if err != nil {
			h.logger.Error("finalizing idle chat failed",
				"user_id", chat.UserID, "chat_id", chat.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		report.Finalized++
		if !embed {
			continue
		}
		n, err := h.EmbedChatMessages(ctx, chat.ID, chat.UserID)
		if err != nil {
			h.logger.Warn("embedding finalized chat failed",
				"user_id", chat.UserID, "chat_id", chat.ID, "error", err)
			continue
		}
		report.Embedded += n
	}
	return report, nil
}
