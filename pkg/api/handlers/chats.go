package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/recallkit/recall/pkg/api/response"
	"github.com/recallkit/recall/pkg/memory"
	"github.com/recallkit/recall/pkg/storage"
)

// Finalizer finalizes a chat and folds it into the rolling summary. It
// also drops cached contexts once new messages are stored.
type Finalizer interface {
	FinalizeChatAndSummarize(ctx context.Context, chatID, userID string) (bool, error)
	InvalidateContext(ctx context.Context, userID string)
}

// ChatHandler handles chat ingestion and manual finalization.
type ChatHandler struct {
	store     storage.ChatStore
	finalizer Finalizer
	logger    handlerLogger
	validator *validator.Validate
	now       func() time.Time
}

// NewChatHandler creates a chat handler.
func NewChatHandler(store storage.ChatStore, finalizer Finalizer, log handlerLogger) *ChatHandler {
	return &ChatHandler{
		store:     store,
		finalizer: finalizer,
		logger:    orNop(log),
		validator: validator.New(),
		now:       time.Now,
	}
}

// CreateChatRequest creates a chat.
type CreateChatRequest struct {
	ID         string `json:"id,omitempty" validate:"omitempty,max=128"`
	Title      string `json:"title" validate:"max=512"`
	Visibility string `json:"visibility,omitempty" validate:"omitempty,oneof=private public"`
}

// PartRequest is one piece of message content.
type PartRequest struct {
	Type string `json:"type" validate:"required,max=32"`
	Text string `json:"text,omitempty"`
}

// MessageRequest is one message to append.
type MessageRequest struct {
	ID    string        `json:"id,omitempty" validate:"omitempty,max=128"`
	Role  string        `json:"role" validate:"required,oneof=user assistant system tool"`
	Parts []PartRequest `json:"parts" validate:"required,min=1,dive"`
}

// AppendMessagesRequest appends messages to a chat.
type AppendMessagesRequest struct {
	Messages []MessageRequest `json:"messages" validate:"required,min=1,max=500,dive"`
}

// AppendMessagesResponse reports stored message ids in request order.
type AppendMessagesResponse struct {
	Appended int      `json:"appended"`
	IDs      []string `json:"ids"`
}

// FinalizeChatResponse reports a manual finalization.
type FinalizeChatResponse struct {
	OK        bool `json:"ok"`
	Finalized bool `json:"finalized"`
}

func (h *ChatHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := response.Decode(w, r, v, maxBodyBytes); err != nil {
		badRequest(w, r, "Invalid request body")
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(r.Context()))
		return false
	}
	return true
}

// ownedChat loads the chat at {chatID} and checks it belongs to {userID}.
func (h *ChatHandler) ownedChat(w http.ResponseWriter, r *http.Request) (*storage.Chat, bool) {
	userID := userParam(r)
	if userID == "" {
		writeError(w, r, h.logger, memory.ErrInvalidUserID)
		return nil, false
	}
	chat, err := h.store.GetChat(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	if chat.UserID != userID {
		writeError(w, r, h.logger, memory.ErrChatNotOwned)
		return nil, false
	}
	return chat, true
}

// CreateChat handles POST /api/v1/users/{userID}/chats
// @Summary Create a chat
// @Tags chats
// @Accept json
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Param chat body CreateChatRequest true "Chat"
// @Success 201 {object} storage.Chat
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/v1/users/{userID}/chats [post]
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID := userParam(r)
	if userID == "" {
		writeError(w, r, h.logger, memory.ErrInvalidUserID)
		return
	}
	var req CreateChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	now := h.now().UTC()
	chat := &storage.Chat{
		ID:             req.ID,
		UserID:         userID,
		Title:          req.Title,
		Visibility:     storage.Visibility(req.Visibility),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.Visibility == "" {
		chat.Visibility = storage.VisibilityPrivate
	}
	if err := h.store.CreateChat(r.Context(), chat); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, chat)
}

// AppendMessages handles POST /api/v1/users/{userID}/chats/{chatID}/messages
// @Summary Append messages
// @Description Stores messages and moves the chat's last activity forward. Messages appended after finalization are stored but never summarized or distilled.
// @Tags chats
// @Accept json
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Param chatID path string true "Chat ID"
// @Param messages body AppendMessagesRequest true "Messages"
// @Success 201 {object} AppendMessagesResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/users/{userID}/chats/{chatID}/messages [post]
func (h *ChatHandler) AppendMessages(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}
	var req AppendMessagesRequest
	if !h.decode(w, r, &req) {
		return
	}

	now := h.now().UTC()
	msgs := make([]*storage.Message, 0, len(req.Messages))
	ids := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		parts := make([]storage.Part, len(m.Parts))
		for i, p := range m.Parts {
			parts[i] = storage.Part{Type: p.Type, Text: p.Text}
		}
		msgs = append(msgs, &storage.Message{
			ID:        id,
			ChatID:    chat.ID,
			Role:      m.Role,
			Parts:     parts,
			CreatedAt: now,
		})
		ids = append(ids, id)
	}

	if err := h.store.AppendMessages(r.Context(), chat.ID, msgs); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.finalizer.InvalidateContext(r.Context(), chat.UserID)
	response.JSON(w, http.StatusCreated, AppendMessagesResponse{Appended: len(msgs), IDs: ids})
}

// FinalizeChat handles POST /api/v1/users/{userID}/chats/{chatID}/finalize
// @Summary Finalize a chat
// @Description Finalizes the chat once and folds it into the rolling summary. Repeated calls report finalized=false.
// @Tags chats
// @Produce json
// @Security JobToken
// @Param userID path string true "User ID"
// @Param chatID path string true "Chat ID"
// @Success 200 {object} FinalizeChatResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/users/{userID}/chats/{chatID}/finalize [post]
func (h *ChatHandler) FinalizeChat(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}
	finalized, err := h.finalizer.FinalizeChatAndSummarize(r.Context(), chat.ID, chat.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, FinalizeChatResponse{OK: true, Finalized: finalized})
}
