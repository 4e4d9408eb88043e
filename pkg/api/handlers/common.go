// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/recallkit/recall/pkg/api/middleware"
	"github.com/recallkit/recall/pkg/api/response"
	"github.com/recallkit/recall/pkg/memory"
	"github.com/recallkit/recall/pkg/storage"
)

const maxBodyBytes = 1 << 20

// handlerLogger is the minimal logger interface used by handlers.
type handlerLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func orNop(l handlerLogger) handlerLogger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

func getRequestID(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return "unknown"
}

func userParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "userID"))
}

// parseLimit reads a positive integer query parameter. Missing values yield
// def; values above max are capped.
func parseLimit(r *http.Request, name string, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, msg, getRequestID(r.Context()))
}

// writeError maps memory and storage errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, log handlerLogger, err error) {
	reqID := getRequestID(r.Context())
	switch {
	case errors.Is(err, memory.ErrInvalidUserID), errors.Is(err, memory.ErrInvalidChatID):
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, err.Error(), reqID)
	case errors.Is(err, memory.ErrChatNotOwned):
		response.Error(w, http.StatusForbidden, response.ErrCodeForbidden, "chat belongs to another user", reqID)
	case storage.IsNotFound(err):
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, err.Error(), reqID)
	case storage.IsDuplicate(err):
		response.Error(w, http.StatusConflict, response.ErrCodeConflict, err.Error(), reqID)
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, response.ErrCodeGatewayTimeout, "request timeout", reqID)
	default:
		log.Error("request failed", "path", r.URL.Path, "request_id", reqID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "internal server error", reqID)
	}
}
