package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/storage"
)

type Repository interface {
	ListForCounselor(ctx context.Context, counselorID string, unreadOnly bool, limit int) ([]storage.Notification, error)
	MarkRead(ctx context.Context, id, counselorID string, at time.Time) error
}

type Handler struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func New(repo Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

// Register mounts the counselor inbox. Only counselors have one.
func (h *Handler) Register(mux *http.ServeMux, verifier *auth.Verifier) {
	counselor := func(fn http.HandlerFunc) http.Handler {
		return auth.RequireIdentity(verifier, auth.RequireRole(fn, auth.RoleCounselor))
	}
	mux.Handle("GET /api/v1/notifications", counselor(h.List))
	mux.Handle("POST /api/v1/notifications/{id}/read", counselor(h.MarkRead))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	q := r.URL.Query()
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	items, err := h.repo.ListForCounselor(r.Context(), id.CounselorID, q.Get("unread") == "true", limit)
	if err != nil {
		h.logger.Error("list notifications failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal")
		return
	}
	if items == nil {
		items = []storage.Notification{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	err := h.repo.MarkRead(r.Context(), r.PathValue("id"), id.CounselorID, h.now().UTC())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "notification not found")
	case err != nil:
		h.logger.Error("mark read failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
