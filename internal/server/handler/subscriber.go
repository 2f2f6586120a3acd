package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rusel95/interexchangebot/internal/domain"
)

// SubscriberRegistry is the subscriber store behind the admin endpoints.
type SubscriberRegistry interface {
	List() []domain.Subscriber
	Register(id int64, username string) domain.Subscriber
	SetMode(id int64, mode domain.Mode) (domain.Subscriber, error)
	Remove(id int64) (domain.Subscriber, error)
}

// SubscriberHandler lists subscribers and applies mode changes on behalf of
// the chat command layer.
type SubscriberHandler struct {
	subs   SubscriberRegistry
	logger *slog.Logger
}

// NewSubscriberHandler creates a SubscriberHandler.
func NewSubscriberHandler(subs SubscriberRegistry, logger *slog.Logger) *SubscriberHandler {
	return &SubscriberHandler{subs: subs, logger: logger}
}

// ListSubscribers returns every subscriber.
// GET /api/subscribers
func (h *SubscriberHandler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs := h.subs.List()
	if subs == nil {
		subs = []domain.Subscriber{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscribers": subs})
}

type setModeRequest struct {
	Mode     string `json:"mode"`
	Username string `json:"username"`
}

// SetMode switches a subscriber between alerting and suspended, registering
// the chat first when it is new. The mode accepts either its name or the chat
// command ("/start_alerting", "/stop").
// PUT /api/subscribers/{id}/mode
func (h *SubscriberHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber id")
		return
	}

	var req setModeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Username != "" {
		h.subs.Register(id, req.Username)
	}
	sub, err := h.subs.SetMode(id, mode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "subscriber mode changed",
		slog.Int64("subscriber", sub.ID),
		slog.String("mode", sub.Mode.String()),
	)
	writeJSON(w, http.StatusOK, sub)
}

// RemoveSubscriber forgets a chat, e.g. after it blocked the bot.
// DELETE /api/subscribers/{id}
func (h *SubscriberHandler) RemoveSubscriber(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber id")
		return
	}
	if _, err := h.subs.Remove(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "subscriber removed", slog.Int64("subscriber", id))
	w.WriteHeader(http.StatusNoContent)
}
