package handler

import (
	"encoding/json"
	"net/http"

	"github.com/echowave/internal/logger"
	"github.com/echowave/internal/middleware"
	"github.com/echowave/internal/push"
)

// PushHandler proxies browser push subscriptions to the push service.
type PushHandler struct {
	client *push.Client
}

func NewPushHandler(client *push.Client) *PushHandler {
	return &PushHandler{client: client}
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var sub push.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid subscription")
		return
	}
	if err := h.client.Subscribe(r.Context(), userID, sub); err != nil {
		logger.Errorf("push subscribe: %v", err)
		writeError(w, http.StatusBadGateway, "push service unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.client.Unsubscribe(r.Context(), userID, req.Endpoint); err != nil {
		logger.Errorf("push unsubscribe: %v", err)
		writeError(w, http.StatusBadGateway, "push service unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
