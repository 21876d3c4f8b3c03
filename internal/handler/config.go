package handler

import (
	"net/http"

	"github.com/echowave/internal/config"
)

// ConfigHandler exposes the client-facing bits of the server configuration.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetPushConfig hands the browser what it needs to subscribe for push.
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          h.cfg.PushServiceURL != "",
		"vapid_public_key": h.cfg.PushVAPIDPublicKey,
	})
}
