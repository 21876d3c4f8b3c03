package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echowave/internal/access"
	"github.com/echowave/internal/hub"
	"github.com/echowave/internal/logger"
	"github.com/echowave/internal/middleware"
)

type WSHandler struct {
	hub            *hub.Hub
	rooms          RoomStore
	allowedOrigins string
	sendBufSize    int
}

// NewWSHandler builds the websocket endpoint. allowedOrigins matches the CORS
// setting (comma separated or "*").
func NewWSHandler(h *hub.Hub, rooms RoomStore, allowedOrigins string, sendBufSize int) *WSHandler {
	return &WSHandler{
		hub:            h,
		rooms:          rooms,
		allowedOrigins: strings.TrimSpace(allowedOrigins),
		sendBufSize:    sendBufSize,
	}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades the connection and hands it to the hub. A room scope is
// only attached when the user is a member at join time; the check runs
// against the store on every joinRoom request.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	authorize := func(roomID string) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		room, err := h.rooms.GetByID(ctx, roomID)
		if err != nil {
			return false
		}
		return access.IsRoomMember(room, userID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := hub.NewClient(h.hub, conn, userID, h.sendBufSize, authorize)
	if err := h.hub.Register(client); err != nil {
		cancel()
		conn.Close()
		return
	}
	client.Start(ctx, cancel)
}
