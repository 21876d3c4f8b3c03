package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echowave/internal/access"
	"github.com/echowave/internal/hub"
	"github.com/echowave/internal/logger"
	"github.com/echowave/internal/middleware"
	"github.com/echowave/internal/model"
	"github.com/echowave/internal/repository"
)

type RoomHandler struct {
	rooms RoomStore
	clips ClipStore
	hub   Broadcaster
	push  Notifier
}

func NewRoomHandler(rooms RoomStore, clips ClipStore, h Broadcaster, push Notifier) *RoomHandler {
	return &RoomHandler{rooms: rooms, clips: clips, hub: h, push: push}
}

// List answers GET /api/rooms. Every room is listed (discovery); the password
// hash never serializes, and isOwner is true for the creator or any member.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())

	rooms, err := h.rooms.List(r.Context())
	if err != nil {
		logger.Errorf("room list: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load rooms")
		return
	}
	out := make([]model.RoomResponse, 0, len(rooms))
	for i := range rooms {
		out = append(out, model.PersonalRoom(&rooms[i], callerID))
	}
	writeJSON(w, http.StatusOK, out)
}

type createRoomRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Create handles POST /api/rooms. Name and password are both required.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name and password are required")
		return
	}

	hash, err := access.HashRoomPassword(req.Password)
	if err != nil {
		logger.Errorf("room create: hash: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	room := &model.Room{
		Name:         req.Name,
		PasswordHash: hash,
		UserID:       callerID,
		Members:      []string{},
	}
	if err := h.rooms.Create(r.Context(), room); err != nil {
		logger.Errorf("room create: persist: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	h.hub.Publish(hub.ScopeGlobal, hub.Event{
		Type:    hub.EventRoomCreated,
		Payload: model.SanitizedRoom(room),
	})
	writeJSON(w, http.StatusCreated, model.PersonalRoom(room, callerID))
}

type joinRoomRequest struct {
	Password string `json:"password"`
}

// Join handles POST /api/rooms/{id}/join. Joining is idempotent and is never
// broadcast; only creation and deletion fan out.
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	roomID := chi.URLParam(r, "id")

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	room, err := h.rooms.GetByID(r.Context(), roomID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		logger.Errorf("room join: load: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}

	if err := access.VerifyRoomPassword(room, req.Password); err != nil {
		writeError(w, http.StatusForbidden, "wrong password")
		return
	}
	if err := h.rooms.AddMember(r.Context(), roomID, callerID); err != nil {
		logger.Errorf("room join: persist: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to join room")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// Delete handles DELETE /api/rooms/{id}. Creator-only; messages and
// membership rows go with the room.
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	roomID := chi.URLParam(r, "id")

	room, err := h.rooms.GetByID(r.Context(), roomID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		logger.Errorf("room delete: load: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if !access.Owns(callerID, room.UserID) {
		writeError(w, http.StatusForbidden, "only the creator can delete a room")
		return
	}

	if err := h.rooms.Delete(r.Context(), roomID); err != nil {
		logger.Errorf("room delete: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete room")
		return
	}
	h.hub.Publish(hub.ScopeGlobal, hub.Event{
		Type:    hub.EventRoomDeleted,
		Payload: hub.DeletedPayload{ID: roomID},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type postMessageRequest struct {
	ClipID string `json:"clipId"`
}

// PostMessage handles POST /api/rooms/{id}/messages. The body references an
// uploaded clip; the message stores that clip's URL. Members only. Observers
// of the room scope get the sanitized message; offline members get a web
// push.
func (h *RoomHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	roomID := chi.URLParam(r, "id")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.ClipID == "" {
		writeError(w, http.StatusBadRequest, "clipId is required")
		return
	}

	room, err := h.rooms.GetByID(r.Context(), roomID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		logger.Errorf("room post message: load room: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if !access.IsRoomMember(room, callerID) {
		writeError(w, http.StatusForbidden, "not a member of this room")
		return
	}

	clip, err := h.clips.GetByID(r.Context(), req.ClipID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	if err != nil {
		logger.Errorf("room post message: load clip: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load clip")
		return
	}

	msg := &model.Message{
		RoomID:  roomID,
		UserID:  callerID,
		ClipURL: clip.URL,
	}
	if err := h.rooms.AddMessage(r.Context(), msg); err != nil {
		logger.Errorf("room post message: persist: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	h.hub.Publish(roomID, hub.Event{
		Type:    hub.EventRoomMessageAdded,
		Payload: model.SanitizedMessage(msg),
	})
	h.notifyRoomMembers(r, room, callerID)
	writeJSON(w, http.StatusCreated, model.PersonalMessage(msg, callerID))
}

func (h *RoomHandler) notifyRoomMembers(r *http.Request, room *model.Room, authorID string) {
	if h.push == nil {
		return
	}
	targets := make(map[string]struct{}, len(room.Members)+1)
	targets[room.UserID] = struct{}{}
	for _, m := range room.Members {
		targets[m] = struct{}{}
	}
	delete(targets, authorID)
	for userID := range targets {
		h.push.Notify(r.Context(), userID, room.Name, "New voice message",
			map[string]string{"room_id": room.ID})
	}
}

// ListMessages answers GET /api/rooms/{id}/messages for members, in posting
// order, personalized for the caller.
func (h *RoomHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	roomID := chi.URLParam(r, "id")

	room, err := h.rooms.GetByID(r.Context(), roomID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		logger.Errorf("room list messages: load room: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if !access.IsRoomMember(room, callerID) {
		writeError(w, http.StatusForbidden, "not a member of this room")
		return
	}

	msgs, err := h.rooms.GetMessages(r.Context(), roomID)
	if err != nil {
		logger.Errorf("room list messages: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	out := make([]model.MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, model.PersonalMessage(&msgs[i], callerID))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteMessage handles DELETE /api/rooms/{id}/messages/{messageId}.
// Author-only; the room keeps living.
func (h *RoomHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	roomID := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageId")

	msg, err := h.rooms.GetMessage(r.Context(), roomID, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		logger.Errorf("room delete message: load: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load message")
		return
	}
	if !access.Owns(callerID, msg.UserID) {
		writeError(w, http.StatusForbidden, "only the author can delete a message")
		return
	}

	if err := h.rooms.DeleteMessage(r.Context(), roomID, messageID); err != nil {
		logger.Errorf("room delete message: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}
	h.hub.Publish(roomID, hub.Event{
		Type:    hub.EventRoomMessageDeleted,
		Payload: hub.DeletedPayload{ID: messageID},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
