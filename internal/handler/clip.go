package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/echowave/internal/access"
	"github.com/echowave/internal/clipstore"
	"github.com/echowave/internal/hub"
	"github.com/echowave/internal/logger"
	"github.com/echowave/internal/middleware"
	"github.com/echowave/internal/model"
	"github.com/echowave/internal/reactions"
	"github.com/echowave/internal/repository"
)

type ClipHandler struct {
	clips ClipStore
	rooms RoomStore
	blobs BlobStore
	hub   Broadcaster
}

func NewClipHandler(clips ClipStore, rooms RoomStore, blobs BlobStore, h Broadcaster) *ClipHandler {
	return &ClipHandler{clips: clips, rooms: rooms, blobs: blobs, hub: h}
}

// roomFor loads the clip's room when it has one. Used by the view checks;
// public clips return (nil, nil).
func (h *ClipHandler) roomFor(r *http.Request, clip *model.Clip) (*model.Room, error) {
	if clip.RoomID == nil {
		return nil, nil
	}
	return h.rooms.GetByID(r.Context(), *clip.RoomID)
}

// Upload handles POST multipart/form-data with an "audio" field and an
// optional "roomId". The blob is stored first; if the record write fails the
// blob is deleted again (best effort, logged only).
func (h *ClipHandler) Upload(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.blobs.MaxSize())

	if err := r.ParseMultipartForm(h.blobs.MaxSize()); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	var roomID *string
	if id := r.FormValue("roomId"); id != "" {
		room, err := h.rooms.GetByID(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		if err != nil {
			logger.Errorf("clip upload: load room: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to load room")
			return
		}
		if !access.IsRoomMember(room, callerID) {
			writeError(w, http.StatusForbidden, "not a member of this room")
			return
		}
		roomID = &room.ID
	}

	name, size, err := h.blobs.Save(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
	if errors.Is(err, clipstore.ErrUnsupportedMedia) {
		writeError(w, http.StatusBadRequest, "only audio files are allowed")
		return
	}
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		logger.Errorf("clip upload: store blob: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	var duration float64
	if v := r.FormValue("duration"); v != "" {
		duration, _ = strconv.ParseFloat(v, 64)
	}

	clip := &model.Clip{
		UserID:   callerID,
		Filename: name,
		URL:      "/api/clips/audio/" + name,
		Size:     size,
		Duration: duration,
		RoomID:   roomID,
		Tags:     []string{},
	}
	if err := h.clips.Create(r.Context(), clip); err != nil {
		// Compensating cleanup: the blob exists but the record does not.
		if rmErr := h.blobs.Remove(name); rmErr != nil {
			logger.Errorf("clip upload: compensating blob delete %s: %v", name, rmErr)
		}
		logger.Errorf("clip upload: persist: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save clip")
		return
	}

	if clip.RoomID == nil {
		h.hub.Publish(hub.ScopeGlobal, hub.Event{
			Type:    hub.EventFeedClipAdded,
			Payload: model.SanitizedClip(clip, model.ReactionCounts{}),
		})
	}
	writeJSON(w, http.StatusCreated, model.PersonalClip(clip, model.ReactionCounts{}, callerID))
}

// List answers GET /api/clips with the public feed, personalized for the
// caller. Reactions for the whole page are loaded in one query.
func (h *ClipHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())

	clips, err := h.clips.ListPublic(r.Context())
	if err != nil {
		logger.Errorf("clip list: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}

	ids := make([]string, len(clips))
	for i := range clips {
		ids[i] = clips[i].ID
	}
	all, err := h.clips.GetReactionsForClips(r.Context(), ids)
	if err != nil {
		logger.Errorf("clip list: reactions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}

	out := make([]model.ClipResponse, 0, len(clips))
	for i := range clips {
		counts := reactions.CountFor(clips[i].ID, all)
		out = append(out, model.PersonalClip(&clips[i], counts, callerID))
	}
	writeJSON(w, http.StatusOK, out)
}

type reactRequest struct {
	Type model.ReactionType `json:"type"`
}

func validReactionType(t model.ReactionType) bool {
	for _, known := range model.ReactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// React handles POST /api/clips/{id}/react. A repeat reaction from the same
// caller replaces the previous one. The caller gets the personalized clip
// back; public-feed observers get the sanitized projection.
func (h *ClipHandler) React(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	clipID := chi.URLParam(r, "id")

	var req reactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !validReactionType(req.Type) {
		writeError(w, http.StatusBadRequest, "unknown reaction type")
		return
	}

	clip, err := h.clips.GetByID(r.Context(), clipID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	if err != nil {
		logger.Errorf("clip react: load: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load clip")
		return
	}

	room, err := h.roomFor(r, clip)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Errorf("clip react: load room: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if !access.CanMutateReaction(callerID, clip, room) {
		writeError(w, http.StatusForbidden, "not a member of this room")
		return
	}

	if err := h.clips.SetReaction(r.Context(), clipID, callerID, req.Type); err != nil {
		logger.Errorf("clip react: persist: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save reaction")
		return
	}

	raw, err := h.clips.GetReactions(r.Context(), clipID)
	if err != nil {
		logger.Errorf("clip react: reload reactions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load reactions")
		return
	}
	counts := reactions.Count(raw)

	if clip.RoomID == nil {
		h.hub.Publish(hub.ScopeGlobal, hub.Event{
			Type:    hub.EventFeedClipUpdated,
			Payload: model.SanitizedClip(clip, counts),
		})
	}
	writeJSON(w, http.StatusOK, model.PersonalClip(clip, counts, callerID))
}

// Delete handles DELETE /api/clips/{id}. Owner-only; membership grants
// nothing. The stored blob is removed best effort after the record.
func (h *ClipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	clipID := chi.URLParam(r, "id")

	clip, err := h.clips.GetByID(r.Context(), clipID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	if err != nil {
		logger.Errorf("clip delete: load: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load clip")
		return
	}
	if !access.Owns(callerID, clip.UserID) {
		writeError(w, http.StatusForbidden, "only the owner can delete a clip")
		return
	}

	if err := h.clips.Delete(r.Context(), clipID); err != nil {
		logger.Errorf("clip delete: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete clip")
		return
	}
	if err := h.blobs.Remove(clip.Filename); err != nil {
		logger.Errorf("clip delete: blob %s: %v", clip.Filename, err)
	}

	h.hub.Publish(hub.ScopeGlobal, hub.Event{
		Type:    hub.EventClipDeleted,
		Payload: hub.DeletedPayload{ID: clipID},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ServeAudio streams a stored clip for playback.
func (h *ClipHandler) ServeAudio(w http.ResponseWriter, r *http.Request) {
	h.blobs.Serve(w, r, chi.URLParam(r, "filename"))
}
