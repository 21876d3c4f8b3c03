package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/echowave/internal/hub"
	"github.com/echowave/internal/middleware"
	"github.com/echowave/internal/model"
)

// asUser stamps the caller identity from the X-Test-User header, standing in
// for the JWT middleware.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := r.Header.Get("X-Test-User")
		next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), u, u)))
	})
}

type clipFixture struct {
	clips *memClips
	rooms *memRooms
	blobs *memBlobs
	hub   *recordingHub
	srv   *httptest.Server
}

func newClipFixture(t *testing.T) *clipFixture {
	t.Helper()
	f := &clipFixture{
		clips: newMemClips(),
		rooms: newMemRooms(),
		blobs: &memBlobs{},
		hub:   &recordingHub{},
	}
	h := NewClipHandler(f.clips, f.rooms, f.blobs, f.hub)

	r := chi.NewRouter()
	r.Use(asUser)
	r.Get("/api/clips", h.List)
	r.Post("/api/clips", h.Upload)
	r.Post("/api/clips/{id}/react", h.React)
	r.Delete("/api/clips/{id}", h.Delete)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *clipFixture) do(t *testing.T, user, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", user)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *clipFixture) doJSON(t *testing.T, user, method, path string, body string) *http.Response {
	return f.do(t, user, method, path, strings.NewReader(body), "application/json")
}

func audioForm(t *testing.T, roomID string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "take.ogg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake-audio-bytes"))
	require.NoError(t, err)
	if roomID != "" {
		require.NoError(t, mw.WriteField("roomId", roomID))
	}
	require.NoError(t, mw.WriteField("duration", "3.5"))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *clipFixture) upload(t *testing.T, user, roomID string) model.ClipResponse {
	t.Helper()
	body, ct := audioForm(t, roomID)
	resp := f.do(t, user, http.MethodPost, "/api/clips", body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out model.ClipResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decodeCounts(t *testing.T, body io.Reader) model.ClipResponse {
	t.Helper()
	var out model.ClipResponse
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestUploadPublicClip(t *testing.T) {
	f := newClipFixture(t)

	out := f.upload(t, "u1", "")
	require.True(t, out.IsOwner)
	require.Equal(t, "u1", out.UserID)
	require.Nil(t, out.RoomID)
	require.Equal(t, model.ProcessingPending, out.ProcessingStatus)
	require.Zero(t, out.Reactions.Total())
	require.Equal(t, 3.5, out.Duration)

	scopes, events := f.hub.published()
	require.Equal(t, []string{hub.ScopeGlobal}, scopes)
	require.Equal(t, hub.EventFeedClipAdded, events[0].Type)

	raw, err := json.Marshal(events[0].Payload)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NotContains(t, payload, "isOwner")
}

func TestUploadRoomClipNotBroadcast(t *testing.T) {
	f := newClipFixture(t)
	room := &model.Room{Name: "x", PasswordHash: "h", UserID: "u1", Members: []string{}}
	require.NoError(t, f.rooms.Create(t.Context(), room))

	out := f.upload(t, "u1", room.ID)
	require.NotNil(t, out.RoomID)

	scopes, _ := f.hub.published()
	require.Empty(t, scopes, "room clips never reach the global scope")

	// And the feed listing never shows it.
	resp := f.doJSON(t, "u2", http.MethodGet, "/api/clips", "")
	var feed []model.ClipResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&feed))
	require.Empty(t, feed)
}

func TestUploadRoomClipRequiresMembership(t *testing.T) {
	f := newClipFixture(t)
	room := &model.Room{Name: "x", PasswordHash: "h", UserID: "u1", Members: []string{}}
	require.NoError(t, f.rooms.Create(t.Context(), room))

	body, ct := audioForm(t, room.ID)
	resp := f.do(t, "outsider", http.MethodPost, "/api/clips", body, ct)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	scopes, _ := f.hub.published()
	require.Empty(t, scopes)
}

func TestUploadCompensatesBlobOnStoreFailure(t *testing.T) {
	f := newClipFixture(t)
	f.clips.failWrites = true

	body, ct := audioForm(t, "")
	resp := f.do(t, "u1", http.MethodPost, "/api/clips", body, ct)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	require.Len(t, f.blobs.stored, 1)
	require.Equal(t, f.blobs.stored, f.blobs.removed, "orphaned blob must be deleted")
	scopes, _ := f.hub.published()
	require.Empty(t, scopes)
}

func TestReactionReplaceScenario(t *testing.T) {
	f := newClipFixture(t)
	clip := f.upload(t, "u1", "")

	// U2 sees the fresh clip without ownership and with zero counts.
	resp := f.doJSON(t, "u2", http.MethodGet, "/api/clips", "")
	var feed []model.ClipResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&feed))
	require.Len(t, feed, 1)
	require.False(t, feed[0].IsOwner)
	require.Zero(t, feed[0].Reactions.Total())

	// U1 reacts "love".
	resp = f.doJSON(t, "u1", http.MethodPost, fmt.Sprintf("/api/clips/%s/react", clip.ID), `{"type":"love"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeCounts(t, resp.Body)
	require.Equal(t, 1, out.Reactions.Love)
	require.Equal(t, 1, out.Reactions.Total())
	require.True(t, out.IsOwner)

	// "like" replaces "love" for the same caller.
	resp = f.doJSON(t, "u1", http.MethodPost, fmt.Sprintf("/api/clips/%s/react", clip.ID), `{"type":"like"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decodeCounts(t, resp.Body)
	require.Equal(t, 1, out.Reactions.Like)
	require.Equal(t, 0, out.Reactions.Love)
	require.Equal(t, 1, out.Reactions.Total())

	raw, err := f.clips.GetReactions(t.Context(), clip.ID)
	require.NoError(t, err)
	require.Len(t, raw, 1, "one raw entry per caller regardless of how often they react")
}

func TestReactSameTypeTwiceIsIdempotent(t *testing.T) {
	f := newClipFixture(t)
	clip := f.upload(t, "u1", "")

	for i := 0; i < 2; i++ {
		resp := f.doJSON(t, "u2", http.MethodPost, fmt.Sprintf("/api/clips/%s/react", clip.ID), `{"type":"wow"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decodeCounts(t, resp.Body)
		require.Equal(t, 1, out.Reactions.Wow)
		require.Equal(t, 1, out.Reactions.Total())
	}
}

func TestReactBroadcastIsSanitizedAndGlobal(t *testing.T) {
	f := newClipFixture(t)
	clip := f.upload(t, "u1", "")

	f.doJSON(t, "u2", http.MethodPost, fmt.Sprintf("/api/clips/%s/react", clip.ID), `{"type":"haha"}`)

	scopes, events := f.hub.published()
	require.Equal(t, []string{hub.ScopeGlobal, hub.ScopeGlobal}, scopes)
	require.Equal(t, hub.EventFeedClipUpdated, events[1].Type)

	raw, err := json.Marshal(events[1].Payload)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NotContains(t, payload, "isOwner")
	counts, ok := payload["reactions"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 1, counts["haha"])
}

func TestReactOnRoomClipStaysOffGlobalScope(t *testing.T) {
	f := newClipFixture(t)
	room := &model.Room{Name: "x", PasswordHash: "h", UserID: "u1", Members: []string{"u2"}}
	require.NoError(t, f.rooms.Create(t.Context(), room))
	clip := f.upload(t, "u1", room.ID)

	resp := f.doJSON(t, "u2", http.MethodPost, fmt.Sprintf("/api/clips/%s/react", clip.ID), `{"type":"sad"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scopes, _ := f.hub.published()
	require.Empty(t, scopes, "no clip event for room clips on any scope")
}

func TestReactForbiddenForRoomOutsider(t *testing.T) {
	f := newClipFixture(t)
	room := &model.Room{Name: "x", PasswordHash: "h", UserID: "u1", Members: []string{}}
	require.NoError(t, f.rooms.Create(t.Context(), room))
	clip := f.upload(t, "u1", room.ID)

	resp := f.doJSON(t, "outsider", http.MethodPost, fmt.Sprintf("/api/clips/%s/react", clip.ID), `{"type":"like"}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReactValidation(t *testing.T) {
	f := newClipFixture(t)
	clip := f.upload(t, "u1", "")

	resp := f.doJSON(t, "u2", http.MethodPost, fmt.Sprintf("/api/clips/%s/react", clip.ID), `{"type":"banana"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.doJSON(t, "u2", http.MethodPost, "/api/clips/nope/react", `{"type":"like"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteClipOwnerOnly(t *testing.T) {
	f := newClipFixture(t)
	clip := f.upload(t, "u1", "")

	resp := f.doJSON(t, "u2", http.MethodDelete, "/api/clips/"+clip.ID, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	_, err := f.clips.GetByID(t.Context(), clip.ID)
	require.NoError(t, err, "clip must survive a forbidden delete")
	scopes, _ := f.hub.published()
	require.Len(t, scopes, 1, "only the upload event so far")

	resp = f.doJSON(t, "u1", http.MethodDelete, "/api/clips/"+clip.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scopes, events := f.hub.published()
	require.Equal(t, hub.ScopeGlobal, scopes[1])
	require.Equal(t, hub.EventClipDeleted, events[1].Type)
	require.Equal(t, hub.DeletedPayload{ID: clip.ID}, events[1].Payload)
	require.Contains(t, f.blobs.removed, clip.Filename)
}
