package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/echowave/internal/model"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// startTestServer runs a hub plus an upgrade endpoint that registers every
// connection under a fixed user id. authorize controls room subscriptions.
func startTestServer(t *testing.T, authorize AuthorizeFunc) (*Hub, string) {
	t.Helper()

	h := NewHub(0)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(h, conn, "user-"+r.URL.Query().Get("u"), 8, authorize)
		if err := h.Register(c); err != nil {
			conn.Close()
			return
		}
		clientCtx, clientCancel := context.WithCancel(ctx)
		c.Start(clientCtx, clientCancel)
	}))

	t.Cleanup(func() {
		cancel()
		<-h.Done()
		srv.Close()
	})

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?u="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no event on this connection")
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishGlobalReachesEveryConnection(t *testing.T) {
	h, url := startTestServer(t, nil)

	a := dial(t, url, "a")
	b := dial(t, url, "b")
	waitForClients(t, h, 2)

	h.Publish(ScopeGlobal, Event{Type: EventClipDeleted, Payload: DeletedPayload{ID: "clip-1"}})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		require.Equal(t, EventClipDeleted, ev.Type)
	}
}

func TestRoomScopeIsolatesSubscribers(t *testing.T) {
	h, url := startTestServer(t, func(string) bool { return true })

	member := dial(t, url, "member")
	outsider := dial(t, url, "outsider")
	waitForClients(t, h, 2)

	require.NoError(t, member.WriteJSON(IncomingMessage{Type: "joinRoom", RoomID: "room-1"}))

	// Subscription happens on the read pump; wait until it lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.RLock()
		n := len(h.scopes["room-1"])
		h.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("joinRoom never took effect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish("room-1", Event{Type: EventRoomMessageAdded, Payload: DeletedPayload{ID: "msg-1"}})

	ev := readEvent(t, member)
	require.Equal(t, EventRoomMessageAdded, ev.Type)
	expectSilence(t, outsider)
}

func TestUnauthorizedJoinIsIgnored(t *testing.T) {
	h, url := startTestServer(t, func(string) bool { return false })

	conn := dial(t, url, "a")
	waitForClients(t, h, 1)

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "joinRoom", RoomID: "room-1"}))
	time.Sleep(100 * time.Millisecond)

	h.Publish("room-1", Event{Type: EventRoomMessageAdded, Payload: DeletedPayload{ID: "msg-1"}})
	expectSilence(t, conn)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	h, url := startTestServer(t, func(string) bool { return true })

	conn := dial(t, url, "a")
	waitForClients(t, h, 1)

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "joinRoom", RoomID: "room-1"}))
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.RLock()
		n := len(h.scopes["room-1"])
		h.mu.RUnlock()
		if n == 1 {
			break
		}
		require.False(t, time.Now().After(deadline), "joinRoom never took effect")
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "leaveRoom", RoomID: "room-1"}))
	for {
		h.mu.RLock()
		n := len(h.scopes["room-1"])
		h.mu.RUnlock()
		if n == 0 {
			break
		}
		require.False(t, time.Now().After(deadline), "leaveRoom never took effect")
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish("room-1", Event{Type: EventRoomMessageAdded, Payload: DeletedPayload{ID: "msg-1"}})
	expectSilence(t, conn)
}

func TestBroadcastPayloadCarriesNoOwnerFlag(t *testing.T) {
	h, url := startTestServer(t, nil)

	conn := dial(t, url, "a")
	waitForClients(t, h, 1)

	clip := &model.Clip{ID: "clip-1", UserID: "author", ProcessingStatus: model.ProcessingDone}
	h.Publish(ScopeGlobal, Event{
		Type:    EventFeedClipAdded,
		Payload: model.SanitizedClip(clip, model.ReactionCounts{Like: 2}),
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var wire struct {
		Type    EventType      `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &wire))
	require.Equal(t, EventFeedClipAdded, wire.Type)
	require.NotContains(t, wire.Payload, "isOwner")
	require.Contains(t, wire.Payload, "reactions")
}

func TestUnregisterRemovesFromAllScopes(t *testing.T) {
	h := NewHub(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(h, conn, "u1", 8, func(string) bool { return true })
		require.NoError(t, h.Register(c))
		clientCtx, clientCancel := context.WithCancel(ctx)
		c.Start(clientCtx, clientCancel)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)

	h.mu.RLock()
	defer h.mu.RUnlock()
	require.Empty(t, h.scopes)
	require.Empty(t, h.memberships)
}
