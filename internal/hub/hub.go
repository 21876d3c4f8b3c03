package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/echowave/internal/logger"
)

var ErrHubClosed = errors.New("hub is closed")

var bufPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// Hub fans events out to websocket clients grouped by scope. A client always
// observes the global scope and may additionally subscribe to room scopes.
// The hub knows nothing about rooms or membership; callers authorize a
// subscription before asking for it.
type Hub struct {
	mu     sync.RWMutex
	scopes map[string]map[*Client]struct{}
	// reverse index, used to detach a client from everything on unregister
	memberships map[*Client]map[string]struct{}

	register   chan *Client
	unregister chan *Client

	maxClients int

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func NewHub(maxClients int) *Hub {
	return &Hub{
		scopes:      make(map[string]map[*Client]struct{}),
		memberships: make(map[*Client]map[string]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		maxClients:  maxClients,
		closed:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Run owns the client lifecycle. It must be started before the HTTP router
// begins accepting upgrades and keeps going until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Register hands a new connection to the hub. The client starts observing
// the global scope immediately.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.closed:
		return ErrHubClosed
	}
}

// Unregister detaches a client from every scope and releases it. Safe to
// call for a client that was never registered or is already gone.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.closed:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.maxClients > 0 && len(h.memberships) >= h.maxClients {
		h.mu.Unlock()
		logger.Infof("hub: connection limit reached (%d), rejecting client %s", h.maxClients, c.UserID())
		c.Close()
		return
	}
	h.memberships[c] = make(map[string]struct{})
	h.subscribeLocked(c, ScopeGlobal)
	n := len(h.memberships)
	h.mu.Unlock()

	logger.Debugf("hub: client %s registered (%d connected)", c.UserID(), n)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	scopes, ok := h.memberships[c]
	if ok {
		for scope := range scopes {
			h.unsubscribeLocked(c, scope)
		}
		delete(h.memberships, c)
	}
	n := len(h.memberships)
	h.mu.Unlock()

	if ok {
		c.Close()
		logger.Debugf("hub: client %s unregistered (%d connected)", c.UserID(), n)
	}
}

// Subscribe attaches the client to a scope. The caller has already checked
// that the user may observe it.
func (h *Hub) Subscribe(c *Client, scope string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.memberships[c]; !ok {
		return
	}
	h.subscribeLocked(c, scope)
}

// Unsubscribe detaches the client from a scope. The global scope cannot be
// left while connected.
func (h *Hub) Unsubscribe(c *Client, scope string) {
	if scope == ScopeGlobal {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.memberships[c]; !ok {
		return
	}
	h.unsubscribeLocked(c, scope)
}

func (h *Hub) subscribeLocked(c *Client, scope string) {
	set, ok := h.scopes[scope]
	if !ok {
		set = make(map[*Client]struct{})
		h.scopes[scope] = set
	}
	set[c] = struct{}{}
	h.memberships[c][scope] = struct{}{}
}

func (h *Hub) unsubscribeLocked(c *Client, scope string) {
	if set, ok := h.scopes[scope]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.scopes, scope)
		}
	}
	delete(h.memberships[c], scope)
}

// Publish delivers an event to every client subscribed to scope. Delivery is
// best effort: a client whose send buffer is full is dropped rather than
// allowed to stall the rest.
func (h *Hub) Publish(scope string, ev Event) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	if err := json.NewEncoder(buf).Encode(ev); err != nil {
		bufPool.Put(buf)
		logger.Errorf("hub: encode %s event: %v", ev.Type, err)
		return
	}
	payload := make([]byte, buf.Len())
	copy(payload, buf.Bytes())
	bufPool.Put(buf)

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.scopes[scope]))
	for c := range h.scopes[scope] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, c := range targets {
		if !c.trySend(payload) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		logger.Infof("hub: client %s too slow, dropping", c.UserID())
		h.removeClient(c)
	}
}

// ClientCount reports connected clients, used by the health endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.memberships)
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() { close(h.closed) })

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.memberships))
	for c := range h.memberships {
		clients = append(clients, c)
	}
	h.scopes = make(map[string]map[*Client]struct{})
	h.memberships = make(map[*Client]map[string]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	logger.Info("hub: shut down")
}

// Done is closed once Run has returned and every client is released.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// handleIncoming reacts to scope-change requests from a connected client.
// authorize is supplied at upgrade time and decides room access.
func (h *Hub) handleIncoming(c *Client, msg IncomingMessage) {
	switch msg.Type {
	case incomingJoinRoom:
		if msg.RoomID == "" {
			return
		}
		if c.authorize == nil || !c.authorize(msg.RoomID) {
			logger.Debugf("hub: client %s denied scope %s", c.UserID(), msg.RoomID)
			return
		}
		h.Subscribe(c, msg.RoomID)
	case incomingLeaveRoom:
		if msg.RoomID == "" {
			return
		}
		h.Unsubscribe(c, msg.RoomID)
	default:
		logger.Debugf("hub: client %s sent unknown message type %q", c.UserID(), msg.Type)
	}
}
