package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/echowave/internal/hub"
	"github.com/echowave/internal/model"
	"github.com/echowave/internal/repository"
)

// In-memory fakes for the store interfaces. Write paths fail when failWrites
// is set so the compensating-cleanup branches can be exercised.

type memClips struct {
	mu         sync.Mutex
	clips      map[string]*model.Clip
	reactions  map[string]map[string]model.Reaction // clipID -> userID -> reaction
	nextID     int
	failWrites bool
}

func newMemClips() *memClips {
	return &memClips{
		clips:     make(map[string]*model.Clip),
		reactions: make(map[string]map[string]model.Reaction),
	}
}

func (m *memClips) Create(_ context.Context, c *model.Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return fmt.Errorf("store down")
	}
	m.nextID++
	c.ID = fmt.Sprintf("clip-%d", m.nextID)
	c.CreatedAt = time.Now().UTC()
	c.ProcessingStatus = model.ProcessingPending
	cp := *c
	m.clips[c.ID] = &cp
	return nil
}

func (m *memClips) GetByID(_ context.Context, id string) (*model.Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memClips) ListPublic(_ context.Context) ([]model.Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Clip, 0, len(m.clips))
	for _, c := range m.clips {
		if c.RoomID == nil && !c.IsHidden {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memClips) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clips[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.clips, id)
	delete(m.reactions, id)
	return nil
}

func (m *memClips) SetReaction(_ context.Context, clipID, userID string, t model.ReactionType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return fmt.Errorf("store down")
	}
	if m.reactions[clipID] == nil {
		m.reactions[clipID] = make(map[string]model.Reaction)
	}
	m.reactions[clipID][userID] = model.Reaction{
		ClipID: clipID, UserID: userID, Type: t, CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *memClips) GetReactions(_ context.Context, clipID string) ([]model.Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Reaction, 0, len(m.reactions[clipID]))
	for _, rc := range m.reactions[clipID] {
		out = append(out, rc)
	}
	return out, nil
}

func (m *memClips) GetReactionsForClips(ctx context.Context, clipIDs []string) ([]model.Reaction, error) {
	var out []model.Reaction
	for _, id := range clipIDs {
		rs, _ := m.GetReactions(ctx, id)
		out = append(out, rs...)
	}
	return out, nil
}

type memRooms struct {
	mu       sync.Mutex
	rooms    map[string]*model.Room
	messages map[string][]model.Message
	nextID   int
}

func newMemRooms() *memRooms {
	return &memRooms{
		rooms:    make(map[string]*model.Room),
		messages: make(map[string][]model.Message),
	}
}

func (m *memRooms) Create(_ context.Context, room *model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	room.ID = fmt.Sprintf("room-%d", m.nextID)
	room.CreatedAt = time.Now().UTC()
	cp := *room
	cp.Members = append([]string(nil), room.Members...)
	m.rooms[room.ID] = &cp
	return nil
}

func (m *memRooms) GetByID(_ context.Context, id string) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *room
	cp.Members = append([]string(nil), room.Members...)
	return &cp, nil
}

func (m *memRooms) List(_ context.Context) ([]model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		cp := *room
		cp.Members = append([]string(nil), room.Members...)
		out = append(out, cp)
	}
	return out, nil
}

func (m *memRooms) AddMember(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, existing := range room.Members {
		if existing == userID {
			return nil
		}
	}
	room.Members = append(room.Members, userID)
	return nil
}

func (m *memRooms) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rooms, id)
	delete(m.messages, id)
	return nil
}

func (m *memRooms) AddMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[msg.RoomID]; !ok {
		return repository.ErrNotFound
	}
	m.nextID++
	msg.ID = fmt.Sprintf("msg-%d", m.nextID)
	msg.CreatedAt = time.Now().UTC()
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], *msg)
	return nil
}

func (m *memRooms) GetMessages(_ context.Context, roomID string) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.messages[roomID]...), nil
}

func (m *memRooms) GetMessage(_ context.Context, roomID, messageID string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages[roomID] {
		if msg.ID == messageID {
			cp := msg
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRooms) DeleteMessage(_ context.Context, roomID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[roomID]
	for i, msg := range msgs {
		if msg.ID == messageID {
			m.messages[roomID] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// memBlobs records stored and removed names; no disk involved.
type memBlobs struct {
	mu      sync.Mutex
	nextID  int
	stored  []string
	removed []string
}

func (m *memBlobs) Save(_ context.Context, src io.Reader, origName, _ string) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := io.Copy(io.Discard, src)
	if err != nil {
		return "", 0, err
	}
	m.nextID++
	name := fmt.Sprintf("blob-%d.ogg", m.nextID)
	m.stored = append(m.stored, name)
	return name, n, nil
}

func (m *memBlobs) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, name)
	return nil
}

func (m *memBlobs) Serve(w http.ResponseWriter, _ *http.Request, _ string) {
	w.WriteHeader(http.StatusOK)
}

func (m *memBlobs) MaxSize() int64 { return 25 << 20 }

// recordingHub captures published events for assertions.
type recordingHub struct {
	mu     sync.Mutex
	scopes []string
	events []hub.Event
}

func (h *recordingHub) Publish(scope string, ev hub.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scopes = append(h.scopes, scope)
	h.events = append(h.events, ev)
}

func (h *recordingHub) published() ([]string, []hub.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.scopes...), append([]hub.Event(nil), h.events...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	users []string
}

func (n *recordingNotifier) Notify(_ context.Context, userID, _, _ string, _ map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
}
