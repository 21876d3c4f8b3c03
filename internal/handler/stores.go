package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/echowave/internal/hub"
	"github.com/echowave/internal/model"
)

// The handlers depend on narrow store slices so tests can swap in in-memory
// fakes. The pgx repositories satisfy these.

type ClipStore interface {
	Create(ctx context.Context, c *model.Clip) error
	GetByID(ctx context.Context, id string) (*model.Clip, error)
	ListPublic(ctx context.Context) ([]model.Clip, error)
	Delete(ctx context.Context, id string) error
	SetReaction(ctx context.Context, clipID, userID string, t model.ReactionType) error
	GetReactions(ctx context.Context, clipID string) ([]model.Reaction, error)
	GetReactionsForClips(ctx context.Context, clipIDs []string) ([]model.Reaction, error)
}

type RoomStore interface {
	Create(ctx context.Context, room *model.Room) error
	GetByID(ctx context.Context, id string) (*model.Room, error)
	List(ctx context.Context) ([]model.Room, error)
	AddMember(ctx context.Context, roomID, userID string) error
	Delete(ctx context.Context, id string) error
	AddMessage(ctx context.Context, m *model.Message) error
	GetMessages(ctx context.Context, roomID string) ([]model.Message, error)
	GetMessage(ctx context.Context, roomID, messageID string) (*model.Message, error)
	DeleteMessage(ctx context.Context, roomID, messageID string) error
}

// Broadcaster is the hub surface the coordinators publish to. Publishing is
// fire-and-forget; a failed or unheard broadcast never fails the request.
type Broadcaster interface {
	Publish(scope string, ev hub.Event)
}

// BlobStore is the audio blob storage surface.
type BlobStore interface {
	Save(ctx context.Context, src io.Reader, origName, contentType string) (string, int64, error)
	Remove(name string) error
	Serve(w http.ResponseWriter, r *http.Request, name string)
	MaxSize() int64
}

// Notifier sends web-push notifications; implementations are nil-safe no-ops
// when push is not configured.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}
