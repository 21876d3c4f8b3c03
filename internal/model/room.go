package model

import "time"

// Room is a password-protected space for voice messages. Members only grows;
// the creator is an implicit member and need not appear in Members.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	UserID       string    `json:"user_id"`
	Members      []string  `json:"members"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is a voice message inside a room. It references a clip by its stored
// URL and lives and dies with the room.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	ClipURL   string    `json:"clipUrl"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomResponse is the personalized room rendering. The listing quirk of the
// original client is kept: isOwner is true for the creator or any member.
type RoomResponse struct {
	Room
	IsOwner bool `json:"isOwner"`
}

// RoomBroadcast is the sanitized room rendering for the global scope.
type RoomBroadcast struct {
	Room
}

// MessageResponse is the personalized message rendering.
type MessageResponse struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	ClipURL   string    `json:"clipUrl"`
	CreatedAt time.Time `json:"created_at"`
	IsOwner   bool      `json:"isOwner"`
}

// MessageBroadcast is the sanitized message rendering for the room scope. The
// author id is omitted entirely; observers only need the content.
type MessageBroadcast struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	ClipURL   string    `json:"clipUrl"`
	CreatedAt time.Time `json:"created_at"`
}

// PersonalRoom projects a room for the requesting caller.
func PersonalRoom(r *Room, callerID string) RoomResponse {
	owner := r.UserID == callerID
	if !owner {
		for _, m := range r.Members {
			if m == callerID {
				owner = true
				break
			}
		}
	}
	return RoomResponse{Room: *r, IsOwner: owner}
}

// SanitizedRoom projects a room for broadcast.
func SanitizedRoom(r *Room) RoomBroadcast {
	return RoomBroadcast{Room: *r}
}

// PersonalMessage projects a message for the requesting caller.
func PersonalMessage(m *Message, callerID string) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		ClipURL:   m.ClipURL,
		CreatedAt: m.CreatedAt,
		IsOwner:   m.UserID == callerID,
	}
}

// SanitizedMessage projects a message for broadcast to the room scope.
func SanitizedMessage(m *Message) MessageBroadcast {
	return MessageBroadcast{
		ID:        m.ID,
		RoomID:    m.RoomID,
		ClipURL:   m.ClipURL,
		CreatedAt: m.CreatedAt,
	}
}
