package hub

// ScopeGlobal is the implicit public-feed scope every connection subscribes to
// on register. Room scopes are keyed by room id.
const ScopeGlobal = "global"

type EventType string

// Wire event names, kept compatible with the original web client.
const (
	EventFeedClipAdded      EventType = "feedClipAdded"
	EventFeedClipUpdated    EventType = "feedClipUpdated"
	EventClipDeleted        EventType = "clipDeleted"
	EventRoomCreated        EventType = "roomCreated"
	EventRoomDeleted        EventType = "roomDeleted"
	EventRoomMessageAdded   EventType = "newMessage"
	EventRoomMessageDeleted EventType = "roomMessageDeleted"
)

// Event is the envelope pushed to observers. Payload must be a sanitized
// projection: nothing in it may depend on who receives it.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// DeletedPayload carries just the id for *Deleted events.
type DeletedPayload struct {
	ID string `json:"id"`
}

// IncomingMessage is what a connected client may send: scope subscription
// changes only. All mutations go through the HTTP API.
type IncomingMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
}

const (
	incomingJoinRoom  = "joinRoom"
	incomingLeaveRoom = "leaveRoom"
)
