package model

import "time"

// ReactionType is one of the six reaction kinds clients may pick. Storage does
// not reject other strings (legacy rows may carry anything); aggregation counts
// only these six.
type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionHaha  ReactionType = "haha"
	ReactionWow   ReactionType = "wow"
	ReactionSad   ReactionType = "sad"
	ReactionAngry ReactionType = "angry"
)

// ReactionTypes lists the known types in display order.
var ReactionTypes = []ReactionType{
	ReactionLike, ReactionLove, ReactionHaha, ReactionWow, ReactionSad, ReactionAngry,
}

type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingDone       ProcessingStatus = "done"
	ProcessingFailed     ProcessingStatus = "failed"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentUnknown  Sentiment = "unknown"
)

// Clip is a posted audio clip. RoomID nil means the public feed; the scope is
// fixed at creation and never changes.
type Clip struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Filename         string           `json:"filename"`
	URL              string           `json:"url"`
	Size             int64            `json:"size"`
	Duration         float64          `json:"duration"`
	RoomID           *string          `json:"room_id"`
	Transcript       string           `json:"transcript"`
	Sentiment        Sentiment        `json:"sentiment"`
	Tags             []string         `json:"tags"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ReportCount      int              `json:"report_count"`
	IsHidden         bool             `json:"is_hidden"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Reaction is a raw per-user reaction row on a clip. At most one per
// (clip, user); a new reaction replaces the previous one.
type Reaction struct {
	ClipID    string       `json:"clip_id"`
	UserID    string       `json:"user_id"`
	Type      ReactionType `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
}

// ReactionCounts is the derived per-type tally. The six keys are always
// present; it is never persisted.
type ReactionCounts struct {
	Like  int `json:"like"`
	Love  int `json:"love"`
	Haha  int `json:"haha"`
	Wow   int `json:"wow"`
	Sad   int `json:"sad"`
	Angry int `json:"angry"`
}

// Total returns the number of counted (known-type) reactions.
func (c ReactionCounts) Total() int {
	return c.Like + c.Love + c.Haha + c.Wow + c.Sad + c.Angry
}

// ClipResponse is the personalized rendering returned to the requesting caller.
// IsOwner is relative to that caller and must never be broadcast.
type ClipResponse struct {
	Clip
	Reactions ReactionCounts `json:"reactions"`
	IsOwner   bool           `json:"isOwner"`
}

// ClipBroadcast is the sanitized rendering pushed to all observers. It carries
// no caller-relative fields; clients recompute ownership locally.
type ClipBroadcast struct {
	Clip
	Reactions ReactionCounts `json:"reactions"`
}

// PersonalClip projects a clip for the requesting caller.
func PersonalClip(c *Clip, counts ReactionCounts, callerID string) ClipResponse {
	return ClipResponse{Clip: *c, Reactions: counts, IsOwner: c.UserID == callerID}
}

// SanitizedClip projects a clip for broadcast to every observer.
func SanitizedClip(c *Clip, counts ReactionCounts) ClipBroadcast {
	return ClipBroadcast{Clip: *c, Reactions: counts}
}
