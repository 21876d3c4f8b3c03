package reactions

import (
	"testing"

	"github.com/echowave/internal/model"
	"github.com/stretchr/testify/assert"
)

func rx(user string, t model.ReactionType) model.Reaction {
	return model.Reaction{ClipID: "clip-1", UserID: user, Type: t}
}

func TestCountEmpty(t *testing.T) {
	assert.Equal(t, model.ReactionCounts{}, Count(nil))
	assert.Equal(t, model.ReactionCounts{}, Count([]model.Reaction{}))
}

func TestCountAllTypes(t *testing.T) {
	rs := []model.Reaction{
		rx("u1", model.ReactionLike),
		rx("u2", model.ReactionLove),
		rx("u3", model.ReactionLove),
		rx("u4", model.ReactionHaha),
		rx("u5", model.ReactionWow),
		rx("u6", model.ReactionSad),
		rx("u7", model.ReactionAngry),
	}
	got := Count(rs)
	assert.Equal(t, model.ReactionCounts{Like: 1, Love: 2, Haha: 1, Wow: 1, Sad: 1, Angry: 1}, got)
	assert.Equal(t, len(rs), got.Total())
}

// Raw rows with types outside the six-value enum are dropped by the tally.
// This is a deliberate forward-compatibility choice, not an accident: old or
// foreign rows must never break the fixed wire shape.
func TestCountIgnoresUnknownTypes(t *testing.T) {
	rs := []model.Reaction{
		rx("u1", model.ReactionLike),
		rx("u2", "thumbsdown"),
		rx("u3", ""),
		rx("u4", model.ReactionSad),
	}
	got := Count(rs)
	assert.Equal(t, model.ReactionCounts{Like: 1, Sad: 1}, got)
	assert.Equal(t, 2, got.Total())
}

func TestCountForFiltersByClip(t *testing.T) {
	rs := []model.Reaction{
		{ClipID: "a", UserID: "u1", Type: model.ReactionLike},
		{ClipID: "b", UserID: "u1", Type: model.ReactionLove},
		{ClipID: "a", UserID: "u2", Type: model.ReactionLike},
	}
	assert.Equal(t, model.ReactionCounts{Like: 2}, CountFor("a", rs))
	assert.Equal(t, model.ReactionCounts{Love: 1}, CountFor("b", rs))
	assert.Equal(t, model.ReactionCounts{}, CountFor("c", rs))
}
