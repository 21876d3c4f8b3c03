// Package reactions derives per-type reaction tallies from raw reaction rows.
// It is a pure projection: counting never touches storage and never depends on
// who is asking.
package reactions

import "github.com/echowave/internal/model"

// Count folds raw reaction rows into the fixed six-key tally. An empty or nil
// input yields all zeros. Types outside the known six are ignored: legacy rows
// may carry anything, and dropping them keeps the wire shape stable.
func Count(rs []model.Reaction) model.ReactionCounts {
	var c model.ReactionCounts
	for _, r := range rs {
		switch r.Type {
		case model.ReactionLike:
			c.Like++
		case model.ReactionLove:
			c.Love++
		case model.ReactionHaha:
			c.Haha++
		case model.ReactionWow:
			c.Wow++
		case model.ReactionSad:
			c.Sad++
		case model.ReactionAngry:
			c.Angry++
		}
	}
	return c
}

// CountFor returns the tally for one clip out of a mixed batch of rows,
// avoiding a per-clip query when listing the feed.
func CountFor(clipID string, rs []model.Reaction) model.ReactionCounts {
	var own []model.Reaction
	for _, r := range rs {
		if r.ClipID == clipID {
			own = append(own, r)
		}
	}
	return Count(own)
}
