// Package access decides who may see, react to, and delete clips, rooms and
// messages, and owns room password hashing. All checks are pure functions of
// already-loaded models; handlers do the loading.
package access

import (
	"errors"

	"github.com/echowave/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// ErrWrongPassword is returned when a supplied room password does not match.
var ErrWrongPassword = errors.New("wrong password")

const bcryptCost = 10

// IsRoomMember reports whether callerID may act as a member of the room. The
// creator counts even when absent from the member set.
func IsRoomMember(room *model.Room, callerID string) bool {
	if room.UserID == callerID {
		return true
	}
	for _, m := range room.Members {
		if m == callerID {
			return true
		}
	}
	return false
}

// CanViewClip reports whether callerID may see the clip. Public clips are
// visible to everyone; room clips only to the room's members and creator.
// room may be nil for public clips.
func CanViewClip(callerID string, clip *model.Clip, room *model.Room) bool {
	if clip.RoomID == nil {
		return true
	}
	if room == nil {
		return false
	}
	return IsRoomMember(room, callerID)
}

// CanMutateReaction reports whether callerID may react to the clip. Any viewer
// may react.
func CanMutateReaction(callerID string, clip *model.Clip, room *model.Room) bool {
	return CanViewClip(callerID, clip, room)
}

// Owns is the strict ownership check used for every delete. Room membership
// grants no delete rights.
func Owns(callerID, ownerID string) bool {
	return callerID != "" && callerID == ownerID
}

// HashRoomPassword hashes a room password for storage.
func HashRoomPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyRoomPassword checks a supplied password against the stored hash,
// returning ErrWrongPassword on mismatch.
func VerifyRoomPassword(room *model.Room, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}
