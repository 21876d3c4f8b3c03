// Package repository implements pgx-backed persistence for users, clips,
// reactions, rooms and room messages.
package repository

import "errors"

// ErrNotFound is returned when a row does not exist. Handlers map it to 404.
var ErrNotFound = errors.New("not found")
