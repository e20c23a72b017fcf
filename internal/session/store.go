// Package session defines conversation storage.
//
// Sessions are independent keys: implementations must allow concurrent
// operations on different session ids without interference. Concurrent
// mutation of the same session id is the caller's responsibility; one
// logical conversation is expected to be driven by one client at a time.
package session

import (
	"context"
	"errors"

	"github.com/mtlfinder/voyago/internal/domain"
)

// ErrNotFound is returned when a session id is unknown. Delete returns it
// too, so deleting an already-absent session is observably a 404, never a
// silent success.
var ErrNotFound = errors.New("session not found")

// Store holds per-conversation message history keyed by session id.
type Store interface {
	// Create allocates a new session with a fresh id and empty history.
	Create(ctx context.Context) (*domain.Session, error)

	// Append adds a message to the end of a session's history.
	Append(ctx context.Context, id string, msg domain.Message) error

	// Get returns the full ordered message history for a session.
	Get(ctx context.Context, id string) ([]domain.Message, error)

	// Delete removes a session and its history.
	Delete(ctx context.Context, id string) error

	// List returns all known session ids.
	List(ctx context.Context) ([]string, error)
}
