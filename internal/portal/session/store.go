// Package session is the single accessor for the locally persisted session.
// Every component that needs the token or the stored identity goes through a
// Store; nothing else in the codebase touches the underlying keys, which is
// what keeps the "both keys or neither" invariant enforceable.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/campuskit/portal/internal/portal/domain"
)

// ErrNotFound reports that no session is persisted.
var ErrNotFound = errors.New("session: not found")

// Record is the raw persisted session: the bearer token and the serialized
// identity, exactly as stored. The identity is kept serialized so bootstrap
// can distinguish "present but corrupt" from "absent".
type Record struct {
	Token string
	User  string
}

// Store is the durable local key/value store holding the session. Writes and
// clears cover both keys atomically; a token without an identity (or the
// reverse) must be impossible to observe through this interface.
type Store interface {
	// Read returns the persisted record, or ErrNotFound when neither key
	// is present. A record with one empty field indicates corruption and
	// is the caller's signal to Clear.
	Read(ctx context.Context) (Record, error)

	// Write persists both keys in a single atomic step, replacing any
	// existing session (last write wins across concurrent instances).
	Write(ctx context.Context, rec Record) error

	// Clear removes both keys. Clearing an already-empty store is a no-op,
	// so a double logout can never leave a half-cleared state.
	Clear(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

// EncodeUser serializes an identity for persistence.
func EncodeUser(user domain.Identity) (string, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("session: failed to encode user: %w", err)
	}
	return string(data), nil
}

// DecodeUser parses a persisted identity. A failure here means the stored
// session is corrupt and should be purged, not surfaced.
func DecodeUser(raw string) (domain.Identity, error) {
	var user domain.Identity
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return domain.Identity{}, fmt.Errorf("session: corrupt user record: %w", err)
	}
	return user, nil
}
