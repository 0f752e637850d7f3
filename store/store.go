// Package store provides the persistence abstraction used by the plugin
// lifecycle state machine. A Store keeps one opaque blob per plugin id;
// backends must support concurrent operations on distinct ids.
package store

import (
	"errors"
)

// ErrNotFound indicates that no record exists for the requested plugin id.
var ErrNotFound = errors.New("plugin record not found")

// Store persists plugin records by plugin id.
type Store interface {
	// Save writes the record for the given id, replacing any previous
	// record, and returns the backend-specific location of the record.
	Save(id string, data []byte) (string, error)

	// Load reads the record for the given id. Returns ErrNotFound when no
	// record exists.
	Load(id string) ([]byte, error)

	// Delete removes the record for the given id. Returns true when a
	// record was removed, false when none existed.
	Delete(id string) (bool, error)

	// Exists reports whether a record exists for the given id.
	Exists(id string) (bool, error)
}
