// Package store defines the interface for database implementations to the bridge service.
//
// Only small pieces of derived state are persisted: the display-name registry (set by clients, not recoverable from
// the ledger) and the latest game checkpoint, so a restarted bridge greets reconnecting clients with their names and
// the last known game window. Everything else is re-derived from the chain.
package store

import (
	"errors"
)

// DB defines required methods for the bridge service.
type DB interface {
	// display-name registry
	SetName(address, name string) error
	Names() (map[string]string, error)
	// game checkpoint
	SaveGame(g Game) error
	LoadGame() (Game, error)
}

// Errors returned
var (
	ErrDataNotFound = errors.New("data was not found in store")
)
