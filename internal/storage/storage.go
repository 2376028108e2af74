// Package storage holds what the snapshot stores share: the not-found
// sentinel, the history record shape and row ID generation.
package storage

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/combat"
)

// ErrSnapshotNotFound is returned when a combat has no stored snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Record is one stored snapshot with its row metadata.
type Record struct {
	// ID is a ULID, so lexical order is save order.
	ID       string
	Snapshot combat.Snapshot
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a fresh row ID. IDs from one process are strictly
// increasing.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}
