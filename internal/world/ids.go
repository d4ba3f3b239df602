package world

import "sync/atomic"

// PlayerID and WorldID are process-wide monotonic identifiers. Uniqueness
// is guaranteed by the atomic increment; no ordering across concurrent
// callers is promised or needed.
type PlayerID uint64
type WorldID uint64

// ConnectionID is the opaque transport-level peer identity a World tracks
// per connection; the simulation never interprets it beyond routing.
type ConnectionID string

var (
	nextPlayerID uint64
	nextWorldID  uint64
)

// NewPlayerID mints the next process-wide PlayerID.
func NewPlayerID() PlayerID {
	return PlayerID(atomic.AddUint64(&nextPlayerID, 1))
}

// NewWorldID mints the next process-wide WorldID.
func NewWorldID() WorldID {
	return WorldID(atomic.AddUint64(&nextWorldID, 1))
}
