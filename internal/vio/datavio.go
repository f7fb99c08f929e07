// Package vio is the thin composition layer tying together lbn-lock,
// hash-lock, allocation, journal, and block-map updates into the
// single write pipeline. It adds no new behavior of its own: every
// step here just calls into internal/lock, internal/journal,
// internal/slab, and internal/blockmap in the prescribed order.
package vio

import (
	"github.com/dreamware/vdo-core/internal/block"
)

// State is the coroutine-like step sequence of a write: every "step"
// in the pipeline is a callback enqueued onto a zone. We model it as
// an explicit state machine rather than async tasks, since a
// data_vio's progression through these exact named steps is itself
// part of what a caller may want to observe (e.g. for diagnostics).
type State int

const (
	StateNew State = iota
	StateLBNLocked
	StateHashLocked
	StateAllocated
	StateJournaled
	StateBlockMapUpdated
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLBNLocked:
		return "lbn_locked"
	case StateHashLocked:
		return "hash_locked"
	case StateAllocated:
		return "allocated"
	case StateJournaled:
		return "journaled"
	case StateBlockMapUpdated:
		return "block_map_updated"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChunkName is the dedup-index lookup key: a content hash of the
// data_vio's uncompressed payload.
type ChunkName [32]byte

// DataVIO carries one in-flight logical write through the pipeline.
// Unlike a pool-owned struct reused across writes, here a DataVIO is
// just a plain struct the caller owns for the duration of one Write
// call.
type DataVIO struct {
	LBN       block.LBN
	Data      []byte
	ChunkName ChunkName

	State State

	SlabNumber uint32
	SBN        uint64
	Mapping    block.Mapping

	// Dedup records whether this write was satisfied by an existing
	// chunk (no new physical block consumed) rather than a fresh
	// allocation.
	Dedup bool

	Err error
}
