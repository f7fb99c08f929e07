package slab

import (
	"fmt"
)

// RefCountValue is the packed per-block reference count: { empty,
// provisional, 1..=253, shared(254) }.
type RefCountValue uint8

const (
	RefEmpty      RefCountValue = 0
	RefProvisional RefCountValue = 1
	refMinReal    RefCountValue = 2
	RefShared     RefCountValue = 254
	refMaxReal    RefCountValue = 253
)

// RefCounts is the packed reference-count array for one slab: one
// byte per data block, plus the free-entry cursor the allocator scans
// from.
type RefCounts struct {
	values []RefCountValue
	free   int // number of RefEmpty entries, kept incremental for the invariant "allocated = slab_size - free"
	cursor int

	dirty        bool
	dirtyEra     uint64 // era in which this block was first dirtied since last save
	recoveryLock uint64 // earliest journal block holding uncommitted updates to this page
}

// NewRefCounts allocates an all-empty reference-count array for a
// slab with the given number of data blocks.
func NewRefCounts(dataBlocks uint64) *RefCounts {
	return &RefCounts{
		values: make([]RefCountValue, dataBlocks),
		free:   int(dataBlocks),
	}
}

// Get returns the reference count at sbn (slab block number).
func (r *RefCounts) Get(sbn uint64) RefCountValue {
	return r.values[sbn]
}

// Values returns the raw backing array, for serialization into an
// on-disk or cached ref-count block. Callers must not mutate it.
func (r *RefCounts) Values() []RefCountValue { return r.values }

// Allocated is the invariant: slab_size - free.
func (r *RefCounts) Allocated() int { return len(r.values) - r.free }

func (r *RefCounts) Free() int { return r.free }

// FindFreeBlock scans from the cursor for an empty entry, marks it
// provisional, and advances the cursor. Returns ok=false if the slab
// is full.
func (r *RefCounts) FindFreeBlock() (sbn uint64, ok bool) {
	n := len(r.values)
	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		if r.values[idx] == RefEmpty {
			r.values[idx] = RefProvisional
			r.free--
			r.cursor = (idx + 1) % n
			r.markDirty(0)
			return uint64(idx), true
		}
	}
	return 0, false
}

// Operation mirrors journal.Operation's increment/decrement shape but
// scoped to ref-count application.
type Operation int

const (
	OpIncrement Operation = iota
	OpDecrement
)

// Modify applies op to the byte at sbn, enforcing the sticky-shared
// rule (once 254, stays 254) and the block-map/data validity check.
func (r *RefCounts) Modify(sbn uint64, op Operation, era uint64) error {
	if sbn >= uint64(len(r.values)) {
		return fmt.Errorf("slab: sbn %d out of range [0,%d)", sbn, len(r.values))
	}
	before := r.values[sbn]
	switch op {
	case OpIncrement:
		switch {
		case before == RefEmpty:
			r.values[sbn] = refMinReal
			r.free--
		case before == RefProvisional:
			r.values[sbn] = refMinReal
		case before == RefShared:
			// sticky: stays shared
		case before < refMaxReal:
			r.values[sbn] = before + 1
		default:
			r.values[sbn] = RefShared
		}
	case OpDecrement:
		switch {
		case before == RefEmpty:
			return fmt.Errorf("slab: decrement of already-empty block %d", sbn)
		case before == RefShared:
			// sticky: never decrements back down
		case before == refMinReal || before == RefProvisional:
			r.values[sbn] = RefEmpty
			r.free++
		default:
			r.values[sbn] = before - 1
		}
	}
	if r.values[sbn] != before {
		r.markDirty(era)
	}
	return nil
}

// markDirty transitions the block clean→dirty, enqueuing it (by
// convention of the caller, which owns the dirty-era list) for its
// era.
func (r *RefCounts) markDirty(era uint64) {
	if !r.dirty {
		r.dirty = true
		r.dirtyEra = era
	}
}

func (r *RefCounts) Dirty() bool          { return r.dirty }
func (r *RefCounts) DirtyEra() uint64     { return r.dirtyEra }
func (r *RefCounts) RecoveryLock() uint64 { return r.recoveryLock }

func (r *RefCounts) SetRecoveryLock(seq uint64) { r.recoveryLock = seq }

// ClearDirty marks the ref-count block clean after a successful save.
func (r *RefCounts) ClearDirty() {
	r.dirty = false
	r.recoveryLock = 0
}

// Vacate releases a provisional reference without confirming it.
func (r *RefCounts) Vacate(sbn uint64) {
	if r.values[sbn] == RefProvisional {
		r.values[sbn] = RefEmpty
		r.free++
	}
}
