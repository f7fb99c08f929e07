// Package lock implements constant-time per-zone reference counting
// over a fixed array of locks (recovery-journal blocks), with a
// single atomic zone-count aggregator so the hot path never has to
// scan per-zone state.
//
// The split between a hot atomic counter and a cold, mutex-guarded
// notification path is grounded on eth/downloader/resultcache.go's
// indexIncomplete field: an int32 updated only with sync/atomic,
// consulted without locking, with a slower RWMutex-guarded path for
// anything that isn't a pure counter bump.
package lock

import (
	"sync"
	"sync/atomic"

	"github.com/dreamware/vdo-core/internal/vlog"
)

// ZoneType distinguishes the two kinds of zone that hold per-entry
// locks against a journal block.
type ZoneType int

const (
	ZoneLogical ZoneType = iota
	ZonePhysical
	zoneTypeCount
)

// Owner is notified when a lock's zone-count aggregator reaches zero,
// i.e. every zone has released its reference to that lock. The owner
// is always the recovery journal.
type Owner interface {
	// NotifyLockZeroed is invoked on the owner's own thread/zone; it
	// must call Acknowledge before the counter will fire again for
	// this lock.
	NotifyLockZeroed(lockNumber uint64)
}

type perZone struct {
	counts []int32 // one entry per zone id within this ZoneType
}

type lockState struct {
	zones     [zoneTypeCount]perZone
	zoneCount int32 // number of (zoneType,zoneID) pairs with nonzero count

	// notified is set when the owner has been told this lock zeroed
	// and cleared again once it acknowledges; guarded by Counter.mu.
	notified bool
}

// Counter is an arena of lockState, one per recoverable journal block
// slot (indexed by sequence number modulo journal size, by
// convention of the caller).
type Counter struct {
	mu        sync.Mutex // guards suspend/resume and notification wiring; never held on the acquire/release hot path
	locks     []lockState
	owner     Owner
	suspended bool
	logger    *vlog.Logger
}

// NewCounter allocates a counter for `locks` journal-block slots, with
// logicalZones and physicalZones zones of each type.
func NewCounter(locks int, logicalZones, physicalZones int, owner Owner) *Counter {
	c := &Counter{
		locks:  make([]lockState, locks),
		owner:  owner,
		logger: vlog.New("component", "lock-counter"),
	}
	for i := range c.locks {
		c.locks[i].zones[ZoneLogical].counts = make([]int32, logicalZones)
		c.locks[i].zones[ZonePhysical].counts = make([]int32, physicalZones)
	}
	return c
}

// InitJournalCount sets the journal's own reference on lock directly,
// bypassing Acquire's zone bookkeeping. Journal-thread only.
func (c *Counter) InitJournalCount(lockNumber uint64, value int32) {
	l := &c.locks[c.index(lockNumber)]
	atomic.StoreInt32(&l.zoneCount, value)
}

func (c *Counter) index(lockNumber uint64) uint64 { return lockNumber % uint64(len(c.locks)) }

// Acquire takes a reference on lockNumber for (zoneType, zoneID). If
// this zone's count transitions 0→1, the lock's zone-count aggregator
// is bumped.
func (c *Counter) Acquire(lockNumber uint64, zoneType ZoneType, zoneID int) {
	l := &c.locks[c.index(lockNumber)]
	counts := l.zones[zoneType].counts
	if atomic.AddInt32(&counts[zoneID], 1) == 1 {
		atomic.AddInt32(&l.zoneCount, 1)
	}
}

// Release drops a reference on lockNumber for (zoneType, zoneID). If
// this zone's count transitions 1→0, the aggregator is decremented;
// if that decrement reaches zero and notifications aren't suspended,
// the owner is scheduled.
func (c *Counter) Release(lockNumber uint64, zoneType ZoneType, zoneID int) {
	idx := c.index(lockNumber)
	l := &c.locks[idx]
	counts := l.zones[zoneType].counts
	remaining := atomic.AddInt32(&counts[zoneID], -1)
	if remaining < 0 {
		panic("lock: released more times than acquired")
	}
	if remaining != 0 {
		return
	}
	if atomic.AddInt32(&l.zoneCount, -1) != 0 {
		return
	}
	c.mu.Lock()
	fire := !c.suspended && !l.notified
	if fire {
		l.notified = true
	}
	c.mu.Unlock()
	if fire && c.owner != nil {
		c.owner.NotifyLockZeroed(lockNumber)
	}
}

// Acknowledge re-arms notifications for lockNumber: the owner must
// call this after processing a NotifyLockZeroed callback before the
// counter will fire again for that lock.
func (c *Counter) Acknowledge(lockNumber uint64) {
	l := &c.locks[c.index(lockNumber)]
	c.mu.Lock()
	l.notified = false
	c.mu.Unlock()
}

// IsLocked reports whether any zone still holds a reference on
// lockNumber. Used by reaping to test condition (2).
func (c *Counter) IsLocked(lockNumber uint64) bool {
	l := &c.locks[c.index(lockNumber)]
	return atomic.LoadInt32(&l.zoneCount) != 0
}

// Suspend disables owner notifications, used across admin drains.
func (c *Counter) Suspend() {
	c.mu.Lock()
	c.suspended = true
	c.mu.Unlock()
}

// Resume re-enables owner notifications.
func (c *Counter) Resume() {
	c.mu.Lock()
	c.suspended = false
	c.mu.Unlock()
}
