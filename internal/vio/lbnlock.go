package vio

import (
	"sync"

	"github.com/dreamware/vdo-core/internal/block"
	"github.com/dreamware/vdo-core/internal/zone"
)

// LBNLocks is the write pipeline's first suspension point: at most
// one data_vio may hold the lock for a given LBN at a time. A second
// writer to the same LBN queues on that LBN's WaitQueue instead of
// blocking its own zone's goroutine.
type LBNLocks struct {
	mu    sync.Mutex
	held  map[block.LBN]bool
	waits map[block.LBN]*zone.WaitQueue
}

func NewLBNLocks() *LBNLocks {
	return &LBNLocks{held: map[block.LBN]bool{}, waits: map[block.LBN]*zone.WaitQueue{}}
}

// TryAcquire acquires the lock for lbn if free. If held, resume is
// queued and will be invoked (by some later Release call) once the
// lock becomes free; TryAcquire itself returns acquired=false
// immediately rather than blocking.
func (l *LBNLocks) TryAcquire(lbn block.LBN, resume func()) (acquired bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held[lbn] {
		l.held[lbn] = true
		return true
	}
	if resume != nil {
		w, ok := l.waits[lbn]
		if !ok {
			w = &zone.WaitQueue{}
			l.waits[lbn] = w
		}
		w.Push(resume)
	}
	return false
}

// Release hands the lock to the next waiter (if any), running its
// resume callback inline, or frees the LBN entirely if none are
// waiting.
func (l *LBNLocks) Release(lbn block.LBN) {
	l.mu.Lock()
	w, hasWaiters := l.waits[lbn]
	var next func()
	if hasWaiters {
		next, hasWaiters = w.PopFront()
	}
	if !hasWaiters {
		delete(l.held, lbn)
		delete(l.waits, lbn)
	}
	l.mu.Unlock()

	if hasWaiters {
		next()
	}
}

func (l *LBNLocks) IsHeld(lbn block.LBN) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[lbn]
}
