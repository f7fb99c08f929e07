package zone

// WaitQueue is the per-resource suspension list: a FIFO of waiter
// callbacks. A data_vio suspends by pushing its resumption callback
// here (an LBN lock, a page load, journal space, a VIO pool entry, a
// lock-counter acknowledgement); the resumer pops waiters off the
// front and runs each on the waiter's own zone via that zone's Queue.
//
// Grounded on the use of a plain slice as a pending-work list in
// core/state/snapshot (difflayer goroutine stage lists): no
// specialised container, just FIFO semantics over a slice.
type WaitQueue struct {
	waiters []func()
}

func (w *WaitQueue) Push(resume func()) {
	w.waiters = append(w.waiters, resume)
}

func (w *WaitQueue) Len() int { return len(w.waiters) }

// PopAll removes and returns every waiter currently queued, oldest
// first, leaving the queue empty. Most resumption events (a lock
// reaching zero, a page finishing its load) wake every waiter at
// once rather than just the head.
func (w *WaitQueue) PopAll() []func() {
	if len(w.waiters) == 0 {
		return nil
	}
	out := w.waiters
	w.waiters = nil
	return out
}

// PopFront removes and returns the single oldest waiter, for
// resources (like a VIO pool) that hand out one slot at a time.
func (w *WaitQueue) PopFront() (func(), bool) {
	if len(w.waiters) == 0 {
		return nil, false
	}
	fn := w.waiters[0]
	w.waiters = w.waiters[1:]
	return fn, true
}

// NotifyAll pops every waiter and runs each via the given zone queue,
// so each resumes on its own owning zone rather than inline on the
// notifier's goroutine.
func (w *WaitQueue) NotifyAll(dispatch func(resume func())) {
	for _, fn := range w.PopAll() {
		dispatch(fn)
	}
}
