// Package zone implements the zone/thread model: every piece of
// mutable state is owned by exactly one zone, and cross-zone
// interaction happens only by enqueueing a completion onto the target
// zone's work queue.
//
// Nothing names this pattern explicitly elsewhere, but relies on it:
// a freezerTable's head/offsets files are only ever mutated from call
// sites go-ethereum serialises onto one chain-writing goroutine.
// Queue makes that convention an explicit, reusable type instead of
// an unstated assumption.
package zone

import (
	"fmt"

	"github.com/dreamware/vdo-core/internal/vlog"
)

// Type names the kind of zone.
type Type int

const (
	TypeLogical Type = iota
	TypePhysical
	TypeHash
	TypeJournal
	TypePacker
	TypeAdmin
)

func (t Type) String() string {
	switch t {
	case TypeLogical:
		return "logical"
	case TypePhysical:
		return "physical"
	case TypeHash:
		return "hash"
	case TypeJournal:
		return "journal"
	case TypePacker:
		return "packer"
	case TypeAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Completion is a unit of work enqueued onto a zone: a callback plus
// an optional error handler, a uniform enqueue/callback/error-handler
// shape shared by every suspension point in the pipeline.
type Completion struct {
	Run func()
	// OnError, if non-nil, is invoked instead of Run when the
	// completion was enqueued with a non-nil error (e.g. a failed
	// I/O reported from another zone).
	OnError func(error)
	Err      error
}

// Queue is a single zone's work queue: a buffered channel of
// completions drained by exactly one goroutine (runLoop), so anything
// enqueued here executes strictly after everything enqueued before it
// and never concurrently with anything else on this zone.
type Queue struct {
	id     int
	typ    Type
	work   chan Completion
	done   chan struct{}
	logger *vlog.Logger
}

// NewQueue starts a zone's run loop immediately; Stop shuts it down.
func NewQueue(id int, typ Type, capacity int) *Queue {
	q := &Queue{
		id:     id,
		typ:    typ,
		work:   make(chan Completion, capacity),
		done:   make(chan struct{}),
		logger: vlog.New("zone", typ.String(), "zone_id", id),
	}
	go q.runLoop()
	return q
}

func (q *Queue) runLoop() {
	for c := range q.work {
		if c.Err != nil && c.OnError != nil {
			c.OnError(c.Err)
			continue
		}
		if c.Run != nil {
			c.Run()
		}
	}
	close(q.done)
}

// Enqueue schedules c to run on this zone's goroutine. It never runs
// inline, even if the caller happens to already be on this zone's
// goroutine — that optimisation is allowed but not required, and
// always-enqueue keeps the ordering guarantee trivial to reason
// about.
func (q *Queue) Enqueue(c Completion) error {
	select {
	case <-q.done:
		return fmt.Errorf("zone: queue %d (%s) is closed", q.id, q.typ)
	default:
	}
	select {
	case q.work <- c:
		return nil
	case <-q.done:
		return fmt.Errorf("zone: queue %d (%s) is closed", q.id, q.typ)
	}
}

// Run is shorthand for Enqueue(Completion{Run: fn}).
func (q *Queue) Run(fn func()) error {
	return q.Enqueue(Completion{Run: fn})
}

// Stop closes the queue after draining everything already enqueued,
// and blocks until the run loop has exited.
func (q *Queue) Stop() {
	close(q.work)
	<-q.done
}

func (q *Queue) ID() int     { return q.id }
func (q *Queue) Type() Type  { return q.typ }
