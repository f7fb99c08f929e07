// Package action implements the action manager and admin state
// machine: a scheduler runs a four-phase action (preamble, one
// callback per zone, conclusion, and a scheduler predicate deciding
// whether another action may start) without ever building an
// inheritance hierarchy of action types — just four bound closures
// per action.
package action

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/dreamware/vdo-core/internal/vlog"
)

// Action is the four-function-pointer phase model, modelled as
// closures rather than a vtable or interface hierarchy, favoring
// small function-valued fields over type hierarchies.
type Action struct {
	// Name identifies the action for logging/diagnostics.
	Name string

	// Preamble runs once, before any per-zone work, on the admin
	// zone. Returning an error aborts the action before any zone is
	// touched.
	Preamble func() error

	// PerZone runs once per zone, in zone-id order but without any
	// ordering guarantee relative to other zones' completion — zones
	// run this concurrently with respect to each other.
	PerZone func(zoneID int) error

	// Conclusion runs once, after every zone has acknowledged
	// PerZone, on the admin zone.
	Conclusion func() error

	// Scheduler is consulted after Conclusion. Run logs a false return
	// at Debug level and does nothing more: it does not block later
	// Run calls.
	Scheduler func() bool
}

// Manager runs Actions across a fixed set of zone IDs, one at a time:
// the admin zone never runs two actions concurrently, so a Manager
// serialises via its own mutex rather than relying on the caller.
type Manager struct {
	mu      sync.Mutex
	zoneIDs []int
	logger  *vlog.Logger
}

func NewManager(zoneIDs []int) *Manager {
	return &Manager{zoneIDs: append([]int{}, zoneIDs...), logger: vlog.New("component", "action_manager")}
}

// Run executes a to completion: Preamble, then PerZone dispatched to
// every zone via dispatch (the caller's bridge into internal/zone's
// per-zone queues), then Conclusion once every zone has acknowledged.
// The golang-set tracks which zones have acknowledged PerZone so far,
// a reach for golang-set on non-hot-path membership bookkeeping
// rather than a hand-rolled bitset.
func (m *Manager) Run(a Action, dispatch func(zoneID int, work func() error) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.Preamble != nil {
		if err := a.Preamble(); err != nil {
			return fmt.Errorf("action: %s: preamble: %w", a.Name, err)
		}
	}

	acknowledged := mapset.NewSet()
	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for _, id := range m.zoneIDs {
		id := id
		wg.Add(1)
		var once sync.Once
		done := func() { once.Do(wg.Done) }
		err := dispatch(id, func() error {
			defer done()
			var zoneErr error
			if a.PerZone != nil {
				zoneErr = a.PerZone(id)
			}
			acknowledged.Add(id)
			if zoneErr != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = zoneErr
				}
				errMu.Unlock()
			}
			return zoneErr
		})
		if err != nil {
			done()
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		}
	}
	wg.Wait()

	if acknowledged.Cardinality() != len(m.zoneIDs) {
		missing := m.missingZones(acknowledged)
		m.logger.Warn("action did not complete on every zone", "action", a.Name, "missing", missing)
	}

	if firstErr != nil {
		return fmt.Errorf("action: %s: per-zone: %w", a.Name, firstErr)
	}

	if a.Conclusion != nil {
		if err := a.Conclusion(); err != nil {
			return fmt.Errorf("action: %s: conclusion: %w", a.Name, err)
		}
	}

	if a.Scheduler != nil && !a.Scheduler() {
		m.logger.Debug("action scheduler declined further actions", "action", a.Name)
	}
	return nil
}

func (m *Manager) missingZones(acknowledged mapset.Set) []int {
	var missing []int
	for _, id := range m.zoneIDs {
		if !acknowledged.Contains(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
