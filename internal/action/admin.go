package action

import (
	"fmt"
	"sync"

	"github.com/dreamware/vdo-core/internal/vlog"
)

// DrainOperation is the drain operation code propagated across every
// subsystem during a drain.
type DrainOperation int

const (
	DrainSuspend DrainOperation = iota
	DrainSave
	DrainRebuild
	DrainFlush
	DrainScrub
)

func (op DrainOperation) String() string {
	switch op {
	case DrainSuspend:
		return "suspend"
	case DrainSave:
		return "save"
	case DrainRebuild:
		return "rebuild"
	case DrainFlush:
		return "flush"
	case DrainScrub:
		return "scrub"
	default:
		return "unknown"
	}
}

// AdminState names where the device sits in the drain/resume cycle.
// Normal is the only state in which new operations are admitted;
// every other state rejects new work until Resume returns to Normal.
type AdminState int

const (
	AdminNormal AdminState = iota
	AdminDraining
	AdminDrained
	AdminResuming
)

func (s AdminState) String() string {
	switch s {
	case AdminNormal:
		return "normal"
	case AdminDraining:
		return "draining"
	case AdminDrained:
		return "drained"
	case AdminResuming:
		return "resuming"
	default:
		return "unknown"
	}
}

// Admin drives the drain/resume state machine across all subsystems:
// each subsystem reaches a quiescent barrier and finishes the parent
// completion; the drain is not cancellable mid-flight.
type Admin struct {
	mu      sync.Mutex
	state   AdminState
	op      DrainOperation
	manager *Manager
	logger  *vlog.Logger
}

func NewAdmin(manager *Manager) *Admin {
	return &Admin{state: AdminNormal, manager: manager, logger: vlog.New("component", "admin")}
}

func (a *Admin) State() AdminState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Drain runs op across every zone via the manager, transitioning
// Normal -> Draining -> Drained. It is not cancellable mid-flight: once
// started, Drain always reaches Drained or returns an error having
// left the state machine in Draining (the caller must retry or escalate
// to read-only, never silently revert to Normal).
func (a *Admin) Drain(op DrainOperation, quiesce Action, dispatch func(zoneID int, work func() error) error) error {
	a.mu.Lock()
	if a.state != AdminNormal {
		a.mu.Unlock()
		return fmt.Errorf("action: drain requested while admin state is %s, not normal", a.state)
	}
	a.op = op
	a.state = AdminDraining
	a.mu.Unlock()

	a.logger.Info("drain starting", "operation", op)
	if err := a.manager.Run(quiesce, dispatch); err != nil {
		a.logger.Error("drain failed", "operation", op, "err", err)
		return fmt.Errorf("action: drain %s: %w", op, err)
	}

	a.mu.Lock()
	a.state = AdminDrained
	a.mu.Unlock()
	a.logger.Info("drain complete", "operation", op)
	return nil
}

// Resume runs the inverse action across every zone, transitioning
// Drained -> Resuming -> Normal. Resuming from any state but Drained
// is rejected; the device must finish an in-flight drain before it can
// resume.
func (a *Admin) Resume(resume Action, dispatch func(zoneID int, work func() error) error) error {
	a.mu.Lock()
	if a.state != AdminDrained {
		a.mu.Unlock()
		return fmt.Errorf("action: resume requested while admin state is %s, not drained", a.state)
	}
	a.state = AdminResuming
	a.mu.Unlock()

	a.logger.Info("resume starting", "operation", a.op)
	if err := a.manager.Run(resume, dispatch); err != nil {
		a.logger.Error("resume failed", "operation", a.op, "err", err)
		return fmt.Errorf("action: resume from %s: %w", a.op, err)
	}

	a.mu.Lock()
	a.state = AdminNormal
	a.mu.Unlock()
	a.logger.Info("resume complete")
	return nil
}
