package recovery

import (
	"fmt"
	"sync"

	"github.com/dreamware/vdo-core/internal/block"
)

// GrowPhysical implements the two-phase grow_physical shape from
// original_source (vdo/vdoResize.c, vdoResume.c): a Prepare step safe
// to call concurrently with ongoing I/O (it only stages the new
// layout) and a Perform step that commits it, mirrored by
// internal/action's phase machine for the admin-visible drain/resume
// around it.
type GrowPhysical struct {
	mu sync.Mutex

	currentBlockCount block.PBN
	prepared          bool
	newBlockCount     block.PBN

	allocateSlabs func(fromPBN, toPBN block.PBN) error
}

func NewGrowPhysical(currentBlockCount block.PBN, allocateSlabs func(fromPBN, toPBN block.PBN) error) *GrowPhysical {
	return &GrowPhysical{currentBlockCount: currentBlockCount, allocateSlabs: allocateSlabs}
}

// Prepare validates the requested new size and stages it without
// touching live allocator state, so it is safe to call while I/O is
// in flight.
func (g *GrowPhysical) Prepare(newBlockCount block.PBN) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if newBlockCount <= g.currentBlockCount {
		return fmt.Errorf("recovery: grow_physical requires newBlockCount > %d, got %d", g.currentBlockCount, newBlockCount)
	}
	g.newBlockCount = newBlockCount
	g.prepared = true
	return nil
}

// Perform commits the prepared grow: new slabs are created over the
// added range. Must only be run once the admin layer has quiesced the
// zones touching slab allocation.
func (g *GrowPhysical) Perform() error {
	g.mu.Lock()
	if !g.prepared {
		g.mu.Unlock()
		return fmt.Errorf("recovery: grow_physical Perform called without a prepared size")
	}
	from, to := g.currentBlockCount, g.newBlockCount
	g.mu.Unlock()

	if g.allocateSlabs != nil {
		if err := g.allocateSlabs(from, to); err != nil {
			return fmt.Errorf("recovery: grow_physical: allocating new slabs: %w", err)
		}
	}

	g.mu.Lock()
	g.currentBlockCount = to
	g.prepared = false
	g.mu.Unlock()
	return nil
}

func (g *GrowPhysical) CurrentBlockCount() block.PBN {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentBlockCount
}
