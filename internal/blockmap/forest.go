// Package blockmap implements the VDO block map: a fixed-height
// forest of trees mapping logical block numbers to physical mappings,
// a shared page cache over the forest's interior pages, and the
// era-indexed dirty-page lists that drive write-back.
package blockmap

import (
	"fmt"
	"sync"

	"github.com/dreamware/vdo-core/internal/block"
)

// TreeLockState is the per-page_index wait/allocate state a data_vio
// carries while walking the forest. The Pending state is supplemented
// from original_source (vdo/block-map-tree.h): kvdo's forest-growth
// replay distinguishes a page that is being allocated (no data yet)
// from one that is fully written, which a plain tree-lookup walk
// doesn't need to name.
type TreeLockState int

const (
	TreeLockAbsent TreeLockState = iota
	TreeLockLoading
	TreeLockPending // page allocated but not yet durably written; only meaningful during forest-growth replay
	TreeLockPresent
)

// TreeLock tracks one data_vio's progress walking from a tree's root
// to a leaf, including the per-slot waiter list used when an interior
// page is absent and already being loaded.
type TreeLock struct {
	mu      sync.Mutex
	state   TreeLockState
	pbn     block.PBN
	waiters []chan block.PBN
}

func (tl *TreeLock) state_() TreeLockState {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.state
}

// Await blocks the caller's logical flow (represented here as a
// channel handoff, since internal/zone serializes actual execution
// onto a single per-zone goroutine) until the page this lock guards
// becomes present, returning its PBN.
func (tl *TreeLock) Await() chan block.PBN {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	ch := make(chan block.PBN, 1)
	if tl.state == TreeLockPresent {
		ch <- tl.pbn
		return ch
	}
	tl.waiters = append(tl.waiters, ch)
	return ch
}

// Resolve marks the lock's page present at pbn and wakes every
// waiter on the tree_lock's per-slot waiter list.
func (tl *TreeLock) Resolve(pbn block.PBN) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.state = TreeLockPresent
	tl.pbn = pbn
	for _, w := range tl.waiters {
		w <- pbn
	}
	tl.waiters = nil
}

// MarkPending flags the page as allocated-but-unwritten, used only
// during forest-growth replay after a crash (original_source
// supplement, see TreeLockState doc).
func (tl *TreeLock) MarkPending(pbn block.PBN) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.state = TreeLockPending
	tl.pbn = pbn
}

// Coordinates is the decomposition of one LBN lookup into a page
// index, a slot within that page, and the root tree that owns it.
type Coordinates struct {
	PageIndex uint64
	Slot      uint32
	RootIndex uint32
}

func Locate(g block.Geometry, lbn block.LBN) Coordinates {
	return Coordinates{
		PageIndex: g.PageIndex(lbn),
		Slot:      g.Slot(lbn),
		RootIndex: g.RootIndex(g.PageIndex(lbn)),
	}
}

// PageAllocator is the slab-depot-facing contract the forest uses to
// create new interior pages on first reference.
type PageAllocator interface {
	AllocateInteriorPage() (block.PBN, error)
}

// Tree is one of the forest's root_count trees: the i-th leaf page of
// LBN space lives in tree i % root_count, with leaves further striped
// across logical zones.
type Tree struct {
	rootIndex uint32
	height    uint32
	zoneCount uint32
	allocator PageAllocator

	mu    sync.Mutex
	locks map[uint64]*TreeLock // keyed by pageIndex within this tree
}

func NewTree(rootIndex uint32, height uint32, zoneCount uint32, allocator PageAllocator) *Tree {
	return &Tree{
		rootIndex: rootIndex,
		height:    height,
		zoneCount: zoneCount,
		allocator: allocator,
		locks:     map[uint64]*TreeLock{},
	}
}

// ZoneFor returns the logical zone that owns pageIndex's leaf: striped
// across logical zones by (root_index % zone_count).
func (t *Tree) ZoneFor(pageIndex uint64) uint32 {
	return t.rootIndex % t.zoneCount
}

// LockFor returns (creating if absent) the TreeLock guarding
// pageIndex within this tree.
func (t *Tree) LockFor(pageIndex uint64) *TreeLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[pageIndex]
	if !ok {
		l = &TreeLock{}
		t.locks[pageIndex] = l
	}
	return l
}

// EnsurePage resolves pageIndex's page, allocating a fresh interior
// page via the allocator if none exists yet.
func (t *Tree) EnsurePage(pageIndex uint64) (block.PBN, error) {
	lock := t.LockFor(pageIndex)
	if lock.state_() == TreeLockPresent {
		return (<-lock.Await()), nil
	}
	pbn, err := t.allocator.AllocateInteriorPage()
	if err != nil {
		return block.InvalidPBN, fmt.Errorf("blockmap: tree %d: allocating page %d: %w", t.rootIndex, pageIndex, err)
	}
	lock.Resolve(pbn)
	return pbn, nil
}

// Forest is the full set of root_count trees.
type Forest struct {
	geometry block.Geometry
	trees    []*Tree
}

func NewForest(g block.Geometry, zoneCount uint32, allocator PageAllocator) *Forest {
	f := &Forest{geometry: g}
	f.trees = make([]*Tree, g.RootCount)
	for i := range f.trees {
		f.trees[i] = NewTree(uint32(i), g.TreeHeight, zoneCount, allocator)
	}
	return f
}

// Lookup locates the coordinates for lbn, walks to the leaf's owning
// tree, and returns the leaf page's PBN (step 2-3 collapse to one
// allocator call here since the forest itself does not model
// intermediate interior levels individually).
func (f *Forest) Lookup(lbn block.LBN) (block.PBN, error) {
	c := Locate(f.geometry, lbn)
	tree := f.trees[c.RootIndex]
	return tree.EnsurePage(c.PageIndex)
}

func (f *Forest) Geometry() block.Geometry { return f.geometry }
