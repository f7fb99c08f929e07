package slab

import "container/heap"

// priorityEntry is one slab tracked by the free-block priority table
// described by the allocation algorithm: slabs are prioritized by
// free-block count, ties broken by the lower slab number (stable
// allocation order aids testing).
//
// The heap.Interface shape is grounded on core/state/snapshot/
// iterator_heap.go's iteratorHeap: a slice-backed heap ordered
// primarily by one field and secondarily by a tiebreaker, with
// Push/Pop/Swap/Less exactly mirroring that file's structure.
type priorityEntry struct {
	slabNumber uint32
	free       uint64
}

type priorityHeap []priorityEntry

func (ph priorityHeap) Len() int { return len(ph) }

func (ph priorityHeap) Less(i, j int) bool {
	if ph[i].free != ph[j].free {
		return ph[i].free > ph[j].free // higher free count is higher priority
	}
	return ph[i].slabNumber < ph[j].slabNumber
}

func (ph priorityHeap) Swap(i, j int) { ph[i], ph[j] = ph[j], ph[i] }

func (ph *priorityHeap) Push(x interface{}) {
	*ph = append(*ph, x.(priorityEntry))
}

func (ph *priorityHeap) Pop() interface{} {
	old := *ph
	n := len(old)
	item := old[n-1]
	*ph = old[:n-1]
	return item
}

// priorityTable wraps priorityHeap with the slab-depot-facing API:
// insert a slab at a given free count, pop the best candidate, and
// remove (e.g. when a slab closes with a changed free count and must
// be re-inserted at its new priority).
type priorityTable struct {
	h priorityHeap
}

func newPriorityTable() *priorityTable {
	pt := &priorityTable{}
	heap.Init(&pt.h)
	return pt
}

func (pt *priorityTable) insert(slabNumber uint32, free uint64) {
	heap.Push(&pt.h, priorityEntry{slabNumber: slabNumber, free: free})
}

// popBest removes and returns the highest-priority slab, or ok=false
// if the table is empty.
func (pt *priorityTable) popBest() (slabNumber uint32, ok bool) {
	if pt.h.Len() == 0 {
		return 0, false
	}
	e := heap.Pop(&pt.h).(priorityEntry)
	return e.slabNumber, true
}

func (pt *priorityTable) len() int { return pt.h.Len() }
