package blockmap

import (
	"sync"

	"github.com/dreamware/vdo-core/internal/block"
)

// eraBucket names the three FIFO buckets every dirty-era list cycles
// pages through: current, old, and ancient.
type eraBucket int

const (
	eraCurrent eraBucket = iota
	eraOld
	eraAncient
)

// WriteScheduler is invoked with pages that have aged past
// maximum_age and must now be saved: the ancient bucket is handed to
// the cache's write-dirty callback.
type WriteScheduler func(pbn block.PBN)

// DirtyList is one logical zone's era-indexed FIFO list of dirty
// pages, generalized from the diffLayer/journal "layer that must
// eventually flatten into the disk layer" shape (core/state/
// snapshot/difflayer.go, journal.go): instead of per-block-root diff
// layers collapsing into a disk layer, per-era buckets of dirty pages
// collapse into a write-dirty callback once they age past
// maximum_age.
type DirtyList struct {
	mu sync.Mutex

	maximumAge uint64
	buckets    map[eraBucket][]block.PBN
	pageEra    map[block.PBN]uint64

	scheduler WriteScheduler
}

func NewDirtyList(maximumAge uint64, scheduler WriteScheduler) *DirtyList {
	return &DirtyList{
		maximumAge: maximumAge,
		buckets:    map[eraBucket][]block.PBN{eraCurrent: nil, eraOld: nil, eraAncient: nil},
		pageEra:    map[block.PBN]uint64{},
		scheduler:  scheduler,
	}
}

// Add places pbn in the bucket matching its dirtying age relative to
// currentEra. Pages added with an age of at least maximumAge are
// treated as already ancient and expired immediately.
func (dl *DirtyList) Add(pbn block.PBN, dirtiedEra uint64, currentEra uint64) {
	dl.mu.Lock()
	age := currentEra - dirtiedEra
	dl.pageEra[pbn] = dirtiedEra
	var bucket eraBucket
	switch {
	case age >= dl.maximumAge:
		bucket = eraAncient
	case age > 0:
		bucket = eraOld
	default:
		bucket = eraCurrent
	}
	dl.buckets[bucket] = append(dl.buckets[bucket], pbn)
	expired := bucket == eraAncient
	dl.mu.Unlock()

	if expired && dl.scheduler != nil {
		dl.scheduler(pbn)
	}
}

// Advance moves current->old, old->ancient, and hands every page that
// was in ancient before this call to the write scheduler. On each journal-block commit,
// the action manager advances the era across all logical zones.
func (dl *DirtyList) Advance() {
	dl.mu.Lock()
	expired := dl.buckets[eraAncient]
	dl.buckets[eraAncient] = dl.buckets[eraOld]
	dl.buckets[eraOld] = dl.buckets[eraCurrent]
	dl.buckets[eraCurrent] = nil
	dl.mu.Unlock()

	if dl.scheduler != nil {
		for _, pbn := range expired {
			dl.scheduler(pbn)
		}
	}
}

// Pending reports how many pages are tracked across all three
// buckets, for diagnostics/tests.
func (dl *DirtyList) Pending() int {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return len(dl.buckets[eraCurrent]) + len(dl.buckets[eraOld]) + len(dl.buckets[eraAncient])
}
