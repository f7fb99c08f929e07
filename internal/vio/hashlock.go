package vio

import (
	"golang.org/x/sync/singleflight"

	"github.com/dreamware/vdo-core/internal/block"
)

// DedupIndex is the external dedup-index endpoint's query surface as
// consumed by the write pipeline; its own implementation is out of
// scope here, but the hash-lock step still needs something to ask
// "have we seen this chunk name before, and if so at what physical
// block".
type DedupIndex interface {
	Query(name ChunkName) (pbn block.PBN, found bool, err error)
}

// HashLocks collapses concurrent dedup-advice verifications for the
// same chunk name onto a single in-flight query: the hash zone's
// dedup-index lookup map (pbn -> waiters) reduces to
// golang.org/x/sync/singleflight, sparing a hand-rolled waiter map
// for this one case.
type HashLocks struct {
	index DedupIndex
	group singleflight.Group
}

func NewHashLocks(index DedupIndex) *HashLocks {
	return &HashLocks{index: index}
}

type dedupResult struct {
	pbn   block.PBN
	found bool
}

// Verify asks the dedup index for name, collapsing duplicate
// concurrent callers for the same name onto one query.
func (h *HashLocks) Verify(name ChunkName) (pbn block.PBN, found bool, err error) {
	v, err, _ := h.group.Do(string(name[:]), func() (interface{}, error) {
		pbn, found, err := h.index.Query(name)
		if err != nil {
			return nil, err
		}
		return dedupResult{pbn: pbn, found: found}, nil
	})
	if err != nil {
		return 0, false, err
	}
	res := v.(dedupResult)
	return res.pbn, res.found, nil
}

// NoDedupIndex is a DedupIndex that never reports a match, for
// deployments (or tests) running without a live dedup index attached.
type NoDedupIndex struct{}

func (NoDedupIndex) Query(ChunkName) (block.PBN, bool, error) { return 0, false, nil }
