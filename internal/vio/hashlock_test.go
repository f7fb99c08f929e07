package vio

import (
	"sync"
	"testing"

	"github.com/dreamware/vdo-core/internal/block"
)

type countingIndex struct {
	mu      sync.Mutex
	queries int
	pbn     block.PBN
	found   bool
}

func (c *countingIndex) Query(name ChunkName) (block.PBN, bool, error) {
	c.mu.Lock()
	c.queries++
	c.mu.Unlock()
	return c.pbn, c.found, nil
}

func TestHashLocksVerifyMiss(t *testing.T) {
	idx := &countingIndex{found: false}
	h := NewHashLocks(idx)
	_, found, err := h.Verify(ChunkName{1, 2, 3})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if found {
		t.Fatalf("expected no dedup match")
	}
}

func TestHashLocksVerifyHit(t *testing.T) {
	idx := &countingIndex{pbn: 42, found: true}
	h := NewHashLocks(idx)
	pbn, found, err := h.Verify(ChunkName{9})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !found || pbn != 42 {
		t.Fatalf("expected dedup hit at pbn 42, got found=%v pbn=%d", found, pbn)
	}
}

func TestNoDedupIndexAlwaysMisses(t *testing.T) {
	h := NewHashLocks(NoDedupIndex{})
	_, found, err := h.Verify(ChunkName{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if found {
		t.Fatalf("expected NoDedupIndex to never report a match")
	}
}
