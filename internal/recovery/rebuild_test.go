package recovery

import (
	"testing"

	"github.com/dreamware/vdo-core/internal/block"
)

type fakePageReader struct {
	valid map[block.PBN]bool
}

func (f *fakePageReader) ReadPage(pbn block.PBN) ([]byte, bool, error) {
	return nil, f.valid[pbn], nil
}

type fakeTreeRebuilder struct {
	reallocated []block.PBN
}

func (f *fakeTreeRebuilder) ZeroFillAndReallocate(pbn block.PBN) (block.PBN, error) {
	f.reallocated = append(f.reallocated, pbn)
	return pbn + 1000, nil
}

type fakeJournalReinit struct {
	called bool
	nonce  uint64
}

func (f *fakeJournalReinit) TruncateAndReinitialize(nonce uint64) error {
	f.called = true
	f.nonce = nonce
	return nil
}

func TestRebuildReallocatesOnlyInvalidPages(t *testing.T) {
	pages := &fakePageReader{valid: map[block.PBN]bool{1: true, 2: false, 3: true}}
	trees := &fakeTreeRebuilder{}
	reinit := &fakeJournalReinit{}

	r := NewRebuilder(pages, trees, reinit)
	referenced := []ReferencedBlock{{PBN: 1}, {PBN: 2}, {PBN: 3}}
	count, err := r.Rebuild(referenced, 0xBEEF)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reallocation, got %d", count)
	}
	if len(trees.reallocated) != 1 || trees.reallocated[0] != 2 {
		t.Fatalf("expected only PBN 2 reallocated, got %v", trees.reallocated)
	}
	if !reinit.called || reinit.nonce != 0xBEEF {
		t.Fatalf("expected journal reinitialized with nonce 0xBEEF, got called=%v nonce=%x", reinit.called, reinit.nonce)
	}
}
