package recovery

import (
	"fmt"

	"github.com/dreamware/vdo-core/internal/block"
	"github.com/dreamware/vdo-core/internal/vlog"
)

// ReferencedBlock is one PBN the slab depot's reference counts say is
// still in use, the starting point for a read-only rebuild.
type ReferencedBlock struct {
	PBN block.PBN
	Count uint8
}

// BlockMapPageReader follows an interior or leaf page's body to find
// the LBN(s) it maps, or reports the page invalid so the caller can
// zero-fill and re-allocate the subtree.
type BlockMapPageReader interface {
	ReadPage(pbn block.PBN) (body []byte, valid bool, err error)
}

// TreeRebuilder re-creates a forest subtree rooted at a zero-filled
// replacement for an invalid interior page.7 "Invalid
// interior pages are zero-filled and the subtree is re-allocated."
type TreeRebuilder interface {
	ZeroFillAndReallocate(pbn block.PBN) (block.PBN, error)
}

// JournalReinitializer truncates and reinitializes the recovery
// journal.7 "The recovery journal is truncated and
// re-initialised."
type JournalReinitializer interface {
	TruncateAndReinitialize(nonce uint64) error
}

// Rebuilder drives a read-only rebuild: the block map is reconstructed
// from the slab reference counts rather than trusted from disk, since
// a rebuild is only entered on corruption or an explicit operator
// request.
type Rebuilder struct {
	pages BlockMapPageReader
	trees TreeRebuilder
	journal JournalReinitializer
	logger *vlog.Logger
}

func NewRebuilder(pages BlockMapPageReader, trees TreeRebuilder, journal JournalReinitializer) *Rebuilder {
	return &Rebuilder{pages: pages, trees: trees, journal: journal, logger: vlog.New("component", "recovery-rebuild")}
}

// Rebuild walks every referenced PBN, validating the block-map page it
// names and re-allocating the subtree beneath any invalid page, then
// truncates and reinitializes the recovery journal once the forest is
// consistent again.
func (r *Rebuilder) Rebuild(referenced []ReferencedBlock, nonce uint64) (reallocated int, err error) {
	for _, rb := range referenced {
 _, valid, err := r.pages.ReadPage(rb.PBN)
 if err != nil {
 return reallocated, fmt.Errorf("recovery rebuild: reading page %d: %w", rb.PBN, err)
 }
 if valid {
 continue
 }
 r.logger.Warn("zero-filling invalid interior page during rebuild", "pbn", rb.PBN)
 if _, err := r.trees.ZeroFillAndReallocate(rb.PBN); err != nil {
 return reallocated, fmt.Errorf("recovery rebuild: reallocating subtree at %d: %w", rb.PBN, err)
 }
 reallocated++
	}

	if err := r.journal.TruncateAndReinitialize(nonce); err != nil {
 return reallocated, fmt.Errorf("recovery rebuild: reinitializing journal: %w", err)
	}
	r.logger.Info("read-only rebuild complete", "reallocated", reallocated)
	return reallocated, nil
}
