// Package errs implements the device's error taxonomy.
//
// Errors are plain sentinel values (core/rawdb/freezer_table.go's
// errClosed/errOutOfBounds, core/state/snapshot's ErrSnapshotStale):
// no custom error types, no panics for expected conditions,
// classification by errors.Is.
package errs

import "errors"

// Kind classifies an error for the propagation policy.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransientIO
	KindCorruptMetadata
	KindCorruptJournal
	KindOutOfLogicalRange
	KindOutOfPhysicalSpace
	KindInvalidMappingRead
	KindShuttingDown
	KindReadOnly
)

var (
	// ErrOutOfLogicalRange is returned when an LBN falls outside the
	// device's addressable logical space.
	ErrOutOfLogicalRange = errors.New("vdo: logical block number out of range")

	// ErrOutOfPhysicalSpace is returned when the slab depot cannot
	// satisfy an allocation request; no slab has a free block.
	ErrOutOfPhysicalSpace = errors.New("vdo: no free physical blocks")

	// ErrReadOnly is returned by any operation attempted after the
	// device has entered read-only mode.
	ErrReadOnly = errors.New("vdo: device is read-only")

	// ErrShuttingDown is returned by operations rejected because a
	// drain is in progress or has completed.
	ErrShuttingDown = errors.New("vdo: shutting down")

	// ErrRebuildRequired signals that the block map is known
	// inconsistent and must be rebuilt before I/O can resume.
	ErrRebuildRequired = errors.New("vdo: rebuild required")

	// ErrCorruptJournalBlock marks a single on-disk journal block as
	// unreadable/inconsistent (check byte or sequence mismatch).
	ErrCorruptJournalBlock = errors.New("vdo: corrupt journal block")

	// ErrCorruptMetadataPage marks a single block-map or ref-count
	// page as failing validation on read.
	ErrCorruptMetadataPage = errors.New("vdo: corrupt metadata page")

	// ErrInvalidMapping is returned on a read through a mapping state
	// that is neither unmapped nor a valid compressed/uncompressed
	// mapping.
	ErrInvalidMapping = errors.New("vdo: invalid block-map mapping")

	// ErrClosed mirrors freezer_table.go's errClosed: the resource (a
	// journal, a slab journal, a page cache) is already closed/drained.
	ErrClosed = errors.New("vdo: closed")
)

// Classify maps a known sentinel to its Kind. Unknown errors (wrapped
// I/O errors from the substrate) classify as KindTransientIO, per
// "I/O timeouts are the substrate's concern."
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrOutOfLogicalRange):
 return KindOutOfLogicalRange
	case errors.Is(err, ErrOutOfPhysicalSpace):
 return KindOutOfPhysicalSpace
	case errors.Is(err, ErrReadOnly):
 return KindReadOnly
	case errors.Is(err, ErrShuttingDown):
 return KindShuttingDown
	case errors.Is(err, ErrCorruptJournalBlock):
 return KindCorruptJournal
	case errors.Is(err, ErrCorruptMetadataPage):
 return KindCorruptMetadata
	case errors.Is(err, ErrInvalidMapping):
 return KindInvalidMappingRead
	case err == nil:
 return KindUnknown
	default:
 return KindTransientIO
	}
}
