package blockmap

import "github.com/dreamware/vdo-core/internal/lock"

// journalBlockLocker is the narrow shape *internal/journal.Journal's
// real AcquireBlockReference/ReleaseBlockReference methods have: both
// take the zone type and zone id the reference is held on behalf of,
// not just a sequence number.
type journalBlockLocker interface {
	AcquireBlockReference(seq uint64, zoneType lock.ZoneType, zoneID int)
	ReleaseBlockReference(seq uint64, zoneType lock.ZoneType, zoneID int)
}

// JournalLocker adapts a journalBlockLocker into the single-argument
// RecoveryLocker PageCache expects, by closing over the fixed
// (zoneType, zoneID) pair that owns this page cache instance: a page
// cache lives on one logical zone, so every recovery-lock reference it
// takes is always on behalf of that same zone.
type JournalLocker struct {
	journal  journalBlockLocker
	zoneType lock.ZoneType
	zoneID   int
}

// NewJournalLocker builds a RecoveryLocker bound to journal for the
// given zone.
func NewJournalLocker(journal journalBlockLocker, zoneType lock.ZoneType, zoneID int) *JournalLocker {
	return &JournalLocker{journal: journal, zoneType: zoneType, zoneID: zoneID}
}

func (jl *JournalLocker) AcquireBlockReference(seq uint64) {
	jl.journal.AcquireBlockReference(seq, jl.zoneType, jl.zoneID)
}

func (jl *JournalLocker) ReleaseBlockReference(seq uint64) {
	jl.journal.ReleaseBlockReference(seq, jl.zoneType, jl.zoneID)
}
