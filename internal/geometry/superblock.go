package geometry

import (
	"encoding/binary"
	"fmt"

	"github.com/dreamware/vdo-core/internal/block"
)

// VDOState enumerates the states the super block's component-state
// blob names.
type VDOState int

const (
	StateNew VDOState = iota
	StateClean
	StateDirty
	StateReadOnly
	StateForceRebuild
	StateRecovering
	StateReplaying
	StateRebuildForUpgrade
)

func (s VDOState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateReadOnly:
		return "read-only"
	case StateForceRebuild:
		return "force-rebuild"
	case StateRecovering:
		return "recovering"
	case StateReplaying:
		return "replaying"
	case StateRebuildForUpgrade:
		return "rebuild-for-upgrade"
	default:
		return "unknown"
	}
}

// SuperBlock is the consumed-invariants subset of the on-disk super
// block: release version, the component-state positions recovery
// needs, slab depot configuration, and the overall VDO state. The
// full region table / byte layout is explicitly out of scope.
type SuperBlock struct {
	ReleaseVersion uint32
	State          VDOState

	BlockMapRootOrigin block.PBN
	BlockMapRootCount  uint32

	RecoveryJournalHead uint64
	RecoveryJournalTail uint64

	SlabDepotFirstBlock block.PBN
	SlabDepotSlabSize   uint64
}

const superBlockKey = "vdo.superblock"

var superBlockVersion uint32 = 1

// Marshal packs the super block into a fixed-width record. Unlike the
// real region-table layout, this is a straightforward byte-aligned
// encoding: the on-disk geometry byte-for-byte is explicitly not
// reproduced, only these consumed invariants.
func (sb SuperBlock) Marshal() []byte {
	buf := make([]byte, 4+4+4+4+8+8+8+8+8)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], superBlockVersion)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], sb.ReleaseVersion)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(sb.State))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], sb.BlockMapRootCount)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(sb.BlockMapRootOrigin))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], sb.RecoveryJournalHead)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], sb.RecoveryJournalTail)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(sb.SlabDepotFirstBlock))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], sb.SlabDepotSlabSize)
	return buf
}

func UnmarshalSuperBlock(buf []byte) (SuperBlock, error) {
	const wantLen = 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + 8
	if len(buf) != wantLen {
		return SuperBlock{}, fmt.Errorf("geometry: super block record is %d bytes, want %d", len(buf), wantLen)
	}
	off := 0
	version := binary.BigEndian.Uint32(buf[off:])
	off += 4
	if version != superBlockVersion {
		return SuperBlock{}, fmt.Errorf("geometry: super block version %d unsupported", version)
	}
	var sb SuperBlock
	sb.ReleaseVersion = binary.BigEndian.Uint32(buf[off:])
	off += 4
	sb.State = VDOState(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	sb.BlockMapRootCount = binary.BigEndian.Uint32(buf[off:])
	off += 4
	sb.BlockMapRootOrigin = block.PBN(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	sb.RecoveryJournalHead = binary.BigEndian.Uint64(buf[off:])
	off += 8
	sb.RecoveryJournalTail = binary.BigEndian.Uint64(buf[off:])
	off += 8
	sb.SlabDepotFirstBlock = block.PBN(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	sb.SlabDepotSlabSize = binary.BigEndian.Uint64(buf[off:])
	return sb, nil
}

// SaveSuperBlock persists sb under a fixed key; the monotone "load
// the one current record" access pattern means there's no need for a
// generation suffix the way the slab-summary's tail-block scheme
// needs one.
func SaveSuperBlock(store KeyValueStore, sb SuperBlock) error {
	return store.Put([]byte(superBlockKey), sb.Marshal())
}

func LoadSuperBlock(store KeyValueStore) (SuperBlock, error) {
	buf, err := store.Get([]byte(superBlockKey))
	if err != nil {
		return SuperBlock{}, err
	}
	return UnmarshalSuperBlock(buf)
}
