package geometry

import (
	"encoding/binary"
	"fmt"
)

// RegionKind distinguishes the two regions the geometry block's
// region table names.
type RegionKind uint8

const (
	RegionIndex RegionKind = iota
	RegionData
)

// Region is one entry of the geometry block's region table: a
// starting block offset and a block count.
type Region struct {
	Kind       RegionKind
	StartBlock uint64
	BlockCount uint64
}

// GeometryBlock is the consumed-invariants subset of the on-disk
// geometry block: release version, nonce, UUID, the data region's
// starting bio offset, and the region table. Exact on-disk byte
// layout (checksums, padding) is explicitly out of scope.
type GeometryBlock struct {
	ReleaseVersion uint32
	Nonce          uint64
	UUID           [16]byte
	BioOffset      uint64
	Regions        []Region
}

func (g GeometryBlock) Marshal() []byte {
	buf := make([]byte, 4+8+16+8+4+len(g.Regions)*17)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], g.ReleaseVersion)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], g.Nonce)
	off += 8
	copy(buf[off:off+16], g.UUID[:])
	off += 16
	binary.BigEndian.PutUint64(buf[off:], g.BioOffset)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(len(g.Regions)))
	off += 4
	for _, r := range g.Regions {
		buf[off] = byte(r.Kind)
		off++
		binary.BigEndian.PutUint64(buf[off:], r.StartBlock)
		off += 8
		binary.BigEndian.PutUint64(buf[off:], r.BlockCount)
		off += 8
	}
	return buf
}

func UnmarshalGeometryBlock(buf []byte) (GeometryBlock, error) {
	const headerLen = 4 + 8 + 16 + 8 + 4
	if len(buf) < headerLen {
		return GeometryBlock{}, fmt.Errorf("geometry: block too short: %d bytes", len(buf))
	}
	var g GeometryBlock
	off := 0
	g.ReleaseVersion = binary.BigEndian.Uint32(buf[off:])
	off += 4
	g.Nonce = binary.BigEndian.Uint64(buf[off:])
	off += 8
	copy(g.UUID[:], buf[off:off+16])
	off += 16
	g.BioOffset = binary.BigEndian.Uint64(buf[off:])
	off += 8
	count := binary.BigEndian.Uint32(buf[off:])
	off += 4
	if len(buf) != headerLen+int(count)*17 {
		return GeometryBlock{}, fmt.Errorf("geometry: region table length mismatch for %d regions", count)
	}
	g.Regions = make([]Region, count)
	for i := range g.Regions {
		g.Regions[i].Kind = RegionKind(buf[off])
		off++
		g.Regions[i].StartBlock = binary.BigEndian.Uint64(buf[off:])
		off += 8
		g.Regions[i].BlockCount = binary.BigEndian.Uint64(buf[off:])
		off += 8
	}
	return g, nil
}

// RegionFor returns the first region of the given kind, if present.
func (g GeometryBlock) RegionFor(kind RegionKind) (Region, bool) {
	for _, r := range g.Regions {
		if r.Kind == kind {
			return r, true
		}
	}
	return Region{}, false
}
