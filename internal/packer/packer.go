// Package packer exposes the allocator-facing contract the (external)
// compressed-block packer uses: "Packer interface to the allocator".
// The packer's batching/fragment-placement policy itself is out of
// scope; this package only models the fixed handoff between a batch
// of compressing data_vios and the storage core.
package packer

import (
	"fmt"

	"github.com/dreamware/vdo-core/internal/block"
)

// Allocator is the subset of the slab depot's allocator the packer
// needs: one allocation per batch, translated to an absolute PBN by
// the geometry layer (slab base offset + sbn; out of scope here under
// a "consumed invariants only" treatment of on-disk layout).
type Allocator interface {
	Allocate() (slabNumber uint32, sbn uint64, err error)
	ConfirmAllocation(slabNumber uint32, sbn uint64, era uint64) error
	SlabBase(slabNumber uint32) block.PBN
}

// AgentAllocation is the single physical allocation a packer batch's
// agent data_vio obtains.
type AgentAllocation struct {
	SlabNumber uint32
	SBN        uint64
	PBN        block.PBN
}

// ClientShare is one client data_vio's share of an agent's allocation:
// a compressed-slot mapping state and the single journal entry that
// records it. Each client data_vio in the batch takes a shared
// reference; a single journal entry per client records the new
// mapping.
type ClientShare struct {
	LBN     block.LBN
	Mapping block.Mapping
}

// Batch is one packer bin's worth of compressing fragments awaiting a
// shared physical write.
type Batch struct {
	geometryBlockSize uint32
	fragments         []clientFragment
}

type clientFragment struct {
	lbn  block.LBN
	size uint32
}

func NewBatch(blockSize uint32) *Batch {
	return &Batch{geometryBlockSize: blockSize}
}

// AddFragment enqueues one client's compressed fragment. Returns an
// error if the fragment wouldn't fit in the remaining space of a
// single physical block.
func (b *Batch) AddFragment(lbn block.LBN, size uint32) error {
	used := uint32(0)
	for _, f := range b.fragments {
		used += f.size
	}
	if used+size > b.geometryBlockSize {
		return fmt.Errorf("packer: fragment for LBN %d (%d bytes) does not fit in remaining %d bytes", lbn, size, b.geometryBlockSize-used)
	}
	b.fragments = append(b.fragments, clientFragment{lbn: lbn, size: size})
	return nil
}

func (b *Batch) Len() int { return len(b.fragments) }

// Close settles the batch: if it holds only one fragment, packing is
// aborted and the agent falls through to a normal uncompressed write
// — the caller is expected to perform that fallback write itself;
// Close just reports the abort via aborted=true. Otherwise it obtains
// the single agent allocation and assigns each client a compressed
// slot, mirroring difflayer.flatten's many-children-collapse-into-
// one-parent discipline: many independent fragments collapse onto one
// shared physical write, committed as a unit.
func (b *Batch) Close(allocator Allocator, era uint64) (agent AgentAllocation, shares []ClientShare, aborted bool, err error) {
	if len(b.fragments) <= 1 {
		return AgentAllocation{}, nil, true, nil
	}
	if len(b.fragments) > block.MaxCompressionSlots {
		return AgentAllocation{}, nil, false, fmt.Errorf("packer: batch of %d fragments exceeds %d compression slots", len(b.fragments), block.MaxCompressionSlots)
	}

	slabNumber, sbn, err := allocator.Allocate()
	if err != nil {
		return AgentAllocation{}, nil, false, fmt.Errorf("packer: obtaining agent allocation: %w", err)
	}
	if err := allocator.ConfirmAllocation(slabNumber, sbn, era); err != nil {
		return AgentAllocation{}, nil, false, fmt.Errorf("packer: confirming agent allocation: %w", err)
	}

	agent = AgentAllocation{SlabNumber: slabNumber, SBN: sbn, PBN: allocator.SlabBase(slabNumber) + block.PBN(sbn)}
	shares = make([]ClientShare, 0, len(b.fragments))
	for slot, f := range b.fragments {
		shares = append(shares, ClientShare{
			LBN:     f.lbn,
			Mapping: block.Mapping{PBN: agent.PBN, State: block.CompressedState(slot)},
		})
	}
	return agent, shares, false, nil
}
