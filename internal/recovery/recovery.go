// Package recovery implements the two start-up recovery modes: normal recovery (replay the recovery journal) and read-only
// rebuild (reconstruct the block map from slab reference counts).
package recovery

import (
	"fmt"
	"time"

	"github.com/dreamware/vdo-core/internal/journal"
	"github.com/dreamware/vdo-core/internal/vlog"
)

// JournalSource reads committed recovery-journal blocks in sequence
// order, the replay-side counterpart of internal/journal's write path.
type JournalSource interface {
	ReadBlock(seq uint64) (journal.BlockHeader, []byte, error)
}

// EntryApplier applies one decoded recovery-journal entry to its
// corresponding slab journal and block-map page.
type EntryApplier interface {
	Apply(e journal.Entry) error
}

// Stats mirrors core/state/repair.go's verifierStats: a small
// accumulator logged periodically during a long replay pass, not
// persisted.
type Stats struct {
	start           time.Time
	lastLog         time.Time
	blocksReplayed  uint64
	entriesReplayed uint64
}

func newStats() *Stats {
	now := time.Now()
	return &Stats{start: now, lastLog: now}
}

func (s *Stats) log(logger *vlog.Logger, msg string) {
	logger.Info(msg, "elapsed", time.Since(s.start), "blocks", s.blocksReplayed, "entries", s.entriesReplayed)
	s.lastLog = time.Now()
}

// NormalRecovery replays committed journal blocks from head to tail,
// applying every entry in sequence order. The slab scrubber is
// expected to run concurrently by the caller (it is a separate
// subsystem wired through internal/slab, not this package);
// NormalRecovery only drives the journal replay.
type NormalRecovery struct {
	source  JournalSource
	applier EntryApplier
	logger  *vlog.Logger
}

func NewNormalRecovery(source JournalSource, applier EntryApplier) *NormalRecovery {
	return &NormalRecovery{source: source, applier: applier, logger: vlog.New("component", "recovery")}
}

// Replay applies every entry in [head, tail). Returns the number of
// blocks and entries replayed.
func (r *NormalRecovery) Replay(head, tail uint64) (blocks, entries int, err error) {
	stats := newStats()
	for seq := head; seq < tail; seq++ {
		hdr, payload, err := r.source.ReadBlock(seq)
		if err != nil {
			return blocks, entries, fmt.Errorf("recovery: reading journal block %d: %w", seq, err)
		}
		decoded, err := journal.DeserializeEntries(payload)
		if err != nil {
			return blocks, entries, fmt.Errorf("recovery: decoding journal block %d: %w", seq, err)
		}
		if len(decoded) != int(hdr.EntryCount) {
			return blocks, entries, fmt.Errorf("recovery: block %d declares %d entries but decoded %d", seq, hdr.EntryCount, len(decoded))
		}
		for _, e := range decoded {
			if err := r.applier.Apply(e); err != nil {
				return blocks, entries, fmt.Errorf("recovery: applying entry from block %d: %w", seq, err)
			}
			entries++
			stats.entriesReplayed++
		}
		blocks++
		stats.blocksReplayed++
		if time.Since(stats.lastLog) > 8*time.Second {
			stats.log(r.logger, "replaying recovery journal")
		}
	}
	return blocks, entries, nil
}
