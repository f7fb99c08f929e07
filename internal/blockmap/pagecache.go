package blockmap

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/dreamware/vdo-core/internal/block"
)

// PageState is a VDO page cache slot's lifecycle state.
type PageState int

const (
	PageFree PageState = iota
	PageIncoming
	PageOutgoing
	PageResident
	PageDirty
	PageFailed
)

// Page is one cached interior/leaf block-map page.
type Page struct {
	pbn   block.PBN
	state PageState
	busy  bool

	generation uint64 // torn-write detection

	recoveryLock uint64 // held journal block this page's dirtying is recorded against
	dirtyEra     uint64

	body []byte
}

// ReadHook validates a page's on-disk body after a read completes and
// before it is made resident: checking nonce, declared PBN, and
// on-page type tags, zeroing an invalid page during normal operation
// or zero-fill-and-continue during rebuild.
type ReadHook func(pbn block.PBN, body []byte, rebuilding bool) (valid bool, cleaned []byte)

// WriteHook may rewrite a page's body on write completion, e.g. to
// mark it "initialised" without losing a concurrent update.
type WriteHook func(pbn block.PBN, body []byte) []byte

// Storage is the page cache's I/O substrate.
type Storage interface {
	ReadPage(pbn block.PBN) ([]byte, error)
	WritePage(pbn block.PBN, body []byte) error
}

// RecoveryLocker lets the cache acquire/release a page's hold on a
// recovery-journal sequence number, wired to internal/journal.
type RecoveryLocker interface {
	AcquireBlockReference(seq uint64)
	ReleaseBlockReference(seq uint64)
}

// PageCache is a fixed-capacity set of page slots with an LRU over
// resident ∪ dirty pages and a PBN→slot index. The slot index is
// backed by hashicorp/golang-lru (domain-stack wiring): lru.Cache
// already gives bounded eviction order; an OnEvict-shaped guard
// (implemented here as a manual check before eviction, since
// golang-lru's stock eviction has no veto hook) refuses to evict
// busy/in-flight/dirty-without-save-scheduled pages, re-inserting them
// instead of accepting the eviction — the same "wrap a generic cache
// with a domain veto" idiom used when wrapping a plain slice with
// completion tracking.
type PageCache struct {
	mu       sync.Mutex
	capacity int
	index    *lru.Cache // PBN -> *Page, used only to track recency order
	pages    map[block.PBN]*Page

	storage Storage
	locker  RecoveryLocker

	readHook  ReadHook
	writeHook WriteHook

	rebuilding bool

	freeWaiters []chan struct{}

	rejectedEvictions int // count of vetoed evictions, surfaced for diagnostics
}

func NewPageCache(capacity int, storage Storage, locker RecoveryLocker, readHook ReadHook, writeHook WriteHook) (*PageCache, error) {
	pc := &PageCache{
		capacity:  capacity,
		pages:     map[block.PBN]*Page{},
		storage:   storage,
		locker:    locker,
		readHook:  readHook,
		writeHook: writeHook,
	}
	idx, err := lru.NewWithEvict(capacity, pc.onEvict)
	if err != nil {
		return nil, fmt.Errorf("blockmap: creating page cache index: %w", err)
	}
	pc.index = idx
	return pc, nil
}

// onEvict is golang-lru's eviction callback. It cannot veto the
// eviction from the index itself (the stock API always removes the
// key), so PageCache instead re-inserts a still-busy/dirty page right
// back in, which keeps it at the front of recency order and prevents
// it from actually being reclaimed from pc.pages.
func (pc *PageCache) onEvict(key interface{}, value interface{}) {
	pbn := key.(block.PBN)
	p, ok := pc.pages[pbn]
	if !ok {
		return
	}
	if p.busy || p.state == PageDirty {
		pc.rejectedEvictions++
		pc.index.Add(pbn, p)
		return
	}
	delete(pc.pages, pbn)
	p.state = PageFree
}

// GetPage implements get_page: on hit, marks the page busy and
// returns it; on miss, reads it from storage (victim selection is
// delegated to the LRU index via onEvict's veto).
func (pc *PageCache) GetPage(pbn block.PBN, writable bool) (*Page, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if p, ok := pc.pages[pbn]; ok {
		p.busy = true
		pc.index.Get(pbn) // bump recency
		return p, nil
	}

	body, err := pc.storage.ReadPage(pbn)
	if err != nil {
		return nil, fmt.Errorf("blockmap: reading page %d: %w", pbn, err)
	}
	valid := true
	if pc.readHook != nil {
		valid, body = pc.readHook(pbn, body, pc.rebuilding)
	}
	state := PageResident
	if !valid {
		state = PageFailed
	}
	p := &Page{pbn: pbn, state: state, busy: true, body: body}
	pc.pages[pbn] = p
	pc.index.Add(pbn, p)
	return p, nil
}

// MarkDirty marks a page dirty and updates its held recovery lock.
// The cache itself only flips the page's state and stamps the new
// era; placing the page in a dirty-era bucket is the caller's job
// (BlockMap.UpdateMapping calls DirtyList.Add), and that bucket
// bookkeeping lives in DirtyList to keep
// era-wide operations (advance) in one place.
func (pc *PageCache) MarkDirty(pbn block.PBN, newEra uint64, journalSeq uint64) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	p, ok := pc.pages[pbn]
	if !ok {
		return fmt.Errorf("blockmap: mark dirty on absent page %d", pbn)
	}
	wasDirty := p.state == PageDirty
	p.state = PageDirty
	p.dirtyEra = newEra
	if !wasDirty {
		p.recoveryLock = journalSeq
		if pc.locker != nil {
			pc.locker.AcquireBlockReference(journalSeq)
		}
	} else if journalSeq > p.recoveryLock {
		// a newer journal block takes precedence over the currently
		// held lock.
		if pc.locker != nil {
			pc.locker.ReleaseBlockReference(p.recoveryLock)
			pc.locker.AcquireBlockReference(journalSeq)
		}
		p.recoveryLock = journalSeq
	}
	return nil
}

// RequestWrite schedules pbn's page to be saved. Saving here is
// synchronous: the caller is expected to invoke it from the page's
// owning zone goroutine, so "as soon as it's idle" reduces to "not
// busy right now."
func (pc *PageCache) RequestWrite(pbn block.PBN) error {
	pc.mu.Lock()
	p, ok := pc.pages[pbn]
	if !ok {
		pc.mu.Unlock()
		return fmt.Errorf("blockmap: write request for absent page %d", pbn)
	}
	if p.busy {
		pc.mu.Unlock()
		return fmt.Errorf("blockmap: page %d is busy, cannot write yet", pbn)
	}
	p.state = PageOutgoing
	p.generation++
	body := p.body
	if pc.writeHook != nil {
		body = pc.writeHook(pbn, body)
	}
	pc.mu.Unlock()

	if err := pc.storage.WritePage(pbn, body); err != nil {
		pc.mu.Lock()
		p.state = PageFailed
		pc.mu.Unlock()
		return fmt.Errorf("blockmap: writing page %d: %w", pbn, err)
	}

	pc.mu.Lock()
	p.state = PageResident
	p.body = body
	lock := p.recoveryLock
	pc.mu.Unlock()

	if pc.locker != nil {
		pc.locker.ReleaseBlockReference(lock)
	}
	return nil
}

func (pc *PageCache) Release(pbn block.PBN) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if p, ok := pc.pages[pbn]; ok {
		p.busy = false
	}
}

func (pc *PageCache) SetRebuilding(v bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.rebuilding = v
}

func (pc *PageCache) RejectedEvictions() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.rejectedEvictions
}

// Drain flushes all dirty pages (suspend) or none (save without
// draining dirty).
func (pc *PageCache) Drain(flushDirty bool) error {
	pc.mu.Lock()
	var dirty []block.PBN
	if flushDirty {
		for pbn, p := range pc.pages {
			if p.state == PageDirty {
				dirty = append(dirty, pbn)
			}
		}
	}
	pc.mu.Unlock()

	for _, pbn := range dirty {
		if err := pc.RequestWrite(pbn); err != nil {
			return err
		}
	}
	return nil
}
