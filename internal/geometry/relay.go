package geometry

import "sync"

// RelayStore layers a fast primary KeyValueStore in front of a
// durable secondary one: reads check primary first and fall back to
// secondary on a miss (populating primary so the next read is fast);
// writes go to both. Adapted from ethdb/relaydb's read-through cache
// shape (primary/secondary plus hit/miss accounting) — unlike that
// reference, every method here is a real implementation: a
// profiling-only relay in front of chain data can get away with
// Put/Delete/Has stubs that panic, but a super block store must
// actually persist writes.
type RelayStore struct {
	mu        sync.Mutex
	primary   KeyValueStore
	secondary KeyValueStore
	hits      int
	misses    int
}

func NewRelayStore(primary, secondary KeyValueStore) *RelayStore {
	return &RelayStore{primary: primary, secondary: secondary}
}

func (r *RelayStore) Get(key []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, err := r.primary.Get(key); err == nil {
		r.hits++
		return v, nil
	}
	r.misses++
	v, err := r.secondary.Get(key)
	if err != nil {
		return nil, err
	}
	_ = r.primary.Put(key, v)
	return v, nil
}

func (r *RelayStore) Put(key, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.secondary.Put(key, value); err != nil {
		return err
	}
	return r.primary.Put(key, value)
}

func (r *RelayStore) Delete(key []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.secondary.Delete(key); err != nil {
		return err
	}
	return r.primary.Delete(key)
}

func (r *RelayStore) Has(key []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok, err := r.primary.Has(key); err == nil && ok {
		return true, nil
	}
	return r.secondary.Has(key)
}

func (r *RelayStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.primary.Close(); err != nil {
		return err
	}
	return r.secondary.Close()
}

// Efficiency reports cumulative primary-store hits and misses, for
// diagnostics.
func (r *RelayStore) Efficiency() (hits, misses int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits, r.misses
}
