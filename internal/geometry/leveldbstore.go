package geometry

import (
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore is the durable KeyValueStore backing the super block's
// component-state blobs, wired to goleveldb the way the pack's own
// ethdb layer wraps it for chain data — here applied to VDO's own
// small set of named metadata blobs instead of account/storage trie
// nodes.
type LevelDBStore struct {
	db *leveldb.DB
}

func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *LevelDBStore) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *LevelDBStore) Delete(key []byte) error {
	err := s.db.Delete(key, nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	return err
}

func (s *LevelDBStore) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
