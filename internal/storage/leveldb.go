// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package storage

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/equa-labs/poai-node/internal/poaierr"
)

// LevelDBStore persists the document-store half of a node's state on
// local disk, grounded on tolelom-tolchain's storage.LevelDB: a thin
// wrapper translating leveldb.ErrNotFound to the package sentinel and
// exposing prefix iteration via util.BytesPrefix.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, poaierr.Wrap(poaierr.ErrStorageError, "open leveldb %q: %v", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(key string) ([]byte, error) {
	val, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, poaierr.Wrap(poaierr.ErrStorageError, "get %q: %v", key, err)
	}
	return val, nil
}

func (s *LevelDBStore) Put(key string, value []byte) error {
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return poaierr.Wrap(poaierr.ErrStorageError, "put %q: %v", key, err)
	}
	return nil
}

func (s *LevelDBStore) Delete(key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return poaierr.Wrap(poaierr.ErrStorageError, "delete %q: %v", key, err)
	}
	return nil
}

func (s *LevelDBStore) Iterate(prefix string, fn func(key string, value []byte) bool) error {
	it := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	for it.Next() {
		key := string(it.Key())
		value := make([]byte, len(it.Value()))
		copy(value, it.Value())
		if !fn(key, value) {
			break
		}
	}
	if err := it.Error(); err != nil {
		return poaierr.Wrap(poaierr.ErrStorageError, "iterate %q: %v", prefix, err)
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
