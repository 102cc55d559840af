package kv

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBBackend adapts github.com/syndtr/goleveldb/leveldb (the same
// backing store family used elsewhere across the example corpus) to the
// Backend interface. It is the default production backend for `alkanesd
// index`.
type LevelDBBackend struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a leveldb database at path.
func OpenLevelDB(path string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBBackend{db: db}, nil
}

func (l *LevelDBBackend) Get(key []byte) ([]byte, bool, error) {
	v, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (l *LevelDBBackend) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDBBackend) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDBBackend) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		if !fn(k, v) {
			break
		}
	}
	return iter.Error()
}

func (l *LevelDBBackend) Close() error { return l.db.Close() }
