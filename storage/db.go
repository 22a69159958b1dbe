package storage

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// KV is a single key/value pair written by PutBatch.
type KV struct {
	Key   []byte
	Value []byte
}

// Database is the ordered key-value store behind the audit journal.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	// PutBatch writes every pair or none of them.
	PutBatch(pairs []KV) error
	// Iterate visits keys under prefix that sort at or after start, in
	// ascending byte order, until fn returns false. A nil start begins at
	// the first key under prefix. fn must not retain key or value.
	Iterate(prefix, start []byte, fn func(key, value []byte) bool) error
	Close()
}

// MemDB keeps everything in a map. It is used by tests and by governd when no
// data directory is configured.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	return db.PutBatch([]KV{{Key: key, Value: value}})
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) PutBatch(pairs []KV) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, kv := range pairs {
		db.data[string(kv.Key)] = append([]byte(nil), kv.Value...)
	}
	return nil
}

func (db *MemDB) Iterate(prefix, start []byte, fn func(key, value []byte) bool) error {
	db.mu.RLock()
	keys := make([]string, 0, len(db.data))
	for key := range db.data {
		if bytes.HasPrefix([]byte(key), prefix) && (start == nil || key >= string(start)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	snapshot := make([]KV, 0, len(keys))
	for _, key := range keys {
		snapshot = append(snapshot, KV{Key: []byte(key), Value: db.data[key]})
	}
	db.mu.RUnlock()

	for _, kv := range snapshot {
		if !fn(kv.Key, kv.Value) {
			break
		}
	}
	return nil
}

func (db *MemDB) Close() {}

// LevelDB is the persistent Database.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, &opt.WriteOptions{Sync: true})
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// PutBatch applies the pairs in a single synced LevelDB batch.
func (ldb *LevelDB) PutBatch(pairs []KV) error {
	batch := new(leveldb.Batch)
	for _, kv := range pairs {
		batch.Put(kv.Key, kv.Value)
	}
	return ldb.db.Write(batch, &opt.WriteOptions{Sync: true})
}

func (ldb *LevelDB) Iterate(prefix, start []byte, fn func(key, value []byte) bool) error {
	iter := ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	ok := iter.First()
	if start != nil {
		ok = iter.Seek(start)
	}
	for ; ok; ok = iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

func (ldb *LevelDB) Close() {
	_ = ldb.db.Close()
}
