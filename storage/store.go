package storage

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// MemStore is a plain in-memory word store, handy for accessor unit tests
// and as the working set of a simulated host.
type MemStore map[common.Hash]common.Hash

func NewMemStore() MemStore { return make(MemStore) }

func (m MemStore) GetState(k common.Hash) common.Hash { return m[k] }

func (m MemStore) SetState(k, v common.Hash) error {
	if v == (common.Hash{}) {
		delete(m, k)
		return nil
	}
	m[k] = v
	return nil
}

// Copy returns a deep copy, used by snapshotting hosts.
func (m MemStore) Copy() MemStore {
	out := make(MemStore, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Backend is the raw key/value persistence layer committed state lands in.
// Keys are opaque byte strings; callers build them from contract address
// plus slot so external tools can recompute every address.
type Backend interface {
	// Get returns (nil, false, nil) for an absent key.
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// Keys returns all stored keys under prefix in sorted order.
	Keys(prefix []byte) ([][]byte, error)
	Close() error
}

// MemBackend is a map-backed Backend for tests and throwaway harnesses.
// Thread-safe so parallel harness instances can share one in a pinch.
type MemBackend struct {
	mu sync.RWMutex
	kv map[string][]byte
}

func NewMemBackend() *MemBackend {
	return &MemBackend{kv: make(map[string][]byte)}
}

func (b *MemBackend) Get(key []byte) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.kv[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (b *MemBackend) Put(key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	b.kv[string(key)] = v
	return nil
}

func (b *MemBackend) Delete(key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.kv, string(key))
	return nil
}

func (b *MemBackend) Keys(prefix []byte) ([][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out [][]byte
	for k := range b.kv {
		if strings.HasPrefix(k, string(prefix)) {
			out = append(out, []byte(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out, nil
}

func (b *MemBackend) Close() error { return nil }

// LevelBackend wraps LevelDB for durable slot storage. LevelDB handles its
// own synchronization.
type LevelBackend struct {
	db *leveldb.DB
}

// OpenLevelBackend opens or creates a LevelDB database at path. An empty
// path opens an in-memory database, which is what tests want.
func OpenLevelBackend(path string) (*LevelBackend, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open slot store at %q: %w", path, err)
	}
	return &LevelBackend{db: db}, nil
}

func (b *LevelBackend) Get(key []byte) ([]byte, bool, error) {
	v, err := b.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %x: %w", key, err)
	}
	return v, true, nil
}

func (b *LevelBackend) Put(key, value []byte) error {
	return b.db.Put(key, value, nil)
}

func (b *LevelBackend) Delete(key []byte) error {
	return b.db.Delete(key, nil)
}

func (b *LevelBackend) Close() error { return b.db.Close() }

// Keys returns all keys under prefix in sorted order. Used when loading a
// contract's persisted slots back into a harness.
func (b *LevelBackend) Keys(prefix []byte) ([][]byte, error) {
	iter := b.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var out [][]byte
	for iter.Next() {
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		out = append(out, k)
	}
	return out, iter.Error()
}
