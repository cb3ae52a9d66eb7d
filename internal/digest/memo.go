package digest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

const memoPrefix = "digest:"

// memoEntry is what the memo remembers about one file.
type memoEntry struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Sum     Sum       `json:"sum"`
}

// Memo caches per-file digests in badger, fronted by an in-process LRU.
// An entry is trusted only while the file's size and mtime are unchanged.
type Memo struct {
	db    *badger.DB
	cache *lru.Cache[string, memoEntry]
}

// NewMemo creates a memo over db holding up to cacheSize entries in memory.
func NewMemo(db *badger.DB, cacheSize int) (*Memo, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, memoEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &Memo{db: db, cache: cache}, nil
}

// FileSum returns the memoized digest for name, calling compute on a miss.
func (m *Memo) FileSum(fs afero.Fs, name string, compute func(string) (Sum, error)) (Sum, error) {
	info, err := fs.Stat(name)
	if err != nil {
		return Sum{}, fmt.Errorf("stat %s: %w", name, err)
	}

	if entry, ok := m.lookup(name); ok && entry.Size == info.Size() && entry.ModTime.Equal(info.ModTime()) {
		return entry.Sum, nil
	}

	sum, err := compute(name)
	if err != nil {
		return Sum{}, err
	}

	entry := memoEntry{Size: info.Size(), ModTime: info.ModTime(), Sum: sum}
	if err := m.store(name, entry); err != nil {
		return Sum{}, err
	}
	return sum, nil
}

// Forget drops any memoized digest for name.
func (m *Memo) Forget(name string) error {
	m.cache.Remove(name)
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(memoPrefix + name))
	})
}

func (m *Memo) lookup(name string) (memoEntry, bool) {
	if entry, ok := m.cache.Get(name); ok {
		return entry, true
	}

	var entry memoEntry
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(memoPrefix + name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return memoEntry{}, false
	}
	m.cache.Add(name, entry)
	return entry, true
}

func (m *Memo) store(name string, entry memoEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling digest entry: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(memoPrefix+name), data)
	})
	if err != nil && !errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("storing digest entry: %w", err)
	}
	m.cache.Add(name, entry)
	return nil
}
