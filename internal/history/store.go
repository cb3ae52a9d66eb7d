// internal/history/store.go
package history

import (
	"encoding/json"
	"fmt"
	"strings"

	"respack/internal/errors"
	"respack/internal/packer"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	runPrefix  = "run:"
	timePrefix = "run_time:"
)

// Run is one recorded PackResources call.
type Run struct {
	ID string `json:"id"`
	packer.Report
}

// Store keeps pack runs in badger.
type Store struct {
	db    *badger.DB
	codec *codec
}

func NewStore(db *badger.DB) (*Store, error) {
	c, err := newCodec(DefaultCompressionOptions())
	if err != nil {
		return nil, err
	}
	return &Store{db: db, codec: c}, nil
}

// Record saves report under a fresh ID.
func (s *Store) Record(report *packer.Report) (*Run, error) {
	run := &Run{ID: uuid.New().String(), Report: *report}
	if err := s.Save(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Save writes run and its time index entry.
func (s *Store) Save(run *Run) error {
	if run.ID == "" {
		return errors.InvalidArgument("run ID cannot be empty", nil)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	data = s.codec.compress(data)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(run.ID), data); err != nil {
			return fmt.Errorf("storing run: %w", err)
		}
		if err := txn.Set(timeKey(run), nil); err != nil {
			return fmt.Errorf("storing time index: %w", err)
		}
		return nil
	})
}

// Get loads a run by ID.
func (s *Store) Get(id string) (*Run, error) {
	var run *Run
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		run, err = s.load(txn, id)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, errors.NotFound(fmt.Sprintf("run not found: %s", id))
	}
	return run, err
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) List(limit int) ([]*Run, error) {
	var runs []*Run
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range s.idsNewestFirst(txn) {
			if limit > 0 && len(runs) >= limit {
				break
			}
			run, err := s.load(txn, id)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Prune deletes all but the newest keep runs and reports how many it removed.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for i, key := range s.timeKeysNewestFirst(txn) {
			if i < keep {
				continue
			}
			if err := txn.Delete(runKey(idFromTimeKey(key))); err != nil {
				return err
			}
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return removed, nil
}

func (s *Store) load(txn *badger.Txn, id string) (*Run, error) {
	item, err := txn.Get(runKey(id))
	if err != nil {
		return nil, err
	}
	var run Run
	err = item.Value(func(val []byte) error {
		raw, err := s.codec.decompress(val)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &run)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &run, nil
}

func (s *Store) idsNewestFirst(txn *badger.Txn) []string {
	keys := s.timeKeysNewestFirst(txn)
	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = idFromTimeKey(key)
	}
	return ids
}

func (s *Store) timeKeysNewestFirst(txn *badger.Txn) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	opts.Prefix = []byte(timePrefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys []string
	for it.Seek([]byte(timePrefix + "\xff")); it.ValidForPrefix([]byte(timePrefix)); it.Next() {
		keys = append(keys, string(it.Item().KeyCopy(nil)))
	}
	return keys
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

// timeKey sorts lexically by start time: run_time:<20-digit unix nanos>:<id>.
func timeKey(run *Run) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", timePrefix, run.StartedAt.UnixNano(), run.ID))
}

func idFromTimeKey(key string) string {
	rest := strings.TrimPrefix(key, timePrefix)
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return rest[i+1:]
	}
	return rest
}
