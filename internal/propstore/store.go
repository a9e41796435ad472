package propstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
)

// Key prefixes for the stored data.
const (
	prefixProp = "p:"
	keyInfo    = "m:info"
)

// Entry is one stored property value.
type Entry struct {
	Block    string `json:"block"`
	ID       string `json:"id"`
	Instance int    `json:"instance"`
	Value    any    `json:"value"`
}

func (e Entry) key() []byte {
	return []byte(prefixProp + e.Block + "|" + e.ID + "|" + strconv.Itoa(e.Instance))
}

// Info describes the last save.
type Info struct {
	SavedAt time.Time `json:"saved_at"`
	Count   int       `json:"count"`
}

// Blocks is what Restore writes into. The builder's graph implements it.
type Blocks interface {
	Block(id string) (graph.Block, bool)
}

// Store is a Badger-backed property store.
type Store struct {
	mu sync.RWMutex
	db *badger.DB
}

// Open opens or creates the store at path. An empty path opens an in-memory
// store that is lost on Close.
func Open(ctx context.Context, path string) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{ctxlog.FromContext(ctx).With("component", "propstore")}).
		WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening property store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Save replaces the stored values with the USER values of snapshot.
func (s *Store) Save(ctx context.Context, snapshot map[string][]node.PropertyValue) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return Info{}, errors.New("property store is closed")
	}

	logger := ctxlog.FromContext(ctx)
	stale, err := s.keysLocked()
	if err != nil {
		return Info{}, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	info := Info{SavedAt: time.Now().UTC()}
	for block, values := range snapshot {
		for _, v := range values {
			if v.Source.Type != property.User || v.Value == nil {
				continue
			}
			e := Entry{Block: block, ID: v.ID, Instance: v.Source.Instance, Value: v.Value}
			data, err := json.Marshal(e)
			if err != nil {
				// Non-finite readings such as an RSSI of -Inf have no JSON form.
				logger.Debug("Skipping property without a stored form.", "block", block, "property", v.ID, "error", err)
				continue
			}
			if err := wb.Set(e.key(), data); err != nil {
				return Info{}, fmt.Errorf("storing %s/%s: %w", block, v.ID, err)
			}
			delete(stale, string(e.key()))
			info.Count++
		}
	}
	for k := range stale {
		if err := wb.Delete([]byte(k)); err != nil {
			return Info{}, fmt.Errorf("removing %s: %w", k, err)
		}
	}

	data, err := json.Marshal(info)
	if err != nil {
		return Info{}, fmt.Errorf("marshaling store info: %w", err)
	}
	if err := wb.Set([]byte(keyInfo), data); err != nil {
		return Info{}, fmt.Errorf("storing store info: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return Info{}, fmt.Errorf("writing property store: %w", err)
	}

	logger.Info("💾 Saved property snapshot.", "properties", info.Count)
	return info, nil
}

func (s *Store) keysLocked() (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixProp)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys[string(it.Item().KeyCopy(nil))] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing stored properties: %w", err)
	}
	return keys, nil
}

// Info returns the description of the last save. ok is false when nothing
// was saved yet.
func (s *Store) Info() (info Info, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return Info{}, false, errors.New("property store is closed")
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyInfo))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	})
	return info, ok, err
}

// Entries returns the stored values ordered by block, property and instance.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("property store is closed")
	}

	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixProp)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Restore writes every stored value into the matching block. Values of
// unknown blocks are skipped. A value that cannot be written is logged and
// reported in the returned error after all others were tried.
func (s *Store) Restore(ctx context.Context, blocks Blocks) (int, error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}

	logger := ctxlog.FromContext(ctx)
	restored := 0
	var errs []error
	for _, e := range entries {
		blk, ok := blocks.Block(e.Block)
		if !ok {
			logger.Warn("Stored property refers to an unknown block, skipping.", "block", e.Block, "property", e.ID)
			continue
		}
		if err := blk.Base().SetPropertyAny(ctx, e.ID, e.Value, e.Instance); err != nil {
			logger.Warn("Cannot restore property.", "block", e.Block, "property", e.ID, "instance", e.Instance, "error", err)
			errs = append(errs, fmt.Errorf("block '%s', property '%s:%d': %w", e.Block, e.ID, e.Instance, err))
			continue
		}
		restored++
	}

	logger.Info("♻️ Restored property snapshot.", "properties", restored, "failed", len(errs))
	return restored, errors.Join(errs...)
}

// badgerLogger routes Badger's own messages into slog.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Info(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Debug(fmt.Sprintf(f, v...)) }
