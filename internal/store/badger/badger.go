// Package badger implements the token key-value store on Badger v3.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/koltyakov/miniaccounts/internal/store"
)

const (
	gcInterval  = 10 * time.Minute
	gcThreshold = 0.5
	maxTxnRetry = 5
)

var _ store.KV = (*Store)(nil)

// Store is a store.KV backed by an embedded Badger database.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens (or creates) a Badger database in dir. An empty dir opens an
// in-memory database.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}
	s := &Store{
		db:     db,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.gcLoop(dir == "")
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

// PutIfAbsent checks and writes in one transaction. A concurrent writer
// touching the same key makes the commit fail with ErrConflict, in which
// case the check is repeated.
func (s *Store) PutIfAbsent(ctx context.Context, key, value string) (bool, error) {
	for attempt := 0; attempt < maxTxnRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		inserted := false
		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get([]byte(key))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			inserted = true
			return txn.Set([]byte(key), []byte(value))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		return inserted, nil
	}
	return false, badger.ErrConflict
}

func (s *Store) List(_ context.Context, prefix string) ([]store.Entry, error) {
	var out []store.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, store.Entry{Key: string(item.KeyCopy(nil)), Value: string(value)})
		}
		return nil
	})
	return out, err
}

func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	close(s.stopCh)
	<-s.doneCh
	return s.db.Close()
}

func (s *Store) gcLoop(inMemory bool) {
	defer close(s.doneCh)
	if inMemory {
		<-s.stopCh
		return
	}

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(gcThreshold)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("badger value log gc failed", "err", err)
				}
				break
			}
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
