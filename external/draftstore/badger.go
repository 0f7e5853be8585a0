package draftstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/foxseedlab/sessiondesk/internal/draft"
	"github.com/foxseedlab/sessiondesk/internal/session"
	"github.com/robfig/cron/v3"
)

const (
	draftKeyPrefix   = "draft:"
	sessionKeyPrefix = "session:"
	gcDiscardRatio   = 0.5
)

type Config struct {
	Path       string
	InMemory   bool
	TTL        time.Duration
	GCSchedule string
	Logger     *slog.Logger
}

// Store keeps drafts and session snapshots in a local BadgerDB. Entries
// expire after TTL; the value log is compacted on GCSchedule.
type Store struct {
	db        *badger.DB
	ttl       time.Duration
	scheduler *cron.Cron

	closeOnce sync.Once
	closeErr  error
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent draft store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create draft store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	s := &Store{db: db, ttl: cfg.TTL}

	if cfg.GCSchedule != "" && !cfg.InMemory {
		s.scheduler = cron.New()
		if _, err := s.scheduler.AddFunc(cfg.GCSchedule, s.runGC); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("schedule value log GC: %w", err)
		}
		s.scheduler.Start()
	}
	return s, nil
}

func (s *Store) runGC() {
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if err == nil {
			slog.Debug("draft store value log GC completed")
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			slog.Warn("draft store value log GC failed", "error", err)
		}
		return
	}
}

// Shutdown stops the GC schedule and closes the database. The store is
// registered under several interfaces, so later calls are no-ops.
func (s *Store) Shutdown() error {
	s.closeOnce.Do(func() {
		if s.scheduler != nil {
			<-s.scheduler.Stop().Done()
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), b)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// get reports false when the key is missing or expired.
func (s *Store) get(ctx context.Context, key string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *Store) WriteDraft(ctx context.Context, key string, snap draft.Snapshot) error {
	return s.put(ctx, draftKeyPrefix+key, snap)
}

func (s *Store) ReadDraft(ctx context.Context, key string) (*draft.Snapshot, error) {
	var snap draft.Snapshot
	ok, err := s.get(ctx, draftKeyPrefix+key, &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) ClearDraft(ctx context.Context, key string) error {
	return s.delete(ctx, draftKeyPrefix+key)
}

func (s *Store) SaveSessionState(ctx context.Context, deskID string, snap session.Snapshot) error {
	return s.put(ctx, sessionKeyPrefix+deskID, snap)
}

func (s *Store) LoadSessionState(ctx context.Context, deskID string) (*session.Snapshot, error) {
	var snap session.Snapshot
	ok, err := s.get(ctx, sessionKeyPrefix+deskID, &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) ClearSessionState(ctx context.Context, deskID string) error {
	return s.delete(ctx, sessionKeyPrefix+deskID)
}
