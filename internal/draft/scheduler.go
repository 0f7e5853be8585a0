package draft

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/debounce"
	"github.com/foxseedlab/sessiondesk/internal/event"
)

const (
	DefaultDelay  = time.Second
	DefaultMaxAge = 24 * time.Hour
	writeTimeout  = 5 * time.Second
)

type Options struct {
	DeskID    string
	Key       string
	Store     Store
	Events    event.Sink
	Delay     time.Duration
	MaxAge    time.Duration
	Now       func() time.Time
	AfterFunc debounce.AfterFunc
}

// Scheduler persists the latest tracked field values once edits have been
// quiet for the debounce delay. A failed write keeps the values in memory;
// the next edit schedules another attempt.
type Scheduler struct {
	deskID string
	key    string
	store  Store
	events event.Sink
	maxAge time.Duration
	now    func() time.Time
	task   *debounce.Task

	// ioMu orders store writes against Submit's clear.
	ioMu sync.Mutex

	mu        sync.Mutex
	fields    map[string]any
	version   uint64
	saved     uint64
	lastSaved time.Time
	dismissed bool
}

func NewScheduler(opts Options) *Scheduler {
	s := &Scheduler{
		deskID: opts.DeskID,
		key:    opts.Key,
		store:  opts.Store,
		events: opts.Events,
		maxAge: opts.MaxAge,
		now:    opts.Now,
		fields: make(map[string]any),
	}
	if s.events == nil {
		s.events = event.Discard
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxAge == 0 {
		s.maxAge = DefaultMaxAge
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	s.task = debounce.NewWithAfterFunc(delay, s.flush, opts.AfterFunc)
	return s
}

func (s *Scheduler) Key() string {
	return s.key
}

// Touch merges changed field values and restarts the debounce.
func (s *Scheduler) Touch(fields map[string]any) {
	s.mu.Lock()
	maps.Copy(s.fields, fields)
	s.version++
	s.mu.Unlock()
	s.task.Trigger()
}

// Flush writes pending changes now instead of waiting for the debounce.
func (s *Scheduler) Flush() {
	s.task.Flush()
}

// Cancel drops a pending write. Values stay in memory.
func (s *Scheduler) Cancel() {
	s.task.Cancel()
}

func (s *Scheduler) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

func (s *Scheduler) flush() {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	if s.version == s.saved {
		s.mu.Unlock()
		return
	}
	version := s.version
	snap := Snapshot{Key: s.key, Fields: maps.Clone(s.fields), SavedAt: s.now()}
	s.mu.Unlock()

	s.events.Emit(event.NewAutoSave(s.deskID, snap.SavedAt, s.key, event.AutoSaveSaving))
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.store.WriteDraft(ctx, s.key, snap); err != nil {
		slog.Warn("failed to write draft", "error", err, "desk_id", s.deskID, "draft_key", s.key)
		s.events.Emit(event.NewAutoSave(s.deskID, s.now(), s.key, event.AutoSaveFailed))
		return
	}

	s.mu.Lock()
	if version > s.saved {
		s.saved = version
	}
	s.lastSaved = snap.SavedAt
	s.dismissed = false
	s.mu.Unlock()
	slog.Debug("draft saved", "desk_id", s.deskID, "draft_key", s.key)
	s.events.Emit(event.NewAutoSave(s.deskID, snap.SavedAt, s.key, event.AutoSaveSaved))
}

// Pending returns the stored draft unless it was dismissed or has expired.
// Expired drafts are removed.
func (s *Scheduler) Pending(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	dismissed := s.dismissed
	s.mu.Unlock()
	if dismissed {
		return nil, nil
	}
	snap, err := s.store.ReadDraft(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read draft %s: %w", s.key, err)
	}
	if snap == nil {
		return nil, nil
	}
	if s.maxAge > 0 && s.now().Sub(snap.SavedAt) > s.maxAge {
		slog.Info("discarding expired draft", "desk_id", s.deskID, "draft_key", s.key, "saved_at", snap.SavedAt)
		if err := s.store.ClearDraft(ctx, s.key); err != nil {
			slog.Warn("failed to clear expired draft", "error", err, "draft_key", s.key)
		}
		return nil, nil
	}
	return snap, nil
}

// Restore returns the pending draft verbatim for the caller to merge into
// its form. Restored values become the base for later edits.
func (s *Scheduler) Restore(ctx context.Context) (*Snapshot, error) {
	snap, err := s.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrNoDraft
	}
	s.mu.Lock()
	s.fields = maps.Clone(snap.Fields)
	if s.fields == nil {
		s.fields = make(map[string]any)
	}
	s.dismissed = true
	s.mu.Unlock()
	return snap, nil
}

// Dismiss hides the stored draft from Pending until the next save.
func (s *Scheduler) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed = true
}

// Submit clears the stored draft after the underlying form was submitted.
// A write already in flight finishes first and is then cleared with the rest.
func (s *Scheduler) Submit(ctx context.Context) error {
	s.task.Cancel()
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if err := s.store.ClearDraft(ctx, s.key); err != nil {
		return fmt.Errorf("clear draft %s: %w", s.key, err)
	}
	s.mu.Lock()
	s.fields = make(map[string]any)
	s.saved = s.version
	s.lastSaved = time.Time{}
	s.dismissed = false
	s.mu.Unlock()
	return nil
}
