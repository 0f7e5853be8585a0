package draftstore

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/foxseedlab/sessiondesk/internal/draft"
	"github.com/foxseedlab/sessiondesk/internal/session"
)

func openTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true, TTL: ttl})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return s
}

func TestDraft_WriteReadClear(t *testing.T) {
	s := openTestStore(t, time.Hour)
	ctx := context.Background()
	saved := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)

	err := s.WriteDraft(ctx, "room-1:notes", draft.Snapshot{
		Key:     "room-1:notes",
		Fields:  map[string]any{"notes": "follow up in two weeks"},
		SavedAt: saved,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := s.ReadDraft(ctx, "room-1:notes")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil || got.Fields["notes"] != "follow up in two weeks" || !got.SavedAt.Equal(saved) {
		t.Fatalf("unexpected draft: %+v", got)
	}

	if err := s.ClearDraft(ctx, "room-1:notes"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = s.ReadDraft(ctx, "room-1:notes")
	if err != nil || got != nil {
		t.Fatalf("expected cleared draft, got %+v, %v", got, err)
	}
}

func TestDraft_ReadMissing(t *testing.T) {
	s := openTestStore(t, 0)
	got, err := s.ReadDraft(context.Background(), "nothing")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing draft, got %+v, %v", got, err)
	}
}

func TestDraft_WrittenWithTTL(t *testing.T) {
	s := openTestStore(t, time.Hour)
	if err := s.WriteDraft(context.Background(), "k", draft.Snapshot{Key: "k"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(draftKeyPrefix + "k"))
		if err != nil {
			return err
		}
		if item.ExpiresAt() == 0 {
			t.Fatal("expected entry to carry an expiry")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSessionState_RoundTrip(t *testing.T) {
	s := openTestStore(t, time.Hour)
	ctx := context.Background()
	started := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	err := s.SaveSessionState(ctx, "room-1", session.Snapshot{
		DeskID:         "room-1",
		SessionID:      "s-1",
		State:          session.StateRunning,
		StartedAt:      &started,
		ElapsedSeconds: 125,
		PatientRef:     "p-1",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadSessionState(ctx, "room-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.State != session.StateRunning || got.ElapsedSeconds != 125 || !got.StartedAt.Equal(started) {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	if err := s.ClearSessionState(ctx, "room-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := s.LoadSessionState(ctx, "room-1"); got != nil {
		t.Fatalf("expected cleared snapshot, got %+v", got)
	}
}

func TestDraftAndSessionKeysDoNotCollide(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	if err := s.WriteDraft(ctx, "room-1", draft.Snapshot{Key: "room-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, err := s.LoadSessionState(ctx, "room-1"); err != nil || got != nil {
		t.Fatalf("expected no session state, got %+v, %v", got, err)
	}
}

func TestCanceledContext(t *testing.T) {
	s := openTestStore(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.WriteDraft(ctx, "k", draft.Snapshot{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestOpen_RejectsBadSchedule(t *testing.T) {
	_, err := Open(Config{Path: t.TempDir(), GCSchedule: "whenever"})
	if err == nil {
		t.Fatal("expected error for invalid GC schedule")
	}
}

func TestOpen_PersistentWithSchedule(t *testing.T) {
	s, err := Open(Config{Path: t.TempDir(), GCSchedule: "@every 1h", TTL: time.Hour})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.runGC()
	if err := s.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
