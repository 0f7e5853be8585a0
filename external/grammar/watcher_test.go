package grammar

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/voice"
)

type chanReloader struct {
	got chan *voice.Grammar
}

func (r *chanReloader) ReloadGrammar(g *voice.Grammar) error {
	r.got <- g
	return nil
}

const grammarV1 = `commands:
  - name: start
    category: session
    action: session.start
    patterns: [start]
`

const grammarV2 = `wake_word: desk
commands:
  - name: start
    category: session
    action: session.start
    patterns: [start, begin]
  - name: end
    category: session
    action: session.end
    patterns: [stop]
`

func startWatcher(t *testing.T, path string) *chanReloader {
	t.Helper()
	reloader := &chanReloader{got: make(chan *voice.Grammar, 4)}
	w := NewWatcher(path, reloader)
	w.delay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("watcher returned error: %v", err)
		}
	})
	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	return reloader
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grammar.yaml")
	if err := os.WriteFile(path, []byte(grammarV1), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reloader := startWatcher(t, path)

	if err := os.WriteFile(path, []byte(grammarV2), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case g := <-reloader.got:
		if g.WakeWord != "desk" || len(g.Commands) != 2 {
			t.Fatalf("unexpected grammar: %+v", g)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_InvalidGrammarIsNotApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grammar.yaml")
	if err := os.WriteFile(path, []byte(grammarV1), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reloader := startWatcher(t, path)

	if err := os.WriteFile(path, []byte("commands: []\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case g := <-reloader.got:
		t.Fatalf("expected no reload, got %+v", g)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grammar.yaml")
	if err := os.WriteFile(path, []byte(grammarV1), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reloader := startWatcher(t, path)

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte(grammarV2), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case g := <-reloader.got:
		t.Fatalf("expected no reload, got %+v", g)
	case <-time.After(300 * time.Millisecond):
	}
}
