package grammar

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/debounce"
	"github.com/foxseedlab/sessiondesk/internal/voice"
	"github.com/fsnotify/fsnotify"
)

const defaultReloadDelay = 250 * time.Millisecond

// Reloader accepts a freshly parsed grammar. It must leave the active rules
// untouched when it returns an error.
type Reloader interface {
	ReloadGrammar(g *voice.Grammar) error
}

// Watcher reloads the voice grammar whenever its file changes on disk.
// Editors often save through a rename, so the parent directory is watched
// instead of the file itself.
type Watcher struct {
	path     string
	reloader Reloader
	delay    time.Duration
}

func NewWatcher(path string, reloader Reloader) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		reloader: reloader,
		delay:    defaultReloadDelay,
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create grammar watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch grammar directory %s: %w", dir, err)
	}
	task := debounce.New(w.delay, w.reload)
	defer task.Cancel()
	slog.Info("watching voice grammar", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				task.Trigger()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("grammar watcher error", "error", err, "path", w.path)
		}
	}
}

func (w *Watcher) reload() {
	g, err := voice.LoadGrammar(w.path)
	if err != nil {
		slog.Error("voice grammar rejected, keeping previous rules", "error", err, "path", w.path)
		return
	}
	if err := w.reloader.ReloadGrammar(g); err != nil {
		slog.Error("voice grammar reload failed, keeping previous rules", "error", err, "path", w.path)
	}
}
