package desk

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/audio"
	"github.com/foxseedlab/sessiondesk/internal/config"
	"github.com/foxseedlab/sessiondesk/internal/debounce"
	"github.com/foxseedlab/sessiondesk/internal/draft"
	"github.com/foxseedlab/sessiondesk/internal/event"
	"github.com/foxseedlab/sessiondesk/internal/feedback"
	"github.com/foxseedlab/sessiondesk/internal/repository"
	"github.com/foxseedlab/sessiondesk/internal/session"
	"github.com/foxseedlab/sessiondesk/internal/transcriber"
	"github.com/foxseedlab/sessiondesk/internal/voice"
)

const deskInitTimeout = 5 * time.Second

type Deps struct {
	Records     repository.RecordStore
	States      session.StateStore
	Drafts      draft.Store
	Bus         *event.Bus
	FinishHooks []session.FinishHook
	Transcriber transcriber.Transcriber
	NewDecoder  audio.DecoderFactory
	Grammar     *voice.Grammar

	NewTicker session.TickerFactory
	AfterFunc debounce.AfterFunc
	Now       func() time.Time
}

// Manager owns one desk per workstation id. Desks are created on first use
// and live until Shutdown.
type Manager struct {
	cfg        *config.Config
	deps       Deps
	thresholds []session.Threshold

	mu      sync.Mutex
	desks   map[string]*Desk
	grammar *voice.Grammar
	closed  bool
}

func NewManager(cfg *config.Config, deps Deps) *Manager {
	grammar := deps.Grammar
	if grammar == nil {
		grammar = voice.DefaultGrammar()
	}
	if deps.Bus == nil {
		deps.Bus = event.NewBus()
	}
	return &Manager{
		cfg:        cfg,
		deps:       deps,
		thresholds: thresholdsFromConfig(cfg.AlertThresholds),
		desks:      make(map[string]*Desk),
		grammar:    grammar,
	}
}

func (m *Manager) Bus() *event.Bus {
	return m.deps.Bus
}

// Get returns the desk for deskID, creating and restoring it if needed.
// The restore runs outside the manager lock; concurrent callers for the same
// desk wait for it, other desks are not held up.
func (m *Manager) Get(ctx context.Context, deskID string) (*Desk, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, session.ErrClosed
	}
	if d, ok := m.desks[deskID]; ok {
		m.mu.Unlock()
		select {
		case <-d.ready:
			return d, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d, err := m.newDesk(deskID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.desks[deskID] = d
	count := len(m.desks)
	m.mu.Unlock()

	initCtx, cancel := context.WithTimeout(ctx, deskInitTimeout)
	defer cancel()
	if err := d.Controller.Init(initCtx); err != nil {
		// restore is best effort; the desk still starts idle
		slog.Warn("failed to restore desk session", "error", err, "desk_id", deskID)
	}
	close(d.ready)
	slog.Info("desk created", "desk_id", deskID, "desks", count)
	return d, nil
}

// Lookup returns an existing, restored desk without creating it.
func (m *Manager) Lookup(deskID string) (*Desk, bool) {
	m.mu.Lock()
	d, ok := m.desks[deskID]
	m.mu.Unlock()
	if !ok || !d.isReady() {
		return nil, false
	}
	return d, true
}

func (m *Manager) DeskIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.desks))
	for id, d := range m.desks {
		if d.isReady() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) newDesk(deskID string) (*Desk, error) {
	bus := m.deps.Bus
	hostFeedback := feedback.NewHostSink(deskID, bus)
	d := &Desk{
		ID:       deskID,
		Feedback: hostFeedback,
		forms:    make(map[string]*draft.Scheduler),
		ready:    make(chan struct{}),
	}
	newScheduler := func(key string) *draft.Scheduler {
		return draft.NewScheduler(draft.Options{
			DeskID:    deskID,
			Key:       key,
			Store:     m.deps.Drafts,
			Events:    bus,
			Delay:     m.cfg.AutoSaveDelay,
			MaxAge:    m.cfg.DraftMaxAge,
			Now:       m.deps.Now,
			AfterFunc: m.deps.AfterFunc,
		})
	}
	d.notes = newScheduler(draftKey(deskID, NotesDraftName))
	d.newForm = func(name string) *draft.Scheduler {
		return newScheduler(draftKey(deskID, "form:"+name))
	}

	d.Controller = session.NewController(session.Options{
		DeskID:      deskID,
		Thresholds:  m.thresholds,
		Records:     m.deps.Records,
		States:      m.deps.States,
		NotesDraft:  d.notes,
		FinishHooks: m.deps.FinishHooks,
		Events:      bus,
		Feedback:    hostFeedback,
		NewTicker:   m.deps.NewTicker,
		Now:         m.deps.Now,
	})

	d.host = voice.NewHostSource(func() bool { return hostFeedback.Capabilities().Speech })
	var source voice.Source = d.host
	if m.cfg.SpeechMode == config.SpeechModeServer && m.deps.Transcriber != nil {
		d.stream = voice.NewStreamSource(voice.StreamSourceOptions{
			StreamID:    deskID,
			Language:    m.cfg.VoiceLanguage,
			Transcriber: m.deps.Transcriber,
			NewDecoder:  m.deps.NewDecoder,
			Phrases:     func() []string { return d.Voice.Registry().Patterns() },
		})
		source = d.stream
	}

	rules, err := d.compileVoice(m.grammar)
	if err != nil {
		return nil, fmt.Errorf("compile voice grammar for desk %s: %w", deskID, err)
	}
	wakeWord := m.cfg.VoiceWakeWord
	if wakeWord == "" {
		wakeWord = m.grammar.WakeWord
	}
	d.Voice = voice.NewDispatcher(voice.Options{
		DeskID:      deskID,
		Registry:    voice.NewRegistry(rules),
		Source:      source,
		Events:      bus,
		Feedback:    hostFeedback,
		WakeWord:    wakeWord,
		AwakeWindow: m.cfg.VoiceAwakeWindow,
		Now:         m.deps.Now,
		AfterFunc:   m.deps.AfterFunc,
	})
	return d, nil
}

// ReloadGrammar swaps the voice rules of every desk. Nothing changes if the
// grammar does not compile for all of them.
func (m *Manager) ReloadGrammar(g *voice.Grammar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	compiled := make(map[string][]voice.Rule, len(m.desks))
	for id, d := range m.desks {
		rules, err := d.compileVoice(g)
		if err != nil {
			return fmt.Errorf("compile voice grammar for desk %s: %w", id, err)
		}
		compiled[id] = rules
	}
	for id, rules := range compiled {
		m.desks[id].Voice.Registry().Replace(rules)
	}
	m.grammar = g
	slog.Info("voice grammar reloaded", "commands", len(g.Commands), "desks", len(compiled))
	return nil
}

// Shutdown tears down every desk. Later Get calls fail with session.ErrClosed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	desks := make([]*Desk, 0, len(m.desks))
	for _, d := range m.desks {
		desks = append(desks, d)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, d := range desks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.teardown()
		}()
	}
	wg.Wait()
	slog.Info("all desks torn down", "desks", len(desks))
}

func draftKey(deskID, name string) string {
	return deskID + ":" + name
}

func thresholdsFromConfig(raw map[string]time.Duration) []session.Threshold {
	if len(raw) == 0 {
		return nil
	}
	out := make([]session.Threshold, 0, len(raw))
	for id, d := range raw {
		out = append(out, session.Threshold{ID: id, Trigger: d})
	}
	slices.SortFunc(out, func(a, b session.Threshold) int {
		if c := cmp.Compare(a.Trigger, b.Trigger); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
