package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/event"
	"github.com/foxseedlab/sessiondesk/internal/feedback"
	"github.com/foxseedlab/sessiondesk/internal/repository"
	"github.com/google/uuid"
)

const (
	persistTimeout     = 15 * time.Second
	stateSaveTimeout   = 2 * time.Second
	stateSnapshotTicks = 5
)

// StateStore keeps a best-effort local copy of a desk's session so a
// restarted controller can pick it up again.
type StateStore interface {
	SaveSessionState(ctx context.Context, deskID string, snap Snapshot) error
	LoadSessionState(ctx context.Context, deskID string) (*Snapshot, error)
	ClearSessionState(ctx context.Context, deskID string) error
}

type NotesDraft interface {
	Touch(fields map[string]any)
	Cancel()
	Submit(ctx context.Context) error
}

type FinishedSession struct {
	DeskID          string
	SessionID       string
	PatientRef      string
	AppointmentRef  string
	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds int64
	Notes           string
}

// FinishHook is told about every ended session after the record store.
type FinishHook interface {
	SessionFinished(ctx context.Context, s FinishedSession) error
}

type Snapshot struct {
	DeskID         string     `json:"desk_id"`
	SessionID      string     `json:"session_id,omitempty"`
	State          State      `json:"state"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	PatientRef     string     `json:"patient_ref,omitempty"`
	AppointmentRef string     `json:"appointment_ref,omitempty"`
	Notes          string     `json:"notes"`
	AutoPaused     bool       `json:"auto_paused"`
	SavedAt        time.Time  `json:"saved_at"`
}

type Options struct {
	DeskID      string
	Thresholds  []Threshold
	Records     repository.RecordStore
	States      StateStore
	NotesDraft  NotesDraft
	FinishHooks []FinishHook
	Events      event.Sink
	Feedback    feedback.Sink
	NewTicker   TickerFactory
	Now         func() time.Time
	NewID       func() string
}

type Controller struct {
	deskID     string
	records    repository.RecordStore
	states     StateStore
	notesDraft NotesDraft
	hooks      []FinishHook
	events     event.Sink
	feedback   feedback.Sink
	now        func() time.Time
	newID      func() string

	mu                sync.Mutex
	rec               Snapshot
	alerts            *alertEngine
	clock             clock
	idleLockSuspended bool
	unsaved           []repository.SaveSessionRecordInput
	closed            bool
	stateSeq          uint64

	stateMu      sync.Mutex
	lastStateSeq uint64

	persistWG sync.WaitGroup
}

func NewController(opts Options) *Controller {
	thresholds := opts.Thresholds
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	c := &Controller{
		deskID:     opts.DeskID,
		records:    opts.Records,
		states:     opts.States,
		notesDraft: opts.NotesDraft,
		hooks:      opts.FinishHooks,
		events:     opts.Events,
		feedback:   opts.Feedback,
		now:        opts.Now,
		newID:      opts.NewID,
		alerts:     newAlertEngine(thresholds),
		clock:      clock{newTicker: opts.NewTicker},
	}
	if c.events == nil {
		c.events = event.Discard
	}
	if c.feedback == nil {
		c.feedback = feedback.Noop
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.clock.newTicker == nil {
		c.clock.newTicker = NewRealTicker
	}
	c.rec = Snapshot{DeskID: opts.DeskID, State: StateIdle}
	return c
}

func (c *Controller) DeskID() string {
	return c.deskID
}

// Init restores the desk's last local snapshot. A session that was running
// comes back paused and flagged as auto-paused; the clock is not advanced
// for the time the controller was gone.
func (c *Controller) Init(ctx context.Context) error {
	if c.states == nil {
		return nil
	}
	snap, err := c.states.LoadSessionState(ctx, c.deskID)
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}
	if snap == nil || !snap.State.Valid() || (snap.State == StateIdle && snap.Notes == "" && snap.PatientRef == "") {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	restored := *snap
	restored.DeskID = c.deskID
	restored.SavedAt = time.Time{}
	if restored.ElapsedSeconds < 0 {
		restored.ElapsedSeconds = 0
	}
	if restored.State == StateRunning {
		restored.State = StatePaused
		restored.AutoPaused = true
	}
	c.rec = restored
	c.alerts.settle(restored.ElapsedSeconds)
	now := c.now()
	out := []event.Event{c.stateEventLocked(StateIdle, now)}
	if restored.State == StatePaused {
		c.idleLockSuspended = true
		out = append(out, event.NewIdleLock(c.deskID, now, true))
	}
	out = append(out, event.NewTick(c.deskID, now, restored.ElapsedSeconds))
	seq, state := c.captureLocked(now)
	c.mu.Unlock()

	c.persistState(seq, state)
	c.emit(out)
	slog.Info("session restored from local snapshot", "desk_id", c.deskID, "session_id", restored.SessionID, "state", restored.State, "elapsed_seconds", restored.ElapsedSeconds)
	return nil
}

// Teardown stops the clock and pending auto-save, stores a final local
// snapshot and waits for in-flight persistence.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.clock.halt()
	if c.notesDraft != nil {
		c.notesDraft.Cancel()
	}
	seq, snap := c.captureLocked(c.now())
	c.mu.Unlock()

	c.persistState(seq, snap)
	c.persistWG.Wait()
	slog.Info("session controller torn down", "desk_id", c.deskID, "state", snap.State)
}

func (c *Controller) Start() error {
	return c.transition(OpStart, func(now time.Time, _ State) []event.Event {
		c.rec.SessionID = c.newID()
		started := now
		c.rec.StartedAt = &started
		c.rec.ElapsedSeconds = 0
		c.rec.AutoPaused = false
		c.alerts.rearm()
		c.clock.start(c.onTick)
		out := []event.Event{event.NewTick(c.deskID, now, 0)}
		return append(out, c.setIdleLockLocked(now, true)...)
	})
}

func (c *Controller) Pause() error {
	return c.pause(false)
}

func (c *Controller) pause(auto bool) error {
	return c.transition(OpPause, func(_ time.Time, _ State) []event.Event {
		c.clock.halt()
		c.rec.AutoPaused = auto
		return nil
	})
}

// autoPause pauses only if the session is running when the lock is taken;
// otherwise it does nothing.
func (c *Controller) autoPause() (bool, error) {
	applied := false
	err := c.transitionIf(OpPause, func(from State) bool { return from == StateRunning }, func(_ time.Time, _ State) []event.Event {
		applied = true
		c.clock.halt()
		c.rec.AutoPaused = true
		return nil
	})
	return applied, err
}

func (c *Controller) Resume() error {
	return c.transition(OpResume, func(_ time.Time, _ State) []event.Event {
		c.rec.AutoPaused = false
		c.clock.start(c.onTick)
		return nil
	})
}

func (c *Controller) End() error {
	return c.transition(OpEnd, func(now time.Time, _ State) []event.Event {
		c.clock.halt()
		c.alerts.retire()
		c.rec.AutoPaused = false
		if c.notesDraft != nil {
			c.notesDraft.Cancel()
		}
		finished := FinishedSession{
			DeskID:          c.deskID,
			SessionID:       c.rec.SessionID,
			PatientRef:      c.rec.PatientRef,
			AppointmentRef:  c.rec.AppointmentRef,
			EndedAt:         now,
			DurationSeconds: c.rec.ElapsedSeconds,
			Notes:           c.rec.Notes,
		}
		if c.rec.StartedAt != nil {
			finished.StartedAt = *c.rec.StartedAt
		}
		c.finalizeLocked(finished)
		return c.setIdleLockLocked(now, false)
	})
}

// Reset returns to idle from any state. Notes, patient and appointment are
// kept; callers clear notes with ClearNotes.
func (c *Controller) Reset() error {
	return c.transition(OpReset, func(now time.Time, _ State) []event.Event {
		c.clock.halt()
		c.rec.SessionID = ""
		c.rec.StartedAt = nil
		c.rec.ElapsedSeconds = 0
		c.rec.AutoPaused = false
		c.alerts.rearm()
		if c.notesDraft != nil {
			c.notesDraft.Cancel()
		}
		out := []event.Event{event.NewTick(c.deskID, now, 0)}
		return append(out, c.setIdleLockLocked(now, false)...)
	})
}

// ResetDuration restarts the elapsed count of the current session, for
// example when the video call is re-opened to get a fresh time limit.
func (c *Controller) ResetDuration() error {
	return c.transition(OpResetDuration, func(now time.Time, _ State) []event.Event {
		c.rec.ElapsedSeconds = 0
		c.alerts.rearm()
		return []event.Event{event.NewTick(c.deskID, now, 0)}
	})
}

func (c *Controller) SetNotes(notes string) error {
	if err := c.update(func() { c.rec.Notes = notes }); err != nil {
		return err
	}
	if c.notesDraft != nil {
		c.notesDraft.Touch(map[string]any{"notes": notes})
	}
	return nil
}

func (c *Controller) ClearNotes() error {
	return c.SetNotes("")
}

func (c *Controller) SetPatient(ref string) error {
	return c.update(func() { c.rec.PatientRef = ref })
}

func (c *Controller) SetAppointment(ref string) error {
	return c.update(func() { c.rec.AppointmentRef = ref })
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.rec
	if c.rec.StartedAt != nil {
		started := *c.rec.StartedAt
		snap.StartedAt = &started
	}
	return snap
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.State
}

func (c *Controller) Alerts() []AlertStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alerts.statuses()
}

func (c *Controller) transition(op Op, apply func(now time.Time, from State) []event.Event) error {
	return c.transitionIf(op, nil, apply)
}

// transitionIf applies op when guard accepts the current state. A rejected
// guard is a silent no-op.
func (c *Controller) transitionIf(op Op, guard func(from State) bool, apply func(now time.Time, from State) []event.Event) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	from := c.rec.State
	if guard != nil && !guard(from) {
		c.mu.Unlock()
		return nil
	}
	to, err := checkOp(op, from)
	if err != nil {
		c.mu.Unlock()
		slog.Warn("rejected session transition", "desk_id", c.deskID, "op", op, "state", from)
		return err
	}
	now := c.now()
	c.rec.State = to
	out := apply(now, from)
	if from != to {
		out = append([]event.Event{c.stateEventLocked(from, now)}, out...)
	}
	seq, snap := c.captureLocked(now)
	c.mu.Unlock()

	c.persistState(seq, snap)
	c.emit(out)
	slog.Info("session transition applied", "desk_id", c.deskID, "session_id", snap.SessionID, "op", op, "from", from, "to", to, "elapsed_seconds", snap.ElapsedSeconds)
	return nil
}

func (c *Controller) update(mutate func()) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	mutate()
	seq, snap := c.captureLocked(c.now())
	c.mu.Unlock()
	c.persistState(seq, snap)
	return nil
}

func (c *Controller) onTick(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.clock.gen || c.rec.State != StateRunning {
		c.mu.Unlock()
		return
	}
	c.rec.ElapsedSeconds++
	elapsed := c.rec.ElapsedSeconds
	epoch := c.alerts.epoch
	crossed := c.alerts.evaluate(elapsed)
	now := c.now()
	final := make([]bool, len(crossed))
	for i, a := range crossed {
		final[i] = c.alerts.isFinal(a.ID)
	}
	var (
		seq  uint64
		snap Snapshot
	)
	persist := elapsed%stateSnapshotTicks == 0 || len(crossed) > 0
	if persist {
		seq, snap = c.captureLocked(now)
	}
	c.mu.Unlock()

	if persist {
		c.persistState(seq, snap)
	}
	// Listeners and the snapshot write run unlocked, so an End or Reset can
	// land anywhere below; each delivery re-checks that the count it belongs
	// to is still current.
	if !c.emitIfCurrent(epoch, event.NewTick(c.deskID, now, elapsed)) {
		return
	}
	for i, a := range crossed {
		alert := event.NewAlertFired(c.deskID, now, event.Alert{
			ThresholdID:    a.ID,
			TriggerSeconds: a.TriggerSeconds,
			ElapsedSeconds: elapsed,
		})
		if !c.emitIfCurrent(epoch, alert) {
			slog.Info("dropping alert for a finished count", "desk_id", c.deskID, "threshold_id", a.ID, "elapsed_seconds", elapsed)
			return
		}
		slog.Info("session alert fired", "desk_id", c.deskID, "threshold_id", a.ID, "elapsed_seconds", elapsed)
		if final[i] {
			c.feedback.Play(feedback.SoundAlertLimit)
		} else {
			c.feedback.Play(feedback.SoundAlertWarning)
		}
		c.feedback.Vibrate(feedback.PatternAlert)
	}
}

func (c *Controller) emitIfCurrent(epoch uint64, e event.Event) bool {
	c.mu.Lock()
	current := !c.closed && c.alerts.epoch == epoch
	c.mu.Unlock()
	if current {
		c.events.Emit(e)
	}
	return current
}

func (c *Controller) setIdleLockLocked(now time.Time, suspended bool) []event.Event {
	if c.idleLockSuspended == suspended {
		return nil
	}
	c.idleLockSuspended = suspended
	return []event.Event{event.NewIdleLock(c.deskID, now, suspended)}
}

func (c *Controller) stateEventLocked(from State, now time.Time) event.Event {
	return event.NewStateChanged(c.deskID, now, event.StateChange{
		From:       string(from),
		To:         string(c.rec.State),
		SessionID:  c.rec.SessionID,
		AutoPaused: c.rec.AutoPaused,
	})
}

func (c *Controller) captureLocked(now time.Time) (uint64, Snapshot) {
	c.stateSeq++
	snap := c.rec
	if c.rec.StartedAt != nil {
		started := *c.rec.StartedAt
		snap.StartedAt = &started
	}
	snap.SavedAt = now
	return c.stateSeq, snap
}

// persistState writes snapshots in capture order; an older snapshot never
// overwrites a newer one.
func (c *Controller) persistState(seq uint64, snap Snapshot) {
	if c.states == nil {
		return
	}
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if seq <= c.lastStateSeq {
		return
	}
	c.lastStateSeq = seq
	ctx, cancel := context.WithTimeout(context.Background(), stateSaveTimeout)
	defer cancel()
	if err := c.states.SaveSessionState(ctx, c.deskID, snap); err != nil {
		slog.Warn("failed to save local session snapshot", "error", err, "desk_id", c.deskID)
	}
}

func (c *Controller) emit(events []event.Event) {
	for _, e := range events {
		c.events.Emit(e)
	}
}
