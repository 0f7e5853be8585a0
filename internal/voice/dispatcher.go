package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/debounce"
	"github.com/foxseedlab/sessiondesk/internal/event"
	"github.com/foxseedlab/sessiondesk/internal/feedback"
)

const DefaultAwakeWindow = 5 * time.Second

const (
	noticeSpeechUnsupported = "speech_unsupported"
	noticeVoiceActionFailed = "voice_action_failed"

	msgSpeechUnsupported = "Voice commands are not supported on this device."
	msgVoiceActionFailed = "The voice command could not be carried out right now."
)

var ErrUnsupported = errors.New("speech recognition is not supported")

type Options struct {
	DeskID      string
	Registry    *Registry
	Source      Source
	Events      event.Sink
	Feedback    feedback.Sink
	WakeWord    string
	AwakeWindow time.Duration
	Now         func() time.Time
	AfterFunc   debounce.AfterFunc
}

// Dispatcher matches finalized transcripts against the registry and runs
// at most one action at a time.
type Dispatcher struct {
	deskID   string
	registry *Registry
	source   Source
	events   event.Sink
	feedback feedback.Sink
	wakeWord string
	now      func() time.Time

	toggleMu  sync.Mutex
	listening atomic.Bool

	dispatchMu sync.Mutex

	awakeMu sync.Mutex
	awake   bool
	sleep   *debounce.Task

	unsupportedOnce sync.Once
}

func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		deskID:   opts.DeskID,
		registry: opts.Registry,
		source:   opts.Source,
		events:   opts.Events,
		feedback: opts.Feedback,
		wakeWord: normalize(opts.WakeWord),
		now:      opts.Now,
	}
	if d.registry == nil {
		d.registry = NewRegistry(nil)
	}
	if d.events == nil {
		d.events = event.Discard
	}
	if d.feedback == nil {
		d.feedback = feedback.Noop
	}
	if d.now == nil {
		d.now = time.Now
	}
	window := opts.AwakeWindow
	if window <= 0 {
		window = DefaultAwakeWindow
	}
	d.sleep = debounce.NewWithAfterFunc(window, d.fallAsleep, opts.AfterFunc)
	return d
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

func (d *Dispatcher) Listening() bool {
	return d.listening.Load()
}

func (d *Dispatcher) Awake() bool {
	d.awakeMu.Lock()
	defer d.awakeMu.Unlock()
	return d.awake
}

// StartListening is a no-op when already listening. An unsupported source
// is reported to the host once.
func (d *Dispatcher) StartListening(ctx context.Context) error {
	d.toggleMu.Lock()
	defer d.toggleMu.Unlock()
	if d.source == nil || !d.source.Supported() {
		d.unsupportedOnce.Do(func() {
			slog.Info("speech recognition unsupported", "desk_id", d.deskID)
			d.events.Emit(event.NewNotice(d.deskID, d.now(), event.NoticeInfo, noticeSpeechUnsupported, msgSpeechUnsupported))
		})
		return ErrUnsupported
	}
	if d.listening.Load() {
		return nil
	}
	d.listening.Store(true)
	if err := d.source.StartListening(ctx, d.HandleTranscript); err != nil {
		d.listening.Store(false)
		return err
	}
	d.setAwake(d.wakeWord == "")
	d.feedback.Vibrate(feedback.PatternMedium)
	d.emitStatus()
	slog.Info("voice commands listening", "desk_id", d.deskID, "wake_word", d.wakeWord != "")
	return nil
}

// StopListening takes effect immediately: transcripts already in flight are
// dropped before their action runs.
func (d *Dispatcher) StopListening() {
	d.toggleMu.Lock()
	defer d.toggleMu.Unlock()
	if !d.listening.CompareAndSwap(true, false) {
		return
	}
	d.source.StopListening()
	d.sleep.Cancel()
	d.setAwake(false)
	d.emitStatus()
	slog.Info("voice commands stopped", "desk_id", d.deskID)
}

func (d *Dispatcher) HandleTranscript(ctx context.Context, transcript string) {
	if !d.listening.Load() {
		return
	}
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()
	if !d.listening.Load() {
		return
	}

	command := normalize(transcript)
	if command == "" {
		return
	}
	if d.wakeWord != "" {
		var ok bool
		command, ok = d.consumeWakeWord(command)
		if !ok || command == "" {
			return
		}
	}
	d.dispatch(ctx, command)
}

// consumeWakeWord reports whether the command should be dispatched and
// strips a leading wake word.
func (d *Dispatcher) consumeWakeWord(command string) (string, bool) {
	if d.Awake() {
		d.sleep.Trigger()
		return command, true
	}
	idx := strings.Index(command, d.wakeWord)
	if idx < 0 {
		return "", false
	}
	d.setAwake(true)
	d.sleep.Trigger()
	d.feedback.Play(feedback.SoundWake)
	d.feedback.Vibrate(feedback.PatternMedium)
	d.emitStatus()
	return strings.TrimSpace(command[idx+len(d.wakeWord):]), true
}

func (d *Dispatcher) dispatch(ctx context.Context, command string) {
	rule, ok := d.registry.Match(command)
	result := event.VoiceResult{Transcript: command}
	if !ok {
		d.events.Emit(event.NewVoiceResult(d.deskID, d.now(), result))
		d.feedback.Play(feedback.SoundCommandUnmatched)
		d.feedback.Vibrate(feedback.PatternLight)
		slog.Debug("voice command unmatched", "desk_id", d.deskID, "transcript", command)
		return
	}

	result.Matched = rule.Name
	result.Category = string(rule.Category)
	result.Action = rule.ActionName
	d.events.Emit(event.NewVoiceResult(d.deskID, d.now(), result))
	d.feedback.Play(feedback.SoundCommandMatched)
	d.feedback.Vibrate(feedback.PatternSuccess)
	slog.Info("voice command matched", "desk_id", d.deskID, "command", rule.Name)

	if rule.Run == nil {
		return
	}
	if err := rule.Run(ctx); err != nil {
		slog.Warn("voice command action failed", "error", err, "desk_id", d.deskID, "command", rule.Name)
		d.events.Emit(event.NewNotice(d.deskID, d.now(), event.NoticeWarning, noticeVoiceActionFailed, msgVoiceActionFailed))
	}
}

func (d *Dispatcher) fallAsleep() {
	if !d.listening.Load() || !d.Awake() {
		return
	}
	d.setAwake(false)
	d.emitStatus()
}

func (d *Dispatcher) setAwake(awake bool) {
	d.awakeMu.Lock()
	defer d.awakeMu.Unlock()
	d.awake = awake
}

func (d *Dispatcher) emitStatus() {
	d.events.Emit(event.NewListenStatus(d.deskID, d.now(), d.listening.Load(), d.Awake()))
}

// Close stops listening and drops the awake timer.
func (d *Dispatcher) Close() {
	d.StopListening()
	d.sleep.Cancel()
}
