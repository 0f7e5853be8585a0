package desk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/foxseedlab/sessiondesk/internal/draft"
	"github.com/foxseedlab/sessiondesk/internal/feedback"
	"github.com/foxseedlab/sessiondesk/internal/session"
	"github.com/foxseedlab/sessiondesk/internal/voice"
)

const NotesDraftName = "notes"

var (
	ErrUnknownDraft  = errors.New("unknown draft")
	ErrNoAudioStream = errors.New("server-side speech is not enabled")
)

// Desk bundles everything that runs for one practitioner workstation.
type Desk struct {
	ID         string
	Controller *session.Controller
	Voice      *voice.Dispatcher
	Feedback   *feedback.HostSink

	notes  *draft.Scheduler
	host   *voice.HostSource
	stream *voice.StreamSource

	newForm func(name string) *draft.Scheduler

	// ready is closed once the controller has restored its last snapshot.
	ready chan struct{}

	mu    sync.Mutex
	forms map[string]*draft.Scheduler
}

// Draft returns the notes draft or a named form draft, creating form drafts
// on first use.
func (d *Desk) Draft(name string) (*draft.Scheduler, error) {
	if name == "" || name == NotesDraftName {
		return d.notes, nil
	}
	if !validDraftName(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDraft, name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.forms[name]
	if !ok {
		s = d.newForm(name)
		d.forms[name] = s
	}
	return s, nil
}

// DeliverTranscript passes a transcript recognized by the host view.
func (d *Desk) DeliverTranscript(ctx context.Context, transcript string) error {
	return d.host.Deliver(ctx, transcript)
}

// FeedAudio forwards an Opus frame from the host microphone.
func (d *Desk) FeedAudio(packet []byte) error {
	if d.stream == nil {
		return ErrNoAudioStream
	}
	return d.stream.Feed(packet)
}

func (d *Desk) SetCapabilities(caps feedback.Capabilities) {
	d.Feedback.SetCapabilities(caps)
}

func (d *Desk) compileVoice(g *voice.Grammar) ([]voice.Rule, error) {
	return g.Compile(voice.SessionBindings(d.Controller, d.notes.Flush))
}

func (d *Desk) teardown() {
	d.Voice.Close()
	d.mu.Lock()
	forms := make([]*draft.Scheduler, 0, len(d.forms))
	for _, f := range d.forms {
		forms = append(forms, f)
	}
	d.mu.Unlock()
	for _, f := range forms {
		f.Flush()
	}
	d.Controller.Teardown()
}

func validDraftName(name string) bool {
	if len(name) > 64 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func (d *Desk) isReady() bool {
	select {
	case <-d.ready:
		return true
	default:
		return false
	}
}
