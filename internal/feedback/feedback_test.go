package feedback

import (
	"testing"

	"github.com/foxseedlab/sessiondesk/internal/event"
)

func TestHostSink_NoopUntilCapabilitiesAnnounced(t *testing.T) {
	var got []event.Event
	h := NewHostSink("desk-1", event.SinkFunc(func(e event.Event) { got = append(got, e) }))

	h.Play(SoundAlertWarning)
	h.Vibrate(PatternAlert)
	if len(got) != 0 {
		t.Fatalf("expected no feedback before capabilities, got %d", len(got))
	}

	h.SetCapabilities(Capabilities{Audio: true})
	h.Play(SoundAlertWarning)
	h.Vibrate(PatternAlert)
	if len(got) != 1 {
		t.Fatalf("expected only audio feedback, got %d", len(got))
	}
	if got[0].Feedback == nil || got[0].Feedback.Sound != string(SoundAlertWarning) {
		t.Fatalf("unexpected feedback event: %+v", got[0])
	}
}

func TestHostSink_VibrateCopiesPattern(t *testing.T) {
	var got []event.Event
	h := NewHostSink("desk-1", event.SinkFunc(func(e event.Event) { got = append(got, e) }))
	h.SetCapabilities(Capabilities{Haptics: true})

	pattern := []int{1, 2}
	h.Vibrate(pattern)
	pattern[0] = 99

	if len(got) != 1 || got[0].Feedback.Vibrate[0] != 1 {
		t.Fatalf("expected copied pattern, got %+v", got)
	}
}
