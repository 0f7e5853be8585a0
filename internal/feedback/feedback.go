package feedback

import (
	"sync"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/event"
)

type Sound string

const (
	SoundAlertWarning     Sound = "alert_warning"
	SoundAlertLimit       Sound = "alert_limit"
	SoundCommandMatched   Sound = "command_matched"
	SoundCommandUnmatched Sound = "command_unmatched"
	SoundWake             Sound = "wake"
)

var (
	PatternLight   = []int{10}
	PatternMedium  = []int{20}
	PatternSuccess = []int{10, 50, 10}
	PatternAlert   = []int{200, 100, 200, 100, 400}
)

// Sink plays audio cues and vibrations on the host. Calls are best effort.
type Sink interface {
	Play(sound Sound)
	Vibrate(pattern []int)
}

type Capabilities struct {
	Audio   bool `json:"audio"`
	Haptics bool `json:"haptics"`
	Speech  bool `json:"speech"`
}

// HostSink forwards feedback to the host view as events. Until the host
// announces its capabilities every call is a no-op.
type HostSink struct {
	deskID string
	sink   event.Sink
	now    func() time.Time

	mu   sync.RWMutex
	caps Capabilities
}

func NewHostSink(deskID string, sink event.Sink) *HostSink {
	return &HostSink{deskID: deskID, sink: sink, now: time.Now}
}

func (h *HostSink) SetCapabilities(caps Capabilities) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.caps = caps
}

func (h *HostSink) Capabilities() Capabilities {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.caps
}

func (h *HostSink) Play(sound Sound) {
	if !h.Capabilities().Audio {
		return
	}
	h.sink.Emit(event.NewFeedback(h.deskID, h.now(), event.Feedback{Sound: string(sound)}))
}

func (h *HostSink) Vibrate(pattern []int) {
	if !h.Capabilities().Haptics || len(pattern) == 0 {
		return
	}
	p := make([]int, len(pattern))
	copy(p, pattern)
	h.sink.Emit(event.NewFeedback(h.deskID, h.now(), event.Feedback{Vibrate: p}))
}

type noop struct{}

func (noop) Play(Sound)    {}
func (noop) Vibrate([]int) {}

// Noop ignores all feedback.
var Noop Sink = noop{}
