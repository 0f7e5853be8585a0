package event

import "time"

type Kind string

const (
	KindStateChanged       Kind = "state_changed"
	KindTick               Kind = "tick"
	KindAlertFired         Kind = "alert_fired"
	KindVoiceCommandResult Kind = "voice_command_result"
	KindAutoSave           Kind = "auto_save"
	KindNotice             Kind = "notice"
	KindFeedback           Kind = "feedback"
	KindIdleLock           Kind = "idle_lock"
	KindListeningChanged   Kind = "listening_changed"
)

// Event is a message from a desk's controller to its host view.
// Only the payload field matching Kind is set.
type Event struct {
	Kind   Kind      `json:"kind"`
	DeskID string    `json:"desk_id"`
	At     time.Time `json:"at"`

	State     *StateChange  `json:"state,omitempty"`
	Elapsed   *int64        `json:"elapsed_seconds,omitempty"`
	Alert     *Alert        `json:"alert,omitempty"`
	Voice     *VoiceResult  `json:"voice,omitempty"`
	AutoSave  *AutoSave     `json:"auto_save,omitempty"`
	Notice    *Notice       `json:"notice,omitempty"`
	Feedback  *Feedback     `json:"feedback,omitempty"`
	IdleLock  *IdleLock     `json:"idle_lock,omitempty"`
	Listening *ListenStatus `json:"listening,omitempty"`
}

type StateChange struct {
	From       string `json:"from"`
	To         string `json:"to"`
	SessionID  string `json:"session_id,omitempty"`
	AutoPaused bool   `json:"auto_paused"`
}

type Alert struct {
	ThresholdID    string `json:"threshold_id"`
	TriggerSeconds int64  `json:"trigger_seconds"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

type VoiceResult struct {
	Transcript string `json:"transcript"`
	Matched    string `json:"matched,omitempty"`
	Category   string `json:"category,omitempty"`
	Action     string `json:"action,omitempty"`
}

type AutoSaveStatus string

const (
	AutoSaveSaving AutoSaveStatus = "saving"
	AutoSaveSaved  AutoSaveStatus = "saved"
	AutoSaveFailed AutoSaveStatus = "failed"
)

type AutoSave struct {
	Key    string         `json:"key"`
	Status AutoSaveStatus `json:"status"`
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

type Notice struct {
	Level   NoticeLevel `json:"level"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

type Feedback struct {
	Sound   string `json:"sound,omitempty"`
	Vibrate []int  `json:"vibrate,omitempty"`
}

type IdleLock struct {
	Suspended bool `json:"suspended"`
}

type ListenStatus struct {
	Listening bool `json:"listening"`
	Awake     bool `json:"awake"`
}

// Sink receives events. Implementations must not block for long.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}

func NewStateChanged(deskID string, at time.Time, change StateChange) Event {
	return Event{Kind: KindStateChanged, DeskID: deskID, At: at, State: &change}
}

func NewTick(deskID string, at time.Time, elapsed int64) Event {
	return Event{Kind: KindTick, DeskID: deskID, At: at, Elapsed: &elapsed}
}

func NewAlertFired(deskID string, at time.Time, alert Alert) Event {
	return Event{Kind: KindAlertFired, DeskID: deskID, At: at, Alert: &alert}
}

func NewVoiceResult(deskID string, at time.Time, result VoiceResult) Event {
	return Event{Kind: KindVoiceCommandResult, DeskID: deskID, At: at, Voice: &result}
}

func NewAutoSave(deskID string, at time.Time, key string, status AutoSaveStatus) Event {
	return Event{Kind: KindAutoSave, DeskID: deskID, At: at, AutoSave: &AutoSave{Key: key, Status: status}}
}

func NewNotice(deskID string, at time.Time, level NoticeLevel, code, message string) Event {
	return Event{Kind: KindNotice, DeskID: deskID, At: at, Notice: &Notice{Level: level, Code: code, Message: message}}
}

func NewFeedback(deskID string, at time.Time, fb Feedback) Event {
	return Event{Kind: KindFeedback, DeskID: deskID, At: at, Feedback: &fb}
}

func NewIdleLock(deskID string, at time.Time, suspended bool) Event {
	return Event{Kind: KindIdleLock, DeskID: deskID, At: at, IdleLock: &IdleLock{Suspended: suspended}}
}

func NewListenStatus(deskID string, at time.Time, listening, awake bool) Event {
	return Event{Kind: KindListeningChanged, DeskID: deskID, At: at, Listening: &ListenStatus{Listening: listening, Awake: awake}}
}
