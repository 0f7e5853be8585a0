package metrics

import (
	"github.com/foxseedlab/sessiondesk/internal/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sessiondesk"

// Recorder turns desk events into Prometheus metrics. Attach it to the
// event bus for all desks.
type Recorder struct {
	transitions   *prometheus.CounterVec
	runningDesks  prometheus.Gauge
	alerts        *prometheus.CounterVec
	voiceCommands *prometheus.CounterVec
	autoSaves     *prometheus.CounterVec
	notices       *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions",
		}, []string{"from", "to", "auto"}),
		runningDesks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "running",
			Help:      "Desks with a running session",
		}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "alerts_fired_total",
			Help:      "Duration alerts fired",
		}, []string{"threshold"}),
		voiceCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "commands_total",
			Help:      "Finalized transcripts by matched command",
		}, []string{"command"}),
		autoSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "autosaves_total",
			Help:      "Draft auto-save outcomes",
		}, []string{"status"}),
		notices: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "Notices sent to host views",
		}, []string{"level", "code"}),
	}
}

func (r *Recorder) Emit(e event.Event) {
	switch e.Kind {
	case event.KindStateChanged:
		r.recordTransition(e.State)
	case event.KindAlertFired:
		r.alerts.WithLabelValues(e.Alert.ThresholdID).Inc()
	case event.KindVoiceCommandResult:
		command := e.Voice.Matched
		if command == "" {
			command = "none"
		}
		r.voiceCommands.WithLabelValues(command).Inc()
	case event.KindAutoSave:
		// saving is always followed by saved or failed
		if e.AutoSave.Status != event.AutoSaveSaving {
			r.autoSaves.WithLabelValues(string(e.AutoSave.Status)).Inc()
		}
	case event.KindNotice:
		r.notices.WithLabelValues(string(e.Notice.Level), e.Notice.Code).Inc()
	}
}

func (r *Recorder) recordTransition(change *event.StateChange) {
	auto := "false"
	if change.AutoPaused {
		auto = "true"
	}
	r.transitions.WithLabelValues(change.From, change.To, auto).Inc()
	if change.From == change.To {
		return
	}
	if change.To == "running" {
		r.runningDesks.Inc()
	}
	if change.From == "running" {
		r.runningDesks.Dec()
	}
}
