package session

import (
	"cmp"
	"slices"
	"time"
)

type Threshold struct {
	ID      string
	Trigger time.Duration
}

func (t Threshold) TriggerSeconds() int64 {
	return int64(t.Trigger / time.Second)
}

// DefaultThresholds are the wrap-up reminder and the warnings ahead of the
// 40 minute video-call limit.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{ID: "wrap_up", Trigger: 30 * time.Minute},
		{ID: "limit_warning", Trigger: 35 * time.Minute},
		{ID: "hard_limit", Trigger: 40 * time.Minute},
	}
}

type AlertStatus struct {
	ID             string `json:"id"`
	TriggerSeconds int64  `json:"trigger_seconds"`
	Fired          bool   `json:"fired"`
}

type alertEngine struct {
	items []AlertStatus
	// epoch changes whenever alerts already crossed stop belonging to the
	// current count: re-arm and session end.
	epoch uint64
}

func newAlertEngine(thresholds []Threshold) *alertEngine {
	items := make([]AlertStatus, 0, len(thresholds))
	for _, t := range thresholds {
		items = append(items, AlertStatus{ID: t.ID, TriggerSeconds: t.TriggerSeconds()})
	}
	slices.SortStableFunc(items, func(a, b AlertStatus) int {
		return cmp.Compare(a.TriggerSeconds, b.TriggerSeconds)
	})
	return &alertEngine{items: items}
}

// evaluate re-arms thresholds above elapsed and returns the ones crossed for
// the first time. A threshold fires at most once until it is re-armed.
func (a *alertEngine) evaluate(elapsed int64) []AlertStatus {
	var crossed []AlertStatus
	for i := range a.items {
		it := &a.items[i]
		if elapsed < it.TriggerSeconds {
			it.Fired = false
			continue
		}
		if it.Fired {
			continue
		}
		it.Fired = true
		crossed = append(crossed, *it)
	}
	return crossed
}

// settle marks crossed thresholds fired without reporting them. Used when a
// session is restored so alerts that belong to the past are not replayed.
func (a *alertEngine) settle(elapsed int64) {
	for i := range a.items {
		a.items[i].Fired = elapsed >= a.items[i].TriggerSeconds
	}
}

func (a *alertEngine) rearm() {
	for i := range a.items {
		a.items[i].Fired = false
	}
	a.epoch++
}

func (a *alertEngine) retire() {
	a.epoch++
}

func (a *alertEngine) isFinal(id string) bool {
	return len(a.items) > 0 && a.items[len(a.items)-1].ID == id
}

func (a *alertEngine) statuses() []AlertStatus {
	return slices.Clone(a.items)
}
