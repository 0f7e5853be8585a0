package discord

import (
	"fmt"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/event"
	"github.com/foxseedlab/sessiondesk/internal/session"
)

const (
	msgSessionFinished = "Session finished on desk `%s` at %s (duration %s)."
	msgAlertFired      = "Desk `%s` reached the %s alert at %s."
)

var alertLabels = map[string]string{
	"wrap_up":       "wrap-up",
	"limit_warning": "time limit warning",
	"hard_limit":    "hard limit",
}

func formatSessionFinished(s session.FinishedSession, loc *time.Location) string {
	return fmt.Sprintf(msgSessionFinished, s.DeskID, s.EndedAt.In(loc).Format("2006-01-02 15:04"), formatDuration(s.DurationSeconds))
}

func formatAlert(deskID string, a event.Alert) string {
	label, ok := alertLabels[a.ThresholdID]
	if !ok {
		label = a.ThresholdID
	}
	return fmt.Sprintf(msgAlertFired, deskID, label, formatDuration(a.ElapsedSeconds))
}

func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}
