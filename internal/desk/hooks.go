package desk

import (
	"context"

	"github.com/foxseedlab/sessiondesk/internal/session"
	"github.com/foxseedlab/sessiondesk/internal/webhook"
)

type webhookHook struct {
	sender webhook.Sender
}

func newWebhookHook(sender webhook.Sender) session.FinishHook {
	return &webhookHook{sender: sender}
}

func (h *webhookHook) SessionFinished(ctx context.Context, s session.FinishedSession) error {
	return h.sender.SendSessionFinished(ctx, webhook.SessionFinishedPayload{
		Event:           webhook.EventSessionFinished,
		DeskID:          s.DeskID,
		SessionID:       s.SessionID,
		PatientRef:      s.PatientRef,
		AppointmentRef:  s.AppointmentRef,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		DurationSeconds: s.DurationSeconds,
	})
}
