package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/event"
	"github.com/foxseedlab/sessiondesk/internal/session"
)

// Notifier posts session alerts and finished sessions to a staff channel.
// Messages carry the desk and timing only, never patient data or notes.
type Notifier struct {
	client    Client
	channelID string
	loc       *time.Location
}

func NewNotifier(client Client, channelID string, loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{client: client, channelID: channelID, loc: loc}
}

func (n *Notifier) SessionFinished(ctx context.Context, s session.FinishedSession) error {
	content := formatSessionFinished(s, n.loc)
	if err := n.client.SendChannelMessage(ctx, n.channelID, content); err != nil {
		return fmt.Errorf("send session finished message: %w", err)
	}
	return nil
}

// Run relays alert events until ctx is done or events is closed.
func (n *Notifier) Run(ctx context.Context, events <-chan event.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Kind != event.KindAlertFired || e.Alert == nil {
				continue
			}
			if err := n.client.SendChannelMessage(ctx, n.channelID, formatAlert(e.DeskID, *e.Alert)); err != nil {
				slog.Warn("failed to post alert", "error", err, "desk_id", e.DeskID, "threshold_id", e.Alert.ThresholdID)
			}
		}
	}
}
