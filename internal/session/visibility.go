package session

import (
	"log/slog"

	"github.com/foxseedlab/sessiondesk/internal/event"
)

// HandleVisibility reacts to the host view moving to the background or
// foreground. Backgrounding a running session pauses it and marks the pause
// as automatic; returning to the foreground never resumes on its own.
func (c *Controller) HandleVisibility(visible bool) error {
	if !visible {
		paused, err := c.autoPause()
		if paused {
			slog.Info("host went to background; session paused", "desk_id", c.deskID)
		}
		return err
	}

	c.mu.Lock()
	closed := c.closed
	notify := c.rec.State == StatePaused && c.rec.AutoPaused
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if notify {
		c.emit([]event.Event{event.NewNotice(c.deskID, c.now(), event.NoticeInfo, noticeAutoPaused, messageAutoPaused)})
	}
	return nil
}
