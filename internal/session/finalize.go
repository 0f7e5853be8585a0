package session

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/sessiondesk/internal/event"
	"github.com/foxseedlab/sessiondesk/internal/repository"
)

// finalizeLocked starts persisting an ended session. It is registered with
// persistWG under the controller lock, so a Teardown that follows the End
// always waits for it.
func (c *Controller) finalizeLocked(s FinishedSession) {
	c.persistWG.Add(1)
	go func() {
		defer c.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		c.finalizeSession(ctx, s)
	}()
}

// finalizeSession persists an ended session. Failures never reach the
// caller; they are reported to the host as notices and the record is kept
// in memory until the next session end retries it.
func (c *Controller) finalizeSession(ctx context.Context, s FinishedSession) {
	if c.records != nil {
		c.retryUnsavedRecords(ctx)
		c.saveRecord(ctx, s)
		c.completeAppointment(ctx, s)
	}
	for _, h := range c.hooks {
		if err := h.SessionFinished(ctx, s); err != nil {
			slog.Error("session finish hook failed", "error", err, "desk_id", s.DeskID, "session_id", s.SessionID)
		}
	}
}

func (c *Controller) saveRecord(ctx context.Context, s FinishedSession) {
	if s.PatientRef == "" {
		slog.Warn("ended session has no patient; record not saved", "desk_id", s.DeskID, "session_id", s.SessionID)
		c.notice(event.NoticeWarning, noticeNoPatient, messageNoPatient)
		return
	}
	input := repository.SaveSessionRecordInput{
		SessionID:       s.SessionID,
		DeskID:          s.DeskID,
		PatientRef:      s.PatientRef,
		AppointmentRef:  s.AppointmentRef,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		DurationSeconds: s.DurationSeconds,
		Notes:           s.Notes,
	}
	if err := c.records.SaveSessionRecord(ctx, input); err != nil {
		slog.Error("failed to save session record", "error", err, "desk_id", s.DeskID, "session_id", s.SessionID)
		c.keepUnsaved(input)
		c.notice(event.NoticeError, noticeSessionSaveError, messageSessionSaveError)
		return
	}
	slog.Info("session record saved", "desk_id", s.DeskID, "session_id", s.SessionID, "duration_seconds", s.DurationSeconds)
	c.notice(event.NoticeSuccess, noticeSessionSaved, messageSessionSaved)
	c.submitNotesDraft(ctx, s.Notes)
}

// submitNotesDraft drops the notes draft once the notes are in the record,
// unless they were edited again after the session ended.
func (c *Controller) submitNotesDraft(ctx context.Context, saved string) {
	if c.notesDraft == nil {
		return
	}
	c.mu.Lock()
	unchanged := c.rec.Notes == saved
	c.mu.Unlock()
	if !unchanged {
		return
	}
	if err := c.notesDraft.Submit(ctx); err != nil {
		slog.Warn("failed to clear notes draft", "error", err, "desk_id", c.deskID)
	}
}

func (c *Controller) completeAppointment(ctx context.Context, s FinishedSession) {
	if s.AppointmentRef == "" {
		return
	}
	if err := c.records.UpdateAppointmentStatus(ctx, s.AppointmentRef, repository.AppointmentStatusCompleted); err != nil {
		slog.Error("failed to update appointment status", "error", err, "desk_id", s.DeskID, "appointment_ref", s.AppointmentRef)
		c.notice(event.NoticeWarning, noticeAppointmentError, messageAppointmentError)
	}
}

func (c *Controller) retryUnsavedRecords(ctx context.Context) {
	c.mu.Lock()
	pending := c.unsaved
	c.unsaved = nil
	c.mu.Unlock()

	for _, input := range pending {
		if err := c.records.SaveSessionRecord(ctx, input); err != nil {
			slog.Error("retry of unsaved session record failed", "error", err, "desk_id", input.DeskID, "session_id", input.SessionID)
			c.keepUnsaved(input)
			continue
		}
		slog.Info("previously unsaved session record saved", "desk_id", input.DeskID, "session_id", input.SessionID)
		c.notice(event.NoticeSuccess, noticeRecordsRetried, messageRecordsRetried)
	}
}

func (c *Controller) keepUnsaved(input repository.SaveSessionRecordInput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsaved = append(c.unsaved, input)
}

// UnsavedRecords reports how many ended sessions still wait for the record store.
func (c *Controller) UnsavedRecords() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unsaved)
}

func (c *Controller) notice(level event.NoticeLevel, code, message string) {
	c.events.Emit(event.NewNotice(c.deskID, c.now(), level, code, message))
}
