package webhook

import (
	"context"
	"time"
)

// SessionFinishedPayload is posted when a session ends. Notes are not sent.
type SessionFinishedPayload struct {
	Event           string    `json:"event"`
	DeskID          string    `json:"desk_id"`
	SessionID       string    `json:"session_id"`
	PatientRef      string    `json:"patient_ref,omitempty"`
	AppointmentRef  string    `json:"appointment_ref,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int64     `json:"duration_seconds"`
}

const EventSessionFinished = "session.finished"

type Sender interface {
	SendSessionFinished(ctx context.Context, payload SessionFinishedPayload) error
}
