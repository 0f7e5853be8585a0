package repository

import (
	"context"
	"time"
)

type SaveSessionRecordInput struct {
	SessionID       string
	DeskID          string
	PatientRef      string
	AppointmentRef  string
	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds int64
	Notes           string
}

type SessionRecordRepository interface {
	SaveSessionRecord(ctx context.Context, input SaveSessionRecordInput) error
	ListSessionRecordsByPatient(ctx context.Context, patientRef string, limit int) ([]SessionRecord, error)
}

type AppointmentRepository interface {
	UpdateAppointmentStatus(ctx context.Context, appointmentRef string, status AppointmentStatus) error
}

type RecordStore interface {
	SessionRecordRepository
	AppointmentRepository
}
