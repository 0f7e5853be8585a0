package repository

import "time"

type AppointmentStatus string

const (
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

type SessionRecord struct {
	ID              string    `json:"id"`
	DeskID          string    `json:"desk_id"`
	PatientRef      string    `json:"patient_ref"`
	AppointmentRef  string    `json:"appointment_ref,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
}
