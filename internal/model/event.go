package model

import (
	"time"

	"github.com/google/uuid"
)

type LifecycleEventType string

const (
	EventAppointmentCreated       LifecycleEventType = "appointment.created"
	EventAppointmentStatusChanged LifecycleEventType = "appointment.status_changed"
)

// LifecycleEvent is what the notification collaborator receives.
type LifecycleEvent struct {
	ID            uuid.UUID          `json:"id"`
	ClinicID      uuid.UUID          `json:"clinic_id"`
	PatientRef    string             `json:"patient_ref"`
	Type          LifecycleEventType `json:"type"`
	Title         string             `json:"title"`
	Message       string             `json:"message"`
	AppointmentID *uuid.UUID         `json:"appointment_id,omitempty"`
	OldStatus     AppointmentStatus  `json:"old_status,omitempty"`
	NewStatus     AppointmentStatus  `json:"new_status,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}
