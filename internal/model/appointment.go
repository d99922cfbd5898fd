package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusCancelled, AppointmentStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

type Appointment struct {
	Base
	ClinicID        uuid.UUID         `json:"clinic_id"`
	Doctor          PersonRef         `json:"doctor"`
	Patient         PersonRef         `json:"patient"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
	Reason          *string           `json:"reason,omitempty"`
	Amount          *int64            `json:"amount,omitempty"`
	CancelReason    *string           `json:"cancel_reason,omitempty"`
	SuggestedAt     *time.Time        `json:"suggested_at,omitempty"`
}

func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether a occupies any part of [start, end).
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.ScheduledAt.Before(end) && a.EndsAt().After(start)
}

// TransitionPayload carries the optional data for a status change.
type TransitionPayload struct {
	Amount       *int64     `json:"amount"`
	CancelReason *string    `json:"cancel_reason"`
	SuggestedAt  *time.Time `json:"suggested_at"`
}

// PatientInput references an existing patient by id, or registers one inline.
type PatientInput struct {
	ID      *uuid.UUID      `json:"id"`
	Details *PatientDetails `json:"details"`
}

type CreateAppointmentRequest struct {
	DoctorID        uuid.UUID    `json:"doctor_id" binding:"required"`
	Patient         PatientInput `json:"patient"`
	ScheduledAt     time.Time    `json:"scheduled_at" binding:"required"`
	DurationMinutes int          `json:"duration_minutes" binding:"omitempty,min=5,max=480"`
	Reason          string       `json:"reason" binding:"max=1000"`
}

type TransitionRequest struct {
	Status       AppointmentStatus `json:"status" binding:"required,oneof=pending confirmed completed cancelled"`
	Amount       *int64            `json:"amount"`
	CancelReason *string           `json:"cancel_reason"`
	SuggestedAt  *time.Time        `json:"suggested_at"`
}

// AppointmentQuery is the list endpoint's query string.
type AppointmentQuery struct {
	DoctorID string `form:"doctor_id" binding:"required,uuid"`
	Upcoming bool   `form:"upcoming"`
}

// AppointmentView is an appointment together with its resolved participants.
type AppointmentView struct {
	*Appointment
	DoctorIdentity  *Identity `json:"doctor_identity"`
	PatientIdentity *Identity `json:"patient_identity"`
}
