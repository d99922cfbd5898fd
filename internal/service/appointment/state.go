package appointment

import "github.com/jwalitptl/clinic-identity/internal/model"

// transitions lists every legal edge. Completed and cancelled have none.
// A pending visit may be completed directly when it happens unconfirmed.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending: {
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusConfirmed: {model.AppointmentStatusCompleted, model.AppointmentStatusCancelled},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to model.AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// applyTransition validates the edge and payload and mutates a in place.
func applyTransition(a *model.Appointment, to model.AppointmentStatus, payload model.TransitionPayload) error {
	if !CanTransition(a.Status, to) {
		return ErrInvalidTransition
	}

	switch to {
	case model.AppointmentStatusCompleted:
		if payload.Amount == nil || *payload.Amount < 0 {
			return ErrAmountRequired
		}
		amount := *payload.Amount
		a.Amount = &amount
	case model.AppointmentStatusCancelled:
		a.CancelReason = payload.CancelReason
		a.SuggestedAt = payload.SuggestedAt
	}

	a.Status = to
	return nil
}
