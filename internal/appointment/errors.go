package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrDoctorUnavailable   = errors.New("doctor is not accepting appointments")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrForbidden           = errors.New("not authorized for this appointment")
	ErrSlotConflict        = errors.New("this time slot is already booked")
	ErrSlotBeingBooked     = fmt.Errorf("%w: slot is currently being booked, please retry", ErrSlotConflict)
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidState        = errors.New("appointment can only be rescheduled while pending")
	ErrInvalidTimeSlot     = errors.New("invalid time slot")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidStatus       = errors.New("invalid appointment status")
)

// Kind is the stable error class surfaced to API callers.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindSlotConflict      Kind = "slot_conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidState      Kind = "invalid_state"
	KindInvalidInput      Kind = "invalid_input"
	KindInternal          Kind = "internal"
)

func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrDoctorUnavailable),
		errors.Is(err, ErrPatientNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrSlotConflict):
		return KindSlotConflict
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInvalidTimeSlot),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidStatus):
		return KindInvalidInput
	}
	return KindInternal
}
