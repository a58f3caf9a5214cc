package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
// The store, not the service, enforces that a slot holds at most one
// non-cancelled appointment; writes that would break that return ErrSlotConflict.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks. excludeID may be uuid.Nil.
	FindActiveInSlot(ctx context.Context, slot Slot, excludeID uuid.UUID) (*Appointment, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	// RescheduleAppointment moves a pending appointment; ErrAppointmentNotFound if it is not pending.
	RescheduleAppointment(ctx context.Context, id uuid.UUID, date time.Time, slot TimeSlot) (*Appointment, error)
	// UpdateAppointmentStatus applies from -> to only if the row is still in from,
	// appending note to notes when non-empty.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, note string) (*Appointment, error)

	// Listing
	ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	ListAppointments(ctx context.Context, q ListQuery) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
