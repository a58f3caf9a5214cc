package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/directory"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func ParseStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// Appointment is never deleted; cancellation is a status.
// DoctorName and PatientName are snapshots taken at booking time, for display only.
type Appointment struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	DoctorName  string
	PatientName string
	Date        time.Time
	Time        TimeSlot
	Symptoms    string
	Status      AppointmentStatus
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a *Appointment) Slot() Slot {
	return Slot{DoctorID: a.DoctorID, Date: a.Date, Time: a.Time}
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   uuid.UUID
	Role directory.Role
}

type CreateInput struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
	Symptoms string
}

type StatusChange struct {
	Status AppointmentStatus
	Reason string
}

type ListFilter struct {
	Status AppointmentStatus // empty means any
	Limit  int
	Offset int
}

// ListQuery is the store-level form of a role-scoped listing.
type ListQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    AppointmentStatus
	Limit     int
	Offset    int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
