package directory

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of actor kinds known to the clinic.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

type DoctorStatus string

const (
	DoctorPending   DoctorStatus = "pending"
	DoctorActive    DoctorStatus = "active"
	DoctorRejected  DoctorStatus = "rejected"
	DoctorSuspended DoctorStatus = "suspended"
)

func (s DoctorStatus) Valid() bool {
	switch s {
	case DoctorPending, DoctorActive, DoctorRejected, DoctorSuspended:
		return true
	}
	return false
}

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Specialization string
	Status         DoctorStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
