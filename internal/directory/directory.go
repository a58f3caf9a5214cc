package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrInvalidDoctorStatus = errors.New("invalid doctor status")
)

// Directory is the read side consumed by the appointment service.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}

// Store adds the doctor status write used by administrators.
type Store interface {
	Directory
	// UpdateDoctorStatus returns the status the doctor had before the update.
	UpdateDoctorStatus(ctx context.Context, id uuid.UUID, status DoctorStatus) (DoctorStatus, error)
}
