package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SuspensionReason is appended to the notes of every appointment cancelled by a suspension.
const SuspensionReason = "Doctor has been suspended"

// cascadeTimeout bounds the suspension cascade once it is detached from the caller.
const cascadeTimeout = 2 * time.Minute

// SuspensionListener is notified after a doctor enters the suspended state.
type SuspensionListener interface {
	CancelAllForDoctor(ctx context.Context, doctorID uuid.UUID, reason string) (int, error)
}

// StatusChange describes the outcome of SetDoctorStatus.
type StatusChange struct {
	DoctorID  uuid.UUID    `json:"doctor_id"`
	Previous  DoctorStatus `json:"previous_status"`
	Current   DoctorStatus `json:"status"`
	Cancelled int          `json:"cancelled_appointments"`
}

type StatusService struct {
	store    Store
	listener SuspensionListener
	logger   *zap.Logger
}

func NewStatusService(store Store, listener SuspensionListener, logger *zap.Logger) *StatusService {
	return &StatusService{store: store, listener: listener, logger: logger}
}

// SetDoctorStatus moderates a doctor account. Setting suspended cascades to the doctor's
// active appointments, also when the doctor was already suspended, so a repeated call
// finishes an interrupted cascade. The cascade outlives the caller's context and never
// fails the status change itself.
func (s *StatusService) SetDoctorStatus(ctx context.Context, id uuid.UUID, status DoctorStatus) (*StatusChange, error) {
	if !status.Valid() {
		return nil, ErrInvalidDoctorStatus
	}

	previous, err := s.store.UpdateDoctorStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("set doctor status: %w", err)
	}

	change := &StatusChange{DoctorID: id, Previous: previous, Current: status}

	s.logger.Info("doctor status updated",
		zap.String("doctor_id", id.String()),
		zap.String("previous", string(previous)),
		zap.String("status", string(status)),
	)

	if status == DoctorSuspended && s.listener != nil {
		cascadeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cascadeTimeout)
		defer cancel()

		n, err := s.listener.CancelAllForDoctor(cascadeCtx, id, SuspensionReason)
		if err != nil {
			s.logger.Error("cascade cancellation failed",
				zap.String("doctor_id", id.String()),
				zap.Error(err),
			)
		}
		change.Cancelled = n
	}

	return change, nil
}
