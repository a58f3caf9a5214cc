package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/notify"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Service struct {
	repo      Repository
	dir       directory.Directory
	locker    redisclient.Locker
	publisher notify.Publisher
	logger    *zap.Logger
}

func NewService(repo Repository, dir directory.Directory, locker redisclient.Locker, publisher notify.Publisher, logger *zap.Logger) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	return &Service{
		repo:      repo,
		dir:       dir,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
	}
}

// Create books a slot for the calling patient.
// The slot lock only sheds contention; the store's unique index decides the winner.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Appointment, error) {
	if actor.Role != directory.RolePatient {
		return nil, ErrForbidden
	}

	slot, err := NewSlot(in.DoctorID, in.Date, in.Time)
	if err != nil {
		return nil, err
	}

	doctor, err := s.dir.GetDoctor(ctx, in.DoctorID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.Status != directory.DoctorActive {
		return nil, ErrDoctorUnavailable
	}

	patient, err := s.dir.GetUser(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slot.Key(), func(lockCtx context.Context) error {
		if err := s.ensureSlotFree(lockCtx, slot, uuid.Nil); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			ID:          uuid.New(),
			DoctorID:    doctor.ID,
			PatientID:   patient.ID,
			DoctorName:  doctor.Name,
			PatientName: patient.Name,
			Date:        slot.Date,
			Time:        slot.Time,
			Symptoms:    in.Symptoms,
			Status:      StatusPending,
		})
		if err != nil {
			if errors.Is(err, ErrSlotConflict) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.String("patient_id", created.PatientID.String()),
		zap.String("slot", slot.Key()),
	)

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       created.Date.Format(DateLayout),
		"time":       string(created.Time),
	})
	s.publish(ctx, notify.Booked(infoFor(created, patient.Email)))

	return created, nil
}

// Reschedule moves a pending appointment to a new date and time, keeping its id and parties.
func (s *Service) Reschedule(ctx context.Context, actor Actor, id uuid.UUID, newDate, newTime string) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, appt, opReschedule); err != nil {
		return nil, err
	}
	if appt.Status != StatusPending {
		return nil, ErrInvalidState
	}

	slot, err := NewSlot(appt.DoctorID, newDate, newTime)
	if err != nil {
		return nil, err
	}

	var updated *Appointment

	err = s.locker.WithSlotLock(ctx, slot.Key(), func(lockCtx context.Context) error {
		if err := s.ensureSlotFree(lockCtx, slot, appt.ID); err != nil {
			return err
		}

		u, err := s.repo.RescheduleAppointment(lockCtx, appt.ID, slot.Date, slot.Time)
		if err != nil {
			switch {
			case errors.Is(err, ErrSlotConflict):
				return err
			case errors.Is(err, ErrAppointmentNotFound):
				// status moved away from pending after we loaded it
				return ErrInvalidState
			}
			return fmt.Errorf("reschedule appointment: %w", err)
		}

		updated = u
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logger.Info("appointment rescheduled",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("from", appt.Slot().Key()),
		zap.String("to", slot.Key()),
	)

	s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"actor_id":  actor.ID.String(),
		"from_date": appt.Date.Format(DateLayout),
		"from_time": string(appt.Time),
		"date":      updated.Date.Format(DateLayout),
		"time":      string(updated.Time),
	})
	s.notifyPatient(ctx, updated, notify.Rescheduled)

	return updated, nil
}

// SetStatus applies one transition of the appointment state machine.
func (s *Service) SetStatus(ctx context.Context, actor Actor, id uuid.UUID, change StatusChange) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := authorizeTransition(actor, appt, change.Status); err != nil {
		return nil, err
	}

	note := ""
	if change.Status == StatusCancelled {
		note = change.Reason
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, change.Status, note)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// changed concurrently; the observed transition no longer applies
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logger.Info("appointment status changed",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("role", string(actor.Role)),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(updated.Status)),
	)

	payload := map[string]any{
		"actor_id": actor.ID.String(),
		"role":     string(actor.Role),
		"from":     string(appt.Status),
	}
	if note != "" {
		payload["reason"] = note
	}

	switch updated.Status {
	case StatusConfirmed:
		s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, payload)
		s.notifyPatient(ctx, updated, notify.Confirmed)
	case StatusCompleted:
		s.logEvent(ctx, updated.ID, EventAppointmentCompleted, payload)
		s.notifyPatient(ctx, updated, notify.Completed)
	case StatusCancelled:
		s.logEvent(ctx, updated.ID, EventAppointmentCancelled, payload)
		s.notifyPatient(ctx, updated, func(info notify.AppointmentInfo) notify.Message {
			return notify.Cancelled(info, note)
		})
	}

	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Appointment, error) {
	return s.SetStatus(ctx, actor, id, StatusChange{Status: StatusCancelled, Reason: reason})
}

func (s *Service) Confirm(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.SetStatus(ctx, actor, id, StatusChange{Status: StatusConfirmed})
}

func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.SetStatus(ctx, actor, id, StatusChange{Status: StatusCompleted})
}

// CancelAllForDoctor cancels every pending or confirmed appointment of a doctor,
// appending reason to each one's notes. Items are processed independently: a
// failure is logged and the rest continue. Re-running only touches appointments
// that are still active, so nobody is notified twice.
func (s *Service) CancelAllForDoctor(ctx context.Context, doctorID uuid.UUID, reason string) (int, error) {
	active, err := s.repo.ListActiveByDoctor(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("find active appointments: %w", err)
	}

	var (
		cancelled int
		failures  []error
	)

	for _, appt := range active {
		updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusCancelled, reason)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// already left the active states
				continue
			}
			s.logger.Error("failed to cancel appointment",
				zap.String("appointment_id", appt.ID.String()),
				zap.String("doctor_id", doctorID.String()),
				zap.Error(err),
			)
			failures = append(failures, fmt.Errorf("cancel %s: %w", appt.ID, err))
			continue
		}

		cancelled++

		s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
			"reason": reason,
			"from":   string(appt.Status),
			"cause":  "doctor_status",
		})
		s.notifyPatient(ctx, updated, func(info notify.AppointmentInfo) notify.Message {
			return notify.DoctorSuspended(info, reason)
		})
	}

	s.logger.Info("cancelled doctor appointments",
		zap.String("doctor_id", doctorID.String()),
		zap.Int("cancelled", cancelled),
		zap.Int("failed", len(failures)),
	)

	return cancelled, errors.Join(failures...)
}

// Get returns one appointment if the actor is a party to it or an admin.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, appt, opView); err != nil {
		return nil, err
	}
	return appt, nil
}

// List returns the actor's appointments (all of them for admins) in chronological order.
func (s *Service) List(ctx context.Context, actor Actor, f ListFilter) ([]Appointment, error) {
	q := ListQuery{Status: f.Status, Limit: f.Limit, Offset: f.Offset}

	switch actor.Role {
	case directory.RolePatient:
		q.PatientID = &actor.ID
	case directory.RoleDoctor:
		q.DoctorID = &actor.ID
	case directory.RoleAdmin:
	default:
		return nil, ErrForbidden
	}

	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	appts, err := s.repo.ListAppointments(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	SortChronological(appts)
	return appts, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) ensureSlotFree(ctx context.Context, slot Slot, excludeID uuid.UUID) error {
	existing, err := s.repo.FindActiveInSlot(ctx, slot, excludeID)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check slot: %w", err)
	}
	if existing != nil {
		return ErrSlotConflict
	}
	return nil
}

func infoFor(a *Appointment, email string) notify.AppointmentInfo {
	return notify.AppointmentInfo{
		ID:           a.ID,
		PatientEmail: email,
		DoctorName:   a.DoctorName,
		Date:         a.Date,
		Time:         string(a.Time),
	}
}

// notifyPatient resolves the patient's current email in the directory and publishes.
func (s *Service) notifyPatient(ctx context.Context, a *Appointment, build func(notify.AppointmentInfo) notify.Message) {
	if s.publisher == nil {
		return
	}
	patient, err := s.dir.GetUser(ctx, a.PatientID)
	if err != nil {
		s.logger.Warn("skip notification, patient lookup failed",
			zap.String("appointment_id", a.ID.String()),
			zap.Error(err),
		)
		return
	}
	s.publish(ctx, build(infoFor(a, patient.Email)))
}

// publish runs after the write committed; its outcome never changes the operation's result.
func (s *Service) publish(ctx context.Context, msg notify.Message) {
	if s.publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, msg); err != nil {
		s.logger.Warn("failed to queue notification",
			zap.String("appointment_id", msg.AppointmentID.String()),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
