package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// slotIndex is the partial unique index over non-cancelled rows.
const slotIndex = "appointments_active_slot_uidx"

const pgUniqueViolation = "23505"

const appointmentColumns = `id, doctor_id, patient_id, doctor_name, patient_name, date, time_slot,
	symptoms, status, notes, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.DoctorName,
		&a.PatientName,
		&a.Date,
		&a.Time,
		&a.Symptoms,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == slotIndex
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindActiveInSlot(ctx context.Context, slot Slot, excludeID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND time_slot = $3
		  AND status <> 'cancelled'
		  AND id <> $4
		LIMIT 1
	`, slot.DoctorID, slot.Date, slot.Time, excludeID)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, doctor_name, patient_name, date, time_slot,
		                          slot_minutes, symptoms, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', '', now(), now())
		RETURNING `+appointmentColumns,
		id, a.DoctorID, a.PatientID, a.DoctorName, a.PatientName, a.Date, a.Time, a.Time.Minutes(), a.Symptoms)

	created, err := scanAppointment(row)
	if err != nil {
		if isSlotConflict(err) {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, date time.Time, slot TimeSlot) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    time_slot = $3,
		    slot_minutes = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns,
		id, date, slot, slot.Minutes())

	updated, err := scanAppointment(row)
	if err != nil {
		if isSlotConflict(err) {
			return nil, ErrSlotConflict
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, note string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = CASE
		              WHEN $4::text = '' THEN notes
		              WHEN notes = '' THEN $4::text
		              ELSE notes || E'\n' || $4::text
		            END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from, note)

	updated, err := scanAppointment(row)
	if err != nil {
		if isSlotConflict(err) {
			return nil, ErrSlotConflict
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('pending', 'confirmed')
		ORDER BY date, slot_minutes, created_at
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, q ListQuery) ([]Appointment, error) {
	query, args := buildListQuery(q)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

// buildListQuery numbers placeholders in filter order; limit and offset always come last.
func buildListQuery(q ListQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.PatientID != nil {
		args = append(args, *q.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if q.DoctorID != nil {
		args = append(args, *q.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, q.Limit, q.Offset)
	query += fmt.Sprintf(` ORDER BY date, slot_minutes, created_at LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	return query, args
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
