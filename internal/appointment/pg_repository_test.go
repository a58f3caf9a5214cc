package appointment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointments/internal/db"
)

func TestBuildListQuery(t *testing.T) {
	patientID, doctorID := uuid.New(), uuid.New()

	tests := []struct {
		name      string
		q         ListQuery
		wantWhere string
		wantArgs  []any
	}{
		{
			name:     "no filters",
			q:        ListQuery{Limit: 50},
			wantArgs: []any{50, 0},
		},
		{
			name:      "patient",
			q:         ListQuery{PatientID: &patientID, Limit: 50, Offset: 10},
			wantWhere: " WHERE patient_id = $1",
			wantArgs:  []any{patientID, 50, 10},
		},
		{
			name:      "doctor and status",
			q:         ListQuery{DoctorID: &doctorID, Status: StatusConfirmed, Limit: 20},
			wantWhere: " WHERE doctor_id = $1 AND status = $2",
			wantArgs:  []any{doctorID, StatusConfirmed, 20, 0},
		},
		{
			name:      "status only",
			q:         ListQuery{Status: StatusCancelled, Limit: 5},
			wantWhere: " WHERE status = $1",
			wantArgs:  []any{StatusCancelled, 5, 0},
		},
		{
			name:      "all filters",
			q:         ListQuery{PatientID: &patientID, DoctorID: &doctorID, Status: StatusPending, Limit: 200, Offset: 400},
			wantWhere: " WHERE patient_id = $1 AND doctor_id = $2 AND status = $3",
			wantArgs:  []any{patientID, doctorID, StatusPending, 200, 400},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildListQuery(tt.q)

			n := len(tt.wantArgs)
			want := `SELECT ` + appointmentColumns + ` FROM appointments` + tt.wantWhere +
				fmt.Sprintf(` ORDER BY date, slot_minutes, created_at LIMIT $%d OFFSET $%d`, n-1, n)
			if query != want {
				t.Errorf("query mismatch\n got: %s\nwant: %s", query, want)
			}

			if len(args) != n {
				t.Fatalf("expected %d args, got %d: %v", n, len(args), args)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("arg $%d: got %v, want %v", i+1, args[i], tt.wantArgs[i])
				}
			}
			if strings.Count(query, "$") != n {
				t.Errorf("placeholder count %d does not match %d args", strings.Count(query, "$"), n)
			}
		})
	}
}

func TestIsSlotConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"slot index", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: slotIndex}, true},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: slotIndex}), true},
		{"other unique index", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_email_key"}, false},
		{"other code on slot index", &pgconn.PgError{Code: "23503", ConstraintName: slotIndex}, false},
		{"not a pg error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSlotConflict(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

// -- Postgres --

// testPool connects to TEST_POSTGRES_DSN and applies migrations; the tests below skip without it.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, role string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, name, email, role) VALUES ($1, $2, $3, $4)
	`, id, gofakeit.Name(), id.String()+"@"+gofakeit.DomainName(), role)
	if err != nil {
		t.Fatalf("insert %s: %v", role, err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM event_logs WHERE appointment_id IN
			(SELECT id FROM appointments WHERE doctor_id = $1 OR patient_id = $1)`, id)
		_, _ = pool.Exec(ctx, `DELETE FROM appointments WHERE doctor_id = $1 OR patient_id = $1`, id)
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func TestPgRepository_SlotIndexAndNotes(t *testing.T) {
	pool := testPool(t)
	repo := NewPgRepository(pool)
	ctx := context.Background()

	doctorID := insertUser(t, pool, "doctor")
	patientID := insertUser(t, pool, "patient")
	date := time.Date(2099, 3, 14, 0, 0, 0, 0, time.UTC)

	newAppt := func() *Appointment {
		return &Appointment{
			DoctorID:    doctorID,
			PatientID:   patientID,
			DoctorName:  "Dr. Test",
			PatientName: "Pat Test",
			Date:        date,
			Time:        "10:00 AM",
		}
	}

	first, err := repo.CreateAppointment(ctx, newAppt())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Status != StatusPending || first.Notes != "" {
		t.Fatalf("unexpected new row %+v", first)
	}

	if _, err := repo.CreateAppointment(ctx, newAppt()); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("second booking: expected ErrSlotConflict, got %v", err)
	}

	// empty note leaves notes alone; a stale from-status matches nothing
	confirmed, err := repo.UpdateAppointmentStatus(ctx, first.ID, StatusPending, StatusConfirmed, "")
	if err != nil || confirmed.Notes != "" {
		t.Fatalf("confirm: %+v, %v", confirmed, err)
	}
	if _, err := repo.UpdateAppointmentStatus(ctx, first.ID, StatusPending, StatusCancelled, "late"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("stale transition: expected ErrAppointmentNotFound, got %v", err)
	}

	cancelled, err := repo.UpdateAppointmentStatus(ctx, first.ID, StatusConfirmed, StatusCancelled, "patient request")
	if err != nil || cancelled.Notes != "patient request" {
		t.Fatalf("cancel: %+v, %v", cancelled, err)
	}

	// the cancelled row no longer holds the slot
	second, err := repo.CreateAppointment(ctx, newAppt())
	if err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
	if _, err := repo.UpdateAppointmentStatus(ctx, second.ID, StatusPending, StatusConfirmed, "first"); err != nil {
		t.Fatal(err)
	}
	completed, err := repo.UpdateAppointmentStatus(ctx, second.ID, StatusConfirmed, StatusCompleted, "second")
	if err != nil {
		t.Fatal(err)
	}
	if completed.Notes != "first\nsecond" {
		t.Errorf("expected appended notes, got %q", completed.Notes)
	}

	// a completed row still holds it
	if _, err := repo.CreateAppointment(ctx, newAppt()); !errors.Is(err, ErrSlotConflict) {
		t.Errorf("booking over completed: expected ErrSlotConflict, got %v", err)
	}

	got, err := repo.ListAppointments(ctx, ListQuery{DoctorID: &doctorID, Status: StatusCancelled, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != first.ID {
		t.Errorf("expected only the cancelled booking, got %+v", got)
	}

	all, err := repo.ListAppointments(ctx, ListQuery{PatientID: &patientID, DoctorID: &doctorID, Limit: 10, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected one row after offset 1, got %d", len(all))
	}
}

func TestPgRepository_RescheduleIntoTakenSlot(t *testing.T) {
	pool := testPool(t)
	repo := NewPgRepository(pool)
	ctx := context.Background()

	doctorID := insertUser(t, pool, "doctor")
	patientID := insertUser(t, pool, "patient")
	date := time.Date(2099, 3, 15, 0, 0, 0, 0, time.UTC)

	book := func(slot TimeSlot) *Appointment {
		a, err := repo.CreateAppointment(ctx, &Appointment{
			DoctorID: doctorID, PatientID: patientID, DoctorName: "Dr. Test", PatientName: "Pat Test",
			Date: date, Time: slot,
		})
		if err != nil {
			t.Fatalf("book %s: %v", slot, err)
		}
		return a
	}

	book("9:00 AM")
	moving := book("9:30 AM")

	if _, err := repo.RescheduleAppointment(ctx, moving.ID, date, "9:00 AM"); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}

	moved, err := repo.RescheduleAppointment(ctx, moving.ID, date, "11:00 AM")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.Time != "11:00 AM" || !moved.Date.Equal(date) {
		t.Errorf("unexpected row %+v", moved)
	}
}
