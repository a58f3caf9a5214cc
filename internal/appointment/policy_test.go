package appointment

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/directory"
)

var allStatuses = []AppointmentStatus{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]AppointmentStatus]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusConfirmed, StatusCancelled}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]AppointmentStatus{from, to}]
			if got := canTransition(from, to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestAuthorizeTransition(t *testing.T) {
	doctorID, patientID := uuid.New(), uuid.New()
	appt := func(st AppointmentStatus) *Appointment {
		return &Appointment{ID: uuid.New(), DoctorID: doctorID, PatientID: patientID, Status: st}
	}

	var (
		owner       = Actor{ID: patientID, Role: directory.RolePatient}
		assigned    = Actor{ID: doctorID, Role: directory.RoleDoctor}
		admin       = Actor{ID: uuid.New(), Role: directory.RoleAdmin}
		strangerPat = Actor{ID: uuid.New(), Role: directory.RolePatient}
		strangerDoc = Actor{ID: uuid.New(), Role: directory.RoleDoctor}
		// a doctor id presented with the patient role gains nothing
		wrongRole = Actor{ID: doctorID, Role: directory.RolePatient}
	)

	tests := []struct {
		name  string
		actor Actor
		from  AppointmentStatus
		to    AppointmentStatus
		want  error
	}{
		{"doctor confirms", assigned, StatusPending, StatusConfirmed, nil},
		{"admin confirms", admin, StatusPending, StatusConfirmed, nil},
		{"patient confirms", owner, StatusPending, StatusConfirmed, ErrForbidden},
		{"other doctor confirms", strangerDoc, StatusPending, StatusConfirmed, ErrForbidden},
		{"doctor completes", assigned, StatusConfirmed, StatusCompleted, nil},
		{"patient completes", owner, StatusConfirmed, StatusCompleted, ErrForbidden},
		{"patient cancels pending", owner, StatusPending, StatusCancelled, nil},
		{"doctor cancels confirmed", assigned, StatusConfirmed, StatusCancelled, nil},
		{"admin cancels", admin, StatusConfirmed, StatusCancelled, nil},
		{"other patient cancels", strangerPat, StatusPending, StatusCancelled, ErrForbidden},
		{"role mismatch cancels", wrongRole, StatusPending, StatusCancelled, ErrForbidden},
		{"skip confirm", assigned, StatusPending, StatusCompleted, ErrInvalidTransition},
		{"back to pending", admin, StatusConfirmed, StatusPending, ErrInvalidTransition},
		{"same status", admin, StatusPending, StatusPending, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authorizeTransition(tt.actor, appt(tt.from), tt.to)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthorizeTransition_TerminalIsInvalidForEveryone(t *testing.T) {
	doctorID, patientID := uuid.New(), uuid.New()
	actors := []Actor{
		{ID: patientID, Role: directory.RolePatient},
		{ID: doctorID, Role: directory.RoleDoctor},
		{ID: uuid.New(), Role: directory.RoleAdmin},
		{ID: uuid.New(), Role: directory.RolePatient},
	}

	for _, from := range []AppointmentStatus{StatusCompleted, StatusCancelled} {
		for _, to := range allStatuses {
			if canTransition(from, to) {
				t.Errorf("%s should be terminal, reaches %s", from, to)
			}
		}
		a := &Appointment{DoctorID: doctorID, PatientID: patientID, Status: from}
		for _, to := range allStatuses {
			for _, actor := range actors {
				if err := authorizeTransition(actor, a, to); !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%s -> %s by %s: got %v", from, to, actor.Role, err)
				}
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, st := range allStatuses {
		got, err := ParseStatus(string(st))
		if err != nil || got != st {
			t.Errorf("%s: got %s, %v", st, got, err)
		}
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{ErrAppointmentNotFound, KindNotFound},
		{ErrDoctorUnavailable, KindNotFound},
		{ErrForbidden, KindForbidden},
		{ErrSlotConflict, KindSlotConflict},
		{ErrSlotBeingBooked, KindSlotConflict},
		{ErrInvalidTransition, KindInvalidTransition},
		{ErrInvalidState, KindInvalidState},
		{ErrInvalidDate, KindInvalidInput},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("%v: got %s, want %s", tt.err, got, tt.want)
		}
	}
}
