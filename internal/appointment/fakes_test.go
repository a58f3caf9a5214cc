package appointment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/notify"
)

// -- Mock Repository --

// memRepo mirrors the Postgres partial unique index: a slot holds at most one non-cancelled row.
type memRepo struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]*Appointment
	events []EventLog

	skipPrecheck bool                // make FindActiveInSlot blind, so only the write guards the slot
	failUpdate   map[uuid.UUID]error // injected UpdateAppointmentStatus failures
	seq          int
}

func newMemRepo() *memRepo {
	return &memRepo{
		appts:      make(map[uuid.UUID]*Appointment),
		failUpdate: make(map[uuid.UUID]error),
	}
}

func (m *memRepo) occupied(slot Slot, excludeID uuid.UUID) *Appointment {
	for _, a := range m.appts {
		if a.ID == excludeID || a.Status == StatusCancelled {
			continue
		}
		if a.DoctorID == slot.DoctorID && a.Date.Equal(slot.Date) && a.Time == slot.Time {
			return a
		}
	}
	return nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) FindActiveInSlot(_ context.Context, slot Slot, excludeID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipPrecheck {
		return nil, ErrAppointmentNotFound
	}
	if a := m.occupied(slot, excludeID); a != nil {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *memRepo) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.occupied(a.Slot(), uuid.Nil) != nil {
		return nil, ErrSlotConflict
	}
	cp := *a
	cp.Status = StatusPending
	m.seq++
	cp.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Second)
	cp.UpdatedAt = cp.CreatedAt
	m.appts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) RescheduleAppointment(_ context.Context, id uuid.UUID, date time.Time, slot TimeSlot) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	if m.occupied(Slot{DoctorID: a.DoctorID, Date: date, Time: slot}, id) != nil {
		return nil, ErrSlotConflict
	}
	a.Date = date
	a.Time = slot
	cp := *a
	return &cp, nil
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus, note string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpdate[id]; err != nil {
		return nil, err
	}
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if note != "" {
		if a.Notes == "" {
			a.Notes = note
		} else {
			a.Notes += "\n" + note
		}
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) ListActiveByDoctor(_ context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && (a.Status == StatusPending || a.Status == StatusConfirmed) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) ListAppointments(_ context.Context, q ListQuery) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// put stores an appointment directly in the given status.
func (m *memRepo) put(a Appointment) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.appts[a.ID] = &a
	return &a
}

// -- Mock Directory --

type memDirectory struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*directory.User
	doctors map[uuid.UUID]*directory.Doctor
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		users:   make(map[uuid.UUID]*directory.User),
		doctors: make(map[uuid.UUID]*directory.Doctor),
	}
}

func (d *memDirectory) GetUser(_ context.Context, id uuid.UUID) (*directory.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return u, nil
}

func (d *memDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.doctors[id]
	if !ok {
		return nil, directory.ErrDoctorNotFound
	}
	return doc, nil
}

func (d *memDirectory) UpdateDoctorStatus(_ context.Context, id uuid.UUID, status directory.DoctorStatus) (directory.DoctorStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.doctors[id]
	if !ok {
		return "", directory.ErrDoctorNotFound
	}
	prev := doc.Status
	doc.Status = status
	return prev, nil
}

func (d *memDirectory) addPatient() Actor {
	id := uuid.New()
	d.users[id] = &directory.User{ID: id, Name: gofakeit.Name(), Email: gofakeit.Email(), Role: directory.RolePatient}
	return Actor{ID: id, Role: directory.RolePatient}
}

func (d *memDirectory) addDoctor(status directory.DoctorStatus) Actor {
	id := uuid.New()
	name := gofakeit.Name()
	email := gofakeit.Email()
	d.users[id] = &directory.User{ID: id, Name: name, Email: email, Role: directory.RoleDoctor}
	d.doctors[id] = &directory.Doctor{ID: id, Name: name, Email: email, Status: status}
	return Actor{ID: id, Role: directory.RoleDoctor}
}

func adminActor() Actor {
	return Actor{ID: uuid.New(), Role: directory.RoleAdmin}
}

// -- Mock Publisher --

type memPublisher struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (p *memPublisher) Publish(_ context.Context, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func (p *memPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Subject
	}
	return out
}

var errPublishDown = errors.New("outbox unavailable")
