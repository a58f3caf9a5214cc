package api

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/directory"
)

type AppointmentService interface {
	Create(ctx context.Context, actor appointment.Actor, in appointment.CreateInput) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, actor appointment.Actor, id uuid.UUID, newDate, newTime string) (*appointment.Appointment, error)
	SetStatus(ctx context.Context, actor appointment.Actor, id uuid.UUID, change appointment.StatusChange) (*appointment.Appointment, error)
	Cancel(ctx context.Context, actor appointment.Actor, id uuid.UUID, reason string) (*appointment.Appointment, error)
	Complete(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Get(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	List(ctx context.Context, actor appointment.Actor, f appointment.ListFilter) ([]appointment.Appointment, error)
}

type DoctorStatusService interface {
	SetDoctorStatus(ctx context.Context, id uuid.UUID, status directory.DoctorStatus) (*directory.StatusChange, error)
}

type handlers struct {
	appointments AppointmentService
	doctors      DoctorStatusService
	validate     *validator.Validate
	logger       *zap.Logger
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var f appointment.ListFilter
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		st, err := appointment.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(appointment.KindInvalidInput), err.Error())
			return
		}
		f.Status = st
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, string(appointment.KindInvalidInput), name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	appts, err := h.appointments.List(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := ListAppointmentsResponse{Appointments: make([]AppointmentResponse, 0, len(appts))}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
	}
	resp.Count = len(resp.Appointments)

	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	appt, err := h.appointments.Get(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	appt, err := h.appointments.Create(r.Context(), actor, appointment.CreateInput{
		DoctorID: uuid.MustParse(req.DoctorID),
		Date:     req.Date,
		Time:     req.Time,
		Symptoms: req.Symptoms,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	appt, err := h.appointments.Reschedule(r.Context(), actor, id, req.Date, req.Time)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	appt, err := h.appointments.SetStatus(r.Context(), actor, id, appointment.StatusChange{
		Status: appointment.AppointmentStatus(req.Status),
		Reason: req.Reason,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// cancelAppointment is a soft delete: the row stays with status cancelled.
func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req CancelRequest
	if r.ContentLength > 0 && !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	appt, err := h.appointments.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	appt, err := h.appointments.Complete(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) setDoctorStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req DoctorStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	change, err := h.doctors.SetDoctorStatus(r.Context(), id, directory.DoctorStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrDoctorNotFound):
			writeError(w, http.StatusNotFound, string(appointment.KindNotFound), err.Error())
		case errors.Is(err, directory.ErrInvalidDoctorStatus):
			writeError(w, http.StatusBadRequest, string(appointment.KindInvalidInput), err.Error())
		default:
			writeServiceError(w, r, h.logger, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(appointment.KindInvalidInput), "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
