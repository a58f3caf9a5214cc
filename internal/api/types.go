package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

type CreateAppointmentRequest struct {
	DoctorID string `json:"doctor_id" validate:"required,uuid"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Time     string `json:"time" validate:"required,max=16"`
	Symptoms string `json:"symptoms" validate:"max=2000"`
}

type RescheduleRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,max=16"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
	Reason string `json:"reason" validate:"max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type DoctorStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active rejected suspended"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorName  string    `json:"doctor_name"`
	PatientName string    `json:"patient_name"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Symptoms    string    `json:"symptoms,omitempty"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		DoctorName:  a.DoctorName,
		PatientName: a.PatientName,
		Date:        a.Date.Format(appointment.DateLayout),
		Time:        string(a.Time),
		Symptoms:    a.Symptoms,
		Status:      string(a.Status),
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
