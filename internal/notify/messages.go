package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "Jan 2, 2006"

// AppointmentInfo is the subset of an appointment the templates need.
type AppointmentInfo struct {
	ID           uuid.UUID
	PatientEmail string
	DoctorName   string
	Date         time.Time
	Time         string
}

func newMessage(info AppointmentInfo, subject, body string) Message {
	return Message{
		ID:            uuid.New(),
		AppointmentID: info.ID,
		Email:         info.PatientEmail,
		Subject:       subject,
		Body:          body,
		CreatedAt:     time.Now().UTC(),
	}
}

func Booked(info AppointmentInfo) Message {
	return newMessage(info, "Appointment Confirmation", fmt.Sprintf(
		"Your appointment has been scheduled with Dr. %s on %s at %s. Please arrive 10 minutes before your scheduled time.",
		info.DoctorName, info.Date.Format(dateLayout), info.Time))
}

func Rescheduled(info AppointmentInfo) Message {
	return newMessage(info, "Appointment Rescheduled", fmt.Sprintf(
		"Your appointment has been rescheduled to %s at %s.",
		info.Date.Format(dateLayout), info.Time))
}

func Confirmed(info AppointmentInfo) Message {
	return newMessage(info, "Appointment Confirmed", fmt.Sprintf(
		"Dr. %s has confirmed your appointment on %s at %s.",
		info.DoctorName, info.Date.Format(dateLayout), info.Time))
}

func Completed(info AppointmentInfo) Message {
	return newMessage(info, "Appointment Completed", fmt.Sprintf(
		"Your appointment with Dr. %s on %s has been marked as completed.",
		info.DoctorName, info.Date.Format(dateLayout)))
}

func Cancelled(info AppointmentInfo, reason string) Message {
	body := fmt.Sprintf("Your appointment scheduled for %s at %s has been cancelled.",
		info.Date.Format(dateLayout), info.Time)
	if reason != "" {
		body += " Reason: " + reason + "."
	}
	return newMessage(info, "Appointment Cancelled", body)
}

// DoctorSuspended carries the rebooking hint sent when a suspension cancels the appointment.
func DoctorSuspended(info AppointmentInfo, reason string) Message {
	return newMessage(info, "Appointment Cancelled", fmt.Sprintf(
		"Your appointment with Dr. %s scheduled for %s at %s has been cancelled. Reason: %s. "+
			"Please contact our support team for assistance in rebooking with another doctor.",
		info.DoctorName, info.Date.Format(dateLayout), info.Time, reason))
}
