package appointment

import "github.com/hackgods/clinic-appointments/internal/directory"

// party is the relation of an actor to one appointment.
type party uint8

const (
	partyPatient party = 1 << iota
	partyDoctor
	partyAdmin

	anyParty = partyPatient | partyDoctor | partyAdmin
)

func relation(actor Actor, a *Appointment) party {
	switch actor.Role {
	case directory.RoleAdmin:
		return partyAdmin
	case directory.RoleDoctor:
		if actor.ID == a.DoctorID {
			return partyDoctor
		}
	case directory.RolePatient:
		if actor.ID == a.PatientID {
			return partyPatient
		}
	}
	return 0
}

// transitions lists, per current status, the reachable statuses and who may move there.
var transitions = map[AppointmentStatus]map[AppointmentStatus]party{
	StatusPending: {
		StatusConfirmed: partyDoctor | partyAdmin,
		StatusCancelled: anyParty,
	},
	StatusConfirmed: {
		StatusCompleted: partyDoctor | partyAdmin,
		StatusCancelled: anyParty,
	},
}

type operation string

const (
	opView       operation = "view"
	opReschedule operation = "reschedule"
)

var operationPolicy = map[operation]party{
	opView:       anyParty,
	opReschedule: anyParty,
}

func canTransition(from, to AppointmentStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

func authorizeTransition(actor Actor, a *Appointment, to AppointmentStatus) error {
	if !canTransition(a.Status, to) {
		return ErrInvalidTransition
	}
	if relation(actor, a)&transitions[a.Status][to] == 0 {
		return ErrForbidden
	}
	return nil
}

func authorize(actor Actor, a *Appointment, op operation) error {
	if relation(actor, a)&operationPolicy[op] == 0 {
		return ErrForbidden
	}
	return nil
}
