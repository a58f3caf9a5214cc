package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/directory"
)

type RouterConfig struct {
	Appointments AppointmentService
	Doctors      DoctorStatusService
	Health       *HealthHandler
	JWTSecret    string
	Logger       *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &handlers{
		appointments: cfg.Appointments,
		doctors:      cfg.Doctors,
		validate:     newValidator(),
		logger:       logger,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoverMiddleware(logger))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", h.listAppointments)
			r.With(RequireRoles(directory.RolePatient)).Post("/", h.createAppointment)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getAppointment)
				r.Put("/", h.rescheduleAppointment)
				r.Delete("/", h.cancelAppointment)
				r.Patch("/status", h.updateStatus)
				r.With(RequireRoles(directory.RoleDoctor, directory.RoleAdmin)).Patch("/complete", h.completeAppointment)
			})
		})

		r.With(RequireRoles(directory.RoleAdmin)).Patch("/doctors/{id}/status", h.setDoctorStatus)
	})

	return r
}
