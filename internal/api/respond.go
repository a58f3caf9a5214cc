package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// statusForKind maps service error kinds onto HTTP codes. Every client-side domain
// failure (conflict, bad transition, bad input) is a 400.
func statusForKind(k appointment.Kind) int {
	switch k {
	case appointment.KindNotFound:
		return http.StatusNotFound
	case appointment.KindForbidden:
		return http.StatusForbidden
	case appointment.KindSlotConflict,
		appointment.KindInvalidTransition,
		appointment.KindInvalidState,
		appointment.KindInvalidInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	kind := appointment.KindOf(err)
	status := statusForKind(kind)

	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, status, string(kind), "internal server error")
		return
	}

	writeError(w, status, string(kind), err.Error())
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// On failure it has already written a 400.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := v.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(appointment.KindInvalidInput), formatValidationError(err))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", e.Field(), e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, ", ")
}
