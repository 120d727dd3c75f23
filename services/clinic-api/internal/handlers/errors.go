package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicapi/libs/httpx"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/appointment"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/patients"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/storage"
)

// sentinels maps store errors to their response.
var sentinels = []struct {
	err     error
	status  int
	message string
}{
	{patients.ErrNotFound, http.StatusNotFound, "Patient not found"},
	{patients.ErrDuplicateDocument, http.StatusConflict, "Patient with this document already exists"},
	{patients.ErrHasAppointments, http.StatusConflict, "Cannot delete patient with existing appointments"},
	{patients.ErrNoFieldsToUpdate, http.StatusBadRequest, "No valid fields to update"},
	{storage.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{storage.ErrDuplicateDocument, http.StatusConflict, "User with this document already exists"},
}

func statusFor(k appointment.Kind) int {
	switch k {
	case appointment.KindValidation:
		return http.StatusBadRequest
	case appointment.KindForbidden:
		return http.StatusForbidden
	case appointment.KindNotFound:
		return http.StatusNotFound
	case appointment.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders engine and store errors with their own status and
// message; anything else is logged and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var e *appointment.Error
	if errors.As(err, &e) {
		env := httpx.Envelope{Message: e.Message, Code: e.Code}
		if len(e.Conflicts) > 0 {
			env.Conflicts = e.Conflicts
		}
		httpx.FailWith(w, statusFor(e.Kind), env)
		return
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			httpx.Fail(w, s.status, s.message)
			return
		}
	}
	logger.Error("request failed",
		"err", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", httpx.RequestIDFromContext(r.Context()),
	)
	httpx.Fail(w, http.StatusInternalServerError, "Internal server error")
}
