package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/appointment"
)

func TestConflictLabels(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Conflict(appointment.ConflictFor(appointment.SubjectProfessional))
	m.Conflict(appointment.ConflictFor(appointment.SubjectPatient))
	m.Conflict(appointment.ConflictFor(appointment.SubjectPatient))
	m.Conflict(errors.New("db down"))

	if got := testutil.ToFloat64(m.conflicts.WithLabelValues("professional")); got != 1 {
		t.Fatalf("professional conflicts = %v", got)
	}
	if got := testutil.ToFloat64(m.conflicts.WithLabelValues("patient")); got != 2 {
		t.Fatalf("patient conflicts = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Booked()
	m.Cancelled()
	m.LockedOut()
	m.Conflict(appointment.ErrPatientConflict)
}
