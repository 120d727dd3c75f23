// Package metrics holds the domain counters exported on /metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/appointment"
)

type Metrics struct {
	booked    prometheus.Counter
	conflicts *prometheus.CounterVec
	cancelled prometheus.Counter
	lockouts  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		booked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_appointments_booked_total",
			Help: "Appointments booked.",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_appointment_conflicts_total",
			Help: "Bookings or reschedules rejected by a calendar conflict.",
		}, []string{"subject"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_appointments_cancelled_total",
			Help: "Appointments cancelled.",
		}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_login_lockouts_total",
			Help: "Login attempts rejected because the account was locked.",
		}),
	}
	reg.MustRegister(m.booked, m.conflicts, m.cancelled, m.lockouts)
	return m
}

// The methods below accept a nil receiver so handlers work without metrics.

func (m *Metrics) Booked() {
	if m != nil {
		m.booked.Inc()
	}
}

func (m *Metrics) Cancelled() {
	if m != nil {
		m.cancelled.Inc()
	}
}

func (m *Metrics) LockedOut() {
	if m != nil {
		m.lockouts.Inc()
	}
}

// Conflict counts err when it is a calendar conflict.
func (m *Metrics) Conflict(err error) {
	if m == nil {
		return
	}
	switch {
	case errors.Is(err, appointment.ErrProfessionalConflict):
		m.conflicts.WithLabelValues(appointment.SubjectProfessional.String()).Inc()
	case errors.Is(err, appointment.ErrPatientConflict):
		m.conflicts.WithLabelValues(appointment.SubjectPatient.String()).Inc()
	}
}
