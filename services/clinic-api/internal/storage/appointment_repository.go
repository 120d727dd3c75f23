package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicapi/libs/db"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/appointment"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/outbox"
)

const (
	constraintProfessionalOverlap = "appointments_professional_no_overlap"
	constraintPatientOverlap      = "appointments_patient_no_overlap"
)

const selectAppointments = `
	SELECT a.id, a.patient_id::text, COALESCE(a.professional_id::text, ''),
		a.start_time, a.end_time, a.service_type_id, a.status_id,
		COALESCE(a.notes, ''), COALESCE(a.updated_by::text, ''), a.created_at, a.updated_at,
		COALESCE(p.full_name, ''), COALESCE(p.document, ''), COALESCE(u.full_name, ''), COALESCE(st.name, '')
	FROM appointments a
	LEFT JOIN patients p ON p.id = a.patient_id
	LEFT JOIN users u ON u.id = a.professional_id
	LEFT JOIN service_types st ON st.id = a.service_type_id`

// AppointmentRepository is the Postgres appointment store. Writes that go
// through WithinTx run SERIALIZABLE, take a per-subject advisory lock before
// reading a calendar, and journal events into the outbox.
type AppointmentRepository struct {
	appointmentQueries
	pool   *db.Pool
	outbox *outbox.Repository
	txOpts db.TxOptions
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{
		appointmentQueries: appointmentQueries{q: pool},
		pool:               pool,
		outbox:             outboxRepo,
		txOpts: db.TxOptions{
			IsoLevel: pgx.Serializable,
			Attempts: 5,
			Backoff:  25 * time.Millisecond,
		},
	}
}

func (r *AppointmentRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx appointment.Store) error) error {
	return db.InTx(ctx, r.pool, r.txOpts, func(tx pgx.Tx) error {
		return fn(ctx, &txAppointments{
			appointmentQueries: appointmentQueries{q: tx, lock: true},
			outbox:             r.outbox,
		})
	})
}

func (r *AppointmentRepository) Calendar(ctx context.Context, cq appointment.CalendarQuery) ([]appointment.Appointment, error) {
	var q query
	q.where("a.status_id <> ?", int16(appointment.StatusCancelled))
	if !cq.From.IsZero() {
		q.where("a.start_time >= ?", cq.From)
	}
	if !cq.To.IsZero() {
		q.where("a.end_time <= ?", cq.To)
	}
	if cq.ProfessionalID != "" {
		q.where("a.professional_id = ?::uuid", cq.ProfessionalID)
	}
	rows, err := r.pool.Query(ctx, selectAppointments+q.whereClause()+" ORDER BY a.start_time ASC, a.id ASC", q.args...)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) List(ctx context.Context, lq appointment.ListQuery) ([]appointment.Appointment, int, error) {
	q := listFilters(lq)

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		LEFT JOIN patients p ON p.id = a.patient_id`+q.whereClause(), q.args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	sql := selectAppointments + q.whereClause() +
		" ORDER BY a.start_time DESC, a.id DESC LIMIT " + q.arg(lq.Limit) + " OFFSET " + q.arg(lq.Offset())
	rows, err := r.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	items, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func listFilters(lq appointment.ListQuery) *query {
	q := &query{}
	if !lq.From.IsZero() {
		q.where("a.start_time >= ?", lq.From)
	}
	if !lq.To.IsZero() {
		q.where("a.end_time <= ?", lq.To)
	}
	if lq.Status != 0 {
		q.where("a.status_id = ?", int16(lq.Status))
	}
	if lq.PatientID != "" {
		q.where("a.patient_id = ?::uuid", lq.PatientID)
	}
	if lq.ProfessionalID != "" {
		q.where("a.professional_id = ?::uuid", lq.ProfessionalID)
	}
	if lq.ServiceTypeID != 0 {
		q.where("a.service_type_id = ?", lq.ServiceTypeID)
	}
	if s := strings.TrimSpace(lq.Search); s != "" {
		pattern := "%" + s + "%"
		q.where("(p.full_name ILIKE ? OR p.document ILIKE ?)", pattern, pattern)
	}
	return q
}

// txAppointments is the Store handed to engine callbacks inside WithinTx.
type txAppointments struct {
	appointmentQueries
	outbox *outbox.Repository
}

func (t *txAppointments) Append(ctx context.Context, ev appointment.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if t.outbox == nil {
		return nil
	}
	return t.outbox.Insert(ctx, t.q, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   ev.Appointment.AggregateID(),
		EventType:     string(ev.Type),
		Payload:       payload,
	})
}

type appointmentQueries struct {
	q db.Querier
	// lock serializes conflict checks per subject for the rest of the
	// transaction; only valid on a transaction-bound querier.
	lock bool
}

func (s appointmentQueries) ListActiveByProfessional(ctx context.Context, professionalID string) ([]appointment.Appointment, error) {
	return s.listActive(ctx, appointment.Professional(professionalID), "a.professional_id")
}

func (s appointmentQueries) ListActiveByPatient(ctx context.Context, patientID string) ([]appointment.Appointment, error) {
	return s.listActive(ctx, appointment.Patient(patientID), "a.patient_id")
}

func (s appointmentQueries) listActive(ctx context.Context, subject appointment.Subject, column string) ([]appointment.Appointment, error) {
	if subject.ID == "" {
		return nil, nil
	}
	if s.lock {
		key := "appointment:" + subject.Role.String() + ":" + subject.ID
		if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return nil, fmt.Errorf("lock %s calendar: %w", subject.Role, err)
		}
	}
	rows, err := s.q.Query(ctx, selectAppointments+`
		WHERE `+column+` = $1::uuid AND a.status_id IN ($2, $3)
		ORDER BY a.start_time ASC`,
		subject.ID, int16(appointment.StatusScheduled), int16(appointment.StatusConfirmed))
	if err != nil {
		return nil, fmt.Errorf("list %s appointments: %w", subject.Role, err)
	}
	return collectAppointments(rows)
}

func (s appointmentQueries) Insert(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO appointments
			(patient_id, professional_id, start_time, end_time, service_type_id, status_id, notes, updated_by, created_at, updated_at)
		VALUES ($1::uuid, NULLIF($2, '')::uuid, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, '')::uuid, $9, $10)
		RETURNING id
	`, a.PatientID, a.ProfessionalID, a.StartTime, a.EndTime, a.ServiceTypeID, int16(a.Status),
		a.Notes, a.UpdatedBy, a.CreatedAt, a.UpdatedAt).Scan(&id)
	if err != nil {
		return appointment.Appointment{}, writeError(err)
	}
	return s.LoadByID(ctx, id)
}

func (s appointmentQueries) LoadByID(ctx context.Context, id int64) (appointment.Appointment, error) {
	rows, err := s.q.Query(ctx, selectAppointments+` WHERE a.id = $1`, id)
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if len(appts) == 0 {
		return appointment.Appointment{}, appointment.ErrNotFound
	}
	return appts[0], nil
}

func (s appointmentQueries) Update(ctx context.Context, id int64, ch appointment.Changes) (appointment.Appointment, error) {
	sql, args := updateStatement(id, ch)
	var updated int64
	if err := s.q.QueryRow(ctx, sql, args...).Scan(&updated); err != nil {
		return appointment.Appointment{}, writeError(err)
	}
	return s.LoadByID(ctx, updated)
}

func updateStatement(id int64, ch appointment.Changes) (string, []any) {
	q := &query{}
	sets := &setList{q: q}
	p := ch.Patch
	if p.ProfessionalID != nil {
		sets.setExpr("professional_id", "NULLIF(?, '')::uuid", *p.ProfessionalID)
	}
	if p.StartTime != nil {
		sets.set("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		sets.set("end_time", *p.EndTime)
	}
	if p.ServiceTypeID != nil {
		sets.set("service_type_id", *p.ServiceTypeID)
	}
	if p.Notes != nil {
		sets.set("notes", *p.Notes)
	}
	if p.Status != nil {
		sets.set("status_id", int16(*p.Status))
	}
	sets.setExpr("updated_by", "NULLIF(?, '')::uuid", ch.UpdatedBy)
	sets.set("updated_at", ch.UpdatedAt)

	sql := "UPDATE appointments SET " + sets.String() + " WHERE id = " + q.arg(id) + " RETURNING id"
	return sql, q.args
}

// writeError turns constraint violations into engine errors.
func writeError(err error) error {
	if name, ok := db.ExclusionConstraint(err); ok {
		switch name {
		case constraintProfessionalOverlap:
			return appointment.ConflictFor(appointment.SubjectProfessional)
		case constraintPatientOverlap:
			return appointment.ConflictFor(appointment.SubjectPatient)
		}
	}
	switch {
	case db.IsNotFound(err):
		return appointment.ErrNotFound
	case db.IsForeignKeyViolation(err):
		return appointment.ErrUnknownReference
	}
	return err
}

func collectAppointments(rows pgx.Rows) ([]appointment.Appointment, error) {
	defer rows.Close()

	var appts []appointment.Appointment
	for rows.Next() {
		var (
			a      appointment.Appointment
			status int16
		)
		if err := rows.Scan(
			&a.ID,
			&a.PatientID,
			&a.ProfessionalID,
			&a.StartTime,
			&a.EndTime,
			&a.ServiceTypeID,
			&status,
			&a.Notes,
			&a.UpdatedBy,
			&a.CreatedAt,
			&a.UpdatedAt,
			&a.PatientName,
			&a.PatientDocument,
			&a.ProfessionalName,
			&a.ServiceTypeName,
		); err != nil {
			return nil, err
		}
		a.Status = appointment.Status(status)
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

var (
	_ appointment.Store      = (*AppointmentRepository)(nil)
	_ appointment.Transactor = (*AppointmentRepository)(nil)
	_ appointment.Reader     = (*AppointmentRepository)(nil)
	_ appointment.Journal    = (*txAppointments)(nil)
)
