package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicapi/libs/db"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/patients"
)

const selectPatients = `
	SELECT id::text, document, full_name, birth_date, COALESCE(phone, ''), COALESCE(email, ''),
		COALESCE(address, ''), COALESCE(updated_by::text, ''), created_at, updated_at
	FROM patients`

type PatientRepository struct {
	pool *db.Pool
}

func NewPatientRepository(pool *db.Pool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

func (r *PatientRepository) List(ctx context.Context, pq patients.Query) ([]patients.Patient, int, error) {
	pq = pq.Normalized()
	q := patientFilters(pq)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM patients`+q.whereClause(), q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	sql := selectPatients + q.whereClause() +
		" ORDER BY full_name, document LIMIT " + q.arg(pq.Limit) + " OFFSET " + q.arg(pq.Offset())
	rows, err := r.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanPatient)
	if err != nil {
		return nil, 0, fmt.Errorf("scan patients: %w", err)
	}
	return items, total, nil
}

func patientFilters(pq patients.Query) *query {
	q := &query{}
	if s := strings.TrimSpace(pq.Search); s != "" {
		pattern := "%" + s + "%"
		q.where("(full_name ILIKE ? OR document ILIKE ?)", pattern, pattern)
	}
	return q
}

func (r *PatientRepository) Get(ctx context.Context, id string) (patients.Patient, error) {
	rows, err := r.pool.Query(ctx, selectPatients+` WHERE id = $1::uuid`, id)
	if err != nil {
		return patients.Patient{}, fmt.Errorf("get patient: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPatient)
	if db.IsNotFound(err) {
		return patients.Patient{}, patients.ErrNotFound
	}
	return p, err
}

func (r *PatientRepository) Create(ctx context.Context, p patients.Patient) (patients.Patient, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO patients (document, full_name, birth_date, phone, email, address, updated_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, '')::uuid)
		RETURNING id::text
	`, p.Document, p.FullName, p.BirthDate, p.Phone, p.Email, p.Address, p.UpdatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return patients.Patient{}, patients.ErrDuplicateDocument
	}
	if err != nil {
		return patients.Patient{}, fmt.Errorf("insert patient: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *PatientRepository) Update(ctx context.Context, id string, ch patients.Changes) (patients.Patient, error) {
	if ch.Patch.Empty() {
		return patients.Patient{}, patients.ErrNoFieldsToUpdate
	}
	sql, args := patientUpdateStatement(id, ch)
	var got string
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&got)
	switch {
	case db.IsNotFound(err):
		return patients.Patient{}, patients.ErrNotFound
	case db.IsUniqueViolation(err):
		return patients.Patient{}, patients.ErrDuplicateDocument
	case err != nil:
		return patients.Patient{}, fmt.Errorf("update patient: %w", err)
	}
	return r.Get(ctx, got)
}

func patientUpdateStatement(id string, ch patients.Changes) (string, []any) {
	q := &query{}
	sets := &setList{q: q}
	p := ch.Patch
	if p.Document != nil {
		sets.set("document", *p.Document)
	}
	if p.FullName != nil {
		sets.set("full_name", *p.FullName)
	}
	if p.BirthDate != nil {
		sets.set("birth_date", *p.BirthDate)
	}
	if p.Phone != nil {
		sets.setExpr("phone", "NULLIF(?, '')", *p.Phone)
	}
	if p.Email != nil {
		sets.setExpr("email", "NULLIF(?, '')", *p.Email)
	}
	if p.Address != nil {
		sets.setExpr("address", "NULLIF(?, '')", *p.Address)
	}
	sets.setExpr("updated_by", "NULLIF(?, '')::uuid", ch.UpdatedBy)
	sets.set("updated_at", ch.UpdatedAt)

	sql := "UPDATE patients SET " + sets.String() + " WHERE id = " + q.arg(id) + "::uuid RETURNING id::text"
	return sql, q.args
}

// Delete refuses patients that still have appointments of any status.
func (r *PatientRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1::uuid`, id)
	if db.IsForeignKeyViolation(err) {
		return patients.ErrHasAppointments
	}
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return patients.ErrNotFound
	}
	return nil
}

func scanPatient(row pgx.CollectableRow) (patients.Patient, error) {
	var p patients.Patient
	err := row.Scan(&p.ID, &p.Document, &p.FullName, &p.BirthDate, &p.Phone, &p.Email,
		&p.Address, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

var _ patients.Store = (*PatientRepository)(nil)
