package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicapi/libs/db"
)

const (
	DefaultUserPageSize = 10
	MaxUserPageSize     = 100
)

type UserQuery struct {
	Search string
	Page   int
	Limit  int
}

func (q UserQuery) Normalized() UserQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultUserPageSize
	}
	if q.Limit > MaxUserPageSize {
		q.Limit = MaxUserPageSize
	}
	return q
}

func (q UserQuery) Offset() int { return (q.Page - 1) * q.Limit }

// UserPatch holds the editable account fields. PasswordHash is already
// hashed by the caller.
type UserPatch struct {
	Document     *string
	FullName     *string
	Email        *string
	RoleID       *int
	Active       *bool
	PasswordHash *string
}

func (p UserPatch) Empty() bool {
	return p.Document == nil && p.FullName == nil && p.Email == nil &&
		p.RoleID == nil && p.Active == nil && p.PasswordHash == nil
}

// ValidRole reports whether id is one of the seeded roles.
func ValidRole(id int) bool { return roleName(id) != "" }

func (r *UserRepository) List(ctx context.Context, uq UserQuery) ([]User, int, error) {
	uq = uq.Normalized()
	q := userFilters(uq)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users u`+q.whereClause(), q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	sql := selectUsers + q.whereClause() +
		" ORDER BY u.full_name, u.document LIMIT " + q.arg(uq.Limit) + " OFFSET " + q.arg(uq.Offset())
	rows, err := r.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func userFilters(uq UserQuery) *query {
	q := &query{}
	if s := strings.TrimSpace(uq.Search); s != "" {
		pattern := "%" + s + "%"
		q.where("(u.full_name ILIKE ? OR u.document ILIKE ?)", pattern, pattern)
	}
	return q
}

func (r *UserRepository) Update(ctx context.Context, id string, p UserPatch, at time.Time) (User, error) {
	sql, args := userUpdateStatement(id, p, at)
	var got string
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&got)
	switch {
	case db.IsNotFound(err):
		return User{}, ErrUserNotFound
	case db.IsUniqueViolation(err):
		return User{}, ErrDuplicateDocument
	case err != nil:
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return r.FindByID(ctx, got)
}

func userUpdateStatement(id string, p UserPatch, at time.Time) (string, []any) {
	q := &query{}
	sets := &setList{q: q}
	if p.Document != nil {
		sets.set("document", *p.Document)
	}
	if p.FullName != nil {
		sets.set("full_name", *p.FullName)
	}
	if p.Email != nil {
		sets.setExpr("email", "NULLIF(?, '')", *p.Email)
	}
	if p.RoleID != nil {
		sets.set("role_id", int16(*p.RoleID))
	}
	if p.Active != nil {
		sets.set("active", *p.Active)
	}
	if p.PasswordHash != nil {
		sets.set("password_hash", *p.PasswordHash)
	}
	sets.set("updated_at", at)

	sql := "UPDATE users SET " + sets.String() + " WHERE id = " + q.arg(id) + "::uuid RETURNING id::text"
	return sql, q.args
}
