package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/clinicapi/libs/db"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateDocument = errors.New("user document already registered")
)

// Seeded role ids.
const (
	RoleAdminID     = 1
	RoleDoctorID    = 2
	RoleReceptionID = 3
)

type User struct {
	ID           string     `json:"id"`
	Document     string     `json:"document"`
	FullName     string     `json:"full_name"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"`
	RoleID       int        `json:"role_id"`
	Role         string     `json:"role"`
	Active       bool       `json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const selectUsers = `
	SELECT u.id::text, u.document, u.full_name, COALESCE(u.email, ''), u.password_hash,
		u.role_id, r.name, u.active, u.last_login_at
	FROM users u
	JOIN roles r ON r.id = u.role_id`

func (r *UserRepository) Create(ctx context.Context, user User) (User, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (document, full_name, email, password_hash, role_id, active)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		RETURNING id::text
	`, user.Document, user.FullName, user.Email, user.PasswordHash, user.RoleID, user.Active).Scan(&user.ID)
	if db.IsUniqueViolation(err) {
		return User{}, ErrDuplicateDocument
	}
	if err != nil {
		return User{}, err
	}
	return r.FindByID(ctx, user.ID)
}

func (r *UserRepository) FindByDocument(ctx context.Context, document string) (User, error) {
	return r.scanOne(ctx, selectUsers+` WHERE u.document = $1`, document)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.scanOne(ctx, selectUsers+` WHERE u.id = $1::uuid`, id)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1::uuid`, id, at)
	return err
}

func (r *UserRepository) scanOne(ctx context.Context, sql string, arg any) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, sql, arg))
	if db.IsNotFound(err) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u      User
		roleID int16
	)
	err := row.Scan(
		&u.ID, &u.Document, &u.FullName, &u.Email, &u.PasswordHash,
		&roleID, &u.Role, &u.Active, &u.LastLoginAt,
	)
	if err != nil {
		return User{}, err
	}
	u.RoleID = int(roleID)
	return u, nil
}
