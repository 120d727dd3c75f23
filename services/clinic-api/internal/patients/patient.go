// Package patients holds the clinic's patient registry.
package patients

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("patient not found")
	ErrDuplicateDocument = errors.New("patient document already registered")
	ErrHasAppointments   = errors.New("patient has appointments")
	ErrNoFieldsToUpdate  = errors.New("no fields to update")
)

type Patient struct {
	ID        string     `json:"id"`
	Document  string     `json:"document"`
	FullName  string     `json:"full_name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	Address   string     `json:"address,omitempty"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Patch holds the editable fields. Nil leaves a field unchanged; an empty
// string clears an optional one.
type Patch struct {
	Document  *string
	FullName  *string
	BirthDate *time.Time
	Phone     *string
	Email     *string
	Address   *string
}

func (p Patch) Empty() bool {
	return p.Document == nil && p.FullName == nil && p.BirthDate == nil &&
		p.Phone == nil && p.Email == nil && p.Address == nil
}

func (p Patch) Apply(pt Patient) Patient {
	if p.Document != nil {
		pt.Document = *p.Document
	}
	if p.FullName != nil {
		pt.FullName = *p.FullName
	}
	if p.BirthDate != nil {
		d := *p.BirthDate
		pt.BirthDate = &d
	}
	if p.Phone != nil {
		pt.Phone = *p.Phone
	}
	if p.Email != nil {
		pt.Email = *p.Email
	}
	if p.Address != nil {
		pt.Address = *p.Address
	}
	return pt
}

// Changes is a patch plus the audit stamp applied with it.
type Changes struct {
	Patch
	UpdatedBy string
	UpdatedAt time.Time
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Query struct {
	Search string
	Page   int
	Limit  int
}

func (q Query) Normalized() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

func (q Query) Offset() int { return (q.Page - 1) * q.Limit }

// Store persists patients. List orders by name and returns the total
// number of matches before paging.
type Store interface {
	List(ctx context.Context, q Query) ([]Patient, int, error)
	Get(ctx context.Context, id string) (Patient, error)
	Create(ctx context.Context, p Patient) (Patient, error)
	Update(ctx context.Context, id string, ch Changes) (Patient, error)
	Delete(ctx context.Context, id string) error
}
