package appointment

import (
	"context"
	"time"
)

// Store is the persistence the engine needs. Implementations return
// ErrNotFound for unknown ids.
type Store interface {
	ListActiveByProfessional(ctx context.Context, professionalID string) ([]Appointment, error)
	ListActiveByPatient(ctx context.Context, patientID string) ([]Appointment, error)
	Insert(ctx context.Context, a Appointment) (Appointment, error)
	LoadByID(ctx context.Context, id int64) (Appointment, error)
	Update(ctx context.Context, id int64, ch Changes) (Appointment, error)
}

// Changes is a patch plus the audit fields the engine stamps on every write.
type Changes struct {
	Patch
	UpdatedBy string
	UpdatedAt time.Time
}

// Transactor is implemented by stores that can run a conflict check and the
// following write atomically. fn receives a Store bound to the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Journal is implemented by transaction-bound stores that persist lifecycle
// events in the same transaction as the write.
type Journal interface {
	Append(ctx context.Context, ev Event) error
}

// Reader serves the read-only views.
type Reader interface {
	Calendar(ctx context.Context, q CalendarQuery) ([]Appointment, error)
	List(ctx context.Context, q ListQuery) ([]Appointment, int, error)
}

// CalendarQuery bounds are optional; zero times mean unbounded.
type CalendarQuery struct {
	From           time.Time
	To             time.Time
	ProfessionalID string
}

type ListQuery struct {
	From           time.Time
	To             time.Time
	Status         Status
	PatientID      string
	ProfessionalID string
	ServiceTypeID  int64
	Search         string
	Page           int
	Limit          int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

func (q ListQuery) normalized() ListQuery {
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

func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type Page struct {
	Items []Appointment `json:"items"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int           `json:"total"`
	Pages int           `json:"pages"`
}

type EventType string

const (
	EventBooked      EventType = "appointment.booked.v1"
	EventRescheduled EventType = "appointment.rescheduled.v1"
	EventCancelled   EventType = "appointment.cancelled.v1"
)

// Event describes a committed lifecycle change.
type Event struct {
	Type        EventType    `json:"type"`
	Appointment Appointment  `json:"appointment"`
	Previous    *Appointment `json:"previous,omitempty"`
	ActorID     string       `json:"actor_id"`
	OccurredAt  time.Time    `json:"occurred_at"`
}
