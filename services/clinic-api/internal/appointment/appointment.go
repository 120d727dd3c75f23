// Package appointment holds the booking rules of the clinic: time window
// validation, overlap detection for patients and professionals, and the
// appointment lifecycle (book, reschedule, cancel).
package appointment

import (
	"strconv"
	"time"
	"unicode/utf8"
)

type Status int

const (
	StatusScheduled Status = 1
	StatusConfirmed Status = 2
	StatusCompleted Status = 3
	StatusCancelled Status = 4
)

// MaxNotesLength is counted in characters, not bytes.
const MaxNotesLength = 1000

func (s Status) Valid() bool {
	return s >= StatusScheduled && s <= StatusCancelled
}

// Active statuses block the time slot for both patient and professional.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusConfirmed:
		return "confirmed"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Calendar colors.
const (
	ColorBlue  = "#007bff"
	ColorGreen = "#28a745"
	ColorAmber = "#ffc107"
	ColorRed   = "#dc3545"
)

// Color is total: anything that is not scheduled, confirmed or completed is red.
func (s Status) Color() string {
	switch s {
	case StatusScheduled:
		return ColorBlue
	case StatusConfirmed:
		return ColorGreen
	case StatusCompleted:
		return ColorAmber
	default:
		return ColorRed
	}
}

type Appointment struct {
	ID             int64     `json:"id"`
	PatientID      string    `json:"patient_id"`
	ProfessionalID string    `json:"professional_id,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ServiceTypeID  int64     `json:"service_type_id"`
	Status         Status    `json:"status_id"`
	Notes          string    `json:"notes,omitempty"`
	UpdatedBy      string    `json:"updated_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Display fields filled by stores that can join the catalogs.
	PatientName      string `json:"patient_name,omitempty"`
	PatientDocument  string `json:"patient_document,omitempty"`
	ProfessionalName string `json:"professional_name,omitempty"`
	ServiceTypeName  string `json:"service_type,omitempty"`
}

func (a Appointment) StatusName() string { return a.Status.String() }

// AggregateID is the key used for events about a.
func (a Appointment) AggregateID() string {
	return strconv.FormatInt(a.ID, 10)
}

// Overlaps reports whether [a.StartTime, a.EndTime) intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return Overlaps(a.StartTime, a.EndTime, start, end)
}

// Overlaps is the half-open interval test: touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

type SubjectRole int

const (
	SubjectPatient SubjectRole = iota + 1
	SubjectProfessional
)

func (r SubjectRole) String() string {
	switch r {
	case SubjectPatient:
		return "patient"
	case SubjectProfessional:
		return "professional"
	default:
		return "unknown"
	}
}

// Subject is whose calendar a conflict check runs against.
type Subject struct {
	Role SubjectRole
	ID   string
}

func Patient(id string) Subject      { return Subject{Role: SubjectPatient, ID: id} }
func Professional(id string) Subject { return Subject{Role: SubjectProfessional, ID: id} }

// CalendarEntry is the lightweight projection used by calendar views.
type CalendarEntry struct {
	ID             int64     `json:"id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	PatientID      string    `json:"patient_id"`
	ProfessionalID string    `json:"professional_id,omitempty"`
	ServiceType    string    `json:"service_type,omitempty"`
	Status         Status    `json:"status_id"`
	StatusName     string    `json:"status"`
	Color          string    `json:"color"`
}

func newCalendarEntry(a Appointment) CalendarEntry {
	title := a.PatientName
	if title == "" {
		title = a.PatientID
	}
	return CalendarEntry{
		ID:             a.ID,
		Start:          a.StartTime,
		End:            a.EndTime,
		Title:          title,
		Description:    a.Notes,
		PatientID:      a.PatientID,
		ProfessionalID: a.ProfessionalID,
		ServiceType:    a.ServiceTypeName,
		Status:         a.Status,
		StatusName:     a.Status.String(),
		Color:          a.Status.Color(),
	}
}

func notesTooLong(notes string) bool {
	return utf8.RuneCountInString(notes) > MaxNotesLength
}
