package appointment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind groups errors by how callers should react; the HTTP layer maps each
// kind to one status code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Conflicts lists the blocking appointment ids for conflict errors.
	Conflicts []int64
}

func (e *Error) Error() string {
	if len(e.Conflicts) == 0 {
		return e.Message
	}
	ids := make([]string, len(e.Conflicts))
	for i, id := range e.Conflicts {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s (appointments %s)", e.Message, strings.Join(ids, ", "))
}

// Is matches on Code so a conflict carrying ids still equals its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidWindow        = &Error{Kind: KindValidation, Code: "invalid_window", Message: "End date must be after start date"}
	ErrPastSchedule         = &Error{Kind: KindValidation, Code: "past_schedule", Message: "Appointment cannot be scheduled in the past"}
	ErrNoFieldsToUpdate     = &Error{Kind: KindValidation, Code: "no_fields_to_update", Message: "No valid fields to update"}
	ErrNotesTooLong         = &Error{Kind: KindValidation, Code: "notes_too_long", Message: "Observations too long"}
	ErrInvalidStatus        = &Error{Kind: KindValidation, Code: "invalid_status", Message: "Valid status ID required"}
	ErrInvalidRequest       = &Error{Kind: KindValidation, Code: "invalid_request", Message: "Patient and service type are required"}
	ErrUnknownReference     = &Error{Kind: KindValidation, Code: "unknown_reference", Message: "Patient, professional or service type does not exist"}
	ErrPastEditForbidden    = &Error{Kind: KindForbidden, Code: "past_edit_forbidden", Message: "Cannot modify past appointments"}
	ErrNotFound             = &Error{Kind: KindNotFound, Code: "not_found", Message: "Appointment not found"}
	ErrProfessionalConflict = &Error{Kind: KindConflict, Code: "professional_conflict", Message: "Professional has a conflicting appointment at this time"}
	ErrPatientConflict      = &Error{Kind: KindConflict, Code: "patient_conflict", Message: "Patient has a conflicting appointment at this time"}
)

func conflictError(subject SubjectRole, ids []int64) *Error {
	base := ErrPatientConflict
	if subject == SubjectProfessional {
		base = ErrProfessionalConflict
	}
	e := *base
	e.Conflicts = append([]int64(nil), ids...)
	return &e
}

// ConflictFor returns the conflict error for a subject without ids, for stores
// that detect overlaps through a database constraint.
func ConflictFor(subject SubjectRole) error {
	return conflictError(subject, nil)
}

// KindOf reports the kind of an engine error, or 0 for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
