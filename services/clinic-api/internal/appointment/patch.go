package appointment

import "time"

// Patch holds the mutable fields of an appointment. Nil means "leave as is";
// an empty ProfessionalID unassigns the professional.
type Patch struct {
	ProfessionalID *string
	StartTime      *time.Time
	EndTime        *time.Time
	ServiceTypeID  *int64
	Notes          *string
	Status         *Status
}

func (p Patch) Empty() bool {
	return p.ProfessionalID == nil &&
		p.StartTime == nil &&
		p.EndTime == nil &&
		p.ServiceTypeID == nil &&
		p.Notes == nil &&
		p.Status == nil
}

func (p Patch) movesWindow() bool {
	return p.StartTime != nil || p.EndTime != nil
}

func (p Patch) validate() error {
	if p.Status != nil && (!p.Status.Valid() || *p.Status == StatusCancelled) {
		return ErrInvalidStatus
	}
	if p.ServiceTypeID != nil && *p.ServiceTypeID <= 0 {
		return ErrInvalidRequest
	}
	if p.Notes != nil && notesTooLong(*p.Notes) {
		return ErrNotesTooLong
	}
	return nil
}

// Apply returns a copy of a with the patch merged in.
func (p Patch) Apply(a Appointment) Appointment {
	if p.ProfessionalID != nil {
		a.ProfessionalID = *p.ProfessionalID
	}
	if p.StartTime != nil {
		a.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		a.EndTime = *p.EndTime
	}
	if p.ServiceTypeID != nil {
		a.ServiceTypeID = *p.ServiceTypeID
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	return a
}
