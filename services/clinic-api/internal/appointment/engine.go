package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/md-rashed-zaman/clinicapi/libs/otel"
)

// RoleAdmin may edit appointments that already started.
const RoleAdmin = "admin"

// Actor is the authenticated user performing a change.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) isAdmin() bool { return a.Role == RoleAdmin }

type BookRequest struct {
	PatientID      string
	ProfessionalID string
	Start          time.Time
	End            time.Time
	ServiceTypeID  int64
	Notes          string
	ActingUserID   string
}

type Engine struct {
	store   Store
	now     func() time.Time
	recheck bool
	tracer  trace.Tracer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRescheduleConflictCheck makes Reschedule re-run the overlap checks when
// the window, professional or status of an appointment changes.
func WithRescheduleConflictCheck(on bool) Option {
	return func(e *Engine) { e.recheck = on }
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		now:    time.Now,
		tracer: otelx.Tracer("clinicapi/appointment"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateWindow checks ordering first, then that start is not before now.
// Reschedules only apply the ordering rule.
func ValidateWindow(start, end, now time.Time) error {
	if !start.Before(end) {
		return ErrInvalidWindow
	}
	if start.Before(now) {
		return ErrPastSchedule
	}
	return nil
}

// FindConflicts returns the ids of the subject's active appointments that
// overlap [start, end), leaving out excludeID (pass 0 for none).
func (e *Engine) FindConflicts(ctx context.Context, subject Subject, start, end time.Time, excludeID int64) ([]int64, error) {
	return findConflicts(ctx, e.store, subject, start, end, excludeID)
}

func findConflicts(ctx context.Context, st Store, subject Subject, start, end time.Time, excludeID int64) ([]int64, error) {
	var (
		existing []Appointment
		err      error
	)
	switch subject.Role {
	case SubjectProfessional:
		existing, err = st.ListActiveByProfessional(ctx, subject.ID)
	case SubjectPatient:
		existing, err = st.ListActiveByPatient(ctx, subject.ID)
	default:
		return nil, errors.New("unknown conflict subject")
	}
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, a := range existing {
		if a.ID == excludeID || !a.Status.Active() {
			continue
		}
		if a.Overlaps(start, end) {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

func checkSubject(ctx context.Context, st Store, subject Subject, start, end time.Time, excludeID int64) error {
	ids, err := findConflicts(ctx, st, subject, start, end, excludeID)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return conflictError(subject.Role, ids)
	}
	return nil
}

// Book validates the window, checks the professional and then the patient
// calendar, and stores a new scheduled appointment.
func (e *Engine) Book(ctx context.Context, req BookRequest) (appt Appointment, err error) {
	ctx, span := e.tracer.Start(ctx, "appointment.book", trace.WithAttributes(
		attribute.String("appointment.patient_id", req.PatientID),
		attribute.String("appointment.professional_id", req.ProfessionalID),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(req.PatientID) == "" || req.ServiceTypeID <= 0 {
		return Appointment{}, ErrInvalidRequest
	}
	if notesTooLong(req.Notes) {
		return Appointment{}, ErrNotesTooLong
	}
	now := e.now()
	if err := ValidateWindow(req.Start, req.End, now); err != nil {
		return Appointment{}, err
	}

	err = e.atomically(ctx, func(ctx context.Context, st Store) error {
		if req.ProfessionalID != "" {
			if err := checkSubject(ctx, st, Professional(req.ProfessionalID), req.Start, req.End, 0); err != nil {
				return err
			}
		}
		if err := checkSubject(ctx, st, Patient(req.PatientID), req.Start, req.End, 0); err != nil {
			return err
		}

		created, err := st.Insert(ctx, Appointment{
			PatientID:      req.PatientID,
			ProfessionalID: req.ProfessionalID,
			StartTime:      req.Start,
			EndTime:        req.End,
			ServiceTypeID:  req.ServiceTypeID,
			Status:         StatusScheduled,
			Notes:          req.Notes,
			UpdatedBy:      req.ActingUserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return err
		}
		appt = created
		return record(ctx, st, Event{Type: EventBooked, Appointment: created, ActorID: req.ActingUserID, OccurredAt: now})
	})
	if err != nil {
		return Appointment{}, err
	}
	span.SetAttributes(attribute.Int64("appointment.id", appt.ID))
	return appt, nil
}

// Reschedule merges patch into an existing appointment. Appointments that
// already started can only be edited by an admin; the decision uses the stored
// start, not the patched one. Only the ordering rule is re-checked on a moved
// window.
func (e *Engine) Reschedule(ctx context.Context, id int64, patch Patch, actor Actor) (appt Appointment, err error) {
	ctx, span := e.tracer.Start(ctx, "appointment.reschedule", trace.WithAttributes(
		attribute.Int64("appointment.id", id),
	))
	defer func() { endSpan(span, err) }()

	now := e.now()
	err = e.atomically(ctx, func(ctx context.Context, st Store) error {
		existing, err := st.LoadByID(ctx, id)
		if err != nil {
			return err
		}
		if existing.StartTime.Before(now) && !actor.isAdmin() {
			return ErrPastEditForbidden
		}
		if patch.Empty() {
			return ErrNoFieldsToUpdate
		}
		if err := patch.validate(); err != nil {
			return err
		}

		merged := patch.Apply(existing)
		if patch.movesWindow() && !merged.StartTime.Before(merged.EndTime) {
			return ErrInvalidWindow
		}
		if e.recheck && needsRecheck(existing, merged) {
			if merged.ProfessionalID != "" {
				if err := checkSubject(ctx, st, Professional(merged.ProfessionalID), merged.StartTime, merged.EndTime, id); err != nil {
					return err
				}
			}
			if err := checkSubject(ctx, st, Patient(merged.PatientID), merged.StartTime, merged.EndTime, id); err != nil {
				return err
			}
		}

		updated, err := st.Update(ctx, id, Changes{Patch: patch, UpdatedBy: actor.UserID, UpdatedAt: now})
		if err != nil {
			return err
		}
		appt = updated
		prev := existing
		return record(ctx, st, Event{Type: EventRescheduled, Appointment: updated, Previous: &prev, ActorID: actor.UserID, OccurredAt: now})
	})
	if err != nil {
		return Appointment{}, err
	}
	return appt, nil
}

func needsRecheck(before, after Appointment) bool {
	if !after.Status.Active() {
		return false
	}
	return !before.StartTime.Equal(after.StartTime) ||
		!before.EndTime.Equal(after.EndTime) ||
		before.ProfessionalID != after.ProfessionalID ||
		!before.Status.Active()
}

// Cancel marks the appointment cancelled. Rows are never deleted and
// cancelling twice succeeds; changed is true only for the call that moved
// the appointment into Cancelled.
func (e *Engine) Cancel(ctx context.Context, id int64, actingUserID string) (appt Appointment, changed bool, err error) {
	ctx, span := e.tracer.Start(ctx, "appointment.cancel", trace.WithAttributes(
		attribute.Int64("appointment.id", id),
	))
	defer func() { endSpan(span, err) }()

	now := e.now()
	cancelled := StatusCancelled
	err = e.atomically(ctx, func(ctx context.Context, st Store) error {
		existing, err := st.LoadByID(ctx, id)
		if err != nil {
			return err
		}
		updated, err := st.Update(ctx, id, Changes{Patch: Patch{Status: &cancelled}, UpdatedBy: actingUserID, UpdatedAt: now})
		if err != nil {
			return err
		}
		appt = updated
		changed = existing.Status != StatusCancelled
		if !changed {
			return nil
		}
		prev := existing
		return record(ctx, st, Event{Type: EventCancelled, Appointment: updated, Previous: &prev, ActorID: actingUserID, OccurredAt: now})
	})
	if err != nil {
		return Appointment{}, false, err
	}
	return appt, changed, nil
}

// Calendar lists non-cancelled appointments inside the optional window,
// ordered by start time, as colored calendar entries.
func (e *Engine) Calendar(ctx context.Context, q CalendarQuery) ([]CalendarEntry, error) {
	r, err := e.reader()
	if err != nil {
		return nil, err
	}
	rows, err := r.Calendar(ctx, q)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StartTime.Before(rows[j].StartTime) })

	out := make([]CalendarEntry, 0, len(rows))
	for _, a := range rows {
		if a.Status == StatusCancelled {
			continue
		}
		out = append(out, newCalendarEntry(a))
	}
	return out, nil
}

func (e *Engine) Get(ctx context.Context, id int64) (Appointment, error) {
	return e.store.LoadByID(ctx, id)
}

func (e *Engine) List(ctx context.Context, q ListQuery) (Page, error) {
	r, err := e.reader()
	if err != nil {
		return Page{}, err
	}
	q = q.normalized()
	items, total, err := r.List(ctx, q)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Appointment{}
	}
	return Page{
		Items: items,
		Page:  q.Page,
		Limit: q.Limit,
		Total: total,
		Pages: (total + q.Limit - 1) / q.Limit,
	}, nil
}

func (e *Engine) reader() (Reader, error) {
	r, ok := e.store.(Reader)
	if !ok {
		return nil, errors.New("appointment store does not support listing")
	}
	return r, nil
}

func (e *Engine) atomically(ctx context.Context, fn func(ctx context.Context, st Store) error) error {
	if tx, ok := e.store.(Transactor); ok {
		return tx.WithinTx(ctx, fn)
	}
	return fn(ctx, e.store)
}

func record(ctx context.Context, st Store, ev Event) error {
	if j, ok := st.(Journal); ok {
		return j.Append(ctx, ev)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		if k := KindOf(err); k != 0 {
			span.SetAttributes(attribute.String("appointment.rejected", k.String()))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
