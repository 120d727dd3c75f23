package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	patient1 = "8a4f2f4e-4d7e-4a3c-9f0e-111111111111"
	patient2 = "8a4f2f4e-4d7e-4a3c-9f0e-222222222222"
	doctor1  = "5c1d9b2a-7e2f-4b8d-8c3a-aaaaaaaaaaaa"
	doctor2  = "5c1d9b2a-7e2f-4b8d-8c3a-bbbbbbbbbbbb"
	staff    = "0f0e0d0c-0b0a-4909-8807-060504030201"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestEngine(opts ...Option) (*Engine, *MemoryStore, *clock) {
	store := NewMemoryStore()
	clk := &clock{now: at("08:00")}
	e := NewEngine(store, append([]Option{WithClock(clk.Now)}, opts...)...)
	return e, store, clk
}

func bookReq(patientID, professionalID, start, end string) BookRequest {
	return BookRequest{
		PatientID:      patientID,
		ProfessionalID: professionalID,
		Start:          at(start),
		End:            at(end),
		ServiceTypeID:  1,
		ActingUserID:   staff,
	}
}

func ptr[T any](v T) *T { return &v }

func TestBookPersistsScheduledAppointment(t *testing.T) {
	e, store, clk := newTestEngine()
	ctx := context.Background()

	req := bookReq(patient1, doctor1, "10:00", "10:30")
	req.Notes = "first visit"
	appt, err := e.Book(ctx, req)
	require.NoError(t, err)

	assert.NotZero(t, appt.ID)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, staff, appt.UpdatedBy)
	assert.Equal(t, clk.Now(), appt.CreatedAt)
	assert.Equal(t, clk.Now(), appt.UpdatedAt)
	assert.Equal(t, "first visit", appt.Notes)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventBooked, events[0].Type)
	assert.Equal(t, appt.ID, events[0].Appointment.ID)
}

func TestBookValidation(t *testing.T) {
	e, store, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Book(ctx, bookReq(patient1, doctor1, "10:30", "10:00"))
	require.ErrorIs(t, err, ErrInvalidWindow)

	_, err = e.Book(ctx, bookReq(patient1, doctor1, "07:00", "07:30"))
	require.ErrorIs(t, err, ErrPastSchedule)

	req := bookReq("", doctor1, "10:00", "10:30")
	_, err = e.Book(ctx, req)
	require.ErrorIs(t, err, ErrInvalidRequest)

	req = bookReq(patient1, doctor1, "10:00", "10:30")
	req.Notes = strings.Repeat("ñ", MaxNotesLength)
	_, err = e.Book(ctx, req)
	require.NoError(t, err, "1000 multi-byte characters fit")

	req = bookReq(patient2, doctor2, "10:00", "10:30")
	req.Notes = strings.Repeat("a", MaxNotesLength+1)
	_, err = e.Book(ctx, req)
	require.ErrorIs(t, err, ErrNotesTooLong)
	assert.Equal(t, KindValidation, KindOf(err))

	assert.Len(t, store.Events(), 1)
}

func TestBookChecksProfessionalBeforePatient(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	first, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
	require.NoError(t, err)

	// Both calendars are busy: the professional is reported.
	_, err = e.Book(ctx, bookReq(patient1, doctor1, "10:15", "10:45"))
	require.ErrorIs(t, err, ErrProfessionalConflict)
	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []int64{first.ID}, ce.Conflicts)
	assert.Equal(t, KindConflict, KindOf(err))

	// Other professional, same patient.
	_, err = e.Book(ctx, bookReq(patient1, doctor2, "10:15", "10:45"))
	require.ErrorIs(t, err, ErrPatientConflict)

	// Unassigned appointments only check the patient.
	_, err = e.Book(ctx, bookReq(patient1, "", "10:20", "10:40"))
	require.ErrorIs(t, err, ErrPatientConflict)
	_, err = e.Book(ctx, bookReq(patient2, "", "10:00", "10:30"))
	require.NoError(t, err)
}

func TestFindConflictsIgnoresInactiveAndSelf(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	scheduled, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "11:00"))
	require.NoError(t, err)
	confirmed, err := e.Book(ctx, bookReq(patient2, doctor2, "10:00", "11:00"))
	require.NoError(t, err)
	_, err = e.Reschedule(ctx, confirmed.ID, Patch{Status: ptr(StatusConfirmed)}, Actor{UserID: staff})
	require.NoError(t, err)

	ids, err := e.FindConflicts(ctx, Professional(doctor1), at("10:30"), at("10:45"), 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{scheduled.ID}, ids)

	ids, err = e.FindConflicts(ctx, Professional(doctor2), at("10:30"), at("10:45"), 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{confirmed.ID}, ids, "confirmed appointments still block")

	ids, err = e.FindConflicts(ctx, Professional(doctor1), at("10:30"), at("10:45"), scheduled.ID)
	require.NoError(t, err)
	assert.Empty(t, ids, "an appointment never conflicts with itself")

	_, err = e.Reschedule(ctx, scheduled.ID, Patch{Status: ptr(StatusCompleted)}, Actor{UserID: staff})
	require.NoError(t, err)
	_, _, err = e.Cancel(ctx, confirmed.ID, staff)
	require.NoError(t, err)

	for _, s := range []Subject{Professional(doctor1), Professional(doctor2), Patient(patient1), Patient(patient2)} {
		ids, err := e.FindConflicts(ctx, s, at("10:00"), at("11:00"), 0)
		require.NoError(t, err)
		assert.Empty(t, ids, "completed and cancelled never conflict (%s %s)", s.Role, s.ID)
	}
}

func TestRescheduleRules(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		e, _, _ := newTestEngine()
		_, err := e.Reschedule(ctx, 99, Patch{Notes: ptr("x")}, Actor{UserID: staff})
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("past appointment locked for non admin even when moved forward", func(t *testing.T) {
		e, _, clk := newTestEngine()
		appt, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
		require.NoError(t, err)
		clk.Set(at("12:00"))

		patch := Patch{StartTime: ptr(at("15:00")), EndTime: ptr(at("15:30"))}
		_, err = e.Reschedule(ctx, appt.ID, patch, Actor{UserID: staff, Role: "doctor"})
		require.ErrorIs(t, err, ErrPastEditForbidden)
		assert.Equal(t, KindForbidden, KindOf(err))

		moved, err := e.Reschedule(ctx, appt.ID, patch, Actor{UserID: "admin-1", Role: RoleAdmin})
		require.NoError(t, err)
		assert.Equal(t, at("15:00"), moved.StartTime)
		assert.Equal(t, "admin-1", moved.UpdatedBy)
		assert.Equal(t, at("12:00"), moved.UpdatedAt)
	})

	t.Run("forbidden is checked before empty patch", func(t *testing.T) {
		e, _, clk := newTestEngine()
		appt, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
		require.NoError(t, err)
		clk.Set(at("11:00"))
		_, err = e.Reschedule(ctx, appt.ID, Patch{}, Actor{UserID: staff})
		require.ErrorIs(t, err, ErrPastEditForbidden)
	})

	t.Run("empty patch", func(t *testing.T) {
		e, _, _ := newTestEngine()
		appt, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
		require.NoError(t, err)
		_, err = e.Reschedule(ctx, appt.ID, Patch{}, Actor{UserID: staff})
		require.ErrorIs(t, err, ErrNoFieldsToUpdate)
	})

	t.Run("ordering checked against merged window", func(t *testing.T) {
		e, _, _ := newTestEngine()
		appt, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
		require.NoError(t, err)
		_, err = e.Reschedule(ctx, appt.ID, Patch{StartTime: ptr(at("10:30"))}, Actor{UserID: staff})
		require.ErrorIs(t, err, ErrInvalidWindow)
		_, err = e.Reschedule(ctx, appt.ID, Patch{EndTime: ptr(at("09:00"))}, Actor{UserID: staff})
		require.ErrorIs(t, err, ErrInvalidWindow)
	})

	t.Run("past rule is not reapplied", func(t *testing.T) {
		e, _, _ := newTestEngine()
		appt, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
		require.NoError(t, err)
		moved, err := e.Reschedule(ctx, appt.ID, Patch{StartTime: ptr(at("06:00")), EndTime: ptr(at("06:30"))}, Actor{UserID: staff})
		require.NoError(t, err)
		assert.Equal(t, at("06:00"), moved.StartTime)
	})

	t.Run("status patch cannot cancel", func(t *testing.T) {
		e, _, _ := newTestEngine()
		appt, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
		require.NoError(t, err)
		_, err = e.Reschedule(ctx, appt.ID, Patch{Status: ptr(StatusCancelled)}, Actor{UserID: staff})
		require.ErrorIs(t, err, ErrInvalidStatus)
		_, err = e.Reschedule(ctx, appt.ID, Patch{Status: ptr(Status(7))}, Actor{UserID: staff})
		require.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("only patched fields change", func(t *testing.T) {
		e, store, _ := newTestEngine()
		req := bookReq(patient1, doctor1, "10:00", "10:30")
		req.Notes = "keep me"
		appt, err := e.Book(ctx, req)
		require.NoError(t, err)

		updated, err := e.Reschedule(ctx, appt.ID, Patch{ProfessionalID: ptr(""), ServiceTypeID: ptr(int64(3))}, Actor{UserID: "nurse-1"})
		require.NoError(t, err)
		assert.Empty(t, updated.ProfessionalID)
		assert.Equal(t, int64(3), updated.ServiceTypeID)
		assert.Equal(t, "keep me", updated.Notes)
		assert.Equal(t, appt.StartTime, updated.StartTime)
		assert.Equal(t, "nurse-1", updated.UpdatedBy)

		events := store.Events()
		require.Len(t, events, 2)
		assert.Equal(t, EventRescheduled, events[1].Type)
		require.NotNil(t, events[1].Previous)
		assert.Equal(t, doctor1, events[1].Previous.ProfessionalID)
	})
}

func TestRescheduleConflictCheckIsOptIn(t *testing.T) {
	ctx := context.Background()

	lenient, _, _ := newTestEngine()
	_, err := lenient.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
	require.NoError(t, err)
	second, err := lenient.Book(ctx, bookReq(patient2, doctor1, "11:00", "11:30"))
	require.NoError(t, err)
	_, err = lenient.Reschedule(ctx, second.ID, Patch{StartTime: ptr(at("10:15")), EndTime: ptr(at("10:45"))}, Actor{UserID: staff})
	require.NoError(t, err, "default behavior does not re-run conflict detection")

	strict, _, _ := newTestEngine(WithRescheduleConflictCheck(true))
	first, err := strict.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
	require.NoError(t, err)
	second, err = strict.Book(ctx, bookReq(patient2, doctor1, "11:00", "11:30"))
	require.NoError(t, err)

	_, err = strict.Reschedule(ctx, second.ID, Patch{StartTime: ptr(at("10:15")), EndTime: ptr(at("10:45"))}, Actor{UserID: staff})
	require.ErrorIs(t, err, ErrProfessionalConflict)

	// Shrinking an appointment inside its own slot is not a conflict with itself.
	_, err = strict.Reschedule(ctx, first.ID, Patch{EndTime: ptr(at("10:20"))}, Actor{UserID: staff})
	require.NoError(t, err)

	// Notes-only edits skip the check.
	_, err = strict.Reschedule(ctx, first.ID, Patch{Notes: ptr("bring results")}, Actor{UserID: staff})
	require.NoError(t, err)
}

func TestCancel(t *testing.T) {
	e, store, clk := newTestEngine()
	ctx := context.Background()

	_, _, err := e.Cancel(ctx, 404, staff)
	require.ErrorIs(t, err, ErrNotFound)

	appt, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
	require.NoError(t, err)

	clk.Set(at("09:00"))
	cancelled, changed, err := e.Cancel(ctx, appt.ID, "reception-1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "reception-1", cancelled.UpdatedBy)
	assert.Equal(t, at("09:00"), cancelled.UpdatedAt)

	again, changed, err := e.Cancel(ctx, appt.ID, "reception-2")
	require.NoError(t, err)
	assert.False(t, changed, "already cancelled")
	assert.Equal(t, StatusCancelled, again.Status)

	stored, err := e.Get(ctx, appt.ID)
	require.NoError(t, err, "cancel never deletes")
	assert.Equal(t, StatusCancelled, stored.Status)

	var cancels int
	for _, ev := range store.Events() {
		if ev.Type == EventCancelled {
			cancels++
		}
	}
	assert.Equal(t, 1, cancels, "a repeated cancel does not publish again")
}

func TestCalendar(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	a, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
	require.NoError(t, err)
	b, err := e.Book(ctx, bookReq(patient2, doctor1, "09:00", "09:30"))
	require.NoError(t, err)
	c, err := e.Book(ctx, bookReq(patient2, doctor2, "11:00", "11:30"))
	require.NoError(t, err)
	d, err := e.Book(ctx, bookReq(patient1, doctor2, "12:00", "12:30"))
	require.NoError(t, err)

	_, err = e.Reschedule(ctx, b.ID, Patch{Status: ptr(StatusConfirmed)}, Actor{UserID: staff})
	require.NoError(t, err)
	_, err = e.Reschedule(ctx, c.ID, Patch{Status: ptr(StatusCompleted)}, Actor{UserID: staff})
	require.NoError(t, err)
	_, _, err = e.Cancel(ctx, d.ID, staff)
	require.NoError(t, err)

	entries, err := e.Calendar(ctx, CalendarQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 3, "cancelled appointments are hidden")
	assert.Equal(t, []int64{b.ID, a.ID, c.ID}, []int64{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.Equal(t, ColorGreen, entries[0].Color)
	assert.Equal(t, ColorBlue, entries[1].Color)
	assert.Equal(t, ColorAmber, entries[2].Color)
	assert.Equal(t, patient2, entries[0].Title)

	entries, err = e.Calendar(ctx, CalendarQuery{ProfessionalID: doctor1, From: at("09:30")})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, a.ID, entries[0].ID)

	entries, err = e.Calendar(ctx, CalendarQuery{To: at("10:15")})
	require.NoError(t, err)
	require.Len(t, entries, 1, "entries must end inside the window")
	assert.Equal(t, b.ID, entries[0].ID)
}

func TestListPagination(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	for i, slot := range []string{"09:00", "10:00", "11:00", "12:00", "13:00"} {
		end := at(slot).Add(30 * time.Minute).Format("15:04")
		req := bookReq(patient1, doctor1, slot, end)
		req.ServiceTypeID = int64(i%2 + 1)
		_, err := e.Book(ctx, req)
		require.NoError(t, err)
	}

	page, err := e.List(ctx, ListQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, at("11:00"), page.Items[0].StartTime, "newest first")

	page, err = e.List(ctx, ListQuery{ServiceTypeID: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, DefaultPageSize, page.Limit)

	page, err = e.List(ctx, ListQuery{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

// P1 and P2 against one doctor, including the touching boundary and a
// cancellation freeing the slot.
func TestBookingScenario(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	first, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, first.Status)

	_, err = e.Book(ctx, bookReq(patient2, doctor1, "10:15", "10:45"))
	require.ErrorIs(t, err, ErrProfessionalConflict)

	_, err = e.Book(ctx, bookReq(patient2, doctor1, "10:30", "11:00"))
	require.NoError(t, err, "touching intervals do not conflict")

	_, _, err = e.Cancel(ctx, first.ID, staff)
	require.NoError(t, err)

	_, err = e.Book(ctx, bookReq(patient2, doctor1, "10:00", "10:30"))
	require.NoError(t, err, "a cancelled appointment no longer blocks the slot")
}

func TestConcurrentBookingsAdmitOne(t *testing.T) {
	e, store, _ := newTestEngine()
	ctx := context.Background()

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			req := bookReq("patient-"+string(rune('a'+i)), doctor1, "10:00", "10:30")
			_, err := e.Book(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrProfessionalConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)

	active, err := store.ListActiveByProfessional(ctx, doctor1)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestConcurrentCancelsReportOneTransition(t *testing.T) {
	e, store, _ := newTestEngine()
	ctx := context.Background()
	appt, err := e.Book(ctx, bookReq(patient1, doctor1, "10:00", "10:30"))
	require.NoError(t, err)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := e.Cancel(ctx, appt.ID, staff)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changes)
	var events int
	for _, ev := range store.Events() {
		if ev.Type == EventCancelled {
			events++
		}
	}
	assert.Equal(t, 1, events)
}
