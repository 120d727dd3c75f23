package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps appointments in process. Transactions are serialized, so
// concurrent books cannot both pass the conflict check. Used by tests and by
// the API when no database is configured.
type MemoryStore struct {
	txMu sync.Mutex

	mu     sync.RWMutex
	nextID int64
	rows   map[int64]Appointment
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[int64]Appointment{}}
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m)
}

func (m *MemoryStore) ListActiveByProfessional(_ context.Context, professionalID string) ([]Appointment, error) {
	return m.filter(func(a Appointment) bool {
		return a.ProfessionalID != "" && a.ProfessionalID == professionalID && a.Status.Active()
	}), nil
}

func (m *MemoryStore) ListActiveByPatient(_ context.Context, patientID string) ([]Appointment, error) {
	return m.filter(func(a Appointment) bool {
		return a.PatientID == patientID && a.Status.Active()
	}), nil
}

func (m *MemoryStore) Insert(_ context.Context, a Appointment) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	m.rows[a.ID] = a
	return a, nil
}

func (m *MemoryStore) LoadByID(_ context.Context, id int64) (Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.rows[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) Update(_ context.Context, id int64, ch Changes) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	a = ch.Patch.Apply(a)
	a.UpdatedBy = ch.UpdatedBy
	a.UpdatedAt = ch.UpdatedAt
	m.rows[id] = a
	return a, nil
}

func (m *MemoryStore) Append(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns the journal in append order.
func (m *MemoryStore) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events...)
}

func (m *MemoryStore) Calendar(_ context.Context, q CalendarQuery) ([]Appointment, error) {
	out := m.filter(func(a Appointment) bool {
		if a.Status == StatusCancelled {
			return false
		}
		if !q.From.IsZero() && a.StartTime.Before(q.From) {
			return false
		}
		if !q.To.IsZero() && a.EndTime.After(q.To) {
			return false
		}
		return q.ProfessionalID == "" || a.ProfessionalID == q.ProfessionalID
	})
	return out, nil
}

func (m *MemoryStore) List(_ context.Context, q ListQuery) ([]Appointment, int, error) {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := m.filter(func(a Appointment) bool {
		switch {
		case !q.From.IsZero() && a.StartTime.Before(q.From):
			return false
		case !q.To.IsZero() && a.EndTime.After(q.To):
			return false
		case q.Status != 0 && a.Status != q.Status:
			return false
		case q.PatientID != "" && a.PatientID != q.PatientID:
			return false
		case q.ProfessionalID != "" && a.ProfessionalID != q.ProfessionalID:
			return false
		case q.ServiceTypeID != 0 && a.ServiceTypeID != q.ServiceTypeID:
			return false
		}
		if search == "" {
			return true
		}
		for _, field := range []string{a.PatientName, a.PatientDocument, a.PatientID} {
			if strings.Contains(strings.ToLower(field), search) {
				return true
			}
		}
		return false
	})
	// Newest first.
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].StartTime.After(matched[j].StartTime) })

	total := len(matched)
	q = q.normalized()
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)
	return matched[start:end], total, nil
}

func (m *MemoryStore) filter(keep func(Appointment) bool) []Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Appointment
	for _, a := range m.rows {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ Transactor = (*MemoryStore)(nil)
	_ Journal    = (*MemoryStore)(nil)
	_ Reader     = (*MemoryStore)(nil)
)
