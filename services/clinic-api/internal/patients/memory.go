package patients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps patients in process for memory mode and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]Patient
	docID map[string]string
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]Patient{}, docID: map[string]string{}, now: time.Now}
}

func (m *MemoryStore) List(_ context.Context, q Query) ([]Patient, int, error) {
	q = q.Normalized()
	search := strings.ToLower(strings.TrimSpace(q.Search))

	m.mu.RLock()
	var matched []Patient
	for _, p := range m.byID {
		if search == "" ||
			strings.Contains(strings.ToLower(p.FullName), search) ||
			strings.Contains(strings.ToLower(p.Document), search) {
			matched = append(matched, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].FullName == matched[j].FullName {
			return matched[i].Document < matched[j].Document
		}
		return matched[i].FullName < matched[j].FullName
	})
	total := len(matched)
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)
	return matched[start:end], total, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[id]
	if !ok {
		return Patient{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) Create(_ context.Context, p Patient) (Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.docID[p.Document]; taken {
		return Patient{}, ErrDuplicateDocument
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := m.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.byID[p.ID] = p
	m.docID[p.Document] = p.ID
	return p, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, ch Changes) (Patient, error) {
	if ch.Patch.Empty() {
		return Patient{}, ErrNoFieldsToUpdate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return Patient{}, ErrNotFound
	}
	if ch.Document != nil && *ch.Document != p.Document {
		if _, taken := m.docID[*ch.Document]; taken {
			return Patient{}, ErrDuplicateDocument
		}
		delete(m.docID, p.Document)
		m.docID[*ch.Document] = id
	}
	p = ch.Apply(p)
	p.UpdatedBy = ch.UpdatedBy
	p.UpdatedAt = ch.UpdatedAt
	m.byID[id] = p
	return p, nil
}

// Delete removes the patient. Callers check for appointments first; the
// Postgres store enforces that with a foreign key instead.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	delete(m.docID, p.Document)
	return nil
}

var _ Store = (*MemoryStore)(nil)
