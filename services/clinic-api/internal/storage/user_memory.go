package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryUsers is the user store for running without a database.
type MemoryUsers struct {
	mu    sync.RWMutex
	byID  map[string]User
	docID map[string]string
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byID: map[string]User{}, docID: map[string]string{}}
}

func (m *MemoryUsers) Create(_ context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.docID[user.Document]; taken {
		return User{}, ErrDuplicateDocument
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = roleName(user.RoleID)
	}
	m.byID[user.ID] = user
	m.docID[user.Document] = user.ID
	return user, nil
}

func (m *MemoryUsers) FindByDocument(_ context.Context, document string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.docID[document]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryUsers) FindByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.LastLoginAt = &at
		m.byID[id] = u
	}
	return nil
}

func (m *MemoryUsers) List(_ context.Context, q UserQuery) ([]User, int, error) {
	q = q.Normalized()
	search := strings.ToLower(strings.TrimSpace(q.Search))

	m.mu.RLock()
	var matched []User
	for _, u := range m.byID {
		if search == "" ||
			strings.Contains(strings.ToLower(u.FullName), search) ||
			strings.Contains(strings.ToLower(u.Document), search) {
			matched = append(matched, u)
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

func (m *MemoryUsers) Update(_ context.Context, id string, p UserPatch, _ time.Time) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if p.Document != nil && *p.Document != u.Document {
		if _, taken := m.docID[*p.Document]; taken {
			return User{}, ErrDuplicateDocument
		}
		delete(m.docID, u.Document)
		m.docID[*p.Document] = id
		u.Document = *p.Document
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.RoleID != nil {
		u.RoleID = *p.RoleID
		u.Role = roleName(*p.RoleID)
	}
	if p.Active != nil {
		u.Active = *p.Active
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	m.byID[id] = u
	return u, nil
}

// roleName mirrors the seeded roles table.
func roleName(id int) string {
	switch id {
	case RoleAdminID:
		return "admin"
	case RoleDoctorID:
		return "doctor"
	case RoleReceptionID:
		return "reception"
	default:
		return ""
	}
}
