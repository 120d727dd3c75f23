package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicapi/libs/db"
)

const (
	LoginSucceeded = "auth.login.succeeded"
	LoginFailed    = "auth.login.failed"
	LoginLocked    = "auth.login.locked"
)

// Entry is one authentication outcome.
type Entry struct {
	EventType string         `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	Document  string         `json:"document,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder is what the auth handlers write to.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Record(ctx context.Context, e Entry) error {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	raw, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO auth_audit (event_type, user_id, document, ip, user_agent, request_id, metadata)
		VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)
	`, e.EventType, e.UserID, e.Document, e.IP, e.UserAgent, e.RequestID, raw)
	return err
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT event_type, COALESCE(user_id::text, ''), COALESCE(document, ''), COALESCE(ip, ''),
			COALESCE(user_agent, ''), COALESCE(request_id, ''), metadata, created_at
		FROM auth_audit
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e   Entry
			raw []byte
		)
		if err := rows.Scan(&e.EventType, &e.UserID, &e.Document, &e.IP, &e.UserAgent, &e.RequestID, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// Memory keeps entries in process; used when no database is configured.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
