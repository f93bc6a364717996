// Package store persists fetched monthly schedules so a restart does not
// need the upstream API to serve the current month.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// ErrNotFound is returned by Load when no usable schedule is stored for the
// key. A record that fails validation counts as missing.
var ErrNotFound = errors.New("schedule not found")

// DefaultTTL keeps a month around long enough to cover the following month
const DefaultTTL = 62 * 24 * time.Hour

// Store is a key-value home for monthly schedules
type Store interface {
	Load(ctx context.Context, zone string, year int, month time.Month) (*waktusolat.MonthlySchedule, error)
	Save(ctx context.Context, schedule *waktusolat.MonthlySchedule) error
	Close() error
}

// Key returns the storage key for a zone and month
func Key(zone string, year int, month time.Month) string {
	return fmt.Sprintf("solatsync:schedule:%s:%04d-%02d", strings.ToUpper(zone), year, int(month))
}

type record struct {
	Zone    string           `json:"zone"`
	Year    int              `json:"year"`
	Month   int              `json:"month"`
	Rows    []waktusolat.Row `json:"prayers"`
	SavedAt time.Time        `json:"saved_at"`
}

func encode(s *waktusolat.MonthlySchedule) ([]byte, error) {
	return json.Marshal(record{
		Zone:    s.Zone,
		Year:    s.Year,
		Month:   int(s.Month),
		Rows:    s.Rows,
		SavedAt: time.Now().UTC(),
	})
}

func decode(data []byte, source string) (*waktusolat.MonthlySchedule, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding stored schedule: %w", err)
	}
	s := &waktusolat.MonthlySchedule{
		Zone:   r.Zone,
		Year:   r.Year,
		Month:  time.Month(r.Month),
		Rows:   r.Rows,
		Source: source,
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: stored %04d-%02d: %v", ErrNotFound, r.Year, r.Month, err)
	}
	return s, nil
}

// Memory is an in-process Store
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Load returns a stored schedule
func (m *Memory) Load(_ context.Context, zone string, year int, month time.Month) (*waktusolat.MonthlySchedule, error) {
	m.mu.RLock()
	data, ok := m.data[Key(zone, year, month)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data, "memory")
}

// Save stores a schedule, replacing any previous copy
func (m *Memory) Save(_ context.Context, schedule *waktusolat.MonthlySchedule) error {
	data, err := encode(schedule)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[Key(schedule.Zone, schedule.Year, schedule.Month)] = data
	m.mu.Unlock()
	return nil
}

// Close is a no-op
func (m *Memory) Close() error {
	return nil
}
