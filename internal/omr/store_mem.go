package omr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scanscore/omr-backend/internal/audit"
)

// memoryStore backs tests and single-user dev runs; production uses SQLStore.
type memoryStore struct {
	mu      sync.RWMutex
	keys    map[string]AnswerKey
	sheets  map[string]Sheet
	results map[string][]SheetResult // sheetID -> rows, oldest first
	events  []audit.Event
}

func NewInMemoryStore() Store {
	return &memoryStore{
		keys:    map[string]AnswerKey{},
		sheets:  map[string]Sheet{},
		results: map[string][]SheetResult{},
	}
}

func (m *memoryStore) PutKey(_ context.Context, k AnswerKey) error {
	if err := Validate(k); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keyInUse(k.ID) {
		return fmt.Errorf("%w: key %s", ErrKeyInUse, k.ID)
	}
	if k.CreatedAt == 0 {
		k.CreatedAt = time.Now().Unix()
	}
	m.keys[k.ID] = k
	return nil
}

func (m *memoryStore) keyInUse(id string) bool {
	for _, rs := range m.results {
		for _, r := range rs {
			if r.KeyID == id {
				return true
			}
		}
	}
	return false
}

func (m *memoryStore) GetKey(_ context.Context, id string) (AnswerKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[id]
	if !ok {
		return AnswerKey{}, fmt.Errorf("%w: answer key", ErrNotFound)
	}
	return k, nil
}

func (m *memoryStore) GetKeyByVersion(_ context.Context, version string) (AnswerKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best AnswerKey
	found := false
	for _, k := range m.keys {
		if k.Version == version && (!found || k.CreatedAt > best.CreatedAt) {
			best, found = k, true
		}
	}
	if !found {
		return AnswerKey{}, fmt.Errorf("%w: answer key for version %s", ErrNotFound, version)
	}
	return best, nil
}

func (m *memoryStore) ListKeys(_ context.Context) ([]AnswerKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AnswerKey, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (m *memoryStore) DeleteKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return fmt.Errorf("%w: key %s", ErrNotFound, id)
	}
	if m.keyInUse(id) {
		return fmt.Errorf("%w: key %s", ErrKeyInUse, id)
	}
	delete(m.keys, id)
	return nil
}

func (m *memoryStore) CreateSheet(_ context.Context, s Sheet, ev audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().Unix()
	if s.UploadedAt == 0 {
		s.UploadedAt = now
	}
	s.UpdatedAt = now
	m.sheets[s.ID] = s
	m.appendEvent(ev)
	return nil
}

func (m *memoryStore) GetSheet(_ context.Context, id string) (Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sheets[id]
	if !ok {
		return Sheet{}, fmt.Errorf("%w: sheet %s", ErrNotFound, id)
	}
	return s, nil
}

func (m *memoryStore) ListSheets(_ context.Context, opts ListSheetsOpts) ([]Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Sheet
	for _, s := range m.sheets {
		if opts.Status != "" && s.Status != opts.Status {
			continue
		}
		if opts.Version != "" && s.Version != opts.Version {
			continue
		}
		if opts.Q != "" && !strings.Contains(s.StudentID, opts.Q) && !strings.Contains(s.StudentName, opts.Q) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt > out[j].UploadedAt })
	if opts.Limit > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
		if len(out) > opts.Limit {
			out = out[:opts.Limit]
		}
	}
	return out, nil
}

func (m *memoryStore) setStatus(id, status, note string) error {
	s, ok := m.sheets[id]
	if !ok {
		return fmt.Errorf("%w: sheet %s", ErrNotFound, id)
	}
	s.Status = status
	s.StatusNote = note
	s.UpdatedAt = time.Now().Unix()
	m.sheets[id] = s
	return nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, id, status, note string, ev audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setStatus(id, status, note); err != nil {
		return err
	}
	m.appendEvent(ev)
	return nil
}

func (m *memoryStore) SaveResult(_ context.Context, r SheetResult, status string, ev audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[r.SheetID]; !ok {
		return fmt.Errorf("%w: sheet %s", ErrNotFound, r.SheetID)
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}
	m.results[r.SheetID] = append(m.results[r.SheetID], r)
	if err := m.setStatus(r.SheetID, status, ""); err != nil {
		return err
	}
	m.appendEvent(ev)
	return nil
}

func (m *memoryStore) LatestResult(_ context.Context, sheetID string) (SheetResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.results[sheetID]
	if len(rs) == 0 {
		return SheetResult{}, fmt.Errorf("%w: result for sheet %s", ErrNotFound, sheetID)
	}
	best := rs[0]
	for _, r := range rs[1:] {
		if r.CreatedAt >= best.CreatedAt {
			best = r
		}
	}
	return best, nil
}

func (m *memoryStore) ListLatestResults(_ context.Context) ([]SheetWithResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SheetWithResult
	for id, s := range m.sheets {
		rs := m.results[id]
		if len(rs) == 0 {
			continue
		}
		best := rs[0]
		for _, r := range rs[1:] {
			if r.CreatedAt >= best.CreatedAt {
				best = r
			}
		}
		rr := best
		out = append(out, SheetWithResult{Sheet: s, Result: &rr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sheet.UploadedAt > out[j].Sheet.UploadedAt })
	return out, nil
}

func (m *memoryStore) appendEvent(ev audit.Event) {
	ev.Offset = int64(len(m.events) + 1)
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().Unix()
	}
	m.events = append(m.events, ev)
}

// Events exposes the recorded trail to tests.
func (m *memoryStore) Events() []audit.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]audit.Event, len(m.events))
	copy(out, m.events)
	return out
}
