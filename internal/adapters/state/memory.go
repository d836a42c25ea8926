// Package state provides RunStore implementations: an in-memory store for
// tests and embedded use, a JSON snapshot store, and a SQLite store.
package state

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/labwire/workcell/internal/core"
)

// MemoryStore implements core.RunStore with in-process maps. A single
// mutex covers each record type; read-modify-write sequences run under it,
// so all single-key operations are atomic with respect to concurrent
// callers.
type MemoryStore struct {
	mu        sync.Mutex
	workflows map[core.WorkflowID]*core.Workflow
	order     []core.WorkflowID // submission order, for stable listing
	locations map[core.LocationID]*core.Location
	locks     map[string]*core.ResourceLock

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[core.WorkflowID]*core.Workflow),
		locations: make(map[core.LocationID]*core.Location),
		locks:     make(map[string]*core.ResourceLock),
		now:       time.Now,
	}
}

// clone round-trips a record through JSON so callers never share memory
// with the stored copy.
func clone[T any](in *T) (*T, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, core.ErrInternal("encoding record", err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, core.ErrInternal("decoding record", err)
	}
	return out, nil
}

// PutWorkflow stores a workflow.
func (m *MemoryStore) PutWorkflow(_ context.Context, wf *core.Workflow) error {
	cp, err := clone(wf)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.workflows[wf.ID]; !exists {
		m.order = append(m.order, wf.ID)
	}
	m.workflows[wf.ID] = cp
	return nil
}

// GetWorkflow returns a copy of the stored workflow.
func (m *MemoryStore) GetWorkflow(_ context.Context, id core.WorkflowID) (*core.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, core.ErrNotFound("workflow", string(id))
	}
	return clone(wf)
}

// DeleteWorkflow removes a workflow.
func (m *MemoryStore) DeleteWorkflow(_ context.Context, id core.WorkflowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return core.ErrNotFound("workflow", string(id))
	}
	delete(m.workflows, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListWorkflows returns copies of all workflows in submission order.
func (m *MemoryStore) ListWorkflows(_ context.Context) ([]*core.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Workflow, 0, len(m.order))
	for _, id := range m.order {
		cp, err := clone(m.workflows[id])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// UpdateWorkflow applies fn to the stored workflow under the store lock.
func (m *MemoryStore) UpdateWorkflow(_ context.Context, id core.WorkflowID, fn func(*core.Workflow) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return core.ErrNotFound("workflow", string(id))
	}
	cp, err := clone(wf)
	if err != nil {
		return err
	}
	if err := fn(cp); err != nil {
		return err
	}
	m.workflows[id] = cp
	return nil
}

// PutLocation stores a location.
func (m *MemoryStore) PutLocation(_ context.Context, loc *core.Location) error {
	cp, err := clone(loc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[loc.ID] = cp
	return nil
}

// GetLocation returns a copy of the stored location.
func (m *MemoryStore) GetLocation(_ context.Context, id core.LocationID) (*core.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locations[id]
	if !ok {
		return nil, core.ErrNotFound("location", string(id))
	}
	return clone(loc)
}

// DeleteLocation removes a location.
func (m *MemoryStore) DeleteLocation(_ context.Context, id core.LocationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[id]; !ok {
		return core.ErrNotFound("location", string(id))
	}
	delete(m.locations, id)
	return nil
}

// ListLocations returns copies of all locations sorted by id.
func (m *MemoryStore) ListLocations(_ context.Context) ([]*core.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Location, 0, len(m.locations))
	for _, loc := range m.locations {
		cp, err := clone(loc)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateLocation applies fn to the stored location under the store lock.
func (m *MemoryStore) UpdateLocation(_ context.Context, id core.LocationID, fn func(*core.Location) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locations[id]
	if !ok {
		return core.ErrNotFound("location", string(id))
	}
	cp, err := clone(loc)
	if err != nil {
		return err
	}
	if err := fn(cp); err != nil {
		return err
	}
	m.locations[id] = cp
	return nil
}

// AcquireLock is a compare-and-set: it fails when an unexpired lock exists
// with a different holder. Re-acquiring with the same holder refreshes the
// lease. Expired locks are reaped lazily here.
func (m *MemoryStore) AcquireLock(_ context.Context, resourceID, holderID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = core.DefaultLockTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing, ok := m.locks[resourceID]; ok {
		if !existing.Expired(now) && existing.HolderID != holderID {
			return false, nil
		}
	}
	m.locks[resourceID] = &core.ResourceLock{
		ResourceID: resourceID,
		HolderID:   holderID,
		AcquiredAt: now,
		TTL:        ttl,
	}
	return true, nil
}

// ReleaseLock removes the lock if held by the given holder.
func (m *MemoryStore) ReleaseLock(_ context.Context, resourceID, holderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.locks[resourceID]
	if !ok || existing.Expired(m.now()) || existing.HolderID != holderID {
		return false, nil
	}
	delete(m.locks, resourceID)
	return true, nil
}

// IsLocked reports whether an unexpired lock exists and who holds it.
func (m *MemoryStore) IsLocked(_ context.Context, resourceID string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.locks[resourceID]
	if !ok || existing.Expired(m.now()) {
		return false, "", nil
	}
	return true, existing.HolderID, nil
}

var _ core.RunStore = (*MemoryStore)(nil)
