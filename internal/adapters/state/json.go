package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/labwire/workcell/internal/core"
)

// JSONStore implements core.RunStore with an in-memory working set mirrored
// to a JSON snapshot file after every mutation. Suitable for a single
// orchestrator instance on lab-scale state.
type JSONStore struct {
	mu   sync.Mutex
	mem  *MemoryStore
	path string
}

// snapshotEnvelope wraps the persisted state with integrity metadata.
type snapshotEnvelope struct {
	Version   int           `json:"version"`
	Checksum  string        `json:"checksum"`
	UpdatedAt time.Time     `json:"updated_at"`
	State     *snapshotBody `json:"state"`
}

type snapshotBody struct {
	Workflows []*core.Workflow     `json:"workflows"`
	Locations []*core.Location     `json:"locations"`
	Locks     []*core.ResourceLock `json:"locks"`
}

// NewJSONStore opens (or creates) a JSON snapshot store at path.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		mem:  NewMemoryStore(),
		path: path,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading state file: %w", err)
	}

	var envelope snapshotEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("parsing state file: %w", err)
	}
	if envelope.State == nil {
		return nil
	}
	if envelope.Checksum != "" {
		body, err := json.Marshal(envelope.State)
		if err != nil {
			return fmt.Errorf("re-encoding state body: %w", err)
		}
		hash := sha256.Sum256(body)
		if hex.EncodeToString(hash[:]) != envelope.Checksum {
			return core.ErrState("STATE_CHECKSUM", "state file checksum mismatch")
		}
	}

	ctx := context.Background()
	for _, wf := range envelope.State.Workflows {
		if err := s.mem.PutWorkflow(ctx, wf); err != nil {
			return err
		}
	}
	for _, loc := range envelope.State.Locations {
		if err := s.mem.PutLocation(ctx, loc); err != nil {
			return err
		}
	}
	now := time.Now()
	for _, lock := range envelope.State.Locks {
		if lock.Expired(now) {
			continue
		}
		remaining := time.Until(lock.ExpiresAt())
		if _, err := s.mem.AcquireLock(ctx, lock.ResourceID, lock.HolderID, remaining); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONStore) snapshot() error {
	ctx := context.Background()
	workflows, err := s.mem.ListWorkflows(ctx)
	if err != nil {
		return err
	}
	locations, err := s.mem.ListLocations(ctx)
	if err != nil {
		return err
	}

	s.mem.mu.Lock()
	locks := make([]*core.ResourceLock, 0, len(s.mem.locks))
	now := time.Now()
	for _, l := range s.mem.locks {
		if !l.Expired(now) {
			cp := *l
			locks = append(locks, &cp)
		}
	}
	s.mem.mu.Unlock()

	body := &snapshotBody{Workflows: workflows, Locations: locations, Locks: locks}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	hash := sha256.Sum256(bodyBytes)

	envelope := snapshotEnvelope{
		Version:   1,
		Checksum:  hex.EncodeToString(hash[:]),
		UpdatedAt: time.Now(),
		State:     body,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// mutate serializes mutations and snapshots after each one.
func (s *JSONStore) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	return s.snapshot()
}

func (s *JSONStore) PutWorkflow(ctx context.Context, wf *core.Workflow) error {
	return s.mutate(func() error { return s.mem.PutWorkflow(ctx, wf) })
}

func (s *JSONStore) GetWorkflow(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	return s.mem.GetWorkflow(ctx, id)
}

func (s *JSONStore) DeleteWorkflow(ctx context.Context, id core.WorkflowID) error {
	return s.mutate(func() error { return s.mem.DeleteWorkflow(ctx, id) })
}

func (s *JSONStore) ListWorkflows(ctx context.Context) ([]*core.Workflow, error) {
	return s.mem.ListWorkflows(ctx)
}

func (s *JSONStore) UpdateWorkflow(ctx context.Context, id core.WorkflowID, fn func(*core.Workflow) error) error {
	return s.mutate(func() error { return s.mem.UpdateWorkflow(ctx, id, fn) })
}

func (s *JSONStore) PutLocation(ctx context.Context, loc *core.Location) error {
	return s.mutate(func() error { return s.mem.PutLocation(ctx, loc) })
}

func (s *JSONStore) GetLocation(ctx context.Context, id core.LocationID) (*core.Location, error) {
	return s.mem.GetLocation(ctx, id)
}

func (s *JSONStore) DeleteLocation(ctx context.Context, id core.LocationID) error {
	return s.mutate(func() error { return s.mem.DeleteLocation(ctx, id) })
}

func (s *JSONStore) ListLocations(ctx context.Context) ([]*core.Location, error) {
	return s.mem.ListLocations(ctx)
}

func (s *JSONStore) UpdateLocation(ctx context.Context, id core.LocationID, fn func(*core.Location) error) error {
	return s.mutate(func() error { return s.mem.UpdateLocation(ctx, id, fn) })
}

func (s *JSONStore) AcquireLock(ctx context.Context, resourceID, holderID string, ttl time.Duration) (bool, error) {
	var acquired bool
	err := s.mutate(func() error {
		var err error
		acquired, err = s.mem.AcquireLock(ctx, resourceID, holderID, ttl)
		return err
	})
	return acquired, err
}

func (s *JSONStore) ReleaseLock(ctx context.Context, resourceID, holderID string) (bool, error) {
	var released bool
	err := s.mutate(func() error {
		var err error
		released, err = s.mem.ReleaseLock(ctx, resourceID, holderID)
		return err
	})
	return released, err
}

func (s *JSONStore) IsLocked(ctx context.Context, resourceID string) (bool, string, error) {
	return s.mem.IsLocked(ctx, resourceID)
}

var _ core.RunStore = (*JSONStore)(nil)
