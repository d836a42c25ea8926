package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/labwire/workcell/internal/core"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteWorkflowRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.PutWorkflow(ctx, testWorkflow("run-1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	wf, err := store.GetWorkflow(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if wf.Definition.Name != "wf run-1" {
		t.Errorf("name = %q", wf.Definition.Name)
	}

	err = store.UpdateWorkflow(ctx, "run-1", func(wf *core.Workflow) error {
		return wf.MarkRunning()
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	wf, _ = store.GetWorkflow(ctx, "run-1")
	if wf.Status != core.WorkflowStatusRunning {
		t.Errorf("status = %s, want RUNNING", wf.Status)
	}

	if _, err := store.GetWorkflow(ctx, "ghost"); !core.IsCategory(err, core.ErrCatNotFound) {
		t.Errorf("missing err = %v, want not_found", err)
	}
}

func TestSQLiteListOrder(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-c", "run-a", "run-b"} {
		if err := store.PutWorkflow(ctx, testWorkflow(id)); err != nil {
			t.Fatal(err)
		}
	}
	list, err := store.ListWorkflows(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.WorkflowID{"run-c", "run-a", "run-b"}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i].ID != want[i] {
			t.Errorf("list[%d] = %s, want %s (submission order)", i, list[i].ID, want[i])
		}
	}
}

func TestSQLiteLockLifecycle(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if ok, err := store.AcquireLock(ctx, "plate-1", "holder-a", time.Minute); err != nil || !ok {
		t.Fatalf("acquire = %v, %v", ok, err)
	}
	if ok, _ := store.AcquireLock(ctx, "plate-1", "holder-b", time.Minute); ok {
		t.Error("conflicting acquire succeeded")
	}
	if locked, holder, _ := store.IsLocked(ctx, "plate-1"); !locked || holder != "holder-a" {
		t.Errorf("lock = %v %q", locked, holder)
	}
	if released, _ := store.ReleaseLock(ctx, "plate-1", "holder-a"); !released {
		t.Error("release failed")
	}
}

func TestSQLiteLockExpiry(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	// TTLs persist at whole-second resolution.
	if ok, _ := store.AcquireLock(ctx, "plate-1", "holder-a", time.Second); !ok {
		t.Fatal("acquire failed")
	}
	time.Sleep(1100 * time.Millisecond)

	if ok, _ := store.AcquireLock(ctx, "plate-1", "holder-b", time.Minute); !ok {
		t.Error("expired lease blocked a new holder")
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.PutWorkflow(ctx, testWorkflow("run-1")); err != nil {
		t.Fatal(err)
	}
	if err := store.PutLocation(ctx, &core.Location{ID: "slot", Name: "slot"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if _, err := reopened.GetWorkflow(ctx, "run-1"); err != nil {
		t.Errorf("workflow lost across reopen: %v", err)
	}
	if _, err := reopened.GetLocation(ctx, "slot"); err != nil {
		t.Errorf("location lost across reopen: %v", err)
	}
}

func TestFactory(t *testing.T) {
	if _, err := NewRunStore("memory", ""); err != nil {
		t.Errorf("memory backend: %v", err)
	}
	store, err := NewRunStore("sqlite", filepath.Join(t.TempDir(), "s.db"))
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	if err := CloseRunStore(store); err != nil {
		t.Errorf("close: %v", err)
	}
	if _, err := NewRunStore("etcd", ""); err == nil {
		t.Error("unknown backend accepted")
	}
}
