package state

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labwire/workcell/internal/core"
)

func TestJSONStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	if err := store.PutWorkflow(ctx, testWorkflow("run-1")); err != nil {
		t.Fatal(err)
	}
	if err := store.PutLocation(ctx, &core.Location{ID: "slot", Name: "slot", ResourceID: "plate-1"}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.AcquireLock(ctx, "plate-1", "holder-a", time.Hour); !ok {
		t.Fatal("acquire failed")
	}

	reopened, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	wf, err := reopened.GetWorkflow(ctx, "run-1")
	if err != nil {
		t.Fatalf("workflow lost across reopen: %v", err)
	}
	if wf.Definition.Name != "wf run-1" {
		t.Errorf("name = %q", wf.Definition.Name)
	}
	loc, err := reopened.GetLocation(ctx, "slot")
	if err != nil || loc.ResourceID != "plate-1" {
		t.Errorf("location = %+v, %v", loc, err)
	}
	if locked, holder, _ := reopened.IsLocked(ctx, "plate-1"); !locked || holder != "holder-a" {
		t.Errorf("lock = %v %q, want live holder-a lease", locked, holder)
	}
}

func TestJSONStoreDropsExpiredLocksOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.AcquireLock(ctx, "plate-1", "holder-a", time.Millisecond); !ok {
		t.Fatal("acquire failed")
	}
	time.Sleep(5 * time.Millisecond)

	reopened, err := NewJSONStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if locked, _, _ := reopened.IsLocked(ctx, "plate-1"); locked {
		t.Error("expired lock survived a reload")
	}
}

func TestJSONStoreRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.PutWorkflow(ctx, testWorkflow("run-1")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Alter state content without updating the checksum.
	corrupted := bytes.Replace(data, []byte("wf run-1"), []byte("wf run-9"), 1)
	if bytes.Equal(corrupted, data) {
		t.Fatal("test setup: workflow name not found in snapshot")
	}
	if err := os.WriteFile(path, corrupted, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewJSONStore(path); err == nil {
		t.Error("corrupt snapshot accepted")
	}
}

func TestJSONStoreStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "state.json")
	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
	list, err := store.ListWorkflows(context.Background())
	if err != nil || len(list) != 0 {
		t.Errorf("fresh store = %v, %v", list, err)
	}
}
