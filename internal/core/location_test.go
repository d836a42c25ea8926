package core

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestLocationRepresentations(t *testing.T) {
	loc := &Location{
		ID:   "deck_a1",
		Name: "Deck A1",
		Representations: map[string]json.RawMessage{
			"arm": json.RawMessage(`{"joints":[0,0,0,0,0,0]}`),
		},
	}

	if !loc.HasRepresentation("arm") {
		t.Error("arm representation not found")
	}
	if loc.HasRepresentation("crane") {
		t.Error("unexpected crane representation")
	}
	if loc.Occupied() {
		t.Error("empty location reported occupied")
	}
	loc.ResourceID = "plate-1"
	if !loc.Occupied() {
		t.Error("location with resource not reported occupied")
	}
}

func TestValidateAncestry(t *testing.T) {
	resources := map[string]*Resource{
		"well":    {ID: "well", ParentID: "plate"},
		"plate":   {ID: "plate", ParentID: "carrier"},
		"carrier": {ID: "carrier"},
	}
	lookup := func(id string) (*Resource, bool) {
		r, ok := resources[id]
		return r, ok
	}

	if err := ValidateAncestry("well", lookup); err != nil {
		t.Errorf("valid chain rejected: %v", err)
	}

	// Parent missing from the registry ends the walk without error.
	resources["orphan"] = &Resource{ID: "orphan", ParentID: "ghost"}
	if err := ValidateAncestry("orphan", lookup); err != nil {
		t.Errorf("dangling parent rejected: %v", err)
	}
}

func TestValidateAncestryCycle(t *testing.T) {
	resources := map[string]*Resource{
		"a": {ID: "a", ParentID: "b"},
		"b": {ID: "b", ParentID: "a"},
	}
	err := ValidateAncestry("a", func(id string) (*Resource, bool) {
		r, ok := resources[id]
		return r, ok
	})
	if !IsCategory(err, ErrCatState) {
		t.Errorf("cycle error = %v, want state category", err)
	}
}

func TestValidateAncestryDepth(t *testing.T) {
	resources := map[string]*Resource{}
	for i := 0; i < MaxResourceDepth+5; i++ {
		resources[fmt.Sprintf("r%d", i)] = &Resource{
			ID:       fmt.Sprintf("r%d", i),
			ParentID: fmt.Sprintf("r%d", i+1),
		}
	}
	err := ValidateAncestry("r0", func(id string) (*Resource, bool) {
		r, ok := resources[id]
		return r, ok
	})
	if err == nil {
		t.Error("over-deep chain accepted")
	}
}

func TestResourceLockExpiry(t *testing.T) {
	now := time.Now()
	lock := &ResourceLock{
		ResourceID: "plate-1",
		HolderID:   "step:run-1-0",
		AcquiredAt: now,
		TTL:        time.Second,
	}

	if lock.Expired(now) {
		t.Error("fresh lock reported expired")
	}
	if !lock.Expired(now.Add(2 * time.Second)) {
		t.Error("stale lock not reported expired")
	}
	if !lock.HeldBy("step:run-1-0", now) {
		t.Error("holder check failed")
	}
	if lock.HeldBy("step:other", now) {
		t.Error("foreign holder accepted")
	}
	if lock.HeldBy("step:run-1-0", now.Add(2*time.Second)) {
		t.Error("expired lease still held")
	}
}
