package service

import (
	"context"
	"testing"

	"github.com/labwire/workcell/internal/adapters/node"
	"github.com/labwire/workcell/internal/core"
	"github.com/labwire/workcell/internal/events"
	"github.com/labwire/workcell/internal/logging"
)

func TestRefreshUpdatesStatus(t *testing.T) {
	client := node.NewFakeClient()
	bus := events.NewBus(16)
	defer bus.Close()
	cache := NewNodeStateCache(client, bus, logging.NewNop(), 0, 0)
	cache.SetNodes([]*core.Node{{ID: "arm-1", Name: "arm"}})

	client.SetStatus("arm-1", core.NodeStatusReady)
	cache.Refresh(context.Background(), "arm-1")

	n, ok := cache.Get("arm-1")
	if !ok {
		t.Fatal("node missing from cache")
	}
	if n.Status != core.NodeStatusReady {
		t.Errorf("status = %s, want READY", n.Status)
	}
	if n.StatusAt.IsZero() {
		t.Error("StatusAt not recorded")
	}
}

func TestRefreshFailureSetsUnknownKeepsEntry(t *testing.T) {
	client := node.NewFakeClient()
	bus := events.NewBus(16)
	defer bus.Close()
	cache := NewNodeStateCache(client, bus, logging.NewNop(), 0, 0)
	cache.SetNodes([]*core.Node{{ID: "arm-1", Name: "arm", Status: core.NodeStatusReady}})

	client.StatusErr = core.ErrTransient("NODE_UNREACHABLE", "connection refused")
	cache.Refresh(context.Background(), "arm-1")

	n, ok := cache.Get("arm-1")
	if !ok {
		t.Fatal("failed poll must never evict the entry")
	}
	if n.Status != core.NodeStatusUnknown {
		t.Errorf("status = %s, want UNKNOWN", n.Status)
	}
	if n.StatusDetail == "" {
		t.Error("failure detail not recorded")
	}
}

func TestStatusChangePublishesEvent(t *testing.T) {
	client := node.NewFakeClient()
	bus := events.NewBus(16)
	defer bus.Close()
	ch := bus.Subscribe(events.TypeNodeStatus)

	cache := NewNodeStateCache(client, bus, logging.NewNop(), 0, 0)
	cache.SetNodes([]*core.Node{{ID: "arm-1", Name: "arm"}})
	client.SetStatus("arm-1", core.NodeStatusReady)
	cache.Refresh(context.Background(), "arm-1")

	select {
	case evt := <-ch:
		statusEvt, ok := evt.(events.NodeStatusEvent)
		if !ok {
			t.Fatalf("event type = %T, want NodeStatusEvent", evt)
		}
		if statusEvt.Node != "arm" || statusEvt.Status != string(core.NodeStatusReady) {
			t.Errorf("event = %+v, want arm READY", statusEvt)
		}
	default:
		t.Fatal("no node status event published")
	}
}

func TestSetNodesPreservesCachedStatus(t *testing.T) {
	client := node.NewFakeClient()
	bus := events.NewBus(16)
	defer bus.Close()
	cache := NewNodeStateCache(client, bus, logging.NewNop(), 0, 0)

	cache.SetNodes([]*core.Node{{ID: "arm-1", Name: "arm"}})
	client.SetStatus("arm-1", core.NodeStatusBusy)
	cache.Refresh(context.Background(), "arm-1")

	// Layout reload: same node plus a new one.
	cache.SetNodes([]*core.Node{
		{ID: "arm-1", Name: "arm"},
		{ID: "reader-1", Name: "reader"},
	})

	arm, _ := cache.Get("arm-1")
	if arm.Status != core.NodeStatusBusy {
		t.Errorf("surviving node status = %s, want BUSY preserved", arm.Status)
	}
	reader, ok := cache.Get("reader-1")
	if !ok || reader.Status != core.NodeStatusUnknown {
		t.Errorf("new node = %+v, want UNKNOWN", reader)
	}
}

func TestGetByName(t *testing.T) {
	cache := NewNodeStateCache(node.NewFakeClient(), nil, logging.NewNop(), 0, 0)
	cache.SetNodes([]*core.Node{{ID: "arm-1", Name: "arm"}})

	if _, ok := cache.GetByName("arm"); !ok {
		t.Error("lookup by name failed")
	}
	if _, ok := cache.GetByName("ghost"); ok {
		t.Error("unknown name resolved")
	}
}
