package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/labwire/workcell/internal/core"
	"github.com/labwire/workcell/internal/events"
	"github.com/labwire/workcell/internal/logging"
)

// NodeStateCache polls instrument status and info on its own timers and
// serves the last-known view without blocking. The scheduler's only
// contract with it is "status as of some recent timestamp"; a node that
// cannot be reached goes UNKNOWN but is never evicted.
type NodeStateCache struct {
	client core.NodeClient
	bus    *events.Bus
	logger *logging.Logger

	statusInterval time.Duration
	infoInterval   time.Duration

	mu    sync.RWMutex
	nodes map[core.NodeID]*core.Node
}

// NewNodeStateCache creates a cache polling with the given intervals.
func NewNodeStateCache(client core.NodeClient, bus *events.Bus, logger *logging.Logger, statusInterval, infoInterval time.Duration) *NodeStateCache {
	if statusInterval <= 0 {
		statusInterval = 2 * time.Second
	}
	if infoInterval <= 0 {
		infoInterval = time.Minute
	}
	return &NodeStateCache{
		client:         client,
		bus:            bus,
		logger:         logger,
		statusInterval: statusInterval,
		infoInterval:   infoInterval,
		nodes:          make(map[core.NodeID]*core.Node),
	}
}

// SetNodes replaces the set of polled nodes, keeping cached status for
// nodes that survive the change.
func (c *NodeStateCache) SetNodes(nodes []*core.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[core.NodeID]*core.Node, len(nodes))
	for _, n := range nodes {
		cp := *n
		if prev, ok := c.nodes[n.ID]; ok {
			cp.Status = prev.Status
			cp.StatusAt = prev.StatusAt
			cp.InfoAt = prev.InfoAt
			cp.StatusDetail = prev.StatusDetail
			if len(cp.Actions) == 0 {
				cp.Actions = prev.Actions
			}
		} else if cp.Status == "" {
			cp.Status = core.NodeStatusUnknown
		}
		next[n.ID] = &cp
	}
	c.nodes = next
}

// Get returns the last cached entry without blocking on any poll.
func (c *NodeStateCache) Get(id core.NodeID) (*core.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

// GetByName returns the cached node with the given name.
func (c *NodeStateCache) GetByName(name string) (*core.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.nodes {
		if n.Name == name {
			cp := *n
			return &cp, true
		}
	}
	return nil, false
}

// List returns copies of all cached nodes.
func (c *NodeStateCache) List() []*core.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*core.Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		cp := *n
		out = append(out, &cp)
	}
	return out
}

// Refresh polls one node's status and updates the cache entry. A failed
// poll sets UNKNOWN rather than removing the entry.
func (c *NodeStateCache) Refresh(ctx context.Context, id core.NodeID) {
	n, ok := c.Get(id)
	if !ok {
		return
	}

	status, detail, err := c.client.GetStatus(ctx, n)
	if err != nil {
		status = core.NodeStatusUnknown
		detail = err.Error()
		c.logger.Debug("node status poll failed", "node", n.Name, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.nodes[id]
	if !ok {
		return
	}
	changed := cur.Status != status
	cur.Status = status
	cur.StatusDetail = detail
	cur.StatusAt = time.Now()
	if changed && c.bus != nil {
		c.bus.Publish(events.NewNodeStatusEvent(cur.Name, string(status)))
	}
}

// RefreshInfo polls one node's static description.
func (c *NodeStateCache) RefreshInfo(ctx context.Context, id core.NodeID) {
	n, ok := c.Get(id)
	if !ok {
		return
	}
	info, err := c.client.GetInfo(ctx, n)
	if err != nil {
		c.logger.Debug("node info poll failed", "node", n.Name, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.nodes[id]
	if !ok {
		return
	}
	if len(info.Actions) > 0 {
		cur.Actions = info.Actions
	}
	cur.InfoAt = time.Now()
}

// Run polls until the context is cancelled. Polls for different nodes run
// concurrently; the two timers are independent of the scheduler tick.
func (c *NodeStateCache) Run(ctx context.Context) {
	statusTicker := time.NewTicker(c.statusInterval)
	defer statusTicker.Stop()
	infoTicker := time.NewTicker(c.infoInterval)
	defer infoTicker.Stop()

	c.refreshAll(ctx, c.Refresh)
	c.refreshAll(ctx, c.RefreshInfo)

	for {
		select {
		case <-ctx.Done():
			return
		case <-statusTicker.C:
			c.refreshAll(ctx, c.Refresh)
		case <-infoTicker.C:
			c.refreshAll(ctx, c.RefreshInfo)
		}
	}
}

func (c *NodeStateCache) refreshAll(ctx context.Context, fn func(context.Context, core.NodeID)) {
	var g errgroup.Group
	for _, n := range c.List() {
		id := n.ID
		g.Go(func() error {
			fn(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}
