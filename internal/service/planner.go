package service

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/labwire/workcell/internal/core"
	"github.com/labwire/workcell/internal/logging"
)

// TransferPlanner answers "how do I move a resource from A to B" without
// callers knowing which instrument performs the move. It derives a graph
// of locations connected by transfer capability, finds cheapest paths over
// it, and composes the winning path into one workflow definition.
//
// The graph is rebuilt wholesale on every configuration change; there is
// no incremental update path.
type TransferPlanner struct {
	mu        sync.RWMutex
	locations map[core.LocationID]*core.Location
	templates []*core.TransferTemplate
	edges     map[core.LocationID][]core.TransferEdge
	logger    *logging.Logger
}

// NewTransferPlanner creates an empty planner.
func NewTransferPlanner(logger *logging.Logger) *TransferPlanner {
	return &TransferPlanner{
		locations: make(map[core.LocationID]*core.Location),
		edges:     make(map[core.LocationID][]core.TransferEdge),
		logger:    logger,
	}
}

// Configure replaces the planner's locations and templates and rebuilds
// the graph.
func (p *TransferPlanner) Configure(locations []*core.Location, templates []*core.TransferTemplate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.locations = make(map[core.LocationID]*core.Location, len(locations))
	for _, loc := range locations {
		p.locations[loc.ID] = loc
	}
	p.templates = templates
	p.rebuild()

	if p.logger != nil {
		edgeCount := 0
		for _, out := range p.edges {
			edgeCount += len(out)
		}
		p.logger.Info("transfer graph rebuilt",
			"locations", len(p.locations),
			"templates", len(p.templates),
			"edges", edgeCount,
		)
	}
}

// rebuild derives the edge set. An edge (S, D, T) exists iff S != D and
// both locations carry a representation for T's node name. Edges are
// directed; the reverse edge appears by the same rule, so the graph is
// symmetric whenever reachability holds both ways.
func (p *TransferPlanner) rebuild() {
	p.edges = make(map[core.LocationID][]core.TransferEdge)

	ids := p.sortedLocationIDs()
	for _, t := range p.templates {
		for _, src := range ids {
			source := p.locations[src]
			if !source.HasRepresentation(t.NodeName) {
				continue
			}
			for _, dst := range ids {
				if src == dst {
					continue
				}
				if !p.locations[dst].HasRepresentation(t.NodeName) {
					continue
				}
				p.edges[src] = append(p.edges[src], core.TransferEdge{
					Source:      src,
					Destination: dst,
					Template:    t,
					Cost:        t.EffectiveCost(),
				})
			}
		}
	}
}

func (p *TransferPlanner) sortedLocationIDs() []core.LocationID {
	ids := make([]core.LocationID, 0, len(p.locations))
	for id := range p.locations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Graph returns the adjacency list of location ids, deduplicated across
// templates.
func (p *TransferPlanner) Graph() map[core.LocationID][]core.LocationID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[core.LocationID][]core.LocationID, len(p.locations))
	for _, id := range p.sortedLocationIDs() {
		seen := map[core.LocationID]bool{}
		var neighbors []core.LocationID
		for _, e := range p.edges[id] {
			if !seen[e.Destination] {
				seen[e.Destination] = true
				neighbors = append(neighbors, e.Destination)
			}
		}
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
		out[id] = neighbors
	}
	return out
}

// Edges returns all edges from the given location.
func (p *TransferPlanner) Edges(id core.LocationID) []core.TransferEdge {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.TransferEdge, len(p.edges[id]))
	copy(out, p.edges[id])
	return out
}

// Plan computes the cheapest path from source to destination and composes
// it into a single workflow definition with the resource id threaded
// through every leg. Fails with a no_path error when unreachable, which
// callers must treat as permanent: topology does not change inside a
// retry window.
//
// Ties among equal-cost paths resolve by expansion order, which is
// implementation-defined and must not be relied on.
func (p *TransferPlanner) Plan(source, destination core.LocationID, resourceID string) (*core.TransferPlan, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.locations[source]; !ok {
		return nil, core.ErrNotFound("location", string(source))
	}
	if _, ok := p.locations[destination]; !ok {
		return nil, core.ErrNotFound("location", string(destination))
	}
	if source == destination {
		return nil, core.ErrValidation("SAME_LOCATION", "source and destination are the same location")
	}

	legs, cost, found := p.shortestPath(source, destination)
	if !found {
		return nil, core.ErrNoTransferPath(source, destination)
	}

	return &core.TransferPlan{
		Legs:       legs,
		Definition: p.compose(legs, resourceID),
		TotalCost:  cost,
	}, nil
}

// shortestPath is Dijkstra with an O(V^2) scan; fine at lab scale (tens
// of locations).
func (p *TransferPlanner) shortestPath(source, destination core.LocationID) ([]core.TransferEdge, float64, bool) {
	dist := map[core.LocationID]float64{}
	prev := map[core.LocationID]*core.TransferEdge{}
	visited := map[core.LocationID]bool{}

	ids := p.sortedLocationIDs()
	for _, id := range ids {
		dist[id] = math.Inf(1)
	}
	dist[source] = 0

	for {
		// Pick the unvisited node with the smallest distance; sorted id
		// order makes the scan deterministic.
		var current core.LocationID
		best := math.Inf(1)
		found := false
		for _, id := range ids {
			if !visited[id] && dist[id] < best {
				best = dist[id]
				current = id
				found = true
			}
		}
		if !found {
			break
		}
		if current == destination {
			break
		}
		visited[current] = true

		for i := range p.edges[current] {
			e := p.edges[current][i]
			if visited[e.Destination] {
				continue
			}
			if next := dist[current] + e.Cost; next < dist[e.Destination] {
				dist[e.Destination] = next
				prev[e.Destination] = &e
			}
		}
	}

	if math.IsInf(dist[destination], 1) {
		return nil, 0, false
	}

	var legs []core.TransferEdge
	for at := destination; at != source; {
		e := prev[at]
		if e == nil {
			return nil, 0, false
		}
		legs = append(legs, *e)
		at = e.Source
	}
	// Reverse into source -> destination order.
	for i, j := 0, len(legs)-1; i < j; i, j = i+1, j-1 {
		legs[i], legs[j] = legs[j], legs[i]
	}
	return legs, dist[destination], true
}

// compose instantiates each leg's template with source/destination bound
// to that leg and the resource id identical across all legs, then
// concatenates the step sequences. The result is an ordinary workflow
// definition; nothing downstream special-cases transfers once composed.
func (p *TransferPlanner) compose(legs []core.TransferEdge, resourceID string) core.WorkflowDefinition {
	def := core.WorkflowDefinition{
		Name: fmt.Sprintf("transfer %s to %s", legs[0].Source, legs[len(legs)-1].Destination),
		Parameters: map[string]interface{}{
			core.TransferArgResource: resourceID,
		},
	}

	for _, leg := range legs {
		for _, tmpl := range leg.Template.Steps {
			step := tmpl // copy
			args := make(map[string]interface{}, len(tmpl.Args)+3)
			for k, v := range tmpl.Args {
				args[k] = v
			}
			args[core.TransferArgSource] = string(leg.Source)
			args[core.TransferArgDestination] = string(leg.Destination)
			if resourceID != "" {
				args[core.TransferArgResource] = resourceID
			}
			step.Args = args

			locations := make(map[string]core.LocationID, len(tmpl.Locations)+2)
			for k, v := range tmpl.Locations {
				locations[k] = v
			}
			locations[core.TransferArgSource] = leg.Source
			locations[core.TransferArgDestination] = leg.Destination
			step.Locations = locations

			if step.Name == "" {
				step.Name = fmt.Sprintf("%s %s to %s", leg.Template.Name, leg.Source, leg.Destination)
			}
			def.Steps = append(def.Steps, step)
		}
	}
	return def
}
