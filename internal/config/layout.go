package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/labwire/workcell/internal/core"
)

// Layout describes the workcell: its nodes, locations and transfer
// templates. It is loaded from a YAML file and is the configuration the
// transfer graph is derived from.
type Layout struct {
	Nodes     []LayoutNode     `yaml:"nodes"`
	Locations []LayoutLocation `yaml:"locations"`
	Templates []LayoutTemplate `yaml:"templates"`
}

// LayoutNode declares one instrument endpoint.
type LayoutNode struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	URL     string   `yaml:"url"`
	Actions []string `yaml:"actions,omitempty"`
}

// LayoutLocation declares one named position with per-node representations.
type LayoutLocation struct {
	ID              string                 `yaml:"id"`
	Name            string                 `yaml:"name"`
	Representations map[string]interface{} `yaml:"representations"`
	ResourceID      string                 `yaml:"resource_id,omitempty"`
}

// LayoutTemplate declares one transfer capability.
type LayoutTemplate struct {
	Name     string          `yaml:"name"`
	NodeName string          `yaml:"node_name"`
	Cost     float64         `yaml:"cost,omitempty"`
	Steps    []LayoutStepDef `yaml:"steps"`
}

// LayoutStepDef is a step definition in layout form.
type LayoutStepDef struct {
	Name   string                 `yaml:"name,omitempty"`
	Node   string                 `yaml:"node"`
	Action string                 `yaml:"action"`
	Args   map[string]interface{} `yaml:"args,omitempty"`
}

// LoadLayout reads and parses a workcell layout file.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout: %w", err)
	}
	var layout Layout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &layout, nil
}

// Validate checks layout invariants.
func (l *Layout) Validate() error {
	nodeNames := map[string]bool{}
	for i := range l.Nodes {
		n := &l.Nodes[i]
		if n.ID == "" || n.Name == "" {
			return fmt.Errorf("layout node %d: id and name are required", i)
		}
		nodeNames[n.Name] = true
	}
	seen := map[string]bool{}
	for i := range l.Locations {
		loc := &l.Locations[i]
		if loc.ID == "" {
			return fmt.Errorf("layout location %d: id is required", i)
		}
		if seen[loc.ID] {
			return fmt.Errorf("layout location %s: duplicate id", loc.ID)
		}
		seen[loc.ID] = true
	}
	for i := range l.Templates {
		t := &l.Templates[i]
		if t.Name == "" || t.NodeName == "" {
			return fmt.Errorf("layout template %d: name and node_name are required", i)
		}
		if len(t.Steps) == 0 {
			return fmt.Errorf("layout template %s: at least one step is required", t.Name)
		}
	}
	return nil
}

// DomainNodes converts layout nodes to domain nodes with UNKNOWN status.
func (l *Layout) DomainNodes() []*core.Node {
	nodes := make([]*core.Node, 0, len(l.Nodes))
	for _, n := range l.Nodes {
		nodes = append(nodes, &core.Node{
			ID:      core.NodeID(n.ID),
			Name:    n.Name,
			URL:     n.URL,
			Actions: n.Actions,
			Status:  core.NodeStatusUnknown,
		})
	}
	return nodes
}

// DomainLocations converts layout locations, re-encoding representations
// as opaque JSON blobs.
func (l *Layout) DomainLocations() ([]*core.Location, error) {
	locs := make([]*core.Location, 0, len(l.Locations))
	for _, ll := range l.Locations {
		reps := make(map[string]json.RawMessage, len(ll.Representations))
		for nodeName, rep := range ll.Representations {
			data, err := json.Marshal(rep)
			if err != nil {
				return nil, fmt.Errorf("location %s: encoding representation for %s: %w", ll.ID, nodeName, err)
			}
			reps[nodeName] = data
		}
		name := ll.Name
		if name == "" {
			name = ll.ID
		}
		locs = append(locs, &core.Location{
			ID:              core.LocationID(ll.ID),
			Name:            name,
			Representations: reps,
			ResourceID:      ll.ResourceID,
		})
	}
	return locs, nil
}

// DomainTemplates converts layout templates.
func (l *Layout) DomainTemplates() []*core.TransferTemplate {
	templates := make([]*core.TransferTemplate, 0, len(l.Templates))
	for _, lt := range l.Templates {
		steps := make([]core.StepDefinition, 0, len(lt.Steps))
		for _, s := range lt.Steps {
			steps = append(steps, core.StepDefinition{
				Name:   s.Name,
				Node:   s.Node,
				Action: s.Action,
				Args:   s.Args,
			})
		}
		templates = append(templates, &core.TransferTemplate{
			Name:     lt.Name,
			NodeName: lt.NodeName,
			Cost:     lt.Cost,
			Steps:    steps,
		})
	}
	return templates
}
