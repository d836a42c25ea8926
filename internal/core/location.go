package core

import "encoding/json"

// LocationID uniquely identifies a physical location in the workcell.
type LocationID string

// Location is a symbolic physical position. Each node that can address the
// location stores its own opaque representation (joint angles, deck slot,
// plate coordinates) keyed by node name. Representations are validated at
// the node protocol boundary, never interpreted here.
type Location struct {
	ID   LocationID `json:"id"`
	Name string     `json:"name"`

	// Representations maps node name -> node-specific addressing blob.
	// At most one entry per node name.
	Representations map[string]json.RawMessage `json:"representations"`

	// ResourceID is the resource currently attached at this location,
	// empty if unoccupied.
	ResourceID string `json:"resource_id,omitempty"`
}

// HasRepresentation reports whether the location is addressable by the
// given node name.
func (l *Location) HasRepresentation(nodeName string) bool {
	_, ok := l.Representations[nodeName]
	return ok
}

// Representation returns the addressing blob for a node name.
func (l *Location) Representation(nodeName string) (json.RawMessage, bool) {
	rep, ok := l.Representations[nodeName]
	return rep, ok
}

// Occupied reports whether a resource is attached at this location.
func (l *Location) Occupied() bool {
	return l.ResourceID != ""
}

// Validate checks location invariants.
func (l *Location) Validate() error {
	if l.ID == "" {
		return ErrValidation("LOCATION_ID_REQUIRED", "location ID cannot be empty")
	}
	if l.Name == "" {
		return ErrValidation("LOCATION_NAME_REQUIRED", "location name cannot be empty")
	}
	return nil
}

// Resource is the minimal view of a trackable asset (plate, tube rack,
// consumable) this core needs: identity and an optional parent for nested
// containers. Full inventory bookkeeping lives elsewhere.
type Resource struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// MaxResourceDepth bounds ancestor walks over resource parent chains.
const MaxResourceDepth = 32

// ValidateAncestry walks a resource's parent chain using the supplied
// lookup, rejecting cycles and chains deeper than MaxResourceDepth. A
// missing parent terminates the walk without error; the chain is simply
// considered to end there.
func ValidateAncestry(id string, lookup func(string) (*Resource, bool)) error {
	visited := map[string]bool{}
	cur := id
	for depth := 0; cur != ""; depth++ {
		if depth >= MaxResourceDepth {
			return ErrState("ANCESTRY_TOO_DEEP", "resource parent chain exceeds max depth")
		}
		if visited[cur] {
			return ErrState("ANCESTRY_CYCLE", "resource parent chain contains a cycle")
		}
		visited[cur] = true
		r, ok := lookup(cur)
		if !ok {
			return nil
		}
		cur = r.ParentID
	}
	return nil
}
