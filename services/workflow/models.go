package workflow

import (
	"strconv"
	"strings"
	"time"
)

// Workflow is the persisted workflow document: the graph of nodes and edges
// plus settings and metadata. It is the single source of truth; every other
// component derives transient views from it. It round-trips losslessly as
// {id, name, version, nodes, edges, settings, metadata}.
type Workflow struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Version  int64          `json:"version"`
	Nodes    []Node         `json:"nodes"`
	Edges    []Edge         `json:"edges"`
	Settings map[string]any `json:"settings,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

// Metadata holds document timestamps.
type Metadata struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Node is a single typed step in the workflow graph. Parameters are an opaque
// key/value map interpreted by the node-type catalog; Credentials are opaque
// references resolved elsewhere.
type Node struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Position    Position          `json:"position"`
	Parameters  map[string]any    `json:"parameters,omitempty"`
	Disabled    bool              `json:"disabled,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// Position holds x/y coordinates for rendering the node on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed connection from a node's output port to another node's
// input port. Handles are port indices encoded as strings (e.g. "output-1");
// the remaining fields are visual metadata the canvas round-trips.
type Edge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	SourceHandle string         `json:"sourceHandle,omitempty"`
	TargetHandle string         `json:"targetHandle,omitempty"`
	Label        string         `json:"label,omitempty"`
	Type         string         `json:"type,omitempty"`
	Animated     bool           `json:"animated,omitempty"`
	Style        map[string]any `json:"style,omitempty"`
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := &Workflow{
		ID:       w.ID,
		Name:     w.Name,
		Version:  w.Version,
		Nodes:    CloneNodes(w.Nodes),
		Edges:    CloneEdges(w.Edges),
		Settings: CloneValueMap(w.Settings),
		Metadata: w.Metadata,
	}
	return out
}

// Normalize ensures the node and edge slices are non-nil so the document
// always marshals them as [] rather than null.
func (w *Workflow) Normalize() {
	if w.Nodes == nil {
		w.Nodes = []Node{}
	}
	if w.Edges == nil {
		w.Edges = []Edge{}
	}
}

// Clone returns a deep copy of the node, including its parameter map.
func (n Node) Clone() Node {
	n.Parameters = CloneValueMap(n.Parameters)
	n.Credentials = cloneStringMap(n.Credentials)
	return n
}

// Clone returns a deep copy of the edge, including its style map.
func (e Edge) Clone() Edge {
	e.Style = CloneValueMap(e.Style)
	return e
}

// OutputIndex decodes the edge's source handle as an output port index.
func (e Edge) OutputIndex() int {
	return handleIndex(e.SourceHandle)
}

// InputIndex decodes the edge's target handle as an input port index.
func (e Edge) InputIndex() int {
	return handleIndex(e.TargetHandle)
}

// handleIndex parses a port handle of the form "output-N" or a bare number.
// An absent or unparsable handle is port 0.
func handleIndex(handle string) int {
	if handle == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(handle, "output-"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// CloneNodes deep-copies a node slice. A nil input yields an empty slice.
func CloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// CloneEdges deep-copies an edge slice. A nil input yields an empty slice.
func CloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out
}

// CloneValue deep-copies the JSON-like value kinds that appear in parameter
// and style maps. Scalars are returned as-is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneValueMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

// CloneValueMap deep-copies a JSON-like key/value map. Nil stays nil.
func CloneValueMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
