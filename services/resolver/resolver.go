// Package resolver computes, for a consumer node, everything nameable in an
// expression editor from upstream data: the direct input schemas, every
// transitively reachable output schema, their merged union, autocomplete
// suggestions, and a representative mock input payload.
package resolver

import (
	"sync"

	"workflow-studio/api/services/catalog"
	"workflow-studio/api/services/schema"
	"workflow-studio/api/services/workflow"
)

// ResolvedSchema is one upstream node's inferred output shape, scoped to a
// single consumer node. Schema is nil when the source's type is unknown or
// declares no output shape.
type ResolvedSchema struct {
	Schema         *schema.Schema `json:"schema"`
	SourceNodeID   string         `json:"sourceNodeId"`
	SourceNodeName string         `json:"sourceNodeName"`
	SourceNodeType string         `json:"sourceNodeType"`
	OutputIndex    int            `json:"outputIndex"`
}

// Context is the resolved upstream picture for one consumer node.
// InputSchemas covers the direct predecessors, one entry per incoming edge in
// edge declaration order. AccessibleSchemas covers every transitive
// predecessor, keyed by node id; display names travel on the entries, so two
// nodes sharing a name do not overwrite each other.
type Context struct {
	NodeID            string                    `json:"nodeId"`
	InputSchemas      []ResolvedSchema          `json:"inputSchemas"`
	AccessibleSchemas map[string]ResolvedSchema `json:"accessibleSchemas"`
	MergedInputSchema *schema.Schema            `json:"mergedInputSchema"`

	// order records the traversal visit order for deterministic suggestions.
	order []string
}

// Suggestion is one autocomplete entry for the expression editor. Expression
// is the flat "{{field}}" template form the editor inserts.
type Suggestion struct {
	Expression     string           `json:"expression"`
	Field          string           `json:"field"`
	Type           schema.FieldType `json:"type"`
	Example        any              `json:"example,omitempty"`
	SourceNodeID   string           `json:"sourceNodeId"`
	SourceNodeName string           `json:"sourceNodeName"`
}

// Resolver computes schema contexts over a graph store's current edges. It
// holds no state of its own beyond a cache keyed by the store's revision;
// results are pure functions of the graph snapshot plus the catalog.
type Resolver struct {
	store   *workflow.Store
	catalog *catalog.Catalog

	mu       sync.Mutex
	revision uint64
	cache    map[string]*Context
}

// New returns a resolver bound to the given store and catalog.
func New(store *workflow.Store, cat *catalog.Catalog) *Resolver {
	return &Resolver{store: store, catalog: cat, cache: make(map[string]*Context)}
}

// Resolve returns the consumer node's schema context, computing it on first
// request per (node, revision). The whole cache is dropped whenever the
// store's node/edge set changes; position-only moves keep it warm. An unknown
// consumer id yields workflow.ErrUnknownNode.
func (r *Resolver) Resolve(nodeID string) (*Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rev := r.store.Revision(); rev != r.revision {
		r.cache = make(map[string]*Context)
		r.revision = rev
	}
	if ctx, ok := r.cache[nodeID]; ok {
		return ctx, nil
	}
	ctx, err := r.resolve(nodeID)
	if err != nil {
		return nil, err
	}
	r.cache[nodeID] = ctx
	return ctx, nil
}

// resolve walks the edge set backwards from the consumer, breadth-first. The
// visited set keeps the walk cycle-safe even though the store guarantees
// acyclicity.
func (r *Resolver) resolve(nodeID string) (*Context, error) {
	if _, ok := r.store.Node(nodeID); !ok {
		return nil, workflow.ErrUnknownNode
	}

	ctx := &Context{
		NodeID:            nodeID,
		AccessibleSchemas: make(map[string]ResolvedSchema),
	}
	visited := map[string]bool{nodeID: true}
	var queue []string

	visit := func(src workflow.Node, outputIndex int) ResolvedSchema {
		rs := r.resolveNodeSchema(src, outputIndex)
		if !visited[src.ID] {
			visited[src.ID] = true
			ctx.AccessibleSchemas[src.ID] = rs
			ctx.order = append(ctx.order, src.ID)
			queue = append(queue, src.ID)
		}
		return rs
	}

	// Distance 1: each incoming edge contributes an input schema.
	for _, e := range r.store.IncomingEdges(nodeID) {
		src, ok := r.store.Node(e.Source)
		if !ok {
			continue
		}
		ctx.InputSchemas = append(ctx.InputSchemas, visit(src, e.OutputIndex()))
	}

	// Any distance: every reachable predecessor is accessible.
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range r.store.IncomingEdges(cur) {
			src, ok := r.store.Node(e.Source)
			if !ok || visited[src.ID] {
				continue
			}
			visit(src, e.OutputIndex())
		}
	}

	inputs := make([]*schema.Schema, len(ctx.InputSchemas))
	for i, rs := range ctx.InputSchemas {
		inputs[i] = rs.Schema
	}
	ctx.MergedInputSchema = schema.Merge(inputs...)
	return ctx, nil
}

// resolveNodeSchema asks the catalog for the node type's output schema and
// evaluates it against the node's current parameters. Unknown types and
// evaluation failures yield a nil schema; resolution is best effort.
func (r *Resolver) resolveNodeSchema(n workflow.Node, outputIndex int) ResolvedSchema {
	rs := ResolvedSchema{
		SourceNodeID:   n.ID,
		SourceNodeName: n.Name,
		SourceNodeType: n.Type,
		OutputIndex:    outputIndex,
	}
	nt, ok := r.catalog.Get(n.Type)
	if !ok {
		return rs
	}
	s, err := r.catalog.ResolveSchema(nt, n.Parameters, &n)
	if err != nil {
		return rs
	}
	rs.Schema = s
	return rs
}

// Suggestions lists the fields nameable in the consumer's expressions:
// direct input fields first, in edge order, then the remaining reachable
// nodes in traversal order. Order is deterministic for a given graph.
func (r *Resolver) Suggestions(nodeID string) ([]Suggestion, error) {
	ctx, err := r.Resolve(nodeID)
	if err != nil {
		return nil, err
	}
	var out []Suggestion
	emitted := make(map[string]bool)
	emit := func(rs ResolvedSchema) {
		if emitted[rs.SourceNodeID] {
			return
		}
		emitted[rs.SourceNodeID] = true
		if rs.Schema == nil {
			return
		}
		for _, f := range rs.Schema.Fields {
			out = append(out, Suggestion{
				Expression:     "{{" + f.Name + "}}",
				Field:          f.Name,
				Type:           f.Type,
				Example:        schema.MockField(f),
				SourceNodeID:   rs.SourceNodeID,
				SourceNodeName: rs.SourceNodeName,
			})
		}
	}
	for _, rs := range ctx.InputSchemas {
		emit(rs)
	}
	for _, id := range ctx.order {
		emit(ctx.AccessibleSchemas[id])
	}
	return out, nil
}

// MockInput synthesizes one representative input payload for the consumer
// from its merged input schema.
func (r *Resolver) MockInput(nodeID string) (map[string]any, error) {
	ctx, err := r.Resolve(nodeID)
	if err != nil {
		return nil, err
	}
	return schema.Mock(ctx.MergedInputSchema), nil
}
