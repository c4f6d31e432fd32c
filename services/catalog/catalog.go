// Package catalog is the node-type registry: for each node type it declares
// the behavioral category, the output data schema (static, computed from
// parameters, or absent), configurable properties with defaults, and a
// factory for new node instances. The graph store never consults it; the
// schema resolver and the simulator do.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"workflow-studio/api/services/schema"
	"workflow-studio/api/services/workflow"
)

// Category is a node type's behavioral class. It drives the simulator's
// per-category transform rules.
type Category string

const (
	CategoryTrigger       Category = "trigger"
	CategoryAction        Category = "action"
	CategoryLogic         Category = "logic"
	CategoryData          Category = "data"
	CategoryIntegration   Category = "integration"
	CategoryAI            Category = "ai"
	CategoryDatabase      Category = "database"
	CategoryCommunication Category = "communication"
	CategoryCustom        Category = "custom"
)

// SchemaFunc computes a node type's output schema from a node's current
// parameters. Returning an error marks schema evaluation as failed; callers
// capture it per node rather than aborting.
type SchemaFunc func(params map[string]any, node *workflow.Node) (*schema.Schema, error)

// Property declares one configurable parameter of a node type.
type Property struct {
	Name    string `json:"name"`
	Label   string `json:"label,omitempty"`
	Default any    `json:"default,omitempty"`
}

// NodeType describes one entry in the catalog. At most one of OutputSchema
// and OutputSchemaFunc is set; neither set means the type declares no output
// shape (e.g. free-form code nodes).
type NodeType struct {
	Type             string         `json:"type"`
	Label            string         `json:"label"`
	Category         Category       `json:"category"`
	Description      string         `json:"description,omitempty"`
	Properties       []Property     `json:"properties,omitempty"`
	Defaults         map[string]any `json:"defaults,omitempty"`
	OutputSchema     *schema.Schema `json:"outputSchema,omitempty"`
	OutputSchemaFunc SchemaFunc     `json:"-"`
}

// Catalog is a concurrent-safe registry of node types.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]*NodeType
}

// New returns a catalog populated with the built-in node types.
func New() *Catalog {
	c := &Catalog{types: make(map[string]*NodeType)}
	registerBuiltins(c)
	return c
}

// Register adds or replaces a node type. Registering a type with an empty
// type key is an error.
func (c *Catalog) Register(nt *NodeType) error {
	if nt == nil || nt.Type == "" {
		return fmt.Errorf("node type must have a non-empty type key")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[nt.Type] = nt
	return nil
}

// Get looks up a node type by its type key. Registered types are shared;
// callers must treat the result as read-only.
func (c *Catalog) Get(nodeType string) (*NodeType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nt, ok := c.types[nodeType]
	return nt, ok
}

// Types returns all registered type keys, sorted.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.types))
	for k := range c.types {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns all registered node types, sorted by type key.
func (c *Catalog) All() []*NodeType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := make([]*NodeType, 0, len(c.types))
	for _, nt := range c.types {
		all = append(all, nt)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Type < all[j].Type })
	return all
}

// ResolveSchema evaluates a node type's output schema against the given
// parameters. Static schemas are returned as clones so callers can hold them
// across catalog changes; a type with no declared schema yields (nil, nil).
func (c *Catalog) ResolveSchema(nt *NodeType, params map[string]any, node *workflow.Node) (*schema.Schema, error) {
	if nt == nil {
		return nil, nil
	}
	if nt.OutputSchemaFunc != nil {
		s, err := nt.OutputSchemaFunc(params, node)
		if err != nil {
			return nil, fmt.Errorf("resolve schema for %q: %w", nt.Type, err)
		}
		return s, nil
	}
	if nt.OutputSchema != nil {
		return nt.OutputSchema.Clone(), nil
	}
	return nil, nil
}

// GenerateMockData synthesizes a representative value per declared field.
func (c *Catalog) GenerateMockData(s *schema.Schema) map[string]any {
	return schema.Mock(s)
}

// CreateNodeInstance builds a new node of the given type at the given
// position, parameterized with the type's defaults overlaid by overrides.
// Returns nil for an unknown type.
func (c *Catalog) CreateNodeInstance(nodeType string, pos workflow.Position, overrides map[string]any) *workflow.Node {
	nt, ok := c.Get(nodeType)
	if !ok {
		return nil
	}
	params := workflow.CloneValueMap(nt.Defaults)
	if params == nil && len(overrides) > 0 {
		params = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		params[k] = workflow.CloneValue(v)
	}
	return &workflow.Node{
		ID:         uuid.New().String(),
		Type:       nodeType,
		Name:       nt.Label,
		Position:   pos,
		Parameters: params,
	}
}
