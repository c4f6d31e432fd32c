// Package simulator walks a workflow graph in data-flow order and produces a
// deterministic, side-effect-free execution trace. Node outputs are mock
// payloads synthesized from the catalog's declared schemas; no real work is
// performed.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"workflow-studio/api/services/catalog"
	"workflow-studio/api/services/workflow"
)

// ErrNoStartNodes aborts a run before any node executes: a graph with no
// source node is invalid for simulation.
var ErrNoStartNodes = errors.New("workflow has no start node")

// errCancelled stops the traversal when the context is done at a pacing point.
var errCancelled = errors.New("simulation cancelled")

// Item is one JSON-like payload travelling along an edge.
type Item map[string]any

// Status is a node's execution state within one run. Nodes move from pending
// through running to exactly one terminal state; a fresh run resets them all.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Options configures a run. Callbacks are synchronous observer hooks fired
// during traversal; they must not mutate the workflow being simulated.
type Options struct {
	// NodeDelay inserts an artificial pause before each node completes, for
	// UI pacing only. Zero runs at full speed with no suspension points.
	NodeDelay time.Duration
	// MockDataOverrides pins a node's mock output items, bypassing schema
	// synthesis for that node. For a start node this doubles as its initial
	// input.
	MockDataOverrides map[string][]Item
	// SimulateErrors fails the named nodes with the given messages before
	// they produce output.
	SimulateErrors map[string]string

	OnProgress func(nodeID string, status Status)
	OnLog      func(nodeID, message string)
	OnDataFlow func(edgeID string, items []Item)
}

// NodeResult is one node's execution record. Timestamps are RFC3339;
// ExecutionTime is milliseconds.
type NodeResult struct {
	NodeID        string         `json:"nodeId"`
	NodeName      string         `json:"nodeName"`
	NodeType      string         `json:"nodeType"`
	Status        Status         `json:"status"`
	InputData     []Item         `json:"inputData"`
	OutputData    []Item         `json:"outputData"`
	MockData      map[string]any `json:"mockData,omitempty"`
	ExecutionTime int64          `json:"executionTime"`
	Error         string         `json:"error,omitempty"`
	StartTime     string         `json:"startTime,omitempty"`
	EndTime       string         `json:"endTime,omitempty"`
}

// Result is the trace of one run. NodeResults lists executed nodes in
// execution order followed by untouched nodes, still pending, in declaration
// order; RunData maps each node that produced output to its output items.
type Result struct {
	ExecutionID   string            `json:"executionId"`
	Status        Status            `json:"status"`
	StartTime     string            `json:"startTime"`
	EndTime       string            `json:"endTime"`
	TotalDuration int64             `json:"totalDuration"`
	NodeResults   []NodeResult      `json:"nodeResults"`
	RunData       map[string][]Item `json:"runData"`
}

// Simulator executes mock runs against a catalog's node types.
type Simulator struct {
	catalog *catalog.Catalog
}

// New creates a Simulator with the given node-type catalog.
func New(cat *catalog.Catalog) *Simulator {
	return &Simulator{catalog: cat}
}

// run carries one traversal's working state.
type run struct {
	opts      Options
	nodes     map[string]*workflow.Node
	results   map[string]*NodeResult
	outgoing  map[string][]workflow.Edge
	indegree  map[string]int
	delivered map[string]int
	inbox     map[string][]Item
	outputs   map[string]map[int][]Item
	order     []string
}

// Run simulates the workflow once. Every node starts pending; the traversal
// is depth-first from each start node in declaration order, and a node with
// several predecessors executes only after all of them have delivered, so an
// upstream node is always terminal before a downstream one begins. The only
// whole-run abort is a graph with no start node; per-node failures are
// recorded and sibling branches continue.
func (s *Simulator) Run(ctx context.Context, wf *workflow.Workflow, opts Options) (*Result, error) {
	starts := startNodes(wf)
	if len(starts) == 0 {
		return nil, ErrNoStartNodes
	}

	rt := &run{
		opts:      opts,
		nodes:     make(map[string]*workflow.Node, len(wf.Nodes)),
		results:   make(map[string]*NodeResult, len(wf.Nodes)),
		outgoing:  make(map[string][]workflow.Edge),
		indegree:  make(map[string]int),
		delivered: make(map[string]int),
		inbox:     make(map[string][]Item),
		outputs:   make(map[string]map[int][]Item),
	}
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		rt.nodes[n.ID] = n
		rt.results[n.ID] = &NodeResult{
			NodeID:     n.ID,
			NodeName:   n.Name,
			NodeType:   n.Type,
			Status:     StatusPending,
			InputData:  []Item{},
			OutputData: []Item{},
		}
	}
	for _, e := range wf.Edges {
		rt.outgoing[e.Source] = append(rt.outgoing[e.Source], e)
		rt.indegree[e.Target]++
	}

	started := time.Now()
	for _, id := range starts {
		if err := s.executeFrom(ctx, rt, id); err != nil {
			break // cancelled; untouched branches stay pending
		}
	}
	ended := time.Now()

	result := &Result{
		ExecutionID:   uuid.New().String(),
		Status:        StatusSuccess,
		StartTime:     started.UTC().Format(time.RFC3339),
		EndTime:       ended.UTC().Format(time.RFC3339),
		TotalDuration: ended.Sub(started).Milliseconds(),
		RunData:       make(map[string][]Item),
	}
	for _, id := range rt.order {
		res := rt.results[id]
		result.NodeResults = append(result.NodeResults, *res)
		switch res.Status {
		case StatusError:
			result.Status = StatusError
		case StatusSuccess, StatusSkipped:
			result.RunData[id] = res.OutputData
		}
	}
	for i := range wf.Nodes {
		res := rt.results[wf.Nodes[i].ID]
		if res.Status == StatusPending {
			result.NodeResults = append(result.NodeResults, *res)
		}
	}
	return result, nil
}

// executeFrom runs the node once all of its inputs have arrived, then
// delivers its output along each outgoing edge in declaration order,
// recursing into any target that becomes ready. Errored nodes deliver
// nothing, so subtrees fed exclusively by failures never start; skipped
// nodes deliver empty batches and act as data sinks.
func (s *Simulator) executeFrom(ctx context.Context, rt *run, nodeID string) error {
	res := rt.results[nodeID]
	if res == nil || res.Status != StatusPending {
		return nil
	}
	if rt.delivered[nodeID] < rt.indegree[nodeID] {
		return nil // join barrier: a later branch completes the inputs
	}

	if err := s.executeNode(ctx, rt, nodeID); err != nil {
		return err
	}
	if res.Status == StatusError {
		return nil
	}

	for _, e := range rt.outgoing[nodeID] {
		batch := cloneItems(rt.outputs[nodeID][e.OutputIndex()])
		rt.inbox[e.Target] = append(rt.inbox[e.Target], batch...)
		rt.delivered[e.Target]++
		if rt.opts.OnDataFlow != nil {
			rt.opts.OnDataFlow(e.ID, batch)
		}
		if err := s.executeFrom(ctx, rt, e.Target); err != nil {
			return err
		}
	}
	return nil
}

// executeNode advances one node from pending to a terminal state, recording
// input, mock, output, timing, and any error into its result.
func (s *Simulator) executeNode(ctx context.Context, rt *run, nodeID string) error {
	node := rt.nodes[nodeID]
	res := rt.results[nodeID]
	rt.order = append(rt.order, nodeID)

	input := rt.inbox[nodeID]
	if input == nil {
		input = []Item{}
	}
	res.InputData = input

	start := time.Now()
	res.StartTime = start.UTC().Format(time.RFC3339)
	finish := func(status Status) {
		end := time.Now()
		res.Status = status
		res.EndTime = end.UTC().Format(time.RFC3339)
		res.ExecutionTime = end.Sub(start).Milliseconds()
		rt.progress(nodeID, status)
	}

	if node.Disabled {
		res.OutputData = []Item{}
		rt.outputs[nodeID] = map[int][]Item{}
		finish(StatusSkipped)
		rt.log(nodeID, fmt.Sprintf("Node %q is disabled - skipped", node.Name))
		return nil
	}

	if msg, ok := rt.opts.SimulateErrors[nodeID]; ok {
		res.Error = msg
		finish(StatusError)
		rt.log(nodeID, fmt.Sprintf("Node %q failed: %s", node.Name, msg))
		return nil
	}

	nt, ok := s.catalog.Get(node.Type)
	if !ok {
		res.Error = fmt.Sprintf("unknown node type: %s", node.Type)
		finish(StatusError)
		rt.log(nodeID, res.Error)
		return nil
	}

	res.Status = StatusRunning
	rt.progress(nodeID, StatusRunning)

	if err := rt.pace(ctx); err != nil {
		res.Error = "simulation cancelled: " + err.Error()
		finish(StatusError)
		return errCancelled
	}

	outSchema, err := s.catalog.ResolveSchema(nt, node.Parameters, node)
	if err != nil {
		res.Error = err.Error()
		finish(StatusError)
		rt.log(nodeID, fmt.Sprintf("Schema evaluation failed for %q: %s", node.Name, err))
		return nil
	}

	mock := s.catalog.GenerateMockData(outSchema)
	hasMock := !outSchema.IsEmpty()
	mockItems := []Item{}
	if hasMock {
		mockItems = []Item{Item(mock)}
	}
	if pinned, ok := rt.opts.MockDataOverrides[nodeID]; ok {
		mockItems = cloneItems(pinned)
		hasMock = len(mockItems) > 0
		mock = map[string]any{}
		if hasMock {
			mock = map[string]any(mockItems[0])
		}
	}
	res.MockData = mock

	// Start nodes originate their own input.
	if rt.indegree[nodeID] == 0 {
		input = cloneItems(mockItems)
		res.InputData = input
	}

	output := applyTransform(nt.Category, node.Type, input, mockItems, hasMock)
	res.OutputData = output
	rt.outputs[nodeID] = routeOutput(nt.Category, output, rt.outgoing[nodeID])

	finish(StatusSuccess)
	rt.log(nodeID, fmt.Sprintf("Executed %q with %d input item(s), %d output item(s)",
		node.Name, len(input), len(output)))
	return nil
}

// pace waits the configured per-node delay, honouring cancellation. Zero
// delay means no suspension point at all.
func (rt *run) pace(ctx context.Context) error {
	if rt.opts.NodeDelay <= 0 {
		return nil
	}
	t := time.NewTimer(rt.opts.NodeDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (rt *run) progress(nodeID string, status Status) {
	if rt.opts.OnProgress != nil {
		rt.opts.OnProgress(nodeID, status)
	}
}

func (rt *run) log(nodeID, message string) {
	if rt.opts.OnLog != nil {
		rt.opts.OnLog(nodeID, message)
	}
}

// startNodes returns the ids of nodes with no incoming edge, in declaration
// order.
func startNodes(wf *workflow.Workflow) []string {
	hasIncoming := make(map[string]bool, len(wf.Nodes))
	for _, e := range wf.Edges {
		hasIncoming[e.Target] = true
	}
	var out []string
	for _, n := range wf.Nodes {
		if !hasIncoming[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

// cloneItems deep-copies an item batch. The result is never nil, so a missing
// batch delivers an empty list rather than null.
func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item(workflow.CloneValueMap(map[string]any(it)))
	}
	return out
}
