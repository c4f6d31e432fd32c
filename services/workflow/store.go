package workflow

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Structural rejection reasons for edge insertion. Editing operations never
// return these; they surface only through ValidateConnection so the caller
// can explain a rejection.
var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrSelfLoop      = errors.New("connection would form a self-loop")
	ErrDuplicateEdge = errors.New("an identical connection already exists")
	ErrWouldCycle    = errors.New("connection would create a cycle")
)

// duplicateOffset is the position delta applied to duplicated and pasted
// nodes so copies do not land on top of their originals.
const duplicateOffset = 40.0

// Store owns the canonical workflow graph. It enforces the structural
// invariants (unique edges, no self-loops, acyclicity), tracks selection,
// and maintains a bounded undo/redo history plus a clipboard.
//
// Editing operations are idempotent and never fail: unknown ids are silent
// no-ops and invalid edges are silently rejected, so a UI can call them
// optimistically. All returned nodes and edges are deep copies.
type Store struct {
	mu       sync.RWMutex
	wf       *Workflow
	revision uint64
	history  *history

	selectedNodes []string
	selectedEdges []string

	clipNodes []Node
	clipEdges []Edge
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		wf:      &Workflow{Nodes: []Node{}, Edges: []Edge{}},
		history: newHistory(historyLimit),
	}
}

// SetWorkflow replaces the entire document with a deep copy of wf. History is
// reset to a single baseline (loading a document is not undoable), selection
// and clipboard are cleared, and the revision advances. A nil wf is a no-op.
func (s *Store) SetWorkflow(wf *Workflow) {
	if wf == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wf = wf.Clone()
	s.wf.Normalize()
	s.history.reset(s.snapshotLocked())
	s.selectedNodes = nil
	s.selectedEdges = nil
	s.clipNodes = nil
	s.clipEdges = nil
	s.revision++
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() *Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wf.Clone()
}

// Revision is the graph-version token: it advances on every node/edge set
// mutation (including undo/redo) but not on position-only moves. Consumers
// cache derived views keyed by it.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// AddNode inserts a deep copy of n. An empty id gets a fresh uuid; an id that
// already exists leaves the graph unchanged.
func (s *Store) AddNode(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if s.nodeIndexLocked(n.ID) >= 0 {
		return
	}
	s.beginLocked()
	s.wf.Nodes = append(s.wf.Nodes, n.Clone())
	s.commitLocked()
}

// NodePatch describes a partial node update. Nil fields are left untouched;
// a non-nil Parameters or Credentials map replaces the existing one.
type NodePatch struct {
	Name        *string
	Parameters  map[string]any
	Disabled    *bool
	Position    *Position
	Credentials map[string]string
}

// UpdateNode applies the patch to the named node. Returns false (no-op) for
// an unknown id.
func (s *Store) UpdateNode(id string, patch NodePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.nodeIndexLocked(id)
	if i < 0 {
		return false
	}
	s.beginLocked()
	n := &s.wf.Nodes[i]
	if patch.Name != nil {
		n.Name = *patch.Name
	}
	if patch.Parameters != nil {
		n.Parameters = CloneValueMap(patch.Parameters)
	}
	if patch.Disabled != nil {
		n.Disabled = *patch.Disabled
	}
	if patch.Position != nil {
		n.Position = *patch.Position
	}
	if patch.Credentials != nil {
		n.Credentials = cloneStringMap(patch.Credentials)
	}
	s.commitLocked()
	return true
}

// RemoveNode removes the named node and, first, every edge touching it.
// Unknown ids are no-ops.
func (s *Store) RemoveNode(id string) {
	s.RemoveNodes([]string{id})
}

// RemoveNodes removes the named nodes with cascade edge deletion as a single
// history entry. Ids that do not exist are ignored.
func (s *Store) RemoveNodes(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if s.nodeIndexLocked(id) >= 0 {
			doomed[id] = true
		}
	}
	if len(doomed) == 0 {
		return
	}
	s.beginLocked()
	s.removeNodesLocked(doomed)
	s.commitLocked()
}

// removeNodesLocked deletes the doomed nodes and exactly the edges with a
// doomed endpoint, pruning both from the selection.
func (s *Store) removeNodesLocked(doomed map[string]bool) {
	edges := s.wf.Edges[:0]
	removedEdges := make(map[string]bool)
	for _, e := range s.wf.Edges {
		if doomed[e.Source] || doomed[e.Target] {
			removedEdges[e.ID] = true
			continue
		}
		edges = append(edges, e)
	}
	s.wf.Edges = edges

	nodes := s.wf.Nodes[:0]
	for _, n := range s.wf.Nodes {
		if doomed[n.ID] {
			continue
		}
		nodes = append(nodes, n)
	}
	s.wf.Nodes = nodes

	s.selectedNodes = pruneIDs(s.selectedNodes, doomed)
	s.selectedEdges = pruneIDs(s.selectedEdges, removedEdges)
}

// NodeMove pairs a node id with its new position.
type NodeMove struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

// MoveNode updates a node's position only. It pushes no history entry and
// does not advance the revision; the UI commits a drag with PushHistory.
func (s *Store) MoveNode(id string, pos Position) {
	s.MoveNodes([]NodeMove{{ID: id, Position: pos}})
}

// MoveNodes applies position-only updates. Unknown ids are ignored.
func (s *Store) MoveNodes(moves []NodeMove) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range moves {
		if i := s.nodeIndexLocked(m.ID); i >= 0 {
			s.wf.Nodes[i].Position = m.Position
		}
	}
}

// PushHistory records the current graph as an undo point. Called at drag-end
// so per-frame moves do not flood the undo stack; a push with nothing changed
// since the last entry is a no-op.
func (s *Store) PushHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	if len(s.history.entries) == 0 {
		s.history.ensureBaseline(snap)
		return
	}
	if s.history.unchanged(snap) {
		return
	}
	s.history.record(snap)
}

// AddEdge inserts a deep copy of e after structural validation. Returns false
// without mutating when the edge is a self-loop, duplicates an existing
// connection, references an unknown node, or would create a cycle. An empty
// id gets a fresh uuid.
func (s *Store) AddEdge(e Edge) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.validateConnectionLocked(e.Source, e.SourceHandle, e.Target, e.TargetHandle, "") != nil {
		return false
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	s.beginLocked()
	s.wf.Edges = append(s.wf.Edges, e.Clone())
	s.commitLocked()
	return true
}

// EdgePatch describes a partial edge update. Nil fields are left untouched;
// a non-nil Style map replaces the existing one.
type EdgePatch struct {
	Source       *string
	Target       *string
	SourceHandle *string
	TargetHandle *string
	Label        *string
	Type         *string
	Animated     *bool
	Style        map[string]any
}

// UpdateEdge applies the patch to the named edge. Endpoint or handle changes
// are re-validated under the same rules as AddEdge (ignoring the edge being
// rewired); an invalid patch is a no-op returning false, as is an unknown id.
func (s *Store) UpdateEdge(id string, patch EdgePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.edgeIndexLocked(id)
	if i < 0 {
		return false
	}
	cur := s.wf.Edges[i]
	source, target := cur.Source, cur.Target
	sourceHandle, targetHandle := cur.SourceHandle, cur.TargetHandle
	if patch.Source != nil {
		source = *patch.Source
	}
	if patch.Target != nil {
		target = *patch.Target
	}
	if patch.SourceHandle != nil {
		sourceHandle = *patch.SourceHandle
	}
	if patch.TargetHandle != nil {
		targetHandle = *patch.TargetHandle
	}
	rewired := source != cur.Source || target != cur.Target ||
		sourceHandle != cur.SourceHandle || targetHandle != cur.TargetHandle
	if rewired && s.validateConnectionLocked(source, sourceHandle, target, targetHandle, id) != nil {
		return false
	}
	s.beginLocked()
	e := &s.wf.Edges[i]
	e.Source, e.Target = source, target
	e.SourceHandle, e.TargetHandle = sourceHandle, targetHandle
	if patch.Label != nil {
		e.Label = *patch.Label
	}
	if patch.Type != nil {
		e.Type = *patch.Type
	}
	if patch.Animated != nil {
		e.Animated = *patch.Animated
	}
	if patch.Style != nil {
		e.Style = CloneValueMap(patch.Style)
	}
	s.commitLocked()
	return true
}

// RemoveEdge removes the named edge. Unknown ids are no-ops.
func (s *Store) RemoveEdge(id string) {
	s.RemoveEdges([]string{id})
}

// RemoveEdges removes the named edges as a single history entry.
func (s *Store) RemoveEdges(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if s.edgeIndexLocked(id) >= 0 {
			doomed[id] = true
		}
	}
	if len(doomed) == 0 {
		return
	}
	s.beginLocked()
	edges := s.wf.Edges[:0]
	for _, e := range s.wf.Edges {
		if doomed[e.ID] {
			continue
		}
		edges = append(edges, e)
	}
	s.wf.Edges = edges
	s.selectedEdges = pruneIDs(s.selectedEdges, doomed)
	s.commitLocked()
}

// ValidateConnection reports why a prospective connection would be rejected,
// or nil if AddEdge would accept it. The two share one code path, so they
// always agree.
func (s *Store) ValidateConnection(source, sourceHandle, target, targetHandle string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validateConnectionLocked(source, sourceHandle, target, targetHandle, "")
}

// IsValidConnection is the boolean form of ValidateConnection.
func (s *Store) IsValidConnection(source, sourceHandle, target, targetHandle string) bool {
	return s.ValidateConnection(source, sourceHandle, target, targetHandle) == nil
}

func (s *Store) validateConnectionLocked(source, sourceHandle, target, targetHandle, ignoreEdgeID string) error {
	if s.nodeIndexLocked(source) < 0 || s.nodeIndexLocked(target) < 0 {
		return ErrUnknownNode
	}
	if source == target {
		return ErrSelfLoop
	}
	for _, e := range s.wf.Edges {
		if ignoreEdgeID != "" && e.ID == ignoreEdgeID {
			continue
		}
		if e.Source == source && e.Target == target &&
			e.SourceHandle == sourceHandle && e.TargetHandle == targetHandle {
			return ErrDuplicateEdge
		}
	}
	if s.reachesLocked(target, source, ignoreEdgeID) {
		return ErrWouldCycle
	}
	return nil
}

// reachesLocked reports whether `to` is reachable from `from` over the
// current edges, skipping ignoreEdgeID. Iterative DFS with a visited set.
func (s *Store) reachesLocked(from, to, ignoreEdgeID string) bool {
	if from == to {
		return true
	}
	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, e := range s.wf.Edges {
			if (ignoreEdgeID != "" && e.ID == ignoreEdgeID) || e.Source != cur {
				continue
			}
			if e.Target == to {
				return true
			}
			if !visited[e.Target] {
				stack = append(stack, e.Target)
			}
		}
	}
	return false
}

// Undo steps the graph back one history entry. Returns false at the boundary.
func (s *Store) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.history.undo()
	if !ok {
		return false
	}
	s.restoreLocked(entry)
	return true
}

// Redo steps the graph forward one history entry. Returns false at the
// boundary.
func (s *Store) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.history.redo()
	if !ok {
		return false
	}
	s.restoreLocked(entry)
	return true
}

// CanUndo reports whether Undo would change the graph.
func (s *Store) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.canUndo()
}

// CanRedo reports whether Redo would change the graph.
func (s *Store) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.canRedo()
}

func (s *Store) restoreLocked(entry historyEntry) {
	s.wf.Nodes = CloneNodes(entry.nodes)
	s.wf.Edges = CloneEdges(entry.edges)
	live := make(map[string]bool, len(s.wf.Nodes))
	for _, n := range s.wf.Nodes {
		live[n.ID] = true
	}
	s.selectedNodes = keepIDs(s.selectedNodes, live)
	liveEdges := make(map[string]bool, len(s.wf.Edges))
	for _, e := range s.wf.Edges {
		liveEdges[e.ID] = true
	}
	s.selectedEdges = keepIDs(s.selectedEdges, liveEdges)
	s.wf.Metadata.UpdatedAt = time.Now().UTC()
	s.revision++
}

// SelectNodes replaces the node selection, dropping unknown and repeated ids.
func (s *Store) SelectNodes(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedNodes = s.filterNodeIDsLocked(ids)
}

// SelectEdges replaces the edge selection, dropping unknown and repeated ids.
func (s *Store) SelectEdges(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if seen[id] || s.edgeIndexLocked(id) < 0 {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	s.selectedEdges = out
}

// ClearSelection empties both selections.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedNodes = nil
	s.selectedEdges = nil
}

// SelectedNodeIDs returns the selected node ids in selection order.
func (s *Store) SelectedNodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.selectedNodes...)
}

// SelectedEdgeIDs returns the selected edge ids in selection order.
func (s *Store) SelectedEdgeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.selectedEdges...)
}

// Node returns a deep copy of the named node.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.nodeIndexLocked(id)
	if i < 0 {
		return Node{}, false
	}
	return s.wf.Nodes[i].Clone(), true
}

// Nodes returns deep copies of all nodes in declaration order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneNodes(s.wf.Nodes)
}

// Edge returns a deep copy of the named edge.
func (s *Store) Edge(id string) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.edgeIndexLocked(id)
	if i < 0 {
		return Edge{}, false
	}
	return s.wf.Edges[i].Clone(), true
}

// Edges returns deep copies of all edges in declaration order.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneEdges(s.wf.Edges)
}

// IncomingEdges returns the edges targeting the node, in declaration order.
func (s *Store) IncomingEdges(id string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, e := range s.wf.Edges {
		if e.Target == id {
			out = append(out, e.Clone())
		}
	}
	return out
}

// OutgoingEdges returns the edges originating at the node, in declaration
// order.
func (s *Store) OutgoingEdges(id string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, e := range s.wf.Edges {
		if e.Source == id {
			out = append(out, e.Clone())
		}
	}
	return out
}

// ConnectedNodes returns the node's direct neighbors (upstream sources first,
// then downstream targets), deduplicated, in edge declaration order.
func (s *Store) ConnectedNodes(id string) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []Node
	appendNode := func(nodeID string) {
		if seen[nodeID] {
			return
		}
		if i := s.nodeIndexLocked(nodeID); i >= 0 {
			seen[nodeID] = true
			out = append(out, s.wf.Nodes[i].Clone())
		}
	}
	for _, e := range s.wf.Edges {
		if e.Target == id {
			appendNode(e.Source)
		}
	}
	for _, e := range s.wf.Edges {
		if e.Source == id {
			appendNode(e.Target)
		}
	}
	return out
}

func (s *Store) nodeIndexLocked(id string) int {
	for i := range s.wf.Nodes {
		if s.wf.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) edgeIndexLocked(id string) int {
	for i := range s.wf.Edges {
		if s.wf.Edges[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) filterNodeIDsLocked(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if seen[id] || s.nodeIndexLocked(id) < 0 {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (s *Store) snapshotLocked() historyEntry {
	return historyEntry{nodes: CloneNodes(s.wf.Nodes), edges: CloneEdges(s.wf.Edges)}
}

// beginLocked makes sure the pre-mutation state is undoable; commitLocked
// records the post-mutation state and advances the revision. Callers must
// already know the mutation will change the graph.
func (s *Store) beginLocked() {
	s.history.ensureBaseline(s.snapshotLocked())
}

func (s *Store) commitLocked() {
	s.history.record(s.snapshotLocked())
	s.wf.Metadata.UpdatedAt = time.Now().UTC()
	s.revision++
}

func pruneIDs(ids []string, doomed map[string]bool) []string {
	out := ids[:0]
	for _, id := range ids {
		if !doomed[id] {
			out = append(out, id)
		}
	}
	return out
}

func keepIDs(ids []string, live map[string]bool) []string {
	out := ids[:0]
	for _, id := range ids {
		if live[id] {
			out = append(out, id)
		}
	}
	return out
}
