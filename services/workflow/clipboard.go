package workflow

import "github.com/google/uuid"

// DuplicateNodes deep-clones the named nodes and every edge whose both
// endpoints are in the set, assigns fresh ids through an injective remap, and
// offsets positions by the fixed delta. The selection becomes the new nodes.
// Unknown ids are ignored; an all-unknown input is a no-op returning nil.
func (s *Store) DuplicateNodes(ids []string) []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := s.filterNodeIDsLocked(ids)
	if len(keep) == 0 {
		return nil
	}
	s.beginLocked()
	remap := make(map[string]string, len(keep))
	newNodes := make([]Node, 0, len(keep))
	for _, id := range keep {
		clone := s.wf.Nodes[s.nodeIndexLocked(id)].Clone()
		remap[id] = uuid.New().String()
		clone.ID = remap[id]
		clone.Position.X += duplicateOffset
		clone.Position.Y += duplicateOffset
		newNodes = append(newNodes, clone)
	}
	var newEdges []Edge
	for _, e := range s.wf.Edges {
		src, okSrc := remap[e.Source]
		dst, okDst := remap[e.Target]
		if !okSrc || !okDst {
			continue
		}
		clone := e.Clone()
		clone.ID = uuid.New().String()
		clone.Source = src
		clone.Target = dst
		newEdges = append(newEdges, clone)
	}
	s.wf.Nodes = append(s.wf.Nodes, newNodes...)
	s.wf.Edges = append(s.wf.Edges, newEdges...)
	s.selectedNodes = nodeIDsOf(newNodes)
	s.selectedEdges = nil
	s.commitLocked()
	return CloneNodes(newNodes)
}

// Copy snapshots the selected nodes and the edges connecting two selected
// nodes into the clipboard. The graph is untouched.
func (s *Store) Copy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clipNodes, s.clipEdges = s.selectionSnapshotLocked()
}

// Cut copies the selection to the clipboard, then removes the selected nodes
// (with cascade) and any separately selected edges as one history entry.
// An empty selection is a no-op that leaves the clipboard alone.
func (s *Store) Cut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selectedNodes) == 0 && len(s.selectedEdges) == 0 {
		return
	}
	s.clipNodes, s.clipEdges = s.selectionSnapshotLocked()
	s.beginLocked()
	doomed := make(map[string]bool, len(s.selectedNodes))
	for _, id := range s.selectedNodes {
		doomed[id] = true
	}
	s.removeNodesLocked(doomed)
	if len(s.selectedEdges) > 0 {
		doomedEdges := make(map[string]bool, len(s.selectedEdges))
		for _, id := range s.selectedEdges {
			doomedEdges[id] = true
		}
		edges := s.wf.Edges[:0]
		for _, e := range s.wf.Edges {
			if doomedEdges[e.ID] {
				continue
			}
			edges = append(edges, e)
		}
		s.wf.Edges = edges
	}
	s.selectedNodes = nil
	s.selectedEdges = nil
	s.commitLocked()
}

// Paste inserts clipboard contents with fresh ids, preserving only the
// intra-selection edges captured at copy time. With a position, the pasted
// block's bounding-box corner lands there; otherwise the fixed offset
// applies. The pasted nodes become the selection. An empty clipboard returns
// nil.
func (s *Store) Paste(pos *Position) []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clipNodes) == 0 {
		return nil
	}
	s.beginLocked()
	deltaX, deltaY := duplicateOffset, duplicateOffset
	if pos != nil {
		minX, minY := s.clipNodes[0].Position.X, s.clipNodes[0].Position.Y
		for _, n := range s.clipNodes[1:] {
			if n.Position.X < minX {
				minX = n.Position.X
			}
			if n.Position.Y < minY {
				minY = n.Position.Y
			}
		}
		deltaX, deltaY = pos.X-minX, pos.Y-minY
	}
	remap := make(map[string]string, len(s.clipNodes))
	newNodes := make([]Node, 0, len(s.clipNodes))
	for _, n := range s.clipNodes {
		clone := n.Clone()
		remap[n.ID] = uuid.New().String()
		clone.ID = remap[n.ID]
		clone.Position.X += deltaX
		clone.Position.Y += deltaY
		newNodes = append(newNodes, clone)
	}
	var newEdges []Edge
	for _, e := range s.clipEdges {
		clone := e.Clone()
		clone.ID = uuid.New().String()
		clone.Source = remap[e.Source]
		clone.Target = remap[e.Target]
		newEdges = append(newEdges, clone)
	}
	s.wf.Nodes = append(s.wf.Nodes, newNodes...)
	s.wf.Edges = append(s.wf.Edges, newEdges...)
	s.selectedNodes = nodeIDsOf(newNodes)
	s.selectedEdges = nil
	s.commitLocked()
	return CloneNodes(newNodes)
}

// selectionSnapshotLocked deep-copies the selected nodes (in declaration
// order) and the edges with both endpoints selected.
func (s *Store) selectionSnapshotLocked() ([]Node, []Edge) {
	selected := make(map[string]bool, len(s.selectedNodes))
	for _, id := range s.selectedNodes {
		selected[id] = true
	}
	var nodes []Node
	for _, n := range s.wf.Nodes {
		if selected[n.ID] {
			nodes = append(nodes, n.Clone())
		}
	}
	var edges []Edge
	for _, e := range s.wf.Edges {
		if selected[e.Source] && selected[e.Target] {
			edges = append(edges, e.Clone())
		}
	}
	return nodes, edges
}

func nodeIDsOf(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
