package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(id string) Node {
	return Node{ID: id, Type: "http-request", Name: id}
}

// newTestStore returns a store loaded with nodes a, b, c and one edge
// e1: a -> b.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.SetWorkflow(&Workflow{
		ID:    "wf-1",
		Name:  "Test",
		Nodes: []Node{testNode("a"), testNode("b"), testNode("c")},
		Edges: []Edge{{ID: "e1", Source: "a", Target: "b"}},
	})
	return s
}

// hasCycle reports whether the directed edge set contains a cycle.
func hasCycle(edges []Edge) bool {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int)
	var visit func(string) bool
	visit = func(n string) bool {
		color[n] = grey
		for _, m := range adj[n] {
			if color[m] == grey {
				return true
			}
			if color[m] == white && visit(m) {
				return true
			}
		}
		color[n] = black
		return false
	}
	for n := range adj {
		if color[n] == white && visit(n) {
			return true
		}
	}
	return false
}

func TestAddNode_AssignsIDWhenEmpty(t *testing.T) {
	s := NewStore()

	s.AddNode(Node{Type: "custom", Name: "anon"})

	nodes := s.Nodes()
	require.Len(t, nodes, 1)
	assert.NotEmpty(t, nodes[0].ID)
}

func TestAddNode_DuplicateIDIsNoOp(t *testing.T) {
	s := newTestStore(t)
	rev := s.Revision()

	dup := testNode("a")
	dup.Name = "impostor"
	s.AddNode(dup)

	assert.Len(t, s.Nodes(), 3)
	n, ok := s.Node("a")
	require.True(t, ok)
	assert.Equal(t, "a", n.Name)
	assert.Equal(t, rev, s.Revision())
}

func TestUpdateNode_AppliesPatchFields(t *testing.T) {
	s := newTestStore(t)

	name := "renamed"
	disabled := true
	ok := s.UpdateNode("a", NodePatch{
		Name:       &name,
		Parameters: map[string]any{"url": "https://example.org"},
		Disabled:   &disabled,
	})
	require.True(t, ok)

	n, found := s.Node("a")
	require.True(t, found)
	assert.Equal(t, "renamed", n.Name)
	assert.Equal(t, "https://example.org", n.Parameters["url"])
	assert.True(t, n.Disabled)
	assert.Equal(t, "http-request", n.Type, "type is immutable")

	assert.False(t, s.UpdateNode("ghost", NodePatch{Name: &name}))
}

func TestRemoveNode_CascadesExactlyTouchingEdges(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		s.AddNode(testNode(id))
	}
	require.True(t, s.AddEdge(Edge{ID: "ab", Source: "a", Target: "b"}))
	require.True(t, s.AddEdge(Edge{ID: "bc", Source: "b", Target: "c"}))
	require.True(t, s.AddEdge(Edge{ID: "cd", Source: "c", Target: "d"}))
	require.True(t, s.AddEdge(Edge{ID: "ad", Source: "a", Target: "d"}))

	s.RemoveNode("b")

	_, ok := s.Node("b")
	assert.False(t, ok)
	var ids []string
	for _, e := range s.Edges() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"cd", "ad"}, ids)
}

func TestRemoveNodes_SingleHistoryEntry(t *testing.T) {
	s := newTestStore(t)

	s.RemoveNodes([]string{"a", "b", "ghost"})
	assert.Len(t, s.Nodes(), 1)
	assert.Empty(t, s.Edges())

	require.True(t, s.Undo())
	assert.Len(t, s.Nodes(), 3)
	assert.Len(t, s.Edges(), 1)
	assert.False(t, s.CanUndo(), "the whole removal is one entry")
}

func TestAddEdge_Validation(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		edge Edge
		ok   bool
	}{
		{"valid", Edge{Source: "b", Target: "c"}, true},
		{"self-loop", Edge{Source: "a", Target: "a"}, false},
		{"duplicate", Edge{Source: "a", Target: "b"}, false},
		{"same endpoints, different handle", Edge{Source: "a", Target: "b", SourceHandle: "output-1"}, true},
		{"unknown source", Edge{Source: "ghost", Target: "b"}, false},
		{"unknown target", Edge{Source: "a", Target: "ghost"}, false},
		{"would cycle", Edge{Source: "c", Target: "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, s.AddEdge(tt.edge))
		})
	}
	assert.False(t, hasCycle(s.Edges()))
}

func TestAddEdge_RejectsReverseOfExistingPath(t *testing.T) {
	s := NewStore()
	s.AddNode(testNode("x"))
	s.AddNode(testNode("y"))

	require.True(t, s.AddEdge(Edge{Source: "x", Target: "y"}))
	assert.False(t, s.AddEdge(Edge{Source: "y", Target: "x"}))
	assert.Len(t, s.Edges(), 1)
}

func TestAddEdge_AssignsIDWhenEmpty(t *testing.T) {
	s := newTestStore(t)

	require.True(t, s.AddEdge(Edge{Source: "b", Target: "c"}))

	edges := s.Edges()
	require.Len(t, edges, 2)
	assert.NotEmpty(t, edges[1].ID)
	assert.NotEqual(t, edges[0].ID, edges[1].ID)
}

func TestValidateConnection_ReportsReason(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.ValidateConnection("b", "", "c", ""))
	assert.ErrorIs(t, s.ValidateConnection("a", "", "a", ""), ErrSelfLoop)
	assert.ErrorIs(t, s.ValidateConnection("a", "", "b", ""), ErrDuplicateEdge)
	assert.ErrorIs(t, s.ValidateConnection("ghost", "", "b", ""), ErrUnknownNode)
	assert.ErrorIs(t, s.ValidateConnection("b", "", "a", ""), ErrWouldCycle)
}

func TestIsValidConnection_AgreesWithAddEdge(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		s.AddNode(testNode(id))
	}

	candidates := []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
		{Source: "a", Target: "b"},
		{Source: "a", Target: "b", SourceHandle: "output-1"},
		{Source: "c", Target: "a"},
		{Source: "d", Target: "d"},
		{Source: "a", Target: "ghost"},
		{Source: "c", Target: "d"},
		{Source: "d", Target: "a"},
	}

	for i, e := range candidates {
		want := s.IsValidConnection(e.Source, e.SourceHandle, e.Target, e.TargetHandle)
		got := s.AddEdge(e)
		assert.Equal(t, want, got, "candidate %d", i)
	}
	assert.False(t, hasCycle(s.Edges()))
}

func TestRemoveEdge(t *testing.T) {
	s := newTestStore(t)

	s.RemoveEdge("e1")
	assert.Empty(t, s.Edges())
	assert.Len(t, s.Nodes(), 3, "endpoints survive edge removal")

	rev := s.Revision()
	s.RemoveEdge("e1")
	assert.Equal(t, rev, s.Revision(), "removing a removed edge is a no-op")
}

func TestUpdateEdge_PatchesMetadata(t *testing.T) {
	s := newTestStore(t)

	label := "Submit"
	animated := true
	ok := s.UpdateEdge("e1", EdgePatch{
		Label:    &label,
		Animated: &animated,
		Style:    map[string]any{"stroke": "#10b981"},
	})
	require.True(t, ok)

	e, found := s.Edge("e1")
	require.True(t, found)
	assert.Equal(t, "Submit", e.Label)
	assert.True(t, e.Animated)
	assert.Equal(t, "#10b981", e.Style["stroke"])

	assert.False(t, s.UpdateEdge("ghost", EdgePatch{Label: &label}))
}

func TestUpdateEdge_RewiresWithValidation(t *testing.T) {
	s := newTestStore(t)

	target := "c"
	require.True(t, s.UpdateEdge("e1", EdgePatch{Target: &target}))
	e, _ := s.Edge("e1")
	assert.Equal(t, "c", e.Target)
}

func TestUpdateEdge_RejectsCycleRewire(t *testing.T) {
	s := newTestStore(t)
	require.True(t, s.AddEdge(Edge{ID: "e2", Source: "b", Target: "c"}))

	target := "a"
	assert.False(t, s.UpdateEdge("e2", EdgePatch{Target: &target}))

	e, _ := s.Edge("e2")
	assert.Equal(t, "c", e.Target, "rejected rewire leaves the edge untouched")
}

func TestUpdateEdge_DuplicateCheckSkipsSelf(t *testing.T) {
	s := newTestStore(t)
	require.True(t, s.AddEdge(Edge{ID: "e2", Source: "a", Target: "b", SourceHandle: "output-1"}))

	// re-asserting an edge's own coordinates is not a duplicate
	h1 := "output-1"
	assert.True(t, s.UpdateEdge("e2", EdgePatch{SourceHandle: &h1}))

	// but landing on another edge's coordinates is
	h0 := ""
	assert.False(t, s.UpdateEdge("e2", EdgePatch{SourceHandle: &h0}))
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	initial := s.Snapshot()

	s.AddNode(testNode("d"))
	require.True(t, s.AddEdge(Edge{ID: "e2", Source: "b", Target: "c"}))
	require.True(t, s.AddEdge(Edge{ID: "e3", Source: "c", Target: "d"}))
	s.RemoveNode("a")
	name := "renamed"
	require.True(t, s.UpdateNode("b", NodePatch{Name: &name}))
	final := s.Snapshot()

	for i := 0; i < 5; i++ {
		assert.True(t, s.Undo(), "undo %d", i)
	}
	assert.Equal(t, initial.Nodes, s.Snapshot().Nodes)
	assert.Equal(t, initial.Edges, s.Snapshot().Edges)
	assert.False(t, s.CanUndo())

	for i := 0; i < 5; i++ {
		assert.True(t, s.Redo(), "redo %d", i)
	}
	assert.Equal(t, final.Nodes, s.Snapshot().Nodes)
	assert.Equal(t, final.Edges, s.Snapshot().Edges)
	assert.False(t, s.CanRedo())
}

func TestUndo_NewMutationPrunesRedoBranch(t *testing.T) {
	s := newTestStore(t)

	s.AddNode(testNode("d"))
	require.True(t, s.Undo())
	require.True(t, s.CanRedo())

	s.AddNode(testNode("e"))

	assert.False(t, s.CanRedo())
	_, hasD := s.Node("d")
	assert.False(t, hasD)
	_, hasE := s.Node("e")
	assert.True(t, hasE)
}

func TestHistory_Bounded(t *testing.T) {
	s := NewStore()
	for i := 0; i < 60; i++ {
		s.AddNode(testNode(fmt.Sprintf("n%02d", i)))
	}

	undos := 0
	for s.Undo() {
		undos++
	}

	assert.Equal(t, historyLimit-1, undos)
	assert.Len(t, s.Nodes(), 60-undos)
}

func TestMoveNode_NoHistoryNoRevisionBump(t *testing.T) {
	s := newTestStore(t)
	rev := s.Revision()

	s.MoveNode("a", Position{X: 400, Y: 50})

	n, ok := s.Node("a")
	require.True(t, ok)
	assert.Equal(t, Position{X: 400, Y: 50}, n.Position)
	assert.Equal(t, rev, s.Revision())
	assert.False(t, s.CanUndo())
}

func TestPushHistory_CommitsDragEnd(t *testing.T) {
	s := newTestStore(t)

	s.PushHistory()
	assert.False(t, s.CanUndo(), "push with nothing changed is a no-op")

	s.MoveNode("a", Position{X: 400, Y: 50})
	s.MoveNode("a", Position{X: 410, Y: 60})
	s.PushHistory()
	require.True(t, s.CanUndo())

	require.True(t, s.Undo())
	n, _ := s.Node("a")
	assert.Equal(t, Position{}, n.Position)

	require.True(t, s.Redo())
	n, _ = s.Node("a")
	assert.Equal(t, Position{X: 410, Y: 60}, n.Position)
}

func TestPushHistory_PreservesRedoWhenNothingChanged(t *testing.T) {
	s := newTestStore(t)
	s.AddNode(testNode("d"))
	require.True(t, s.Undo())
	require.True(t, s.CanRedo())

	s.PushHistory()

	assert.True(t, s.CanRedo())
	require.True(t, s.Redo())
	assert.Len(t, s.Nodes(), 4)
}

func TestRevision_TracksStructuralMutationsOnly(t *testing.T) {
	s := newTestStore(t)
	rev := s.Revision()

	s.AddNode(testNode("d"))
	assert.Greater(t, s.Revision(), rev)

	rev = s.Revision()
	s.MoveNodes([]NodeMove{{ID: "d", Position: Position{X: 1, Y: 1}}})
	assert.Equal(t, rev, s.Revision())

	require.True(t, s.Undo())
	assert.Greater(t, s.Revision(), rev)
}

func TestEditingOps_UnknownIDsAreNoOps(t *testing.T) {
	s := newTestStore(t)
	rev := s.Revision()

	s.RemoveNode("ghost")
	s.RemoveEdge("ghost")
	s.MoveNode("ghost", Position{X: 1, Y: 1})
	assert.False(t, s.UpdateNode("ghost", NodePatch{}))
	assert.Nil(t, s.DuplicateNodes([]string{"ghost"}))

	assert.Equal(t, rev, s.Revision())
	assert.Len(t, s.Nodes(), 3)
	assert.Len(t, s.Edges(), 1)
	assert.False(t, s.CanUndo())
}

func TestDuplicateNodes_ClonesInternalEdgesOnly(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"a", "b", "c"} {
		s.AddNode(testNode(id))
	}
	require.True(t, s.AddEdge(Edge{ID: "ab", Source: "a", Target: "b"}))
	require.True(t, s.AddEdge(Edge{ID: "bc", Source: "b", Target: "c"}))

	dup := s.DuplicateNodes([]string{"a", "b"})

	require.Len(t, dup, 2)
	assert.NotEqual(t, "a", dup[0].ID)
	assert.NotEqual(t, dup[0].ID, dup[1].ID)
	assert.Equal(t, Position{X: 40, Y: 40}, dup[0].Position)

	assert.Len(t, s.Nodes(), 5)
	edges := s.Edges()
	assert.Len(t, edges, 3)

	internal := 0
	for _, e := range edges {
		if e.ID == "ab" || e.ID == "bc" {
			continue
		}
		// new edges connect only duplicates, never the originals
		assert.NotContains(t, []string{"a", "b", "c"}, e.Source)
		assert.NotContains(t, []string{"a", "b", "c"}, e.Target)
		if e.Source == dup[0].ID && e.Target == dup[1].ID {
			internal++
		}
	}
	assert.Equal(t, 1, internal)
	assert.Equal(t, []string{dup[0].ID, dup[1].ID}, s.SelectedNodeIDs())

	require.True(t, s.Undo())
	assert.Len(t, s.Nodes(), 3)
	assert.Len(t, s.Edges(), 2)
}

func TestCopyPaste_RemapsAndOffsets(t *testing.T) {
	s := NewStore()
	a := testNode("a")
	a.Position = Position{X: 100, Y: 100}
	b := testNode("b")
	b.Position = Position{X: 200, Y: 150}
	s.AddNode(a)
	s.AddNode(b)
	s.AddNode(testNode("c"))
	require.True(t, s.AddEdge(Edge{ID: "ab", Source: "a", Target: "b"}))
	require.True(t, s.AddEdge(Edge{ID: "bc", Source: "b", Target: "c"}))

	s.SelectNodes([]string{"a", "b"})
	s.Copy()

	pasted := s.Paste(nil)
	require.Len(t, pasted, 2)
	assert.Equal(t, Position{X: 140, Y: 140}, pasted[0].Position)
	assert.NotEqual(t, "a", pasted[0].ID)
	assert.Len(t, s.Nodes(), 5)
	assert.Len(t, s.Edges(), 3, "the edge to the unselected node is not cloned")
	assert.Equal(t, []string{pasted[0].ID, pasted[1].ID}, s.SelectedNodeIDs())

	// pasting again anchors the block's top-left corner at the position
	anchored := s.Paste(&Position{X: 500, Y: 500})
	require.Len(t, anchored, 2)
	assert.Equal(t, Position{X: 500, Y: 500}, anchored[0].Position)
	assert.Equal(t, Position{X: 600, Y: 550}, anchored[1].Position)
}

func TestPaste_EmptyClipboard(t *testing.T) {
	s := newTestStore(t)
	assert.Nil(t, s.Paste(nil))
	assert.False(t, s.CanUndo())
}

func TestCut_RemovesSelectionAndKeepsClipboard(t *testing.T) {
	s := newTestStore(t)
	s.SelectNodes([]string{"a", "b"})

	s.Cut()

	assert.Len(t, s.Nodes(), 1)
	assert.Empty(t, s.Edges())
	assert.Empty(t, s.SelectedNodeIDs())

	pasted := s.Paste(nil)
	require.Len(t, pasted, 2)
	assert.Len(t, s.Edges(), 1, "the intra-selection edge travels with the cut")

	require.True(t, s.Undo()) // paste
	require.True(t, s.Undo()) // cut
	ids := make(map[string]bool)
	for _, n := range s.Nodes() {
		ids[n.ID] = true
	}
	assert.True(t, ids["a"] && ids["b"])
	assert.Len(t, s.Edges(), 1)
}

func TestCopy_SurvivesSourceRemoval(t *testing.T) {
	s := newTestStore(t)
	s.SelectNodes([]string{"a"})
	s.Copy()

	s.RemoveNode("a")

	pasted := s.Paste(nil)
	require.Len(t, pasted, 1)
	assert.Equal(t, "a", pasted[0].Name, "clipboard holds a deep snapshot")
}

func TestSelection_DropsUnknownAndDuplicateIDs(t *testing.T) {
	s := newTestStore(t)

	s.SelectNodes([]string{"a", "ghost", "a", "c"})
	assert.Equal(t, []string{"a", "c"}, s.SelectedNodeIDs())

	s.SelectEdges([]string{"e1", "nope", "e1"})
	assert.Equal(t, []string{"e1"}, s.SelectedEdgeIDs())

	s.RemoveNode("a")
	assert.Equal(t, []string{"c"}, s.SelectedNodeIDs())
	assert.Empty(t, s.SelectedEdgeIDs(), "cascade removal prunes the edge selection")

	s.ClearSelection()
	assert.Empty(t, s.SelectedNodeIDs())
}

func TestGraphReads(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		s.AddNode(testNode(id))
	}
	require.True(t, s.AddEdge(Edge{ID: "ab", Source: "a", Target: "b"}))
	require.True(t, s.AddEdge(Edge{ID: "cb", Source: "c", Target: "b"}))
	require.True(t, s.AddEdge(Edge{ID: "bd", Source: "b", Target: "d"}))

	in := s.IncomingEdges("b")
	require.Len(t, in, 2)
	assert.Equal(t, "ab", in[0].ID)
	assert.Equal(t, "cb", in[1].ID)

	out := s.OutgoingEdges("b")
	require.Len(t, out, 1)
	assert.Equal(t, "bd", out[0].ID)

	var ids []string
	for _, n := range s.ConnectedNodes("b") {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids, "sources first, then targets")
}

func TestReads_ReturnDeepCopies(t *testing.T) {
	s := NewStore()
	n := testNode("a")
	n.Parameters = map[string]any{"url": "https://example.com"}
	s.AddNode(n)

	got, ok := s.Node("a")
	require.True(t, ok)
	got.Parameters["url"] = "tampered"

	again, _ := s.Node("a")
	assert.Equal(t, "https://example.com", again.Parameters["url"])
}

func TestSetWorkflow_ResetsHistorySelectionClipboard(t *testing.T) {
	s := newTestStore(t)
	s.AddNode(testNode("d"))
	s.SelectNodes([]string{"a"})
	s.Copy()
	require.True(t, s.CanUndo())

	s.SetWorkflow(&Workflow{ID: "wf-2", Nodes: []Node{testNode("z")}})

	assert.False(t, s.CanUndo())
	assert.False(t, s.CanRedo())
	assert.Empty(t, s.SelectedNodeIDs())
	assert.Nil(t, s.Paste(nil))
	nodes := s.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "z", nodes[0].ID)
}
