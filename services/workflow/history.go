package workflow

import "reflect"

const historyLimit = 50

// historyEntry is an immutable snapshot of the graph at one point in time.
// Positions travel with the nodes; selection and clipboard do not.
type historyEntry struct {
	nodes []Node
	edges []Edge
}

// history is a bounded, linearly indexed sequence of snapshots with a cursor.
// The cursor sits on the entry matching the live graph; -1 means no snapshot
// has been taken yet. Pushing while the cursor is not at the end discards
// everything after it (undo-branch pruning).
type history struct {
	entries []historyEntry
	cursor  int
	limit   int
}

func newHistory(limit int) *history {
	return &history{cursor: -1, limit: limit}
}

// ensureBaseline seeds the history with the given snapshot when empty, so the
// first undo can restore the pre-mutation state.
func (h *history) ensureBaseline(snap historyEntry) {
	if len(h.entries) == 0 {
		h.entries = append(h.entries, snap)
		h.cursor = 0
	}
}

// record appends a snapshot after the cursor, pruning any redo branch and
// evicting the oldest entry once the limit is exceeded.
func (h *history) record(snap historyEntry) {
	h.entries = append(h.entries[:h.cursor+1], snap)
	h.cursor = len(h.entries) - 1
	if len(h.entries) > h.limit {
		h.entries = h.entries[1:]
		h.cursor--
	}
}

// reset replaces the whole history with a single baseline snapshot.
func (h *history) reset(snap historyEntry) {
	h.entries = []historyEntry{snap}
	h.cursor = 0
}

// unchanged reports whether snap matches the entry under the cursor.
func (h *history) unchanged(snap historyEntry) bool {
	return h.cursor >= 0 && reflect.DeepEqual(h.entries[h.cursor], snap)
}

func (h *history) canUndo() bool {
	return h.cursor > 0
}

func (h *history) canRedo() bool {
	return h.cursor >= 0 && h.cursor < len(h.entries)-1
}

// undo steps the cursor back and returns the snapshot to restore.
func (h *history) undo() (historyEntry, bool) {
	if !h.canUndo() {
		return historyEntry{}, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// redo steps the cursor forward and returns the snapshot to restore.
func (h *history) redo() (historyEntry, bool) {
	if !h.canRedo() {
		return historyEntry{}, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}
