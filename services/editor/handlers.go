package editor

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"workflow-studio/api/services/resolver"
	"workflow-studio/api/services/simulator"
	"workflow-studio/api/services/workflow"
)

// loadSession resolves the path's workflow id to a live session, writing the
// error response itself when the id is malformed, the lookup fails, or the
// document does not exist. A nil return means the response is already
// written.
func (s *Service) loadSession(w http.ResponseWriter, r *http.Request) *session {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow id")
		return nil
	}
	sess, err := s.sessionFor(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return nil
	}
	return sess
}

// HandleListNodeTypes returns the catalog entries for the node palette.
func (s *Service) HandleListNodeTypes(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"nodeTypes": s.catalog.All()})
}

// HandleGetWorkflow returns the session's current document as JSON.
func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Getting workflow", "id", mux.Vars(r)["id"])
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(sess.store.Snapshot())
}

// HandleSaveWorkflow replaces the persisted document with the request body
// and resets the editing session to the saved state.
func (s *Service) HandleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Saving workflow", "id", id)

	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow id")
		return
	}
	var doc workflow.Workflow
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc.ID = id
	doc.Normalize()

	saved, err := s.repo.Save(r.Context(), &doc)
	if err != nil {
		slog.Error("Failed to save workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.resetSession(id, saved)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(saved)
}

type createNodeRequest struct {
	Type       string             `json:"type"`
	Name       string             `json:"name"`
	Position   *workflow.Position `json:"position"`
	Parameters map[string]any     `json:"parameters"`
}

// HandleCreateNode instantiates a catalog node type and adds it to the graph.
func (s *Service) HandleCreateNode(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Creating node", "workflow", mux.Vars(r)["id"])
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, errMissing("type").Error())
		return
	}
	pos := workflow.Position{}
	if req.Position != nil {
		pos = *req.Position
	}
	node := s.catalog.CreateNodeInstance(req.Type, pos, req.Parameters)
	if node == nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown node type")
		return
	}
	if req.Name != "" {
		node.Name = req.Name
	}
	sess.store.AddNode(*node)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(node)
}

type updateNodeRequest struct {
	Name       *string            `json:"name"`
	Parameters map[string]any     `json:"parameters"`
	Disabled   *bool              `json:"disabled"`
	Position   *workflow.Position `json:"position"`
}

// HandleUpdateNode patches a node's name, parameters, disabled flag, or
// position. Position-only patches are treated as canvas drags: they do not
// push an undo entry.
func (s *Service) HandleUpdateNode(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	nodeID := mux.Vars(r)["nodeId"]
	slog.Debug("Updating node", "workflow", mux.Vars(r)["id"], "node", nodeID)

	var req updateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := sess.store.Node(nodeID); !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}

	positionOnly := req.Position != nil && req.Name == nil &&
		req.Parameters == nil && req.Disabled == nil
	if positionOnly {
		sess.store.MoveNode(nodeID, *req.Position)
	} else {
		sess.store.UpdateNode(nodeID, workflow.NodePatch{
			Name:       req.Name,
			Parameters: req.Parameters,
			Disabled:   req.Disabled,
			Position:   req.Position,
		})
	}

	node, _ := sess.store.Node(nodeID)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(node)
}

// HandleDeleteNode removes a node and its edges. Deleting an unknown node is
// an idempotent no-op.
func (s *Service) HandleDeleteNode(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	nodeID := mux.Vars(r)["nodeId"]
	slog.Debug("Deleting node", "workflow", mux.Vars(r)["id"], "node", nodeID)
	sess.store.RemoveNode(nodeID)
	w.WriteHeader(http.StatusNoContent)
}

type duplicateNodesRequest struct {
	NodeIDs []string `json:"nodeIds"`
}

// HandleDuplicateNodes clones the named nodes and their internal edges.
func (s *Service) HandleDuplicateNodes(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	var req duplicateNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NodeIDs) == 0 {
		writeError(w, http.StatusBadRequest, errMissing("nodeIds").Error())
		return
	}
	nodes := sess.store.DuplicateNodes(req.NodeIDs)
	if nodes == nil {
		nodes = []workflow.Node{}
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"nodes": nodes})
}

// HandleCreateEdge connects two nodes. Structural rejections (self-loop,
// duplicate, cycle, unknown endpoint) return 422 with the reason.
func (s *Service) HandleCreateEdge(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	var e workflow.Edge
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if e.Source == "" {
		writeError(w, http.StatusBadRequest, errMissing("source").Error())
		return
	}
	if e.Target == "" {
		writeError(w, http.StatusBadRequest, errMissing("target").Error())
		return
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if !sess.store.AddEdge(e) {
		reason := sess.store.ValidateConnection(e.Source, e.SourceHandle, e.Target, e.TargetHandle)
		message := "connection rejected"
		if reason != nil {
			message = reason.Error()
		}
		writeError(w, http.StatusUnprocessableEntity, message)
		return
	}
	stored, _ := sess.store.Edge(e.ID)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(stored)
}

type updateEdgeRequest struct {
	Source       *string        `json:"source"`
	Target       *string        `json:"target"`
	SourceHandle *string        `json:"sourceHandle"`
	TargetHandle *string        `json:"targetHandle"`
	Label        *string        `json:"label"`
	Type         *string        `json:"type"`
	Animated     *bool          `json:"animated"`
	Style        map[string]any `json:"style"`
}

// HandleUpdateEdge patches an edge's endpoints, handles, or visual metadata.
// Rewiring is validated under the same rules as edge creation; a rejected
// rewire returns 422.
func (s *Service) HandleUpdateEdge(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	edgeID := mux.Vars(r)["edgeId"]
	slog.Debug("Updating edge", "workflow", mux.Vars(r)["id"], "edge", edgeID)

	var req updateEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := sess.store.Edge(edgeID); !ok {
		writeError(w, http.StatusNotFound, "edge not found")
		return
	}
	ok := sess.store.UpdateEdge(edgeID, workflow.EdgePatch{
		Source:       req.Source,
		Target:       req.Target,
		SourceHandle: req.SourceHandle,
		TargetHandle: req.TargetHandle,
		Label:        req.Label,
		Type:         req.Type,
		Animated:     req.Animated,
		Style:        req.Style,
	})
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid edge update")
		return
	}
	edge, _ := sess.store.Edge(edgeID)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(edge)
}

// HandleDeleteEdge removes an edge. Unknown edge ids are idempotent no-ops.
func (s *Service) HandleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	sess.store.RemoveEdge(mux.Vars(r)["edgeId"])
	w.WriteHeader(http.StatusNoContent)
}

type validateConnectionRequest struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}

type validateConnectionResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// HandleValidateConnection reports whether a prospective edge would be
// accepted, without mutating the graph. An invalid connection is a 200 with
// valid=false, never an error status; the canvas probes this constantly.
func (s *Service) HandleValidateConnection(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	var req validateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, errMissing("source").Error())
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, errMissing("target").Error())
		return
	}
	resp := validateConnectionResponse{Valid: true}
	if err := sess.store.ValidateConnection(req.Source, req.SourceHandle, req.Target, req.TargetHandle); err != nil {
		resp.Valid = false
		resp.Reason = err.Error()
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

type historyResponse struct {
	Workflow *workflow.Workflow `json:"workflow"`
	CanUndo  bool               `json:"canUndo"`
	CanRedo  bool               `json:"canRedo"`
}

// HandleUndo steps the graph back one history entry. At the boundary it is a
// no-op that still reports the current state.
func (s *Service) HandleUndo(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	sess.store.Undo()
	writeHistoryState(w, sess)
}

// HandleRedo steps the graph forward one history entry.
func (s *Service) HandleRedo(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	sess.store.Redo()
	writeHistoryState(w, sess)
}

// HandlePushHistory records the current graph as an undo point. The canvas
// calls it once at drag-end, collapsing the per-frame position updates into a
// single undoable step.
func (s *Service) HandlePushHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	sess.store.PushHistory()
	writeHistoryState(w, sess)
}

func writeHistoryState(w http.ResponseWriter, sess *session) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(historyResponse{
		Workflow: sess.store.Snapshot(),
		CanUndo:  sess.store.CanUndo(),
		CanRedo:  sess.store.CanRedo(),
	})
}

// HandleSchemaContext returns the node's resolved upstream schemas together
// with autocomplete suggestions and a representative mock input payload.
func (s *Service) HandleSchemaContext(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	nodeID := mux.Vars(r)["nodeId"]
	slog.Debug("Resolving schema context", "workflow", mux.Vars(r)["id"], "node", nodeID)

	ctx, err := sess.resolver.Resolve(nodeID)
	if err != nil {
		if errors.Is(err, workflow.ErrUnknownNode) {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		slog.Error("Failed to resolve schema context", "node", nodeID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	suggestions, err := sess.resolver.Suggestions(nodeID)
	if err != nil {
		slog.Error("Failed to build suggestions", "node", nodeID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if suggestions == nil {
		suggestions = []resolver.Suggestion{}
	}
	mockInput, err := sess.resolver.MockInput(nodeID)
	if err != nil {
		slog.Error("Failed to build mock input", "node", nodeID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"context":     ctx,
		"suggestions": suggestions,
		"mockInput":   mockInput,
	})
}

type simulateRequest struct {
	NodeDelayMs       int64                       `json:"nodeDelayMs"`
	MockDataOverrides map[string][]simulator.Item `json:"mockDataOverrides"`
	SimulateErrors    map[string]string           `json:"simulateErrors"`
}

// HandleSimulate runs a mock execution of the session's current graph and
// returns the full trace. The body is optional; an empty body simulates with
// defaults.
func (s *Service) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Simulating workflow", "id", id)
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NodeDelayMs < 0 {
		writeError(w, http.StatusBadRequest, errInvalid("nodeDelayMs").Error())
		return
	}

	opts := simulator.Options{
		NodeDelay:         time.Duration(req.NodeDelayMs) * time.Millisecond,
		MockDataOverrides: req.MockDataOverrides,
		SimulateErrors:    req.SimulateErrors,
		OnLog: func(nodeID, message string) {
			slog.Debug("Simulation log", "workflow", id, "node", nodeID, "message", message)
		},
	}

	result, err := s.sim.Run(r.Context(), sess.store.Snapshot(), opts)
	if err != nil {
		if errors.Is(err, simulator.ErrNoStartNodes) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("Simulation failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

type validationError struct {
	field string
	kind  string
}

func (e *validationError) Error() string {
	if e.kind == "missing" {
		return e.field + " is required"
	}
	return e.field + " is invalid"
}

func errMissing(field string) error { return &validationError{field: field, kind: "missing"} }
func errInvalid(field string) error { return &validationError{field: field, kind: "invalid"} }
