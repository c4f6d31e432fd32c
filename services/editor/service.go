// Package editor exposes the workflow editing API over HTTP: document
// load/save, graph mutations with undo/redo, connection validation, schema
// contexts for the expression editor, and mock simulation runs.
package editor

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"workflow-studio/api/services/catalog"
	"workflow-studio/api/services/resolver"
	"workflow-studio/api/services/simulator"
	"workflow-studio/api/services/workflow"
)

// Repo abstracts workflow document persistence for testability.
type Repo interface {
	Get(ctx context.Context, id string) (*workflow.Workflow, error)
	Save(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error)
}

// session pins one workflow id to a live graph store and its schema resolver.
// Editing operates on the session; the document persists only on an explicit
// save.
type session struct {
	store    *workflow.Store
	resolver *resolver.Resolver
}

// Service wires the repository, node-type catalog, and simulator behind the
// editing API.
type Service struct {
	repo    Repo
	catalog *catalog.Catalog
	sim     *simulator.Simulator

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService creates a Service with a real PostgreSQL repository and the
// built-in node-type catalog.
func NewService(pool *pgxpool.Pool) (*Service, error) {
	cat := catalog.New()
	return &Service{
		repo:     workflow.NewRepository(pool),
		catalog:  cat,
		sim:      simulator.New(cat),
		sessions: make(map[string]*session),
	}, nil
}

// sessionFor returns the live editing session for the workflow, creating it
// from the persisted document on first touch. A nil session with a nil error
// means the document does not exist.
func (s *Service) sessionFor(ctx context.Context, id string) (*session, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	wf, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok { // raced with another request
		return sess, nil
	}
	sess := s.newSessionLocked(id)
	sess.store.SetWorkflow(wf)
	return sess, nil
}

// resetSession points the workflow's session at a freshly saved document,
// creating the session if the save was its first touch.
func (s *Service) resetSession(id string, wf *workflow.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = s.newSessionLocked(id)
	}
	sess.store.SetWorkflow(wf)
}

func (s *Service) newSessionLocked(id string) *session {
	store := workflow.NewStore()
	sess := &session{store: store, resolver: resolver.New(store, s.catalog)}
	s.sessions[id] = sess
	return sess
}

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes registers editor HTTP handlers on the given router.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	parentRouter.Handle("/node-types",
		jsonMiddleware(http.HandlerFunc(s.HandleListNodeTypes))).Methods("GET")

	router := parentRouter.PathPrefix("/workflows").Subrouter()
	router.StrictSlash(false)
	router.Use(jsonMiddleware)

	router.HandleFunc("/{id}", s.HandleGetWorkflow).Methods("GET")
	router.HandleFunc("/{id}", s.HandleSaveWorkflow).Methods("PUT")
	router.HandleFunc("/{id}/nodes", s.HandleCreateNode).Methods("POST")
	router.HandleFunc("/{id}/nodes/duplicate", s.HandleDuplicateNodes).Methods("POST")
	router.HandleFunc("/{id}/nodes/{nodeId}", s.HandleUpdateNode).Methods("PATCH")
	router.HandleFunc("/{id}/nodes/{nodeId}", s.HandleDeleteNode).Methods("DELETE")
	router.HandleFunc("/{id}/nodes/{nodeId}/schema-context", s.HandleSchemaContext).Methods("GET")
	router.HandleFunc("/{id}/edges", s.HandleCreateEdge).Methods("POST")
	router.HandleFunc("/{id}/edges/{edgeId}", s.HandleUpdateEdge).Methods("PATCH")
	router.HandleFunc("/{id}/edges/{edgeId}", s.HandleDeleteEdge).Methods("DELETE")
	router.HandleFunc("/{id}/connections/validate", s.HandleValidateConnection).Methods("POST")
	router.HandleFunc("/{id}/history/undo", s.HandleUndo).Methods("POST")
	router.HandleFunc("/{id}/history/redo", s.HandleRedo).Methods("POST")
	router.HandleFunc("/{id}/history/push", s.HandlePushHistory).Methods("POST")
	router.HandleFunc("/{id}/simulate", s.HandleSimulate).Methods("POST")
}
