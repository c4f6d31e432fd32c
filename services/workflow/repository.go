package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles workflow document persistence in PostgreSQL. Documents
// are stored whole: the node and edge arrays live in JSONB columns so the
// graph round-trips exactly as the editor sent it.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the workflows table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflows (
			id         UUID PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			version    BIGINT NOT NULL DEFAULT 1,
			nodes      JSONB NOT NULL DEFAULT '[]',
			edges      JSONB NOT NULL DEFAULT '[]',
			settings   JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Seed inserts the sample weather-alert workflow if it does not already exist.
func (r *Repository) Seed(ctx context.Context) error {
	nodesJSON, err := json.Marshal(sampleNodes)
	if err != nil {
		return fmt.Errorf("marshal seed nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(sampleEdges)
	if err != nil {
		return fmt.Errorf("marshal seed edges: %w", err)
	}
	settingsJSON, err := json.Marshal(sampleSettings)
	if err != nil {
		return fmt.Errorf("marshal seed settings: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflows (id, name, version, nodes, edges, settings)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, sampleWorkflowID, "Weather Alert Workflow", nodesJSON, edgesJSON, settingsJSON)
	if err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	return nil
}

// Get retrieves a workflow by ID. Returns nil, nil if not found.
func (r *Repository) Get(ctx context.Context, id string) (*Workflow, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, version, nodes, edges, settings, created_at, updated_at
		FROM workflows WHERE id = $1
	`, id)

	wf, err := scanWorkflow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return wf, nil
}

// Save upserts the document and returns the stored row. Inserts start at
// version 1; saving over an existing id bumps the version server-side and
// refreshes updated_at.
func (r *Repository) Save(ctx context.Context, wf *Workflow) (*Workflow, error) {
	doc := wf.Clone()
	doc.Normalize()

	nodesJSON, err := json.Marshal(doc.Nodes)
	if err != nil {
		return nil, fmt.Errorf("marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(doc.Edges)
	if err != nil {
		return nil, fmt.Errorf("marshal edges: %w", err)
	}
	settingsJSON, err := json.Marshal(doc.Settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO workflows (id, name, version, nodes, edges, settings)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name       = EXCLUDED.name,
			version    = workflows.version + 1,
			nodes      = EXCLUDED.nodes,
			edges      = EXCLUDED.edges,
			settings   = EXCLUDED.settings,
			updated_at = NOW()
		RETURNING id, name, version, nodes, edges, settings, created_at, updated_at
	`, doc.ID, doc.Name, nodesJSON, edgesJSON, settingsJSON)

	saved, err := scanWorkflow(row)
	if err != nil {
		return nil, fmt.Errorf("save workflow: %w", err)
	}
	return saved, nil
}

// scanWorkflow reads one workflow row. The raw scan error is returned
// unwrapped so callers can recognize pgx.ErrNoRows.
func scanWorkflow(row pgx.Row) (*Workflow, error) {
	var wf Workflow
	var nodesJSON, edgesJSON, settingsJSON []byte

	err := row.Scan(&wf.ID, &wf.Name, &wf.Version, &nodesJSON, &edgesJSON,
		&settingsJSON, &wf.Metadata.CreatedAt, &wf.Metadata.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &wf.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &wf.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	wf.Normalize()
	return &wf, nil
}

// InitDB creates the schema and seeds initial data. Called from main on startup.
func InitDB(ctx context.Context, pool *pgxpool.Pool) error {
	repo := NewRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		return err
	}
	return repo.Seed(ctx)
}

const sampleWorkflowID = "550e8400-e29b-41d4-a716-446655440000"

var sampleSettings = map[string]any{"timezone": "Australia/Sydney"}

var sampleNodes = []Node{
	{
		ID: "form", Type: "form", Name: "User Input",
		Position: Position{X: -160, Y: 300},
		Parameters: map[string]any{
			"fields": []any{"name", "email", "city"},
		},
	},
	{
		ID: "weather-api", Type: "weather", Name: "Weather API",
		Position: Position{X: 152, Y: 304},
		Parameters: map[string]any{
			"city":        "Sydney",
			"apiEndpoint": "https://api.open-meteo.com/v1/forecast",
		},
	},
	{
		ID: "condition", Type: "if", Name: "Check Condition",
		Position:   Position{X: 460, Y: 304},
		Parameters: map[string]any{"condition": "{{temperature}} > 25"},
	},
	{
		ID: "email", Type: "email", Name: "Send Alert",
		Position: Position{X: 794, Y: 88},
		Parameters: map[string]any{
			"to":      "{{email}}",
			"subject": "Weather Alert",
			"body":    "Weather alert for {{city}}! Temperature is {{temperature}}°C!",
		},
	},
	{
		ID: "summary", Type: "set", Name: "Summary",
		Position: Position{X: 794, Y: 520},
		Parameters: map[string]any{
			"fields": []any{
				map[string]any{"name": "alerted", "value": false},
				map[string]any{"name": "reason", "value": "threshold not met"},
			},
		},
	},
	{
		ID: "archive", Type: "postgres", Name: "Archive Result",
		Position: Position{X: 1096, Y: 304},
		Parameters: map[string]any{
			"query": "INSERT INTO weather_alerts (city, temperature) VALUES ($1, $2)",
		},
	},
}

var sampleEdges = []Edge{
	{ID: "e1", Source: "form", Target: "weather-api", Type: "smoothstep", Animated: true, Style: map[string]any{"stroke": "#3b82f6", "strokeWidth": 3}, Label: "Submit Data"},
	{ID: "e2", Source: "weather-api", Target: "condition", Type: "smoothstep", Animated: true, Style: map[string]any{"stroke": "#f97316", "strokeWidth": 3}, Label: "Temperature Data"},
	{ID: "e3", Source: "condition", Target: "email", SourceHandle: "output-0", Type: "smoothstep", Animated: true, Style: map[string]any{"stroke": "#10b981", "strokeWidth": 3}, Label: "✓ Condition Met"},
	{ID: "e4", Source: "condition", Target: "summary", SourceHandle: "output-1", Type: "smoothstep", Animated: true, Style: map[string]any{"stroke": "#6b7280", "strokeWidth": 3}, Label: "✗ No Alert Needed"},
	{ID: "e5", Source: "email", Target: "archive", Type: "smoothstep", Animated: true, Style: map[string]any{"stroke": "#ef4444", "strokeWidth": 2}, Label: "Alert Sent"},
	{ID: "e6", Source: "summary", Target: "archive", Type: "smoothstep", Animated: true, Style: map[string]any{"stroke": "#6b7280", "strokeWidth": 2}, Label: "No Alert"},
}
