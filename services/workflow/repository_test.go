package workflow

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping repository tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestRepository_InitSchema(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	err := repo.InitSchema(context.Background())
	require.NoError(t, err)

	// Running again should be idempotent
	err = repo.InitSchema(context.Background())
	require.NoError(t, err)
}

func TestRepository_Seed_Idempotent(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	require.NoError(t, repo.Seed(ctx))
	require.NoError(t, repo.Seed(ctx)) // Second call should not error
}

func TestRepository_Get_Found(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))
	require.NoError(t, repo.Seed(ctx))

	wf, err := repo.Get(ctx, sampleWorkflowID)
	require.NoError(t, err)
	require.NotNil(t, wf)

	assert.Equal(t, sampleWorkflowID, wf.ID)
	assert.Equal(t, "Weather Alert Workflow", wf.Name)
	assert.Len(t, wf.Nodes, 6)
	assert.Len(t, wf.Edges, 6)

	// Verify a start node exists (one with no incoming edges)
	incoming := make(map[string]bool)
	for _, e := range wf.Edges {
		incoming[e.Target] = true
	}
	var hasStart bool
	for _, n := range wf.Nodes {
		if !incoming[n.ID] {
			hasStart = true
			break
		}
	}
	assert.True(t, hasStart, "workflow should have a start node")
}

func TestRepository_Get_NotFound(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	wf, err := repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, wf)
}

func TestRepository_Save_InsertThenUpsert(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	id := uuid.New().String()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM workflows WHERE id = $1", id)
	})

	wf := &Workflow{
		ID:   id,
		Name: "Scratch",
		Nodes: []Node{
			{ID: "t", Type: "manual-trigger", Name: "Go", Parameters: map[string]any{"note": "first"}},
		},
		Edges:    []Edge{},
		Settings: map[string]any{"timezone": "Australia/Sydney"},
	}

	saved, err := repo.Save(ctx, wf)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)
	assert.False(t, saved.Metadata.CreatedAt.IsZero())

	saved.Name = "Scratch v2"
	again, err := repo.Save(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version, "saving over an existing id bumps the version")
	assert.Equal(t, "Scratch v2", again.Name)
	assert.False(t, again.Metadata.UpdatedAt.Before(again.Metadata.CreatedAt))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, again.Version, got.Version)
	assert.Equal(t, wf.Nodes, got.Nodes, "the document round-trips exactly")
	assert.Equal(t, wf.Settings, got.Settings)
}

func TestRepository_Save_NormalizesNilSlices(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	id := uuid.New().String()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM workflows WHERE id = $1", id)
	})

	saved, err := repo.Save(ctx, &Workflow{ID: id, Name: "Bare"})
	require.NoError(t, err)
	assert.NotNil(t, saved.Nodes)
	assert.NotNil(t, saved.Edges)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []Node{}, got.Nodes)
	assert.Equal(t, []Edge{}, got.Edges)
}
