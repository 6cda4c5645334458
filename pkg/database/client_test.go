package database

import (
	"context"
	stdsql "database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestClient starts a throwaway Postgres container, runs the embedded
// migrations against it, and returns a ready Client.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, runMigrations(ctx, db, "test"))

	client := NewClientFromDB(db)
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	err := client.DB().PingContext(ctx)
	require.NoError(t, err)

	health, err := Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxOpenConns, 0)
}

func TestFullTextSearch(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.DB().ExecContext(ctx,
		`INSERT INTO requests (org_id, request_id, user_id, source, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		"org-1", "req-1", "user-1", "chat", 1700000000.0,
	)
	require.NoError(t, err)

	_, err = client.DB().ExecContext(ctx,
		`INSERT INTO interactions (org_id, interaction_id, request_id, user_id, role, content, source, created_at)
		 VALUES ($1, 1, $2, $3, 'agent', $4, 'chat', $5)`,
		"org-1", "req-1", "user-1", "Critical error in production cluster with pod failures", 1700000000.0,
	)
	require.NoError(t, err)

	_, err = client.DB().ExecContext(ctx,
		`INSERT INTO interactions (org_id, interaction_id, request_id, user_id, role, content, source, created_at)
		 VALUES ($1, 2, $2, $3, 'agent', $4, 'chat', $5)`,
		"org-1", "req-1", "user-1", "Warning: high memory usage detected", 1700000000.0,
	)
	require.NoError(t, err)

	rows, err := client.DB().QueryContext(ctx,
		`SELECT interaction_id FROM interactions
		 WHERE org_id = $1 AND content_tsv @@ websearch_to_tsquery('english', $2)`,
		"org-1", "error production",
	)
	require.NoError(t, err)
	defer rows.Close()

	var results []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		results = append(results, id)
	}
	assert.Len(t, results, 1)
	assert.EqualValues(t, 1, results[0])

	rows2, err := client.DB().QueryContext(ctx,
		`SELECT interaction_id FROM interactions
		 WHERE org_id = $1 AND content_tsv @@ websearch_to_tsquery('english', $2)`,
		"org-1", "memory",
	)
	require.NoError(t, err)
	defer rows2.Close()

	var results2 []int64
	for rows2.Next() {
		var id int64
		require.NoError(t, rows2.Scan(&id))
		results2 = append(results2, id)
	}
	assert.Len(t, results2, 1)
	assert.EqualValues(t, 2, results2[0])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "test",
				Database: "test", SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
			},
			wantErr: false,
		},
		{
			name: "missing password",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "",
				Database: "test", MaxOpenConns: 10, MaxIdleConns: 5,
			},
			wantErr: true,
		},
		{
			name: "idle conns exceed max conns",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "test",
				Database: "test", MaxOpenConns: 5, MaxIdleConns: 10,
			},
			wantErr: true,
		},
		{
			name: "zero max open conns",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "test",
				Database: "test", MaxOpenConns: 0, MaxIdleConns: 0,
			},
			wantErr: true,
		},
		{
			name: "negative idle conns",
			cfg: Config{
				Host: "localhost", Port: 5432, User: "test", Password: "test",
				Database: "test", MaxOpenConns: 10, MaxIdleConns: -1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
