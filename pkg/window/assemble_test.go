package window

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/beaconlabs/pulse/pkg/database"
	"github.com/beaconlabs/pulse/pkg/store"
)

// newTestAssembler starts a throwaway Postgres container and returns an
// Assembler over it, mirroring pkg/coordinator's own testcontainers fixture.
func newTestAssembler(t *testing.T) (*Assembler, context.Context) {
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
	require.NoError(t, db.PingContext(ctx))

	client := database.NewClientFromDB(db)
	require.NoError(t, database.RunMigrationsForTest(ctx, db, "test"))
	t.Cleanup(func() { _ = client.Close() })

	s := store.NewFromDB(db)
	return New(s), store.WithOrgID(ctx, "org-test")
}

func publishOne(t *testing.T, ctx context.Context, a *Assembler, userID string, n int) {
	t.Helper()
	req := store.Request{RequestID: uuid.NewString(), UserID: userID, Source: "chat", CreatedAt: float64(time.Now().UnixNano()) / 1e9}
	interactions := make([]store.Interaction, n)
	for i := range interactions {
		interactions[i] = store.Interaction{
			UserID:  userID,
			Role:    store.RoleUser,
			Content: fmt.Sprintf("message %d", i),
			Source:  "chat",
		}
	}
	_, err := a.store.Interactions.BulkInsert(ctx, req, interactions)
	require.NoError(t, err)
}

// TestAssembleIncremental_GatesOnStride verifies spec.md §4.C's "consecutive
// windows overlap by window_size - stride": a new incremental window is only
// emitted once stride new interactions have accumulated since the last one,
// not on every single publish.
func TestAssembleIncremental_GatesOnStride(t *testing.T) {
	a, ctx := newTestAssembler(t)
	scope := Scope{ExtractorID: "prefs", UserID: "u1"}
	ov := Overrides{WindowSize: 4, Stride: 3}

	publishOne(t, ctx, a, "u1", 4)
	windows, err := a.Assemble(ctx, scope, ModeIncremental, ov)
	require.NoError(t, err)
	require.Len(t, windows, 1, "first window at exactly window_size interactions should emit")

	publishOne(t, ctx, a, "u1", 1)
	windows, err = a.Assemble(ctx, scope, ModeIncremental, ov)
	require.NoError(t, err)
	require.Empty(t, windows, "one new interaction is below stride=3, should not re-emit")

	publishOne(t, ctx, a, "u1", 1)
	windows, err = a.Assemble(ctx, scope, ModeIncremental, ov)
	require.NoError(t, err)
	require.Empty(t, windows, "two new interactions is still below stride=3")

	publishOne(t, ctx, a, "u1", 1)
	windows, err = a.Assemble(ctx, scope, ModeIncremental, ov)
	require.NoError(t, err)
	require.Len(t, windows, 1, "three new interactions meets stride=3, should emit")
	require.Len(t, windows[0].Interactions, 4, "window still carries window_size rows")
}

// TestAssembleIncremental_IndependentScopesHaveIndependentCursors ensures the
// stride cursor is keyed per scope, not global.
func TestAssembleIncremental_IndependentScopesHaveIndependentCursors(t *testing.T) {
	a, ctx := newTestAssembler(t)
	ov := Overrides{WindowSize: 3, Stride: 2}

	publishOne(t, ctx, a, "u1", 3)
	publishOne(t, ctx, a, "u2", 3)

	w1, err := a.Assemble(ctx, Scope{ExtractorID: "prefs", UserID: "u1"}, ModeIncremental, ov)
	require.NoError(t, err)
	require.Len(t, w1, 1)

	w2, err := a.Assemble(ctx, Scope{ExtractorID: "prefs", UserID: "u2"}, ModeIncremental, ov)
	require.NoError(t, err)
	require.Len(t, w2, 1)
}
