package store

import (
	"context"
	stdsql "database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/beaconlabs/pulse/pkg/database"
)

// newTestStore starts a throwaway Postgres container, applies the embedded
// migrations, and returns a Store scoped to a single fixed org.
func newTestStore(t *testing.T) (*Store, context.Context) {
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

	return NewFromDB(db), WithOrgID(ctx, "org-test")
}

func TestHybridSearch_RankingByMode(t *testing.T) {
	s, ctx := newTestStore(t)

	err := s.Requests.Insert(ctx, Request{RequestID: "req-1", UserID: "u1", Source: "chat", CreatedAt: 1700000000})
	require.NoError(t, err)

	// P1 prefers concise answers, P2 prefers long detailed responses
	// (spec.md §8 scenario 4).
	require.NoError(t, s.Profiles.Insert(ctx, Profile{
		ProfileID: "p1", UserID: "u1", Content: "user prefers concise answers",
		LastModifiedAt: 1700000000, Status: StatusCurrent,
	}))
	require.NoError(t, s.Profiles.Insert(ctx, Profile{
		ProfileID: "p2", UserID: "u1", Content: "user likes long detailed responses",
		LastModifiedAt: 1700000001, Status: StatusCurrent,
	}))

	concise, err := s.SearchProfiles(ctx, SearchParams{QueryText: "concise", Mode: SearchModeHybrid, K: 5, UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, concise)
	require.Equal(t, "p1", concise[0].ProfileID)

	long, err := s.SearchProfiles(ctx, SearchParams{QueryText: "long", Mode: SearchModeHybrid, K: 5, UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, long)
	require.Equal(t, "p2", long[0].ProfileID)
}

func TestHybridSearch_Idempotent(t *testing.T) {
	s, ctx := newTestStore(t)

	require.NoError(t, s.Requests.Insert(ctx, Request{RequestID: "req-1", UserID: "u1", Source: "chat", CreatedAt: 1700000000}))
	require.NoError(t, s.Profiles.Insert(ctx, Profile{
		ProfileID: "p1", UserID: "u1", Content: "loves dark mode", LastModifiedAt: 1700000000, Status: StatusCurrent,
	}))

	first, err := s.SearchProfiles(ctx, SearchParams{QueryText: "dark mode", Mode: SearchModeFTS, K: 5, UserID: "u1"})
	require.NoError(t, err)
	second, err := s.SearchProfiles(ctx, SearchParams{QueryText: "dark mode", Mode: SearchModeFTS, K: 5, UserID: "u1"})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].ProfileID, second[i].ProfileID)
	}
}

func TestOperationState_TryAcquireAndCoalesce(t *testing.T) {
	s, ctx := newTestStore(t)

	acquired, err := s.OperationStates.TryAcquire(ctx, "profile:u1", "req-1", 1700000000, 300)
	require.NoError(t, err)
	require.True(t, acquired, "first acquire on an idle scope must succeed")

	// A second trigger for the same in-flight scope must coalesce rather
	// than acquire (spec.md §8 C1: at most one in-flight plus one pending).
	acquired2, err := s.OperationStates.TryAcquire(ctx, "profile:u1", "req-2", 1700000001, 300)
	require.NoError(t, err)
	require.False(t, acquired2)

	state, err := s.OperationStates.Get(ctx, "profile:u1")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.PendingRequestID)
	require.Equal(t, "req-2", *state.PendingRequestID)

	pending, hasPending, err := s.OperationStates.Release(ctx, "profile:u1")
	require.NoError(t, err)
	require.True(t, hasPending)
	require.Equal(t, "req-2", pending)

	// After release, the scope is idle again and immediately reacquirable.
	acquired3, err := s.OperationStates.TryAcquire(ctx, "profile:u1", pending, 1700000002, 300)
	require.NoError(t, err)
	require.True(t, acquired3)
}

func TestOperationState_StaleLockPreemption(t *testing.T) {
	s, ctx := newTestStore(t)

	acquired, err := s.OperationStates.TryAcquire(ctx, "profile:u1", "req-1", 1700000000, 300)
	require.NoError(t, err)
	require.True(t, acquired)

	// A trigger arriving before the stale-lock deadline must coalesce.
	stillHeld, err := s.OperationStates.TryAcquire(ctx, "profile:u1", "req-2", 1700000200, 300)
	require.NoError(t, err)
	require.False(t, stillHeld)

	// A trigger arriving at/after 300s must preempt the stale lock
	// (spec.md §8 C2).
	preempted, err := s.OperationStates.TryAcquire(ctx, "profile:u1", "req-3", 1700000300, 300)
	require.NoError(t, err)
	require.True(t, preempted)
}

func TestInteractions_DeleteRequestCascade(t *testing.T) {
	s, ctx := newTestStore(t)

	req := Request{RequestID: "req-1", UserID: "u1", Source: "chat", CreatedAt: 1700000000}
	ins := []Interaction{
		{Role: RoleUser, Content: "hi", UserAction: UserActionNone, Source: "chat", CreatedAt: 1700000000},
		{Role: RoleAgent, Content: "hello", UserAction: UserActionNone, Source: "chat", CreatedAt: 1700000001},
	}
	written, err := s.Interactions.BulkInsert(ctx, req, ins)
	require.NoError(t, err)
	require.Len(t, written, 2)

	n, err := s.Interactions.DeleteRequestCascade(ctx, "req-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	remaining, err := s.Interactions.ListByRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Empty(t, remaining)
}
