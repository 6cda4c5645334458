package coordinator

import (
	"context"
	stdsql "database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/beaconlabs/pulse/pkg/database"
	"github.com/beaconlabs/pulse/pkg/store"
)

// newTestCoordinator starts a throwaway Postgres container and returns a
// Coordinator over it, scoped to a single fixed org (mirrors pkg/store's own
// testcontainers fixture).
func newTestCoordinator(t *testing.T) (*Coordinator, context.Context) {
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
	return New(s, 4), store.WithOrgID(ctx, "org-test")
}

func TestSchedule_RunsTaskAndCompletes(t *testing.T) {
	c, ctx := newTestCoordinator(t)

	var ran int32
	task := func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}

	require.NoError(t, c.Schedule(ctx, "profile:prefs:u1", "req-1", task))
	require.NoError(t, c.AwaitCompletion(ctx, "req-1", 5*time.Second))
	require.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestSchedule_CoalescesOverlappingTrigger(t *testing.T) {
	c, ctx := newTestCoordinator(t)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var ran int32

	blockingTask := func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		started <- struct{}{}
		<-release
		return nil
	}

	require.NoError(t, c.Schedule(ctx, "feedback:tone:v1", "req-1", blockingTask))
	<-started // first run is in flight, holding the lock

	// A second trigger for the same scope must coalesce rather than run
	// concurrently (spec.md §4.H "at most one in-flight").
	require.NoError(t, c.Schedule(ctx, "feedback:tone:v1", "req-2", blockingTask))

	close(release) // let the in-flight run finish, which should trigger the coalesced rerun

	require.NoError(t, c.AwaitCompletion(ctx, "req-1", 5*time.Second))
	require.NoError(t, c.AwaitCompletion(ctx, "req-2", 5*time.Second))
	require.EqualValues(t, 2, atomic.LoadInt32(&ran))
}

func TestAwaitCompletion_NothingScheduledReturnsImmediately(t *testing.T) {
	c, ctx := newTestCoordinator(t)
	require.NoError(t, c.AwaitCompletion(ctx, "never-scheduled", time.Second))
}

func TestAwaitCompletion_TimesOutWhileTaskStillRunning(t *testing.T) {
	c, ctx := newTestCoordinator(t)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	require.NoError(t, c.Schedule(ctx, "profile:prefs:u2", "req-3", func(ctx context.Context) error {
		<-release
		return nil
	}))

	err := c.AwaitCompletion(ctx, "req-3", 50*time.Millisecond)
	require.ErrorIs(t, err, ErrAwaitTimeout)
}

func TestSchedule_PropagatesTaskError(t *testing.T) {
	c, ctx := newTestCoordinator(t)

	taskErr := errStub("extractor exploded")
	require.NoError(t, c.Schedule(ctx, "profile:prefs:u3", "req-4", func(ctx context.Context) error {
		return taskErr
	}))
	err := c.AwaitCompletion(ctx, "req-4", 5*time.Second)
	require.EqualError(t, err, string(taskErr))
}

type errStub string

func (e errStub) Error() string { return string(e) }
