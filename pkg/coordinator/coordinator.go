// Package coordinator implements the Pipeline Coordinator (spec.md §4.H):
// given a newly written interaction or a manual/rerun trigger, it decides
// which extractors to schedule and enforces at-most-one in-flight run per
// scope, coalescing overlapping triggers into a single follow-up run.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beaconlabs/pulse/pkg/store"
)

// DefaultWorkerPoolSize bounds concurrent task execution per tenant
// (spec.md §5).
const DefaultWorkerPoolSize = 8

// DefaultStaleLockSeconds is the age at which an operation_state lock is
// treated as abandoned and reacquirable (spec.md §4.H "Timeouts").
const DefaultStaleLockSeconds = 300

// ErrAwaitTimeout is returned by AwaitCompletion when the wait window elapses
// before every task scheduled under a request_id finishes (spec.md §5
// "wait-for-response ... or 60s elapses, whichever first").
var ErrAwaitTimeout = fmt.Errorf("coordinator: wait-for-response timed out")

// Task is one scheduled extraction run, already bound to its window and
// config; the scope it runs under decides its lock and worker-pool slot.
type Task func(ctx context.Context) error

// Coordinator owns the lock protocol, the per-tenant worker pool, and the
// request_id → in-flight-task bookkeeping AwaitCompletion waits on.
type Coordinator struct {
	store            *store.Store
	poolSize         int
	staleLockSeconds float64

	mu   sync.Mutex
	sems map[string]chan struct{} // org_id -> worker pool semaphore

	waitMu sync.Mutex
	waits  map[string]*requestWait // request_id -> tracker
}

type requestWait struct {
	wg  sync.WaitGroup
	mu  sync.Mutex
	err error
}

// New builds a Coordinator. A non-positive poolSize falls back to
// DefaultWorkerPoolSize.
func New(s *store.Store, poolSize int) *Coordinator {
	if poolSize <= 0 {
		poolSize = DefaultWorkerPoolSize
	}
	return &Coordinator{
		store:            s,
		poolSize:         poolSize,
		staleLockSeconds: DefaultStaleLockSeconds,
		sems:             make(map[string]chan struct{}),
		waits:            make(map[string]*requestWait),
	}
}

var nowUnix = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }

func (c *Coordinator) semFor(orgID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.sems[orgID]
	if !ok {
		sem = make(chan struct{}, c.poolSize)
		c.sems[orgID] = sem
	}
	return sem
}

func (c *Coordinator) track(requestID string) *requestWait {
	c.waitMu.Lock()
	defer c.waitMu.Unlock()
	w, ok := c.waits[requestID]
	if !ok {
		w = &requestWait{}
		c.waits[requestID] = w
	}
	return w
}

func (c *Coordinator) forget(requestID string) {
	c.waitMu.Lock()
	defer c.waitMu.Unlock()
	delete(c.waits, requestID)
}

func (c *Coordinator) finish(requestID string, err error) {
	c.waitMu.Lock()
	w, ok := c.waits[requestID]
	c.waitMu.Unlock()
	if !ok {
		return
	}
	w.mu.Lock()
	if err != nil {
		w.err = err
	}
	w.mu.Unlock()
	w.wg.Done()
}

// Schedule submits task under scope, the lock key spec.md §4.H assigns to an
// extractor invocation (e.g. "profile:{extractor_name}:{user_id}"). If
// another task is already running for scope, this trigger coalesces onto it:
// the in-flight run re-executes task once more on completion and Schedule
// returns immediately without starting a goroutine of its own.
//
// requestID registers this call against the API request that caused it; all
// Schedule calls sharing a requestID must happen before the matching
// AwaitCompletion call, the same ordering sync.WaitGroup itself requires
// between Add and Wait.
func (c *Coordinator) Schedule(ctx context.Context, scope, requestID string, task Task) error {
	orgID, err := store.OrgIDFromContext(ctx)
	if err != nil {
		return err
	}

	w := c.track(requestID)
	w.wg.Add(1)

	acquired, err := c.store.OperationStates.TryAcquire(ctx, scope, requestID, nowUnix(), c.staleLockSeconds)
	if err != nil {
		w.wg.Done()
		return fmt.Errorf("coordinator: schedule %s: %w", scope, err)
	}
	if !acquired {
		// Coalesced: the run currently holding scope's lock will pick up
		// pending_request_id on Release and re-run task on our behalf.
		coalescedTotal.WithLabelValues(scopeKind(scope)).Inc()
		slog.Debug("coordinator: coalesced trigger onto in-flight run", "scope", scope, "request_id", requestID)
		return nil
	}

	sem := c.semFor(orgID)
	go func() {
		sem <- struct{}{}
		queueDepth.WithLabelValues(orgID).Inc()
		defer func() {
			queueDepth.WithLabelValues(orgID).Dec()
			<-sem
		}()
		c.runLocked(ctx, scope, requestID, task)
	}()
	return nil
}

// runLocked executes task, releases scope's lock, and — if the release
// reveals a coalesced pending_request_id — loops to run task again under
// that request_id, repeating until no trigger arrived during the run
// (spec.md §4.H "on completion ... immediately re-acquires and re-runs").
func (c *Coordinator) runLocked(ctx context.Context, scope, requestID string, task Task) {
	currentID := requestID
	for {
		runsTotal.WithLabelValues(scopeKind(scope)).Inc()
		err := c.execute(ctx, task)
		if err != nil {
			slog.Error("coordinator: task failed", "scope", scope, "request_id", currentID, "error", err)
		}
		c.finish(currentID, err)

		pendingID, hasPending, relErr := c.store.OperationStates.Release(ctx, scope)
		if relErr != nil {
			slog.Error("coordinator: release failed, lock may remain held until stale timeout", "scope", scope, "error", relErr)
			return
		}
		if !hasPending {
			return
		}
		currentID = pendingID
	}
}

// execute runs task, converting a panic into an error so one misbehaving
// extractor can never take down the worker pool goroutine.
func (c *Coordinator) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("coordinator: task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// AwaitCompletion blocks until every task scheduled under requestID has
// finished, ctx is cancelled, or timeout elapses, whichever comes first
// (spec.md §5 "wait-for-response"). A requestID nothing was ever Scheduled
// under returns immediately with a nil error.
func (c *Coordinator) AwaitCompletion(ctx context.Context, requestID string, timeout time.Duration) error {
	c.waitMu.Lock()
	w, ok := c.waits[requestID]
	c.waitMu.Unlock()
	if !ok {
		return nil
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.mu.Lock()
		err := w.err
		w.mu.Unlock()
		c.forget(requestID)
		return err
	case <-time.After(timeout):
		return ErrAwaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
