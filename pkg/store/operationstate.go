package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// OperationStateRepository implements the Pipeline Coordinator's lock
// protocol (spec.md §4.H). Grounded on tarsy's claimNextSession pattern in
// the now-folded queue worker (`SELECT ... FOR UPDATE SKIP LOCKED` plus an
// atomic claim-update), generalized here from "claim one pending
// AlertSession row" to "claim an arbitrary operation_state row keyed by
// scope" via an INSERT ... ON CONFLICT predicate rather than a separate
// SELECT FOR UPDATE, since the claim and the update are the same statement.
type OperationStateRepository struct {
	db *sql.DB
}

// TryAcquire attempts the atomic claim described in spec.md §4.H:
//
//	acquired=true   iff no row exists, or in_progress=false, or the existing
//	                lock is stale (now - started_at >= staleLockSeconds)
//	acquired=false  otherwise; pending_request_id is set to requestID so the
//	                in-flight run picks it up on completion (coalescing)
func (r *OperationStateRepository) TryAcquire(ctx context.Context, serviceName, requestID string, now float64, staleLockSeconds float64) (acquired bool, err error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return false, err
	}

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO operation_states (org_id, service_name, in_progress, started_at, current_request_id, pending_request_id)
		 VALUES ($1, $2, true, $3, $4, NULL)
		 ON CONFLICT (org_id, service_name) DO UPDATE SET
		   in_progress = true,
		   started_at = $3,
		   current_request_id = $4,
		   pending_request_id = NULL
		 WHERE operation_states.in_progress = false
		    OR ($3 - operation_states.started_at) >= $5
		 RETURNING true`,
		orgID, serviceName, now, requestID, staleLockSeconds,
	)
	var acquiredFlag bool
	if err := row.Scan(&acquiredFlag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The predicate failed: someone else holds a live lock. Record
			// this request as the pending one so it coalesces onto the
			// in-flight run's completion (at most one queued next-run).
			if _, updErr := r.db.ExecContext(ctx,
				`UPDATE operation_states SET pending_request_id = $1
				 WHERE org_id = $2 AND service_name = $3 AND in_progress = true`,
				requestID, orgID, serviceName,
			); updErr != nil {
				return false, fmt.Errorf("store: coalesce pending request: %w", updErr)
			}
			return false, nil
		}
		return false, fmt.Errorf("store: try_acquire: %w", err)
	}
	return acquiredFlag, nil
}

// Release clears in_progress and returns the coalesced pending_request_id
// (if any), atomically consuming it so only one follow-up run is ever
// signalled per release.
func (r *OperationStateRepository) Release(ctx context.Context, serviceName string) (pendingRequestID string, hasPending bool, err error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return "", false, err
	}

	var pending sql.NullString
	row := r.db.QueryRowContext(ctx,
		`UPDATE operation_states o SET in_progress = false, pending_request_id = NULL
		 FROM (SELECT org_id, service_name, pending_request_id FROM operation_states
		       WHERE org_id = $1 AND service_name = $2 FOR UPDATE) prev
		 WHERE o.org_id = prev.org_id AND o.service_name = prev.service_name
		 RETURNING prev.pending_request_id`,
		orgID, serviceName,
	)
	if err := row.Scan(&pending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("store: release operation state: %w", err)
	}
	if pending.Valid && pending.String != "" {
		return pending.String, true, nil
	}
	return "", false, nil
}

// Get fetches the current OperationState row for a scope, or nil if none
// exists yet (an idle scope that has never been acquired).
func (r *OperationStateRepository) Get(ctx context.Context, serviceName string) (*OperationState, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var s OperationState
	row := r.db.QueryRowContext(ctx,
		`SELECT org_id, service_name, in_progress, started_at, current_request_id, pending_request_id
		 FROM operation_states WHERE org_id = $1 AND service_name = $2`,
		orgID, serviceName,
	)
	if err := row.Scan(&s.OrgID, &s.ServiceName, &s.InProgress, &s.StartedAt, &s.CurrentRequestID, &s.PendingRequestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get operation state: %w", err)
	}
	return &s, nil
}
