package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RequestRepository persists Request rows.
type RequestRepository struct {
	db *sql.DB
}

// Insert writes one Request atomically. request_group normalizes nil/""
// to "ungrouped" per the Open Question decision.
func (r *RequestRepository) Insert(ctx context.Context, req Request) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	group := req.RequestGroup
	if group == "" {
		group = UngroupedRequestGroup
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO requests (org_id, request_id, user_id, source, agent_version, request_group, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		orgID, req.RequestID, req.UserID, req.Source, req.AgentVersion, group, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert request: %w", err)
	}
	return nil
}

// Get fetches one non-deleted Request by id.
func (r *RequestRepository) Get(ctx context.Context, requestID string) (*Request, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT org_id, request_id, user_id, source, agent_version, request_group, created_at, deleted_at
		 FROM requests WHERE org_id = $1 AND request_id = $2 AND deleted_at IS NULL`,
		orgID, requestID,
	)
	var req Request
	if err := row.Scan(&req.OrgID, &req.RequestID, &req.UserID, &req.Source, &req.AgentVersion,
		&req.RequestGroup, &req.CreatedAt, &req.DeletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get request: %w", err)
	}
	return &req, nil
}

// List returns the tenant's non-deleted Requests matching f's user_id,
// source, request_group and created_at range, ordered by created_at. It
// does not group rows by request_group.
func (r *RequestRepository) List(ctx context.Context, f ListFilter, order Order, limit int) ([]Request, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT org_id, request_id, user_id, source, agent_version, request_group, created_at, deleted_at
		FROM requests WHERE org_id = $1 AND deleted_at IS NULL`
	args := []any{orgID}
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if f.RequestGroup != "" {
		args = append(args, f.RequestGroup)
		query += fmt.Sprintf(" AND request_group = $%d", len(args))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.CreatedBefore != nil {
		args = append(args, *f.CreatedBefore)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if order == OrderAsc {
		query += " ORDER BY created_at ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.OrgID, &req.RequestID, &req.UserID, &req.Source, &req.AgentVersion,
			&req.RequestGroup, &req.CreatedAt, &req.DeletedAt); err != nil {
			return nil, fmt.Errorf("store: scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Delete soft-deletes a Request row only, inside tx when tx is non-nil; its
// Interactions are left untouched. InteractionRepository.DeleteRequestCascade
// soft-deletes a Request together with its Interactions in its own transaction.
func (r *RequestRepository) Delete(ctx context.Context, requestID string, tx *sql.Tx) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	execer := sqlExecer(r.db, tx)
	res, err := execer.ExecContext(ctx,
		`UPDATE requests SET deleted_at = now() WHERE org_id = $1 AND request_id = $2 AND deleted_at IS NULL`,
		orgID, requestID,
	)
	if err != nil {
		return fmt.Errorf("store: delete request: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// sqlQueryExecer abstracts over *sql.DB and *sql.Tx for helpers shared by a
// transactional cascade and a standalone call.
type sqlQueryExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqlExecer(db *sql.DB, tx *sql.Tx) sqlQueryExecer {
	if tx != nil {
		return tx
	}
	return db
}
