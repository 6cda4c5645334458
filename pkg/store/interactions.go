package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// InteractionRepository persists Interaction rows.
type InteractionRepository struct {
	db *sql.DB
}

// NextInteractionID atomically reserves and returns the next monotone
// interaction_id for the tenant (P4: strictly increasing, no duplicates).
// Backed by interaction_sequences rather than a global Postgres SEQUENCE
// because sequences cannot be scoped per org_id on their own.
func (r *InteractionRepository) NextInteractionID(ctx context.Context, tx *sql.Tx) (int64, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return 0, err
	}
	var next int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO interaction_sequences (org_id, next_val) VALUES ($1, 2)
		 ON CONFLICT (org_id) DO UPDATE SET next_val = interaction_sequences.next_val + 1
		 RETURNING next_val - 1`,
		orgID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("store: reserve interaction id: %w", err)
	}
	return next, nil
}

// BulkInsert writes a Request and all of its Interactions atomically: either
// every row commits or none do (spec.md §4.A "partial bulk inserts fail the
// whole call").
func (r *InteractionRepository) BulkInsert(ctx context.Context, req Request, interactions []Interaction) ([]Interaction, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin bulk insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	group := req.RequestGroup
	if group == "" {
		group = UngroupedRequestGroup
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO requests (org_id, request_id, user_id, source, agent_version, request_group, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		orgID, req.RequestID, req.UserID, req.Source, req.AgentVersion, group, req.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("store: bulk insert request: %w", err)
	}

	written := make([]Interaction, 0, len(interactions))
	for _, in := range interactions {
		id, err := r.NextInteractionID(ctx, tx)
		if err != nil {
			return nil, err
		}
		in.OrgID = orgID
		in.InteractionID = id
		in.RequestID = req.RequestID

		toolsJSON, err := json.Marshal(in.ToolsUsed)
		if err != nil {
			return nil, fmt.Errorf("store: marshal tools_used: %w", err)
		}
		var vec any
		if in.Embedding != nil {
			vec = pgvector.NewVector(in.Embedding)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO interactions (org_id, interaction_id, request_id, user_id, role, content,
				shadow_content, user_action, user_action_description, interacted_image_url,
				image_encoding, tools_used, source, agent_version, embedding, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			in.OrgID, in.InteractionID, in.RequestID, in.UserID, string(in.Role), in.Content,
			in.ShadowContent, string(in.UserAction), in.UserActionDescription, in.InteractedImageURL,
			in.ImageEncoding, toolsJSON, in.Source, in.AgentVersion, vec, in.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: bulk insert interaction: %w", err)
		}
		written = append(written, in)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit bulk insert: %w", err)
	}
	return written, nil
}

// ListByRequest returns a Request's Interactions ordered by interaction_id
// ascending (spec.md §4.C ordering rule), skipping soft-deleted rows.
func (r *InteractionRepository) ListByRequest(ctx context.Context, requestID string) ([]Interaction, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT org_id, interaction_id, request_id, user_id, role, content, shadow_content,
			user_action, user_action_description, interacted_image_url, image_encoding,
			tools_used, source, agent_version, embedding, created_at, deleted_at
		 FROM interactions
		 WHERE org_id = $1 AND request_id = $2 AND deleted_at IS NULL
		 ORDER BY interaction_id ASC`,
		orgID, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list interactions by request: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// ListByUser returns a user's Interactions filtered and ordered per f/order,
// the basis for get_interactions (spec.md §6).
func (r *InteractionRepository) ListByUser(ctx context.Context, userID string, f ListFilter, order Order, limit int) ([]Interaction, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT org_id, interaction_id, request_id, user_id, role, content, shadow_content,
			user_action, user_action_description, interacted_image_url, image_encoding,
			tools_used, source, agent_version, embedding, created_at, deleted_at
		FROM interactions WHERE org_id = $1 AND user_id = $2 AND deleted_at IS NULL`
	args := []any{orgID, userID}
	if f.Source != "" {
		args = append(args, f.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if f.AgentVersion != "" {
		args = append(args, f.AgentVersion)
		query += fmt.Sprintf(" AND agent_version = $%d", len(args))
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
		query += " ORDER BY interaction_id ASC"
	} else {
		query += " ORDER BY interaction_id DESC"
	}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list interactions by user: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// ListByAgentVersion returns an agent_version's Interactions filtered and
// ordered per f/order — the feedback-scope counterpart to ListByUser, since
// feedback windows key by agent_version rather than user_id (spec.md §4.C).
func (r *InteractionRepository) ListByAgentVersion(ctx context.Context, agentVersion string, f ListFilter, order Order, limit int) ([]Interaction, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT org_id, interaction_id, request_id, user_id, role, content, shadow_content,
			user_action, user_action_description, interacted_image_url, image_encoding,
			tools_used, source, agent_version, embedding, created_at, deleted_at
		FROM interactions WHERE org_id = $1 AND agent_version = $2 AND deleted_at IS NULL`
	args := []any{orgID, agentVersion}
	if f.Source != "" {
		args = append(args, f.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
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
		query += " ORDER BY interaction_id ASC"
	} else {
		query += " ORDER BY interaction_id DESC"
	}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list interactions by agent version: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// Delete soft-deletes a single Interaction (delete_interaction, spec.md §6),
// leaving its parent Request and sibling interactions untouched.
func (r *InteractionRepository) Delete(ctx context.Context, interactionID int64) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE interactions SET deleted_at = now() WHERE org_id = $1 AND interaction_id = $2 AND deleted_at IS NULL`,
		orgID, interactionID,
	)
	if err != nil {
		return fmt.Errorf("store: delete interaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRequestCascade soft-deletes a Request and every Interaction beneath
// it atomically (spec.md §3 "deletion cascades"; P6). Derived profiles are
// intentionally not retracted (Open Question decision).
func (r *InteractionRepository) DeleteRequestCascade(ctx context.Context, requestID string) (int64, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin cascade delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE interactions SET deleted_at = now() WHERE org_id = $1 AND request_id = $2 AND deleted_at IS NULL`,
		orgID, requestID,
	)
	if err != nil {
		return 0, fmt.Errorf("store: cascade delete interactions: %w", err)
	}
	n, _ := res.RowsAffected()

	r2, err := tx.ExecContext(ctx,
		`UPDATE requests SET deleted_at = now() WHERE org_id = $1 AND request_id = $2 AND deleted_at IS NULL`,
		orgID, requestID,
	)
	if err != nil {
		return 0, fmt.Errorf("store: cascade delete request: %w", err)
	}
	if affected, _ := r2.RowsAffected(); affected == 0 {
		return 0, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit cascade delete: %w", err)
	}
	return n, nil
}

func scanInteractions(rows *sql.Rows) ([]Interaction, error) {
	var out []Interaction
	for rows.Next() {
		var in Interaction
		var toolsJSON []byte
		var vec pgvector.Vector
		var vecPtr any = &vec
		if err := rows.Scan(&in.OrgID, &in.InteractionID, &in.RequestID, &in.UserID, &in.Role, &in.Content,
			&in.ShadowContent, &in.UserAction, &in.UserActionDescription, &in.InteractedImageURL,
			&in.ImageEncoding, &toolsJSON, &in.Source, &in.AgentVersion, vecPtr, &in.CreatedAt, &in.DeletedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("store: scan interaction: %w", err)
		}
		if len(toolsJSON) > 0 {
			if err := json.Unmarshal(toolsJSON, &in.ToolsUsed); err != nil {
				return nil, fmt.Errorf("store: unmarshal tools_used: %w", err)
			}
		}
		in.Embedding = vec.Slice()
		out = append(out, in)
	}
	return out, rows.Err()
}
