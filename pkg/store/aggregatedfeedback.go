package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// AggregatedFeedbackRepository persists AggregatedFeedback rows.
type AggregatedFeedbackRepository struct {
	db *sql.DB
}

// Insert writes a new consolidated cluster. feedback_status always starts
// `pending` (spec.md §4.F step 4).
func (r *AggregatedFeedbackRepository) Insert(ctx context.Context, a AggregatedFeedback) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	issueJSON, err := marshalOptionalJSON(a.BlockingIssue)
	if err != nil {
		return fmt.Errorf("store: marshal blocking_issue: %w", err)
	}
	metaJSON, err := marshalOptionalJSON(a.FeedbackMetadata)
	if err != nil {
		return fmt.Errorf("store: marshal feedback_metadata: %w", err)
	}
	var vec any
	if a.Embedding != nil {
		vec = pgvector.NewVector(a.Embedding)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO aggregated_feedbacks (org_id, feedback_id, agent_version, feedback_name,
			feedback_content, do_action, do_not_action, when_condition, blocking_issue, feedback_status,
			feedback_metadata, status, embedding, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		orgID, a.FeedbackID, a.AgentVersion, a.FeedbackName, a.FeedbackContent, a.DoAction, a.DoNotAction,
		a.WhenCondition, issueJSON, string(a.FeedbackStatus), metaJSON, string(a.Status), vec, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert aggregated feedback: %w", err)
	}
	return nil
}

// UpdateMetadata refreshes feedback_metadata in place without touching
// status (spec.md §4.F step 6, the Jaccard-idempotency refresh path).
func (r *AggregatedFeedbackRepository) UpdateMetadata(ctx context.Context, feedbackID string, metadata map[string]any) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("store: marshal feedback_metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE aggregated_feedbacks SET feedback_metadata = $1 WHERE org_id = $2 AND feedback_id = $3`,
		metaJSON, orgID, feedbackID,
	)
	if err != nil {
		return fmt.Errorf("store: update aggregated feedback metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions an AggregatedFeedback's archival status (current
// → archived on low cluster overlap, spec.md §4.F step 5).
func (r *AggregatedFeedbackRepository) UpdateStatus(ctx context.Context, feedbackID string, newStatus Status) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE aggregated_feedbacks SET status = $1 WHERE org_id = $2 AND feedback_id = $3`,
		string(newStatus), orgID, feedbackID,
	)
	if err != nil {
		return fmt.Errorf("store: update aggregated feedback status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFeedbackStatus records an external approve/reject decision
// (spec.md §4.F "Approval flow").
func (r *AggregatedFeedbackRepository) SetFeedbackStatus(ctx context.Context, feedbackID string, fs FeedbackStatus) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE aggregated_feedbacks SET feedback_status = $1 WHERE org_id = $2 AND feedback_id = $3`,
		string(fs), orgID, feedbackID,
	)
	if err != nil {
		return fmt.Errorf("store: set feedback_status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCurrentByPair returns `current`-status aggregated feedbacks for a pair,
// used to compute cluster overlap against a freshly recomputed clustering.
func (r *AggregatedFeedbackRepository) ListCurrentByPair(ctx context.Context, agentVersion, feedbackName string) ([]AggregatedFeedback, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT org_id, feedback_id, agent_version, feedback_name, feedback_content, do_action,
			do_not_action, when_condition, blocking_issue, feedback_status, feedback_metadata, status,
			embedding, created_at
		 FROM aggregated_feedbacks
		 WHERE org_id = $1 AND agent_version = $2 AND feedback_name = $3 AND status = 'current'`,
		orgID, agentVersion, feedbackName,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list aggregated feedbacks by pair: %w", err)
	}
	defer rows.Close()
	return scanAggregatedFeedbacks(rows)
}

// List returns AggregatedFeedback rows matching f; default visibility is
// `approved` only (spec.md §4.F "default search returns only approved").
func (r *AggregatedFeedbackRepository) List(ctx context.Context, f ListFilter, onlyApproved bool, order Order, limit int) ([]AggregatedFeedback, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	statuses := f.statusStrings()
	if len(statuses) == 0 {
		statuses = []string{string(StatusCurrent)}
	}
	query := `SELECT org_id, feedback_id, agent_version, feedback_name, feedback_content, do_action,
			do_not_action, when_condition, blocking_issue, feedback_status, feedback_metadata, status,
			embedding, created_at
		FROM aggregated_feedbacks WHERE org_id = $1 AND status = ANY($2)`
	args := []any{orgID, statuses}
	if onlyApproved {
		query += " AND feedback_status = 'approved'"
	}
	if f.AgentVersion != "" {
		args = append(args, f.AgentVersion)
		query += fmt.Sprintf(" AND agent_version = $%d", len(args))
	}
	if f.FeedbackName != "" {
		args = append(args, f.FeedbackName)
		query += fmt.Sprintf(" AND feedback_name = $%d", len(args))
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
		return nil, fmt.Errorf("store: list aggregated feedbacks: %w", err)
	}
	defer rows.Close()
	return scanAggregatedFeedbacks(rows)
}

// Delete removes an AggregatedFeedback row outright (spec.md §6
// delete_feedback).
func (r *AggregatedFeedbackRepository) Delete(ctx context.Context, feedbackID string) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM aggregated_feedbacks WHERE org_id = $1 AND feedback_id = $2`,
		orgID, feedbackID,
	)
	if err != nil {
		return fmt.Errorf("store: delete aggregated feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAggregatedFeedbacks(rows *sql.Rows) ([]AggregatedFeedback, error) {
	var out []AggregatedFeedback
	for rows.Next() {
		var a AggregatedFeedback
		var issueJSON, metaJSON []byte
		var vec pgvector.Vector
		if err := rows.Scan(&a.OrgID, &a.FeedbackID, &a.AgentVersion, &a.FeedbackName, &a.FeedbackContent,
			&a.DoAction, &a.DoNotAction, &a.WhenCondition, &issueJSON, &a.FeedbackStatus, &metaJSON,
			&a.Status, &vec, &a.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("store: scan aggregated feedback: %w", err)
		}
		if len(issueJSON) > 0 {
			if err := json.Unmarshal(issueJSON, &a.BlockingIssue); err != nil {
				return nil, fmt.Errorf("store: unmarshal blocking_issue: %w", err)
			}
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &a.FeedbackMetadata); err != nil {
				return nil, fmt.Errorf("store: unmarshal feedback_metadata: %w", err)
			}
		}
		a.Embedding = vec.Slice()
		out = append(out, a)
	}
	return out, rows.Err()
}
