package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// RawFeedbackRepository persists RawFeedback rows.
type RawFeedbackRepository struct {
	db *sql.DB
}

// Insert writes one RawFeedback. indexed_content must already be resolved by
// the caller (when_condition if present, else feedback_content — spec.md
// §4.E step 3).
func (r *RawFeedbackRepository) Insert(ctx context.Context, f RawFeedback) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	issueJSON, err := marshalOptionalJSON(f.BlockingIssue)
	if err != nil {
		return fmt.Errorf("store: marshal blocking_issue: %w", err)
	}
	var vec any
	if f.Embedding != nil {
		vec = pgvector.NewVector(f.Embedding)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO raw_feedbacks (org_id, raw_feedback_id, user_id, agent_version, request_id, source,
			feedback_name, feedback_content, do_action, do_not_action, when_condition, blocking_issue,
			indexed_content, status, embedding, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		orgID, f.RawFeedbackID, f.UserID, f.AgentVersion, f.RequestID, f.Source, f.FeedbackName,
		f.FeedbackContent, f.DoAction, f.DoNotAction, f.WhenCondition, issueJSON, f.IndexedContent,
		string(f.Status), vec, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert raw feedback: %w", err)
	}
	return nil
}

// ListCurrentByPair returns all `current`-status RawFeedback rows for a
// (agent_version, feedback_name) pair, the input to the Feedback Aggregator
// (spec.md §4.F step 1).
func (r *RawFeedbackRepository) ListCurrentByPair(ctx context.Context, agentVersion, feedbackName string) ([]RawFeedback, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT org_id, raw_feedback_id, user_id, agent_version, request_id, source, feedback_name,
			feedback_content, do_action, do_not_action, when_condition, blocking_issue, indexed_content,
			status, embedding, created_at
		 FROM raw_feedbacks
		 WHERE org_id = $1 AND agent_version = $2 AND feedback_name = $3 AND status = 'current'`,
		orgID, agentVersion, feedbackName,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list raw feedbacks by pair: %w", err)
	}
	defer rows.Close()
	return scanRawFeedbacks(rows)
}

// CountCurrentByPair reports the total current raw feedback count for a
// pair, checked against min_feedback_threshold (spec.md §4.E step 5).
func (r *RawFeedbackRepository) CountCurrentByPair(ctx context.Context, agentVersion, feedbackName string) (int, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM raw_feedbacks
		 WHERE org_id = $1 AND agent_version = $2 AND feedback_name = $3 AND status = 'current'`,
		orgID, agentVersion, feedbackName,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count raw feedbacks by pair: %w", err)
	}
	return n, nil
}

// List returns RawFeedback rows matching f (search_raw_feedbacks /
// get_raw_feedbacks, spec.md §6).
func (r *RawFeedbackRepository) List(ctx context.Context, f ListFilter, order Order, limit int) ([]RawFeedback, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	statuses := f.statusStrings()
	if len(statuses) == 0 {
		statuses = []string{string(StatusCurrent)}
	}
	query := `SELECT org_id, raw_feedback_id, user_id, agent_version, request_id, source, feedback_name,
			feedback_content, do_action, do_not_action, when_condition, blocking_issue, indexed_content,
			status, embedding, created_at
		FROM raw_feedbacks WHERE org_id = $1 AND status = ANY($2)`
	args := []any{orgID, statuses}
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
		return nil, fmt.Errorf("store: list raw feedbacks: %w", err)
	}
	defer rows.Close()
	return scanRawFeedbacks(rows)
}

// Delete removes a RawFeedback row outright (spec.md §6 delete_raw_feedback;
// unlike profiles, raw feedback has no archival tombstone requirement).
func (r *RawFeedbackRepository) Delete(ctx context.Context, rawFeedbackID string) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM raw_feedbacks WHERE org_id = $1 AND raw_feedback_id = $2`,
		orgID, rawFeedbackID,
	)
	if err != nil {
		return fmt.Errorf("store: delete raw feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRawFeedbacks(rows *sql.Rows) ([]RawFeedback, error) {
	var out []RawFeedback
	for rows.Next() {
		var f RawFeedback
		var issueJSON []byte
		var vec pgvector.Vector
		if err := rows.Scan(&f.OrgID, &f.RawFeedbackID, &f.UserID, &f.AgentVersion, &f.RequestID, &f.Source,
			&f.FeedbackName, &f.FeedbackContent, &f.DoAction, &f.DoNotAction, &f.WhenCondition, &issueJSON,
			&f.IndexedContent, &f.Status, &vec, &f.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("store: scan raw feedback: %w", err)
		}
		if len(issueJSON) > 0 {
			if err := json.Unmarshal(issueJSON, &f.BlockingIssue); err != nil {
				return nil, fmt.Errorf("store: unmarshal blocking_issue: %w", err)
			}
		}
		f.Embedding = vec.Slice()
		out = append(out, f)
	}
	return out, rows.Err()
}
