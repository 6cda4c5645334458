package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// SuccessResultRepository persists SuccessEvaluationResult rows.
type SuccessResultRepository struct {
	db *sql.DB
}

// Insert writes one SuccessEvaluationResult.
func (r *SuccessResultRepository) Insert(ctx context.Context, s SuccessEvaluationResult) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	var vec any
	if s.Embedding != nil {
		vec = pgvector.NewVector(s.Embedding)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO success_evaluation_results (org_id, result_id, evaluation_name, agent_version,
			request_id, is_success, failure_type, failure_reason, agent_prompt_update, embedding, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		orgID, s.ResultID, s.EvaluationName, s.AgentVersion, s.RequestID, s.IsSuccess, s.FailureType,
		s.FailureReason, s.AgentPromptUpdate, vec, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert success evaluation result: %w", err)
	}
	return nil
}

// ListByAgentVersion returns results for an agent_version, newest first
// (get_agent_success_evaluation_results, spec.md §6), optionally filtered to
// one evaluation_name.
func (r *SuccessResultRepository) ListByAgentVersion(ctx context.Context, agentVersion, evaluationName string, limit int) ([]SuccessEvaluationResult, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT org_id, result_id, evaluation_name, agent_version, request_id, is_success,
			failure_type, failure_reason, agent_prompt_update, embedding, created_at
		FROM success_evaluation_results WHERE org_id = $1`
	args := []any{orgID}
	if agentVersion != "" {
		args = append(args, agentVersion)
		query += fmt.Sprintf(" AND agent_version = $%d", len(args))
	}
	if evaluationName != "" {
		args = append(args, evaluationName)
		query += fmt.Sprintf(" AND evaluation_name = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list success evaluation results: %w", err)
	}
	defer rows.Close()

	var out []SuccessEvaluationResult
	for rows.Next() {
		var s SuccessEvaluationResult
		var vec pgvector.Vector
		if err := rows.Scan(&s.OrgID, &s.ResultID, &s.EvaluationName, &s.AgentVersion, &s.RequestID,
			&s.IsSuccess, &s.FailureType, &s.FailureReason, &s.AgentPromptUpdate, &vec, &s.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("store: scan success evaluation result: %w", err)
		}
		s.Embedding = vec.Slice()
		out = append(out, s)
	}
	return out, rows.Err()
}
