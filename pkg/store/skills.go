package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// SkillRepository persists Skill rows (the supplementary synthesize_skill
// operation, see SPEC_FULL.md §3).
type SkillRepository struct {
	db *sql.DB
}

// Insert writes a new Skill, always starting in `draft` status.
func (r *SkillRepository) Insert(ctx context.Context, s Skill) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	issuesJSON, err := json.Marshal(s.BlockingIssues)
	if err != nil {
		return fmt.Errorf("store: marshal blocking_issues: %w", err)
	}
	var vec any
	if s.Embedding != nil {
		vec = pgvector.NewVector(s.Embedding)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO skills (org_id, skill_id, agent_version, feedback_name, skill_name, description,
			instructions, allowed_tools, blocking_issues, raw_feedback_ids, skill_status, embedding, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		orgID, s.SkillID, s.AgentVersion, s.FeedbackName, s.SkillName, s.Description, s.Instructions,
		s.AllowedTools, issuesJSON, s.RawFeedbackIDs, string(s.SkillStatus), vec, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert skill: %w", err)
	}
	return nil
}

// UpdateStatus transitions a Skill between draft/active/retired.
func (r *SkillRepository) UpdateStatus(ctx context.Context, skillID string, newStatus SkillStatus) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE skills SET skill_status = $1 WHERE org_id = $2 AND skill_id = $3`,
		string(newStatus), orgID, skillID,
	)
	if err != nil {
		return fmt.Errorf("store: update skill status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByPair returns Skills for an (agent_version, feedback_name) pair,
// newest first.
func (r *SkillRepository) ListByPair(ctx context.Context, agentVersion, feedbackName string) ([]Skill, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT org_id, skill_id, agent_version, feedback_name, skill_name, description, instructions,
			allowed_tools, blocking_issues, raw_feedback_ids, skill_status, embedding, created_at
		 FROM skills WHERE org_id = $1 AND agent_version = $2 AND feedback_name = $3
		 ORDER BY created_at DESC`,
		orgID, agentVersion, feedbackName,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list skills by pair: %w", err)
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		var s Skill
		var issuesJSON []byte
		var vec pgvector.Vector
		if err := rows.Scan(&s.OrgID, &s.SkillID, &s.AgentVersion, &s.FeedbackName, &s.SkillName,
			&s.Description, &s.Instructions, &s.AllowedTools, &issuesJSON, &s.RawFeedbackIDs,
			&s.SkillStatus, &vec, &s.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("store: scan skill: %w", err)
		}
		if len(issuesJSON) > 0 {
			if err := json.Unmarshal(issuesJSON, &s.BlockingIssues); err != nil {
				return nil, fmt.Errorf("store: unmarshal blocking_issues: %w", err)
			}
		}
		s.Embedding = vec.Slice()
		out = append(out, s)
	}
	return out, rows.Err()
}
