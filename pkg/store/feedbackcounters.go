package store

import (
	"context"
	"database/sql"
	"fmt"
)

// FeedbackCounterRepository tracks the per-(agent_version, feedback_name)
// raw feedback counter that drives the aggregator's refresh_count trigger
// (spec.md §4.E step 5).
type FeedbackCounterRepository struct {
	db *sql.DB
}

// IncrementAndGet atomically bumps the counter for the pair and returns its
// new value.
func (r *FeedbackCounterRepository) IncrementAndGet(ctx context.Context, agentVersion, feedbackName string) (int64, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return 0, err
	}
	var counter int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO feedback_counters (org_id, agent_version, feedback_name, counter)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (org_id, agent_version, feedback_name)
		 DO UPDATE SET counter = feedback_counters.counter + 1
		 RETURNING counter`,
		orgID, agentVersion, feedbackName,
	).Scan(&counter)
	if err != nil {
		return 0, fmt.Errorf("store: increment feedback counter: %w", err)
	}
	return counter, nil
}
