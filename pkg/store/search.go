package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// vectorArg wraps a raw embedding for use as a pgvector query argument, or
// returns nil when the caller has no query embedding (text-only search).
func vectorArg(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

var interactionsTable = hybridSearchTable{
	Name: "interactions", PKColumn: "interaction_id", EmbeddingCol: "embedding",
	TSVColumn: "content_tsv", CreatedAtCol: "created_at", StatusPredicate: "deleted_at IS NULL",
}

var profilesTable = hybridSearchTable{
	Name: "profiles", PKColumn: "profile_id", EmbeddingCol: "embedding",
	TSVColumn: "content_tsv", CreatedAtCol: "last_modified_at", StatusPredicate: "status = 'current'",
}

var rawFeedbacksTable = hybridSearchTable{
	Name: "raw_feedbacks", PKColumn: "raw_feedback_id", EmbeddingCol: "embedding",
	TSVColumn: "indexed_tsv", CreatedAtCol: "created_at", StatusPredicate: "status = 'current'",
}

var aggregatedFeedbacksTable = hybridSearchTable{
	Name: "aggregated_feedbacks", PKColumn: "feedback_id", EmbeddingCol: "embedding",
	TSVColumn: "indexed_tsv", CreatedAtCol: "created_at", StatusPredicate: "status = 'current'",
}

// SearchParams is the public hybrid_search contract (spec.md §4.A).
type SearchParams struct {
	QueryText      string
	QueryEmbedding []float32
	K              int
	Threshold      float64
	Mode           SearchMode
	RRFConstant    int
	UserID         string
	AgentVersion   string
}

// SearchInteractions runs hybrid search over a user's Interactions and
// hydrates the fused ids into full records, preserving fusion order.
func (s *Store) SearchInteractions(ctx context.Context, p SearchParams) ([]Interaction, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	hp := hybridSearchParams{
		OrgID: orgID, QueryText: p.QueryText, QueryEmbedding: p.QueryEmbedding,
		K: p.K, Threshold: p.Threshold, Mode: p.Mode, RRFConstant: p.RRFConstant,
	}
	if p.UserID != "" {
		hp.ExtraWhere = " AND user_id = $4"
		hp.ExtraArgs = []any{p.UserID}
	}
	scored, err := hybridSearch(ctx, s.Interactions.db, interactionsTable, hp)
	if err != nil {
		return nil, err
	}
	out := make([]Interaction, 0, len(scored))
	for _, sc := range scored {
		var id int64
		if _, err := fmt.Sscanf(sc.PK, "%d", &id); err != nil {
			return nil, fmt.Errorf("store: parse interaction id %q: %w", sc.PK, err)
		}
		in, err := s.getInteractionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, nil
}

func (s *Store) getInteractionByID(ctx context.Context, id int64) (*Interaction, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.Interactions.db.QueryContext(ctx,
		`SELECT org_id, interaction_id, request_id, user_id, role, content, shadow_content,
			user_action, user_action_description, interacted_image_url, image_encoding,
			tools_used, source, agent_version, embedding, created_at, deleted_at
		 FROM interactions WHERE org_id = $1 AND interaction_id = $2`,
		orgID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get interaction by id: %w", err)
	}
	defer rows.Close()
	ins, err := scanInteractions(rows)
	if err != nil {
		return nil, err
	}
	if len(ins) == 0 {
		return nil, ErrNotFound
	}
	return &ins[0], nil
}

// SearchProfiles runs hybrid search over `current`-status profiles for a
// user (search_profiles, spec.md §6).
func (s *Store) SearchProfiles(ctx context.Context, p SearchParams) ([]Profile, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	hp := hybridSearchParams{
		OrgID: orgID, QueryText: p.QueryText, QueryEmbedding: p.QueryEmbedding,
		K: p.K, Threshold: p.Threshold, Mode: p.Mode, RRFConstant: p.RRFConstant,
	}
	if p.UserID != "" {
		hp.ExtraWhere = " AND user_id = $4"
		hp.ExtraArgs = []any{p.UserID}
	}
	scored, err := hybridSearch(ctx, s.Profiles.db, profilesTable, hp)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(scored))
	for _, sc := range scored {
		pr, err := s.Profiles.Get(ctx, sc.PK)
		if err != nil {
			return nil, err
		}
		out = append(out, *pr)
	}
	return out, nil
}

// SearchRawFeedbacks runs hybrid search over `current`-status raw feedbacks
// for an agent_version (search_raw_feedbacks, spec.md §6).
func (s *Store) SearchRawFeedbacks(ctx context.Context, p SearchParams) ([]RawFeedback, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	hp := hybridSearchParams{
		OrgID: orgID, QueryText: p.QueryText, QueryEmbedding: p.QueryEmbedding,
		K: p.K, Threshold: p.Threshold, Mode: p.Mode, RRFConstant: p.RRFConstant,
	}
	if p.AgentVersion != "" {
		hp.ExtraWhere = " AND agent_version = $4"
		hp.ExtraArgs = []any{p.AgentVersion}
	}
	scored, err := hybridSearch(ctx, s.RawFeedbacks.db, rawFeedbacksTable, hp)
	if err != nil {
		return nil, err
	}
	all, err := s.RawFeedbacks.List(ctx, ListFilter{AgentVersion: p.AgentVersion}, OrderDesc, 0)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]RawFeedback, len(all))
	for _, f := range all {
		byID[f.RawFeedbackID] = f
	}
	out := make([]RawFeedback, 0, len(scored))
	for _, sc := range scored {
		if f, ok := byID[sc.PK]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// SearchAggregatedFeedbacks runs hybrid search over `approved`-status
// aggregated feedbacks for an agent_version (search_feedbacks, spec.md §6).
func (s *Store) SearchAggregatedFeedbacks(ctx context.Context, p SearchParams) ([]AggregatedFeedback, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	hp := hybridSearchParams{
		OrgID: orgID, QueryText: p.QueryText, QueryEmbedding: p.QueryEmbedding,
		K: p.K, Threshold: p.Threshold, Mode: p.Mode, RRFConstant: p.RRFConstant,
	}
	if p.AgentVersion != "" {
		hp.ExtraWhere = " AND agent_version = $4"
		hp.ExtraArgs = []any{p.AgentVersion}
	}
	scored, err := hybridSearch(ctx, s.AggregatedFeedbacks.db, aggregatedFeedbacksTable, hp)
	if err != nil {
		return nil, err
	}
	all, err := s.AggregatedFeedbacks.List(ctx, ListFilter{AgentVersion: p.AgentVersion}, true, OrderDesc, 0)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]AggregatedFeedback, len(all))
	for _, f := range all {
		byID[f.FeedbackID] = f
	}
	out := make([]AggregatedFeedback, 0, len(scored))
	for _, sc := range scored {
		if f, ok := byID[sc.PK]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}
