// Package aggregator implements the Feedback Aggregator (spec.md §4.F):
// turns a (agent_version, feedback_name) pair's raw feedback into
// consolidated, clustered aggregates, reusing an existing aggregate when a
// fresh cluster is substantially the same set of raw feedback ids.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/beaconlabs/pulse/pkg/llmadapter"
	"github.com/beaconlabs/pulse/pkg/store"
)

// IdempotencyThreshold gates whether a fresh cluster reuses an existing
// current aggregate instead of superseding it (spec.md §4.F step 6).
const IdempotencyThreshold = 0.8

// ArchivalOverlapThreshold: below this overlap with every fresh cluster, a
// previous aggregate for the pair is archived (spec.md §4.F step 5).
const ArchivalOverlapThreshold = 0.5

type blockingIssueItem struct {
	Kind    string `json:"kind"`
	Details string `json:"details"`
}

type aggregationItem struct {
	FeedbackContent string             `json:"feedback_content"`
	DoAction        string             `json:"do_action,omitempty"`
	DoNotAction     string             `json:"do_not_action,omitempty"`
	WhenCondition   string             `json:"when_condition,omitempty"`
	BlockingIssue   *blockingIssueItem `json:"blocking_issue,omitempty"`
}

// Config parameterizes one aggregation run.
type Config struct {
	AggregationPrompt    string
	MinFeedbackThreshold int
}

// Aggregator runs the clustering + consolidation algorithm.
type Aggregator struct {
	store   *store.Store
	adapter llmadapter.Adapter
}

// New builds an Aggregator.
func New(s *store.Store, a llmadapter.Adapter) *Aggregator {
	return &Aggregator{store: s, adapter: a}
}

// Run executes spec.md §4.F steps 1-6 for one (agent_version, feedback_name)
// pair.
func (ag *Aggregator) Run(ctx context.Context, agentVersion, feedbackName string, cfg Config) error {
	raw, err := ag.store.RawFeedbacks.ListCurrentByPair(ctx, agentVersion, feedbackName)
	if err != nil {
		return fmt.Errorf("aggregator: load raw feedbacks: %w", err)
	}

	minNeighbors := cfg.MinFeedbackThreshold - 1
	if minNeighbors < 1 {
		minNeighbors = 1
	}
	points := make([]point, len(raw))
	byID := make(map[string]store.RawFeedback, len(raw))
	for i, f := range raw {
		points[i] = point{id: f.RawFeedbackID, embedding: f.Embedding}
		byID[f.RawFeedbackID] = f
	}
	clusters := cluster(points, DefaultClusterDistance, minNeighbors)

	existing, err := ag.store.AggregatedFeedbacks.ListCurrentByPair(ctx, agentVersion, feedbackName)
	if err != nil {
		return fmt.Errorf("aggregator: load existing aggregates: %w", err)
	}

	for _, ids := range clusters {
		if err := ag.consolidateCluster(ctx, agentVersion, feedbackName, ids, byID, existing, cfg); err != nil {
			return err
		}
	}

	// step 5: archive previous aggregates whose overlap with every fresh
	// cluster falls below the threshold.
	for _, ex := range existing {
		prevIDs := rawFeedbackIDs(ex.FeedbackMetadata)
		bestOverlap := 0.0
		for _, ids := range clusters {
			if r := overlapRatio(prevIDs, ids); r > bestOverlap {
				bestOverlap = r
			}
		}
		if bestOverlap < ArchivalOverlapThreshold {
			if err := ag.store.AggregatedFeedbacks.UpdateStatus(ctx, ex.FeedbackID, store.StatusArchived); err != nil {
				return fmt.Errorf("aggregator: archive superseded aggregate: %w", err)
			}
		}
	}
	return nil
}

func (ag *Aggregator) consolidateCluster(ctx context.Context, agentVersion, feedbackName string, ids []string,
	byID map[string]store.RawFeedback, existing []store.AggregatedFeedback, cfg Config) error {

	// step 6: idempotency check against every current aggregate for the pair.
	for _, ex := range existing {
		prevIDs := rawFeedbackIDs(ex.FeedbackMetadata)
		if jaccard(prevIDs, ids) >= IdempotencyThreshold {
			return ag.store.AggregatedFeedbacks.UpdateMetadata(ctx, ex.FeedbackID, metadataFor(ids, centroidOf(ids, byID)))
		}
	}

	items := make([]store.RawFeedback, 0, len(ids))
	for _, id := range ids {
		items = append(items, byID[id])
	}

	result, err := ag.callLLM(ctx, cfg, items)
	if err != nil {
		return fmt.Errorf("aggregator: consolidate cluster: %w", err)
	}

	indexed := result.WhenCondition
	if indexed == "" {
		indexed = result.FeedbackContent
	}
	embedding, err := ag.adapter.Embed(ctx, indexed)
	if err != nil {
		return fmt.Errorf("aggregator: embed: %w", err)
	}

	agg := store.AggregatedFeedback{
		FeedbackID:       uuid.NewString(),
		AgentVersion:     agentVersion,
		FeedbackName:     feedbackName,
		FeedbackContent:  result.FeedbackContent,
		FeedbackStatus:   store.FeedbackStatusPending,
		FeedbackMetadata: metadataFor(ids, centroidOf(ids, byID)),
		Status:           store.StatusCurrent,
		Embedding:        embedding,
	}
	if result.DoAction != "" {
		agg.DoAction = &result.DoAction
	}
	if result.DoNotAction != "" {
		agg.DoNotAction = &result.DoNotAction
	}
	if result.WhenCondition != "" {
		agg.WhenCondition = &result.WhenCondition
	}
	if result.BlockingIssue != nil {
		agg.BlockingIssue = &store.BlockingIssue{Kind: result.BlockingIssue.Kind, Details: result.BlockingIssue.Details}
	}
	return ag.store.AggregatedFeedbacks.Insert(ctx, agg)
}

func (ag *Aggregator) callLLM(ctx context.Context, cfg Config, items []store.RawFeedback) (aggregationItem, error) {
	prompt := fmt.Sprintf("%s\n\n%s", cfg.AggregationPrompt, renderCluster(items))
	obj, err := llmadapter.WithRetryValue(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return ag.adapter.StructuredGenerate(ctx, aggregationSchema, prompt)
	})
	if err != nil {
		return aggregationItem{}, err
	}
	var out aggregationItem
	if err := json.Unmarshal(obj, &out); err != nil {
		// first schema violation: one targeted retry with a tightened schema
		// reminder before giving up.
		retryPrompt := prompt + "\n\nYour previous response did not match the required JSON schema. Respond with ONLY a JSON object with a string \"feedback_content\" field."
		obj2, err2 := ag.adapter.StructuredGenerate(ctx, aggregationSchema, retryPrompt)
		if err2 != nil {
			return aggregationItem{}, fmt.Errorf("schema retry: %w", err2)
		}
		if err := json.Unmarshal(obj2, &out); err != nil {
			return aggregationItem{}, fmt.Errorf("schema violation persisted after retry: %w", err)
		}
	}
	return out, nil
}

func renderCluster(items []store.RawFeedback) string {
	var b []byte
	for _, f := range items {
		b = append(b, []byte(fmt.Sprintf("- %s\n", f.FeedbackContent))...)
	}
	return string(b)
}

func rawFeedbackIDs(metadata map[string]any) []string {
	raw, ok := metadata["raw_feedback_ids"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func metadataFor(ids []string, centroid []float32) map[string]any {
	return map[string]any{
		"raw_feedback_ids": ids,
		"cluster_size":     len(ids),
		"centroid":         centroid,
	}
}

// centroidOf computes the mean embedding of a cluster's raw feedback rows
// (spec.md §4.F step 4 "feedback_metadata = {raw_feedback_ids, cluster_size,
// centroid}"). It is only stored in feedback_metadata; nothing in this
// repository reads it back.
func centroidOf(ids []string, byID map[string]store.RawFeedback) []float32 {
	var dims int
	for _, id := range ids {
		if e := byID[id].Embedding; len(e) > 0 {
			dims = len(e)
			break
		}
	}
	if dims == 0 {
		return nil
	}
	sum := make([]float64, dims)
	n := 0
	for _, id := range ids {
		e := byID[id].Embedding
		if len(e) != dims {
			continue
		}
		for i, v := range e {
			sum[i] += float64(v)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	centroid := make([]float32, dims)
	for i, v := range sum {
		centroid[i] = float32(v / float64(n))
	}
	return centroid
}

var aggregationSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"feedback_content": {"type": "string"},
		"do_action": {"type": "string"},
		"do_not_action": {"type": "string"},
		"when_condition": {"type": "string"},
		"blocking_issue": {
			"type": "object",
			"properties": {
				"kind": {"type": "string", "enum": ["missing_capability", "wrong_tool", "policy_block", "input_ambiguity", "other"]},
				"details": {"type": "string"}
			}
		}
	},
	"required": ["feedback_content"]
}`)
