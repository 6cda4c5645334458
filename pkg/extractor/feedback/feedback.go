// Package feedback implements the Feedback Extractor (spec.md §4.E): turns a
// window of an agent version's interactions into raw feedback observations,
// and signals the aggregator when enough have accumulated.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/beaconlabs/pulse/pkg/llmadapter"
	"github.com/beaconlabs/pulse/pkg/store"
	"github.com/beaconlabs/pulse/pkg/window"
)

// Config parameterizes one extractor invocation (spec.md §4.E).
type Config struct {
	FeedbackName          string
	GatePrompt            string
	ExtractionPrompt      string
	RequestSourcesEnabled []string // empty means "all sources", per "Always-on for all sources by default"
	RefreshCount          int
	MinFeedbackThreshold  int
}

type blockingIssueItem struct {
	Kind    string `json:"kind"`
	Details string `json:"details"`
}

type draftItem struct {
	FeedbackContent string             `json:"feedback_content"`
	DoAction        string             `json:"do_action,omitempty"`
	DoNotAction     string             `json:"do_not_action,omitempty"`
	WhenCondition   string             `json:"when_condition,omitempty"`
	BlockingIssue   *blockingIssueItem `json:"blocking_issue,omitempty"`
}

type extractResponse struct {
	Items []draftItem `json:"items"`
}

// Result is the Feedback Extractor's public contract result, plus whether
// this run's counter increment should trigger an aggregation task.
type Result struct {
	Drafts          []store.RawFeedback
	ShouldAggregate bool
}

// Extractor runs the Feedback Extractor algorithm.
type Extractor struct {
	store   *store.Store
	adapter llmadapter.Adapter
}

// New builds an Extractor.
func New(s *store.Store, a llmadapter.Adapter) *Extractor {
	return &Extractor{store: s, adapter: a}
}

// Run executes gate → extract → embed → write → signal for one window
// (spec.md §4.E Algorithm).
func (e *Extractor) Run(ctx context.Context, agentVersion string, w window.Window, cfg Config) (Result, error) {
	if len(cfg.RequestSourcesEnabled) > 0 && !anySourceMatches(w, cfg.RequestSourcesEnabled) {
		return Result{}, nil
	}

	if cfg.GatePrompt != "" {
		should, err := e.gate(ctx, cfg, w)
		if err != nil {
			return Result{}, fmt.Errorf("feedback: gate: %w", err)
		}
		if !should {
			return Result{}, nil
		}
	}

	items, err := e.extract(ctx, cfg, w)
	if err != nil {
		return Result{}, fmt.Errorf("feedback: extract: %w", err)
	}

	result := Result{}
	for _, it := range items {
		indexed := it.WhenCondition
		if indexed == "" {
			indexed = it.FeedbackContent // spec.md §4.E step 3
		}
		embedding, err := e.adapter.Embed(ctx, indexed)
		if err != nil {
			return Result{}, fmt.Errorf("feedback: embed: %w", err)
		}

		draft := store.RawFeedback{
			RawFeedbackID:   uuid.NewString(),
			AgentVersion:    agentVersion,
			RequestID:       w.Interactions[0].RequestID,
			FeedbackName:    cfg.FeedbackName,
			FeedbackContent: it.FeedbackContent,
			IndexedContent:  indexed,
			Status:          w.WriteStatus,
			Embedding:       embedding,
			CreatedAt:       w.Interactions[len(w.Interactions)-1].CreatedAt,
		}
		if it.DoAction != "" {
			draft.DoAction = &it.DoAction
		}
		if it.DoNotAction != "" {
			draft.DoNotAction = &it.DoNotAction
		}
		if it.WhenCondition != "" {
			draft.WhenCondition = &it.WhenCondition
		}
		if it.BlockingIssue != nil {
			draft.BlockingIssue = &store.BlockingIssue{Kind: it.BlockingIssue.Kind, Details: it.BlockingIssue.Details}
		}

		if err := e.store.RawFeedbacks.Insert(ctx, draft); err != nil {
			return Result{}, fmt.Errorf("feedback: insert raw feedback: %w", err)
		}
		result.Drafts = append(result.Drafts, draft)

		shouldAggregate, err := e.signalAggregator(ctx, agentVersion, cfg)
		if err != nil {
			return Result{}, fmt.Errorf("feedback: signal aggregator: %w", err)
		}
		result.ShouldAggregate = result.ShouldAggregate || shouldAggregate
	}
	return result, nil
}

// signalAggregator implements spec.md §4.E step 5: increment the pair
// counter, and report whether this increment crosses a refresh_count
// boundary with enough total raw feedback to aggregate.
func (e *Extractor) signalAggregator(ctx context.Context, agentVersion string, cfg Config) (bool, error) {
	refreshCount := cfg.RefreshCount
	if refreshCount <= 0 {
		refreshCount = 1
	}
	counter, err := e.store.FeedbackCounters.IncrementAndGet(ctx, agentVersion, cfg.FeedbackName)
	if err != nil {
		return false, err
	}
	if counter%int64(refreshCount) != 0 {
		return false, nil
	}
	total, err := e.store.RawFeedbacks.CountCurrentByPair(ctx, agentVersion, cfg.FeedbackName)
	if err != nil {
		return false, err
	}
	return total >= cfg.MinFeedbackThreshold, nil
}

func (e *Extractor) gate(ctx context.Context, cfg Config, w window.Window) (bool, error) {
	obj, err := e.adapter.StructuredGenerate(ctx, gateSchema, fmt.Sprintf("%s\n\n%s", cfg.GatePrompt, renderWindow(w)))
	if err != nil {
		return false, err
	}
	var out struct {
		ShouldExtract bool `json:"should_extract"`
	}
	if err := json.Unmarshal(obj, &out); err != nil {
		return false, fmt.Errorf("decode gate response: %w", err)
	}
	return out.ShouldExtract, nil
}

func (e *Extractor) extract(ctx context.Context, cfg Config, w window.Window) ([]draftItem, error) {
	prompt := fmt.Sprintf("%s\n\n%s", cfg.ExtractionPrompt, renderWindow(w))
	obj, err := llmadapter.WithRetryValue(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return e.adapter.StructuredGenerate(ctx, extractSchema, prompt)
	})
	if err != nil {
		return nil, err
	}
	var out extractResponse
	if err := json.Unmarshal(obj, &out); err != nil {
		// first schema violation per spec.md §7 "LLM schema violation": one targeted
		// retry with a tightened schema reminder before giving up.
		retryPrompt := prompt + "\n\nYour previous response did not match the required JSON schema. Respond with ONLY a JSON object of shape {\"items\": [...]}."
		obj2, err2 := e.adapter.StructuredGenerate(ctx, extractSchema, retryPrompt)
		if err2 != nil {
			return nil, fmt.Errorf("schema retry: %w", err2)
		}
		if err := json.Unmarshal(obj2, &out); err != nil {
			return nil, fmt.Errorf("schema violation persisted after retry: %w", err)
		}
	}
	return out.Items, nil
}

func anySourceMatches(w window.Window, sources []string) bool {
	allowed := make(map[string]bool, len(sources))
	for _, s := range sources {
		allowed[s] = true
	}
	for _, in := range w.Interactions {
		if allowed[in.Source] {
			return true
		}
	}
	return false
}

func renderWindow(w window.Window) string {
	var b []byte
	for _, in := range w.Interactions {
		b = append(b, []byte(fmt.Sprintf("[%s] %s\n", in.Role, in.Content))...)
	}
	return string(b)
}

var gateSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"should_extract": {"type": "boolean"}},
	"required": ["should_extract"]
}`)

var extractSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"items": {
			"type": "array",
			"items": {
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
			}
		}
	},
	"required": ["items"]
}`)
