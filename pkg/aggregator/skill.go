package aggregator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/beaconlabs/pulse/pkg/llmadapter"
	"github.com/beaconlabs/pulse/pkg/store"
)

type skillSynthesisItem struct {
	SkillName    string   `json:"skill_name"`
	Description  string   `json:"description"`
	Instructions string   `json:"instructions"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
}

var skillSynthesisSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"skill_name": {"type": "string"},
		"description": {"type": "string"},
		"instructions": {"type": "string"},
		"allowed_tools": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["skill_name", "description", "instructions"]
}`)

// SynthesizeSkill builds and stores a draft Skill from every `approved`
// aggregated feedback rule currently held for an (agent_version,
// feedback_name) pair — the supplementary synthesize_skill operation
// (SPEC_FULL.md §3): a reusable instruction block downstream prompts can
// consume instead of replaying every individual approved rule.
//
// Returns store.ErrNotFound if the pair has no approved feedback yet.
func (ag *Aggregator) SynthesizeSkill(ctx context.Context, agentVersion, feedbackName string) (*store.Skill, error) {
	all, err := ag.store.AggregatedFeedbacks.ListCurrentByPair(ctx, agentVersion, feedbackName)
	if err != nil {
		return nil, fmt.Errorf("aggregator: load aggregated feedback: %w", err)
	}
	approved := make([]store.AggregatedFeedback, 0, len(all))
	for _, f := range all {
		if f.FeedbackStatus == store.FeedbackStatusApproved {
			approved = append(approved, f)
		}
	}
	if len(approved) == 0 {
		return nil, store.ErrNotFound
	}

	prompt := fmt.Sprintf(
		"Synthesize one reusable skill from the approved behavioral rules below for agent_version=%s, feedback_name=%s.\n\n%s",
		agentVersion, feedbackName, renderRules(approved))
	obj, err := llmadapter.WithRetryValue(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return ag.adapter.StructuredGenerate(ctx, skillSynthesisSchema, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("aggregator: synthesize skill: %w", err)
	}
	var out skillSynthesisItem
	if err := json.Unmarshal(obj, &out); err != nil {
		// first schema violation per spec.md §7 "LLM schema violation": one targeted
		// retry with a tightened schema reminder before giving up.
		retryPrompt := prompt + "\n\nYour previous response did not match the required JSON schema. Respond with ONLY a JSON object of shape {\"skill_name\": ..., \"description\": ..., \"instructions\": ...}."
		obj2, err2 := ag.adapter.StructuredGenerate(ctx, skillSynthesisSchema, retryPrompt)
		if err2 != nil {
			return nil, fmt.Errorf("aggregator: synthesize skill schema retry: %w", err2)
		}
		if err := json.Unmarshal(obj2, &out); err != nil {
			return nil, fmt.Errorf("aggregator: synthesize skill schema violation persisted after retry: %w", err)
		}
	}

	embedding, err := ag.adapter.Embed(ctx, out.Instructions)
	if err != nil {
		return nil, fmt.Errorf("aggregator: embed skill instructions: %w", err)
	}

	skill := store.Skill{
		SkillID:        uuid.NewString(),
		AgentVersion:   agentVersion,
		FeedbackName:   feedbackName,
		SkillName:      out.SkillName,
		Description:    out.Description,
		Instructions:   out.Instructions,
		AllowedTools:   out.AllowedTools,
		BlockingIssues: blockingIssuesOf(approved),
		RawFeedbackIDs: unionRawFeedbackIDs(approved),
		SkillStatus:    store.SkillStatusDraft,
		Embedding:      embedding,
	}
	if err := ag.store.Skills.Insert(ctx, skill); err != nil {
		return nil, err
	}
	return &skill, nil
}

func renderRules(items []store.AggregatedFeedback) string {
	var b []byte
	for _, f := range items {
		b = append(b, []byte(fmt.Sprintf("- %s\n", f.FeedbackContent))...)
	}
	return string(b)
}

// blockingIssuesOf collects the distinct blocking issues raised across
// every contributing aggregated feedback row.
func blockingIssuesOf(items []store.AggregatedFeedback) []store.BlockingIssue {
	var issues []store.BlockingIssue
	seen := make(map[string]bool)
	for _, f := range items {
		if f.BlockingIssue == nil {
			continue
		}
		key := f.BlockingIssue.Kind + "|" + f.BlockingIssue.Details
		if seen[key] {
			continue
		}
		seen[key] = true
		issues = append(issues, *f.BlockingIssue)
	}
	return issues
}

// unionRawFeedbackIDs unions the raw_feedback_ids recorded in every
// contributing aggregate's feedback_metadata (populated by metadataFor),
// so a synthesized Skill still traces back to the raw feedback behind it.
func unionRawFeedbackIDs(items []store.AggregatedFeedback) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, f := range items {
		for _, id := range rawFeedbackIDs(f.FeedbackMetadata) {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
