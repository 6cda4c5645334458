// Package success implements the Success Evaluator (spec.md §4.G): a
// deterministically sampled per-request outcome judgment.
package success

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/beaconlabs/pulse/pkg/llmadapter"
	"github.com/beaconlabs/pulse/pkg/store"
)

// Config parameterizes one evaluator invocation.
type Config struct {
	EvaluationName          string
	SuccessDefinitionPrompt string
	AgentContextPrompt      string
	SamplingRate            float64
}

type evalResponse struct {
	IsSuccess         bool    `json:"is_success"`
	FailureType       *string `json:"failure_type,omitempty"`
	FailureReason     *string `json:"failure_reason,omitempty"`
	AgentPromptUpdate *string `json:"agent_prompt_update,omitempty"`
}

// Evaluator runs the Success Evaluator algorithm.
type Evaluator struct {
	store   *store.Store
	adapter llmadapter.Adapter
}

// New builds an Evaluator.
func New(s *store.Store, a llmadapter.Adapter) *Evaluator {
	return &Evaluator{store: s, adapter: a}
}

// ShouldSample reports whether requestID is selected for evaluationName at
// samplingRate, deterministically in (request_id, evaluation_name) so reruns
// are reproducible (spec.md §4.G "Sampling decision").
func ShouldSample(requestID, evaluationName string, samplingRate float64) bool {
	if samplingRate <= 0 {
		return false
	}
	if samplingRate >= 1 {
		return true
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(requestID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(evaluationName))
	bucket := float64(binary.BigEndian.Uint64(sum8(h.Sum(nil)))) / float64(^uint64(0))
	return bucket < samplingRate
}

func sum8(b []byte) []byte {
	if len(b) < 8 {
		out := make([]byte, 8)
		copy(out, b)
		return out
	}
	return b[:8]
}

// Run evaluates agentVersion's requestID against all of its interactions,
// provided the caller has already confirmed ShouldSample (spec.md §4.G).
func (ev *Evaluator) Run(ctx context.Context, agentVersion, requestID string, window []store.Interaction, cfg Config) (store.SuccessEvaluationResult, error) {
	prompt := fmt.Sprintf("%s\n\n%s\n\n%s", cfg.SuccessDefinitionPrompt, cfg.AgentContextPrompt, renderWindow(window))

	obj, err := llmadapter.WithRetryValue(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return ev.adapter.StructuredGenerate(ctx, evalSchema, prompt)
	})
	if err != nil {
		return store.SuccessEvaluationResult{}, fmt.Errorf("success: evaluate: %w", err)
	}
	var out evalResponse
	if err := json.Unmarshal(obj, &out); err != nil {
		// first schema violation per spec.md §7 "LLM schema violation": one targeted
		// retry with a tightened schema reminder before giving up.
		retryPrompt := prompt + "\n\nYour previous response did not match the required JSON schema. Respond with ONLY a JSON object with a boolean \"is_success\" field."
		obj2, err2 := ev.adapter.StructuredGenerate(ctx, evalSchema, retryPrompt)
		if err2 != nil {
			return store.SuccessEvaluationResult{}, fmt.Errorf("success: schema retry: %w", err2)
		}
		if err := json.Unmarshal(obj2, &out); err != nil {
			return store.SuccessEvaluationResult{}, fmt.Errorf("success: schema violation persisted after retry: %w", err)
		}
	}

	indexed := "success"
	if !out.IsSuccess && out.FailureReason != nil && *out.FailureReason != "" {
		indexed = *out.FailureReason
	}
	embedding, err := ev.adapter.Embed(ctx, indexed)
	if err != nil {
		return store.SuccessEvaluationResult{}, fmt.Errorf("success: embed: %w", err)
	}

	result := store.SuccessEvaluationResult{
		ResultID:          uuid.NewString(),
		EvaluationName:    cfg.EvaluationName,
		AgentVersion:      agentVersion,
		RequestID:         requestID,
		IsSuccess:         out.IsSuccess,
		FailureType:       out.FailureType,
		FailureReason:     out.FailureReason,
		AgentPromptUpdate: out.AgentPromptUpdate,
		Embedding:         embedding,
		CreatedAt:         window[len(window)-1].CreatedAt,
	}
	if err := ev.store.SuccessResults.Insert(ctx, result); err != nil {
		return store.SuccessEvaluationResult{}, fmt.Errorf("success: insert: %w", err)
	}
	return result, nil
}

func renderWindow(interactions []store.Interaction) string {
	var b []byte
	for _, in := range interactions {
		b = append(b, []byte(fmt.Sprintf("[%s] %s\n", in.Role, in.Content))...)
	}
	return string(b)
}

var evalSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"is_success": {"type": "boolean"},
		"failure_type": {"type": "string"},
		"failure_reason": {"type": "string"},
		"agent_prompt_update": {"type": "string"}
	},
	"required": ["is_success"]
}`)
