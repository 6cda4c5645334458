package coordinator

import (
	"context"
	"fmt"

	"github.com/beaconlabs/pulse/pkg/aggregator"
	"github.com/beaconlabs/pulse/pkg/config"
	"github.com/beaconlabs/pulse/pkg/extractor/feedback"
	"github.com/beaconlabs/pulse/pkg/extractor/profile"
	"github.com/beaconlabs/pulse/pkg/extractor/success"
	"github.com/beaconlabs/pulse/pkg/store"
	"github.com/beaconlabs/pulse/pkg/window"
)

// Pipeline wires the Coordinator's lock/pool mechanics to the concrete
// extractors (D/E/F/G), turning a tenant's config into scheduled runs
// (spec.md §4.H "Scheduling").
type Pipeline struct {
	store      *store.Store
	coord      *Coordinator
	assembler  *window.Assembler
	profiles   *profile.Extractor
	feedbacks  *feedback.Extractor
	aggregate  *aggregator.Aggregator
	evaluator  *success.Evaluator
	windowSize int
	stride     int
}

// NewPipeline builds a Pipeline. windowSize/stride are the system-wide
// fallback window defaults (config.WindowDefaults); per-extractor overrides
// in TenantConfig take precedence.
func NewPipeline(s *store.Store, coord *Coordinator, assembler *window.Assembler, pe *profile.Extractor, fe *feedback.Extractor, ag *aggregator.Aggregator, se *success.Evaluator, windowSize, stride int) *Pipeline {
	return &Pipeline{
		store: s, coord: coord, assembler: assembler,
		profiles: pe, feedbacks: fe, aggregate: ag, evaluator: se,
		windowSize: windowSize, stride: stride,
	}
}

// Dispatch evaluates cfg against a freshly written request and schedules
// every eligible extractor, feedback, and success-evaluator task under
// req.RequestID so a caller may AwaitCompletion on it (spec.md §4.H
// "Scheduling", §5 "Cancellation").
func (p *Pipeline) Dispatch(ctx context.Context, req store.Request, cfg *config.TenantConfig) error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, pec := range cfg.ProfileExtractorConfigs {
		if pec.ManualTrigger || !sourceAllowed(req.Source, pec.RequestSourcesEnabled) {
			continue
		}
		scope := profileScope(pec.ExtractorName, req.UserID)
		note(p.coord.Schedule(ctx, scope, req.RequestID, p.profileTask(pec, req.UserID, window.ModeIncremental, nil)))
	}

	for _, fc := range cfg.AgentFeedbackConfigs {
		if !sourceAllowed(req.Source, fc.RequestSourcesEnabled) {
			continue
		}
		scope := feedbackScope(fc.FeedbackName, req.AgentVersion)
		note(p.coord.Schedule(ctx, scope, req.RequestID, p.feedbackTask(fc, req.AgentVersion, window.ModeIncremental, nil)))
	}

	for _, sc := range cfg.AgentSuccessConfigs {
		if !success.ShouldSample(req.RequestID, sc.EvaluationName, sc.SamplingRate) {
			continue
		}
		scope := successScope(sc.EvaluationName, req.RequestID)
		note(p.coord.Schedule(ctx, scope, req.RequestID, p.successTask(sc, req)))
	}

	return firstErr
}

// RerunProfile schedules a full chunked rerun of one profile extractor for a
// single user (spec.md §4.C "Rerun" + external op rerun_profile_generation).
func (p *Pipeline) RerunProfile(ctx context.Context, pec config.ProfileExtractorConfig, userID, requestID string) error {
	scope := profileScope(pec.ExtractorName, userID)
	return p.coord.Schedule(ctx, scope, requestID, p.profileTask(pec, userID, window.ModeRerun, nil))
}

// ManualProfile schedules a single manual-mode window for one profile
// extractor and user (external op manual_profile_generation).
func (p *Pipeline) ManualProfile(ctx context.Context, pec config.ProfileExtractorConfig, userID, requestID string) error {
	scope := profileScope(pec.ExtractorName, userID)
	return p.coord.Schedule(ctx, scope, requestID, p.profileTask(pec, userID, window.ModeManual, nil))
}

// RerunFeedback schedules a full chunked rerun of one feedback config for an
// agent version (external op rerun_feedback_generation).
func (p *Pipeline) RerunFeedback(ctx context.Context, fc config.AgentFeedbackConfig, agentVersion, requestID string) error {
	scope := feedbackScope(fc.FeedbackName, agentVersion)
	return p.coord.Schedule(ctx, scope, requestID, p.feedbackTask(fc, agentVersion, window.ModeRerun, nil))
}

// ManualFeedback schedules a single manual-mode window for one feedback
// config (external op manual_feedback_generation).
func (p *Pipeline) ManualFeedback(ctx context.Context, fc config.AgentFeedbackConfig, agentVersion, requestID string) error {
	scope := feedbackScope(fc.FeedbackName, agentVersion)
	return p.coord.Schedule(ctx, scope, requestID, p.feedbackTask(fc, agentVersion, window.ModeManual, nil))
}

// RunAggregation schedules an aggregator pass over one (agent_version,
// feedback_name) pair (external op run_feedback_aggregation, and the
// automatic trigger from a feedback extractor crossing its refresh count).
func (p *Pipeline) RunAggregation(ctx context.Context, fc config.AgentFeedbackConfig, agentVersion, requestID string) error {
	scope := aggregatorScope(fc.FeedbackName, agentVersion)
	return p.coord.Schedule(ctx, scope, requestID, func(ctx context.Context) error {
		return p.aggregate.Run(ctx, agentVersion, fc.FeedbackName, aggregator.Config{
			AggregationPrompt:    fc.FeedbackDefinitionPrompt,
			MinFeedbackThreshold: fc.FeedbackAggregatorConfig.MinFeedbackThreshold,
		})
	})
}

func (p *Pipeline) profileTask(pec config.ProfileExtractorConfig, userID string, mode window.Mode, ov *window.Overrides) Task {
	return func(ctx context.Context) error {
		overrides := resolveOverrides(ov, pec.ExtractionWindowSizeOverride, pec.ExtractionWindowStrideOverride, pec.RequestSourcesEnabled, p.windowSize, p.stride)
		windows, err := p.assembler.Assemble(ctx, window.Scope{ExtractorID: pec.ExtractorName, UserID: userID}, mode, overrides)
		if err != nil {
			return fmt.Errorf("pipeline: assemble profile window: %w", err)
		}
		existing, err := p.store.Profiles.ListCurrentByUser(ctx, userID, pec.ExtractorName)
		if err != nil {
			return fmt.Errorf("pipeline: list current profiles: %w", err)
		}
		cfg := profile.Config{
			ExtractorName:            pec.ExtractorName,
			ContentDefinitionPrompt:  pec.ProfileContentDefinitionPrompt,
			ContextPrompt:            pec.ContextPrompt,
			MetadataDefinitionPrompt: pec.MetadataDefinitionPrompt,
			GatePrompt:               pec.ShouldExtractProfilePromptOverride,
			ProfileTTL:               pec.ProfileTTL.Duration(),
		}
		for _, w := range windows {
			if len(w.Interactions) == 0 {
				continue
			}
			if _, err := p.profiles.Run(ctx, userID, w, cfg, existing); err != nil {
				return fmt.Errorf("pipeline: run profile extractor %s: %w", pec.ExtractorName, err)
			}
		}
		return nil
	}
}

func (p *Pipeline) feedbackTask(fc config.AgentFeedbackConfig, agentVersion string, mode window.Mode, ov *window.Overrides) Task {
	return func(ctx context.Context) error {
		overrides := resolveOverrides(ov, fc.WindowSizeOverride, fc.WindowStrideOverride, fc.RequestSourcesEnabled, p.windowSize, p.stride)
		windows, err := p.assembler.Assemble(ctx, window.Scope{ExtractorID: fc.FeedbackName, AgentVersion: agentVersion}, mode, overrides)
		if err != nil {
			return fmt.Errorf("pipeline: assemble feedback window: %w", err)
		}
		cfg := feedback.Config{
			FeedbackName:          fc.FeedbackName,
			ExtractionPrompt:      fc.FeedbackDefinitionPrompt,
			RequestSourcesEnabled: fc.RequestSourcesEnabled,
			RefreshCount:          fc.FeedbackAggregatorConfig.RefreshCount,
			MinFeedbackThreshold:  fc.FeedbackAggregatorConfig.MinFeedbackThreshold,
		}
		for _, w := range windows {
			if len(w.Interactions) == 0 {
				continue
			}
			result, err := p.feedbacks.Run(ctx, agentVersion, w, cfg)
			if err != nil {
				return fmt.Errorf("pipeline: run feedback extractor %s: %w", fc.FeedbackName, err)
			}
			if result.ShouldAggregate {
				requestID := w.Interactions[len(w.Interactions)-1].RequestID
				if err := p.RunAggregation(ctx, fc, agentVersion, requestID); err != nil {
					return fmt.Errorf("pipeline: schedule aggregation for %s: %w", fc.FeedbackName, err)
				}
			}
		}
		return nil
	}
}

func (p *Pipeline) successTask(sc config.AgentSuccessConfig, req store.Request) Task {
	return func(ctx context.Context) error {
		interactions, err := p.store.Interactions.ListByRequest(ctx, req.RequestID)
		if err != nil {
			return fmt.Errorf("pipeline: list interactions for success evaluation: %w", err)
		}
		if len(interactions) == 0 {
			return nil
		}
		cfg := success.Config{
			EvaluationName:          sc.EvaluationName,
			SuccessDefinitionPrompt: sc.SuccessDefinitionPrompt,
			AgentContextPrompt:      sc.MetadataDefinitionPrompt,
			SamplingRate:            sc.SamplingRate,
		}
		_, err = p.evaluator.Run(ctx, req.AgentVersion, req.RequestID, interactions, cfg)
		if err != nil {
			return fmt.Errorf("pipeline: run success evaluator %s: %w", sc.EvaluationName, err)
		}
		return nil
	}
}

func resolveOverrides(base *window.Overrides, sizeOverride, strideOverride *int, sources []string, defaultSize, defaultStride int) window.Overrides {
	ov := window.Overrides{WindowSize: defaultSize, Stride: defaultStride, Sources: sources}
	if base != nil {
		ov = *base
	}
	if sizeOverride != nil {
		ov.WindowSize = *sizeOverride
	}
	if strideOverride != nil {
		ov.Stride = *strideOverride
	}
	return ov
}

func sourceAllowed(source string, enabled []string) bool {
	if len(enabled) == 0 {
		return true // spec.md §4.H / §4.E: empty filter means all sources
	}
	for _, s := range enabled {
		if s == source {
			return true
		}
	}
	return false
}

func profileScope(extractorName, userID string) string {
	return fmt.Sprintf("profile:%s:%s", extractorName, userID)
}

func feedbackScope(feedbackName, agentVersion string) string {
	return fmt.Sprintf("feedback:%s:%s", feedbackName, agentVersion)
}

func aggregatorScope(feedbackName, agentVersion string) string {
	return fmt.Sprintf("aggregator:%s:%s", feedbackName, agentVersion)
}

func successScope(evaluationName, requestID string) string {
	return fmt.Sprintf("success:%s:%s", evaluationName, requestID)
}
