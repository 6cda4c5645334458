package api

import (
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/beaconlabs/pulse/pkg/config"
	"github.com/beaconlabs/pulse/pkg/store"
)

func findProfileExtractor(cfg *config.TenantConfig, name string) (config.ProfileExtractorConfig, error) {
	for _, pec := range cfg.ProfileExtractorConfigs {
		if pec.ExtractorName == name {
			return pec, nil
		}
	}
	return config.ProfileExtractorConfig{}, store.NewValidationError("extractor_name", "no such profile extractor configured")
}

func findAgentFeedback(cfg *config.TenantConfig, name string) (config.AgentFeedbackConfig, error) {
	for _, fc := range cfg.AgentFeedbackConfigs {
		if fc.FeedbackName == name {
			return fc, nil
		}
	}
	return config.AgentFeedbackConfig{}, store.NewValidationError("feedback_name", "no such feedback config configured")
}

// rerunProfileGenerationHandler handles rerun_profile_generation: a full
// chunked rerun of one profile extractor over a single user's entire history
// (spec.md §4.C "Rerun").
func (s *Server) rerunProfileGenerationHandler(c *echo.Context) error {
	return s.runProfileOp(c, func(p config.ProfileExtractorConfig, userID, requestID string) error {
		return s.pipeline.RerunProfile(c.Request().Context(), p, userID, requestID)
	})
}

// manualProfileGenerationHandler handles manual_profile_generation: one
// manual-mode window run, bypassing ManualTrigger/RequestSourcesEnabled
// gating.
func (s *Server) manualProfileGenerationHandler(c *echo.Context) error {
	return s.runProfileOp(c, func(p config.ProfileExtractorConfig, userID, requestID string) error {
		return s.pipeline.ManualProfile(c.Request().Context(), p, userID, requestID)
	})
}

func (s *Server) runProfileOp(c *echo.Context, run func(config.ProfileExtractorConfig, string, string) error) error {
	var req profileGenerationRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if req.ExtractorName == "" || req.UserID == "" {
		return writeError(c, store.NewValidationError("extractor_name/user_id", "both are required"))
	}
	ctx := c.Request().Context()

	cfg, err := s.store.TenantConfigs.Get(ctx)
	if err != nil {
		return writeError(c, err)
	}
	pec, err := findProfileExtractor(cfg, req.ExtractorName)
	if err != nil {
		return writeError(c, err)
	}
	requestID := uuid.NewString()
	if err := run(pec, req.UserID, requestID); err != nil {
		return writeError(c, err)
	}
	if !req.WaitForResponse {
		return scheduled(c)
	}
	if err := s.coord.AwaitCompletion(ctx, requestID, s.awaitTimeout); err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"request_id": requestID})
}

// rerunFeedbackGenerationHandler handles rerun_feedback_generation.
func (s *Server) rerunFeedbackGenerationHandler(c *echo.Context) error {
	return s.runFeedbackOp(c, func(fc config.AgentFeedbackConfig, agentVersion, requestID string) error {
		return s.pipeline.RerunFeedback(c.Request().Context(), fc, agentVersion, requestID)
	})
}

// manualFeedbackGenerationHandler handles manual_feedback_generation.
func (s *Server) manualFeedbackGenerationHandler(c *echo.Context) error {
	return s.runFeedbackOp(c, func(fc config.AgentFeedbackConfig, agentVersion, requestID string) error {
		return s.pipeline.ManualFeedback(c.Request().Context(), fc, agentVersion, requestID)
	})
}

func (s *Server) runFeedbackOp(c *echo.Context, run func(config.AgentFeedbackConfig, string, string) error) error {
	var req feedbackGenerationRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if req.FeedbackName == "" || req.AgentVersion == "" {
		return writeError(c, store.NewValidationError("feedback_name/agent_version", "both are required"))
	}
	ctx := c.Request().Context()

	cfg, err := s.store.TenantConfigs.Get(ctx)
	if err != nil {
		return writeError(c, err)
	}
	fc, err := findAgentFeedback(cfg, req.FeedbackName)
	if err != nil {
		return writeError(c, err)
	}
	requestID := uuid.NewString()
	if err := run(fc, req.AgentVersion, requestID); err != nil {
		return writeError(c, err)
	}
	if !req.WaitForResponse {
		return scheduled(c)
	}
	if err := s.coord.AwaitCompletion(ctx, requestID, s.awaitTimeout); err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"request_id": requestID})
}

// runFeedbackAggregationHandler handles run_feedback_aggregation: an
// out-of-band aggregator pass over one (agent_version, feedback_name) pair,
// independent of the refresh_count automatic trigger (spec.md §4.F).
func (s *Server) runFeedbackAggregationHandler(c *echo.Context) error {
	var req runAggregationRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if req.FeedbackName == "" || req.AgentVersion == "" {
		return writeError(c, store.NewValidationError("feedback_name/agent_version", "both are required"))
	}
	ctx := c.Request().Context()

	cfg, err := s.store.TenantConfigs.Get(ctx)
	if err != nil {
		return writeError(c, err)
	}
	fc, err := findAgentFeedback(cfg, req.FeedbackName)
	if err != nil {
		return writeError(c, err)
	}
	requestID := uuid.NewString()
	if err := s.pipeline.RunAggregation(ctx, fc, req.AgentVersion, requestID); err != nil {
		return writeError(c, err)
	}
	if !req.WaitForResponse {
		return scheduled(c)
	}
	if err := s.coord.AwaitCompletion(ctx, requestID, s.awaitTimeout); err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"request_id": requestID})
}

// synthesizeSkillHandler handles synthesize_skill: builds and stores one
// draft Skill from every `approved` aggregated feedback row currently held
// for an (agent_version, feedback_name) pair (SPEC_FULL.md §3, supplementary
// operation). Runs synchronously — unlike the extractor/aggregator triggers,
// there is no window or lock scope to coordinate here.
func (s *Server) synthesizeSkillHandler(c *echo.Context) error {
	var req synthesizeSkillRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if req.FeedbackName == "" || req.AgentVersion == "" {
		return writeError(c, store.NewValidationError("feedback_name/agent_version", "both are required"))
	}

	skill, err := s.aggregate.SynthesizeSkill(c.Request().Context(), req.AgentVersion, req.FeedbackName)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"skill": skill})
}
