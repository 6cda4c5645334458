package config

import "fmt"

// ValidateSystem performs fail-fast validation of a loaded SystemConfig.
func ValidateSystem(cfg *SystemConfig) error {
	if cfg.Database.DSN == "" {
		return NewValidationError("database", "", "dsn", fmt.Errorf("required"))
	}
	if cfg.Database.MaxOpenConn < 1 {
		return NewValidationError("database", "", "max_open_conn", fmt.Errorf("must be at least 1, got %d", cfg.Database.MaxOpenConn))
	}
	if cfg.HTTP.Addr == "" {
		return NewValidationError("http", "", "addr", fmt.Errorf("required"))
	}
	if cfg.LLMAdapter.BaseURL == "" {
		return NewValidationError("llm_adapter", "", "base_url", fmt.Errorf("required"))
	}
	if cfg.LLMAdapter.Timeout <= 0 {
		return NewValidationError("llm_adapter", "", "timeout", fmt.Errorf("must be positive, got %v", cfg.LLMAdapter.Timeout))
	}

	c := cfg.Coordinator
	if c.WorkerPoolSize < 1 {
		return NewValidationError("coordinator", "", "worker_pool_size", fmt.Errorf("must be at least 1, got %d", c.WorkerPoolSize))
	}
	if c.LLMConcurrencyCap < 1 {
		return NewValidationError("coordinator", "", "llm_concurrency_cap", fmt.Errorf("must be at least 1, got %d", c.LLMConcurrencyCap))
	}
	if c.StaleLockSeconds < 1 {
		return NewValidationError("coordinator", "", "stale_lock_seconds", fmt.Errorf("must be at least 1, got %d", c.StaleLockSeconds))
	}

	w := cfg.Window
	if w.Size < 1 {
		return NewValidationError("window", "", "size", fmt.Errorf("must be at least 1, got %d", w.Size))
	}
	if w.Stride < 1 {
		return NewValidationError("window", "", "stride", fmt.Errorf("must be at least 1, got %d", w.Stride))
	}
	return nil
}

// ValidateTenant performs fail-fast validation of a TenantConfig submitted
// via set_config, in the order the sections appear in spec.md §6.
func ValidateTenant(cfg *TenantConfig) error {
	if cfg.StorageConfig.Type != "" && !cfg.StorageConfig.Type.IsValid() {
		return NewValidationError("storage_config", "", "type", fmt.Errorf("invalid storage type: %s", cfg.StorageConfig.Type))
	}

	seen := make(map[string]bool, len(cfg.ProfileExtractorConfigs))
	for _, pc := range cfg.ProfileExtractorConfigs {
		if pc.ExtractorName == "" {
			return NewValidationError("profile_extractor_config", "", "extractor_name", fmt.Errorf("required"))
		}
		if seen[pc.ExtractorName] {
			return NewValidationError("profile_extractor_config", pc.ExtractorName, "extractor_name", fmt.Errorf("duplicate extractor name"))
		}
		seen[pc.ExtractorName] = true
		if pc.ProfileContentDefinitionPrompt == "" {
			return NewValidationError("profile_extractor_config", pc.ExtractorName, "profile_content_definition_prompt", fmt.Errorf("required"))
		}
		if pc.ProfileTTL != "" && !pc.ProfileTTL.IsValid() {
			return NewValidationError("profile_extractor_config", pc.ExtractorName, "profile_ttl", fmt.Errorf("invalid profile_ttl: %s", pc.ProfileTTL))
		}
		if err := validateWindowOverride(pc.ExtractionWindowSizeOverride, pc.ExtractionWindowStrideOverride); err != nil {
			return NewValidationError("profile_extractor_config", pc.ExtractorName, "extraction_window", err)
		}
	}

	feedbackSeen := make(map[string]bool, len(cfg.AgentFeedbackConfigs))
	for _, fc := range cfg.AgentFeedbackConfigs {
		if fc.FeedbackName == "" {
			return NewValidationError("agent_feedback_config", "", "feedback_name", fmt.Errorf("required"))
		}
		if feedbackSeen[fc.FeedbackName] {
			return NewValidationError("agent_feedback_config", fc.FeedbackName, "feedback_name", fmt.Errorf("duplicate feedback name"))
		}
		feedbackSeen[fc.FeedbackName] = true
		if fc.FeedbackDefinitionPrompt == "" {
			return NewValidationError("agent_feedback_config", fc.FeedbackName, "feedback_definition_prompt", fmt.Errorf("required"))
		}
		if fc.FeedbackAggregatorConfig.MinFeedbackThreshold < 2 {
			return NewValidationError("agent_feedback_config", fc.FeedbackName, "feedback_aggregator_config.min_feedback_threshold",
				fmt.Errorf("must be at least 2 (DBSCAN minNeighbors requires min_feedback_threshold-1 >= 1), got %d", fc.FeedbackAggregatorConfig.MinFeedbackThreshold))
		}
		if fc.FeedbackAggregatorConfig.RefreshCount < 1 {
			return NewValidationError("agent_feedback_config", fc.FeedbackName, "feedback_aggregator_config.refresh_count",
				fmt.Errorf("must be at least 1, got %d", fc.FeedbackAggregatorConfig.RefreshCount))
		}
		if err := validateWindowOverride(fc.WindowSizeOverride, fc.WindowStrideOverride); err != nil {
			return NewValidationError("agent_feedback_config", fc.FeedbackName, "window", err)
		}
	}

	successSeen := make(map[string]bool, len(cfg.AgentSuccessConfigs))
	for _, sc := range cfg.AgentSuccessConfigs {
		if sc.EvaluationName == "" {
			return NewValidationError("agent_success_config", "", "evaluation_name", fmt.Errorf("required"))
		}
		if successSeen[sc.EvaluationName] {
			return NewValidationError("agent_success_config", sc.EvaluationName, "evaluation_name", fmt.Errorf("duplicate evaluation name"))
		}
		successSeen[sc.EvaluationName] = true
		if sc.SuccessDefinitionPrompt == "" {
			return NewValidationError("agent_success_config", sc.EvaluationName, "success_definition_prompt", fmt.Errorf("required"))
		}
		if sc.SamplingRate < 0 || sc.SamplingRate > 1 {
			return NewValidationError("agent_success_config", sc.EvaluationName, "sampling_rate", fmt.Errorf("must be in [0,1], got %v", sc.SamplingRate))
		}
		if err := validateWindowOverride(sc.WindowSizeOverride, sc.WindowStrideOverride); err != nil {
			return NewValidationError("agent_success_config", sc.EvaluationName, "window", err)
		}
	}

	return nil
}

func validateWindowOverride(size, stride *int) error {
	if size != nil && *size < 1 {
		return fmt.Errorf("size override must be at least 1, got %d", *size)
	}
	if stride != nil && *stride < 1 {
		return fmt.Errorf("stride override must be at least 1, got %d", *stride)
	}
	return nil
}
