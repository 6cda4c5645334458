package config

// TenantConfig is one organization's complete pipeline configuration
// (spec.md §6 "Configuration schema (per tenant)"). It is stored as the
// JSONB `config` column of the `tenant_configs` table and round-trips
// through get_config / set_config verbatim modulo server-assigned
// defaults (spec.md R2).
type TenantConfig struct {
	StorageConfig           StorageConfig              `json:"storage_config" yaml:"storage_config"`
	ProfileExtractorConfigs []ProfileExtractorConfig   `json:"profile_extractor_configs,omitempty" yaml:"profile_extractor_configs,omitempty"`
	AgentFeedbackConfigs    []AgentFeedbackConfig      `json:"agent_feedback_configs,omitempty" yaml:"agent_feedback_configs,omitempty"`
	AgentSuccessConfigs     []AgentSuccessConfig       `json:"agent_success_configs,omitempty" yaml:"agent_success_configs,omitempty"`
	APIKeyConfig            APIKeyConfig               `json:"api_key_config" yaml:"api_key_config"`
	LLMConfig               LLMConfig                  `json:"llm_config" yaml:"llm_config"`
}

// StorageConfig selects and parameterizes the artifact storage backend.
type StorageConfig struct {
	Type StorageType `json:"type" yaml:"type"`
}

// ProfileExtractorConfig configures one Profile Extractor instance
// (spec.md §6, component 4.D).
type ProfileExtractorConfig struct {
	ExtractorName                      string     `json:"extractor_name" yaml:"extractor_name"`
	ProfileContentDefinitionPrompt     string     `json:"profile_content_definition_prompt" yaml:"profile_content_definition_prompt"`
	ContextPrompt                      string     `json:"context_prompt,omitempty" yaml:"context_prompt,omitempty"`
	MetadataDefinitionPrompt           string     `json:"metadata_definition_prompt,omitempty" yaml:"metadata_definition_prompt,omitempty"`
	ShouldExtractProfilePromptOverride string     `json:"should_extract_profile_prompt_override,omitempty" yaml:"should_extract_profile_prompt_override,omitempty"`
	ManualTrigger                      bool       `json:"manual_trigger" yaml:"manual_trigger"`
	RequestSourcesEnabled              []string   `json:"request_sources_enabled,omitempty" yaml:"request_sources_enabled,omitempty"`
	ExtractionWindowSizeOverride       *int       `json:"extraction_window_size_override,omitempty" yaml:"extraction_window_size_override,omitempty"`
	ExtractionWindowStrideOverride     *int       `json:"extraction_window_stride_override,omitempty" yaml:"extraction_window_stride_override,omitempty"`
	ProfileTTL                         ProfileTTL `json:"profile_ttl" yaml:"profile_ttl"`
}

// FeedbackAggregatorConfig parameterizes one feedback config's aggregation
// pass (spec.md §4.F).
type FeedbackAggregatorConfig struct {
	MinFeedbackThreshold int `json:"min_feedback_threshold" yaml:"min_feedback_threshold"`
	RefreshCount         int `json:"refresh_count" yaml:"refresh_count"`
}

// AgentFeedbackConfig configures one Feedback Extractor + Aggregator pair
// (spec.md §6, components 4.E/4.F).
type AgentFeedbackConfig struct {
	FeedbackName             string                   `json:"feedback_name" yaml:"feedback_name"`
	FeedbackDefinitionPrompt string                   `json:"feedback_definition_prompt" yaml:"feedback_definition_prompt"`
	MetadataDefinitionPrompt string                   `json:"metadata_definition_prompt,omitempty" yaml:"metadata_definition_prompt,omitempty"`
	FeedbackAggregatorConfig FeedbackAggregatorConfig `json:"feedback_aggregator_config" yaml:"feedback_aggregator_config"`
	RequestSourcesEnabled    []string                 `json:"request_sources_enabled,omitempty" yaml:"request_sources_enabled,omitempty"`
	WindowSizeOverride       *int                     `json:"window_size_override,omitempty" yaml:"window_size_override,omitempty"`
	WindowStrideOverride     *int                     `json:"window_stride_override,omitempty" yaml:"window_stride_override,omitempty"`
}

// AgentSuccessConfig configures one Success Evaluator instance
// (spec.md §6, component 4.G).
type AgentSuccessConfig struct {
	EvaluationName           string   `json:"evaluation_name" yaml:"evaluation_name"`
	SuccessDefinitionPrompt  string   `json:"success_definition_prompt" yaml:"success_definition_prompt"`
	SamplingRate             float64  `json:"sampling_rate" yaml:"sampling_rate"`
	MetadataDefinitionPrompt string   `json:"metadata_definition_prompt,omitempty" yaml:"metadata_definition_prompt,omitempty"`
	ToolCanUse               []string `json:"tool_can_use,omitempty" yaml:"tool_can_use,omitempty"`
	WindowSizeOverride       *int     `json:"window_size_override,omitempty" yaml:"window_size_override,omitempty"`
	WindowStrideOverride     *int     `json:"window_stride_override,omitempty" yaml:"window_stride_override,omitempty"`
}

// APIKeyConfig holds the provider credential environment-variable name used
// by the LLM Adapter; the credential value itself is never stored in
// TenantConfig, only the env var to read it from (mirrors the teacher's
// `token_env` indirection for its GitHub/Slack config).
type APIKeyConfig struct {
	ProviderEnv string `json:"provider_env,omitempty" yaml:"provider_env,omitempty"`
}

// LLMConfig names the models used for gating, generation, and embedding
// (spec.md §6 `llm_config`).
type LLMConfig struct {
	ShouldRunModelName  string `json:"should_run_model_name" yaml:"should_run_model_name"`
	GenerationModelName string `json:"generation_model_name" yaml:"generation_model_name"`
	EmbeddingModelName  string `json:"embedding_model_name" yaml:"embedding_model_name"`
}
