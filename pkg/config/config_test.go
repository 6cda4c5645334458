package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileTTL_Duration(t *testing.T) {
	d := ProfileTTLOneDay.Duration()
	require.NotNil(t, d)
	assert.Equal(t, "24h0m0s", d.String())

	assert.Nil(t, ProfileTTLInfinity.Duration())
	assert.Nil(t, ProfileTTL("").Duration())
}

func TestProfileTTL_IsValid(t *testing.T) {
	assert.True(t, ProfileTTLOneWeek.IsValid())
	assert.False(t, ProfileTTL("ONE_FORTNIGHT").IsValid())
}

func TestMergeTenantConfig_PatchOverridesNonZeroFields(t *testing.T) {
	base := DefaultTenantConfig()
	base.LLMConfig = LLMConfig{GenerationModelName: "base-model"}
	base.ProfileExtractorConfigs = []ProfileExtractorConfig{{ExtractorName: "prefs"}}

	patch := &TenantConfig{
		LLMConfig: LLMConfig{GenerationModelName: "new-model"},
	}

	merged, err := MergeTenantConfig(base, patch)
	require.NoError(t, err)
	assert.Equal(t, "new-model", merged.LLMConfig.GenerationModelName)
	// Sections the patch left zero-valued survive untouched.
	assert.Equal(t, base.ProfileExtractorConfigs, merged.ProfileExtractorConfigs)
}

func TestValidateTenant_RejectsDuplicateExtractorNames(t *testing.T) {
	cfg := &TenantConfig{
		ProfileExtractorConfigs: []ProfileExtractorConfig{
			{ExtractorName: "prefs", ProfileContentDefinitionPrompt: "p1"},
			{ExtractorName: "prefs", ProfileContentDefinitionPrompt: "p2"},
		},
	}
	err := ValidateTenant(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate extractor name")
}

func TestValidateTenant_RejectsSamplingRateOutOfRange(t *testing.T) {
	cfg := &TenantConfig{
		AgentSuccessConfigs: []AgentSuccessConfig{
			{EvaluationName: "helpfulness", SuccessDefinitionPrompt: "p", SamplingRate: 1.5},
		},
	}
	err := ValidateTenant(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampling_rate")
}

func TestValidateTenant_RejectsLowMinFeedbackThreshold(t *testing.T) {
	cfg := &TenantConfig{
		AgentFeedbackConfigs: []AgentFeedbackConfig{
			{
				FeedbackName:             "too_verbose",
				FeedbackDefinitionPrompt: "p",
				FeedbackAggregatorConfig: FeedbackAggregatorConfig{MinFeedbackThreshold: 1, RefreshCount: 3},
			},
		},
	}
	err := ValidateTenant(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_feedback_threshold")
}

func TestValidateTenant_AcceptsWellFormedConfig(t *testing.T) {
	cfg := &TenantConfig{
		StorageConfig: StorageConfig{Type: StorageTypeLocal},
		ProfileExtractorConfigs: []ProfileExtractorConfig{
			{ExtractorName: "prefs", ProfileContentDefinitionPrompt: "extract preferences", ProfileTTL: ProfileTTLOneMonth},
		},
		AgentFeedbackConfigs: []AgentFeedbackConfig{
			{
				FeedbackName:             "verbosity",
				FeedbackDefinitionPrompt: "extract feedback about verbosity",
				FeedbackAggregatorConfig: FeedbackAggregatorConfig{MinFeedbackThreshold: 3, RefreshCount: 3},
			},
		},
		AgentSuccessConfigs: []AgentSuccessConfig{
			{EvaluationName: "helpfulness", SuccessDefinitionPrompt: "was this helpful?", SamplingRate: 0.1},
		},
	}
	assert.NoError(t, ValidateTenant(cfg))
}

func TestValidateSystem_RejectsMissingDSN(t *testing.T) {
	cfg := DefaultSystemConfig()
	cfg.LLMAdapter.BaseURL = "http://localhost:9000"
	err := ValidateSystem(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn")
}
