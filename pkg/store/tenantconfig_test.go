package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/pulse/pkg/config"
)

func TestTenantConfig_GetDefaultsWhenUnset(t *testing.T) {
	s, ctx := newTestStore(t)

	cfg, err := s.TenantConfigs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.StorageTypeLocal, cfg.StorageConfig.Type)
	assert.Empty(t, cfg.ProfileExtractorConfigs)
}

func TestTenantConfig_SetThenGetRoundTrips(t *testing.T) {
	s, ctx := newTestStore(t)

	cfg := &config.TenantConfig{
		StorageConfig: config.StorageConfig{Type: config.StorageTypeSupabase},
		ProfileExtractorConfigs: []config.ProfileExtractorConfig{
			{ExtractorName: "prefs", ProfileContentDefinitionPrompt: "extract preferences", ProfileTTL: config.ProfileTTLOneMonth},
		},
	}
	require.NoError(t, s.TenantConfigs.Set(ctx, cfg))

	got, err := s.TenantConfigs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg.StorageConfig, got.StorageConfig)
	require.Len(t, got.ProfileExtractorConfigs, 1)
	assert.Equal(t, "prefs", got.ProfileExtractorConfigs[0].ExtractorName)

	// Overwriting replaces the whole row (spec.md §6 set_config semantics).
	cfg2 := config.DefaultTenantConfig()
	require.NoError(t, s.TenantConfigs.Set(ctx, cfg2))
	got2, err := s.TenantConfigs.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got2.ProfileExtractorConfigs)
}

func TestTenantConfig_SetRejectsInvalidConfig(t *testing.T) {
	s, ctx := newTestStore(t)

	cfg := &config.TenantConfig{
		AgentSuccessConfigs: []config.AgentSuccessConfig{
			{EvaluationName: "helpfulness", SuccessDefinitionPrompt: "p", SamplingRate: 2.0},
		},
	}
	err := s.TenantConfigs.Set(ctx, cfg)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
