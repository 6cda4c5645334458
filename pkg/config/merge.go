package config

import (
	"fmt"

	"dario.cat/mergo"
)

// MergeTenantConfig merges patch onto a copy of base: any field patch
// leaves at its zero value keeps base's value, any non-zero field in patch
// overrides base (set_config semantics: a caller submitting a partial
// config only touches the sections they set, everything else survives
// untouched).
func MergeTenantConfig(base, patch *TenantConfig) (*TenantConfig, error) {
	merged := *base
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge tenant config: %w", err)
	}
	return &merged, nil
}
