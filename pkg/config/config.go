// Package config implements the two configuration layers (spec.md §2
// component I): SystemConfig, the process-wide bootstrap loaded once from
// YAML + environment at startup, and TenantConfig, the per-organization
// pipeline configuration stored as a JSONB row and mutated through
// get_config / set_config.
package config
