package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/beaconlabs/pulse/pkg/config"
)

// TenantConfigRepository persists each organization's TenantConfig as a
// single JSONB row (spec.md §6 get_config / set_config).
type TenantConfigRepository struct {
	db *sql.DB
}

// Get returns the org's current TenantConfig, or config.DefaultTenantConfig
// if none has been set yet.
func (r *TenantConfigRepository) Get(ctx context.Context) (*config.TenantConfig, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = r.db.QueryRowContext(ctx,
		`SELECT config FROM tenant_configs WHERE org_id = $1`, orgID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return config.DefaultTenantConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get tenant config: %w", err)
	}
	var cfg config.TenantConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("store: unmarshal tenant config: %w", err)
	}
	return &cfg, nil
}

// Set validates and upserts the org's TenantConfig (spec.md §6 set_config,
// "Replaces the per-tenant config"; callers wanting a partial update should
// first Get, apply config.MergeTenantConfig, then Set the result).
func (r *TenantConfigRepository) Set(ctx context.Context, cfg *config.TenantConfig) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	if err := config.ValidateTenant(cfg); err != nil {
		return NewValidationError("config", err.Error())
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: marshal tenant config: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tenant_configs (org_id, config, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (org_id) DO UPDATE SET config = $2, updated_at = now()`,
		orgID, raw,
	)
	if err != nil {
		return fmt.Errorf("store: set tenant config: %w", err)
	}
	return nil
}
