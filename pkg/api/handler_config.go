package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/beaconlabs/pulse/pkg/config"
	"github.com/beaconlabs/pulse/pkg/store"
)

// getConfigHandler handles get_config: the tenant's current TenantConfig, or
// config.DefaultTenantConfig if none has ever been set (spec.md §6).
func (s *Server) getConfigHandler(c *echo.Context) error {
	cfg, err := s.store.TenantConfigs.Get(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"config": cfg})
}

// setConfigHandler handles set_config: replaces the tenant's config outright
// (spec.md §6 "Replaces the per-tenant config"; partial updates are the
// caller's responsibility via a get_config/merge/set_config round trip).
func (s *Server) setConfigHandler(c *echo.Context) error {
	var cfg config.TenantConfig
	if err := c.Bind(&cfg); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if err := s.store.TenantConfigs.Set(c.Request().Context(), &cfg); err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"config": cfg})
}
