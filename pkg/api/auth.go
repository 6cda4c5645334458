package api

import (
	"errors"

	echo "github.com/labstack/echo/v5"

	"github.com/beaconlabs/pulse/pkg/store"
)

// apiKeyHeader is the tenant credential header (spec.md §6 "Authentication").
const apiKeyHeader = "x-api-key"

// apiKeyAuth resolves the caller's x-api-key to an org_id via s.ApiKeys and
// carries it on the request context for every downstream repository call.
// A missing or unknown key fails the request with code AUTH before any
// handler runs.
func apiKeyAuth(s *store.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			key := c.Request().Header.Get(apiKeyHeader)
			if key == "" {
				return c.JSON(httpStatusFor(codeAuth), failResponse{
					Success: false, Message: "missing x-api-key header", Code: string(codeAuth),
				})
			}
			orgID, err := s.ApiKeys.Lookup(c.Request().Context(), key)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return c.JSON(httpStatusFor(codeAuth), failResponse{
						Success: false, Message: "invalid api key", Code: string(codeAuth),
					})
				}
				return writeError(c, err)
			}
			c.SetRequest(c.Request().WithContext(store.WithOrgID(c.Request().Context(), orgID)))
			return next(c)
		}
	}
}
