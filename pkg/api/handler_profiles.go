package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/beaconlabs/pulse/pkg/store"
)

// searchProfilesHandler handles search_profiles (spec.md §6): hybrid search
// scoped to a user's `current`-status profiles by default.
func (s *Server) searchProfilesHandler(c *echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	ctx := c.Request().Context()

	params, err := s.buildSearchParams(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	params.UserID = req.UserID

	results, err := s.store.SearchProfiles(ctx, params)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"profiles": results})
}

// getProfilesHandler handles get_profiles: a user's profiles, `current`
// status unless status_filter overrides it.
func (s *Server) getProfilesHandler(c *echo.Context) error {
	var req listRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if req.UserID == "" {
		return writeError(c, store.NewValidationError("user_id", "required"))
	}
	results, err := s.store.Profiles.List(c.Request().Context(), req.filter(), req.order(), req.TopK)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"profiles": results})
}

// getAllProfilesHandler handles get_all_profiles: the tenant-wide listing,
// not scoped to one user (spec.md §6 "user_id?" — optional).
func (s *Server) getAllProfilesHandler(c *echo.Context) error {
	var req listRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	results, err := s.store.Profiles.List(c.Request().Context(), req.filter(), req.order(), req.TopK)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"profiles": results})
}

// deleteProfileHandler handles delete_profile: archives either a concrete
// profile_id or the top semantic match for search_query (spec.md §6).
func (s *Server) deleteProfileHandler(c *echo.Context) error {
	var req deleteProfileRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	ctx := c.Request().Context()

	profileID := req.ProfileID
	if profileID == "" {
		if req.SearchQuery == "" {
			return writeError(c, store.NewValidationError("profile_id/search_query", "one is required"))
		}
		embedding, err := s.adapter.Embed(ctx, req.SearchQuery)
		if err != nil {
			return writeError(c, err)
		}
		hits, err := s.store.SearchProfiles(ctx, store.SearchParams{
			QueryText: req.SearchQuery, QueryEmbedding: embedding, K: 1,
			Mode: store.SearchModeHybrid, UserID: req.UserID,
		})
		if err != nil {
			return writeError(c, err)
		}
		if len(hits) == 0 {
			return writeError(c, store.ErrNotFound)
		}
		profileID = hits[0].ProfileID
	}

	if err := s.store.Profiles.UpdateStatus(ctx, profileID, store.StatusArchived); err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"profile_id": profileID})
}

// getProfileChangeLogHandler handles get_profile_change_log. Profiles carry
// generated_from_request_id but not a separate supersession log, so "added"
// is every profile generated from the request and "removed" is the subset
// of those since archived — a simplification of the richer per-request
// added/removed/mentioned delta spec.md describes, since no dedicated
// change-log table exists.
func (s *Server) getProfileChangeLogHandler(c *echo.Context) error {
	var req profileChangeLogRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if req.RequestID == "" {
		return writeError(c, store.NewValidationError("request_id", "required"))
	}
	generated, err := s.store.Profiles.ListByGeneratedFromRequest(c.Request().Context(), req.RequestID)
	if err != nil {
		return writeError(c, err)
	}
	var added, removed []store.Profile
	for _, p := range generated {
		if p.Status == store.StatusArchived {
			removed = append(removed, p)
		} else {
			added = append(added, p)
		}
	}
	return ok(c, map[string]any{"added": added, "removed": removed})
}
