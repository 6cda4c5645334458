package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/beaconlabs/pulse/pkg/store"
)

// publishInteractionHandler handles publish_interaction (spec.md §6): writes
// one Request + its Interactions atomically, schedules every matching
// extractor, and returns the request_id and interactions_written count,
// either immediately or, with wait_for_response, once the scheduled work
// completes.
func (s *Server) publishInteractionHandler(c *echo.Context) error {
	var req publishInteractionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if req.UserID == "" || len(req.Interactions) == 0 {
		return writeError(c, store.NewValidationError("user_id/interactions", "both are required"))
	}

	ctx := c.Request().Context()
	now := nowUnix()
	requestID := uuid.NewString()

	storeReq := store.Request{
		RequestID:    requestID,
		UserID:       req.UserID,
		Source:       req.Source,
		AgentVersion: req.AgentVersion,
		RequestGroup: req.RequestGroup,
		CreatedAt:    now,
	}

	interactions := make([]store.Interaction, 0, len(req.Interactions))
	for _, in := range req.Interactions {
		embedding, err := s.adapter.Embed(ctx, in.Content)
		if err != nil {
			return writeError(c, fmt.Errorf("api: embed interaction: %w", err))
		}
		userAction := store.UserActionNone
		if in.UserAction != "" {
			userAction = store.UserAction(in.UserAction)
		}
		interactions = append(interactions, store.Interaction{
			UserID:                req.UserID,
			Role:                  store.Role(in.Role),
			Content:               in.Content,
			ShadowContent:         in.ShadowContent,
			UserAction:            userAction,
			UserActionDescription: in.UserActionDescription,
			InteractedImageURL:    in.InteractedImageURL,
			ImageEncoding:         in.ImageEncoding,
			ToolsUsed:             in.ToolsUsed,
			Source:                req.Source,
			AgentVersion:          req.AgentVersion,
			Embedding:             embedding,
			CreatedAt:             now,
		})
	}

	written, err := s.store.Interactions.BulkInsert(ctx, storeReq, interactions)
	if err != nil {
		return writeError(c, err)
	}

	cfg, err := s.store.TenantConfigs.Get(ctx)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.pipeline.Dispatch(ctx, storeReq, cfg); err != nil {
		return writeError(c, err)
	}

	if !req.WaitForResponse {
		return ok(c, map[string]any{"request_id": requestID, "interactions_written": len(written)})
	}
	if err := s.coord.AwaitCompletion(ctx, requestID, s.awaitTimeout); err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"request_id": requestID, "interactions_written": len(written)})
}

// searchInteractionsHandler handles search_interactions (spec.md §4.A).
func (s *Server) searchInteractionsHandler(c *echo.Context) error {
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

	results, err := s.store.SearchInteractions(ctx, params)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"interactions": results})
}

// getInteractionsHandler handles get_interactions: ordered by interaction_id
// desc by default (spec.md §6).
func (s *Server) getInteractionsHandler(c *echo.Context) error {
	var req listRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	ctx := c.Request().Context()

	var results []store.Interaction
	var err error
	switch {
	case req.UserID != "":
		results, err = s.store.Interactions.ListByUser(ctx, req.UserID, req.filter(), req.order(), req.TopK)
	case req.AgentVersion != "":
		results, err = s.store.Interactions.ListByAgentVersion(ctx, req.AgentVersion, req.filter(), req.order(), req.TopK)
	default:
		return writeError(c, store.NewValidationError("user_id/agent_version", "one of these is required"))
	}
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"interactions": results})
}

// getRequestsHandler handles get_requests: grouped by request_group
// client-side over RequestRepository.List's flat result (spec.md §6).
func (s *Server) getRequestsHandler(c *echo.Context) error {
	var req listRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	ctx := c.Request().Context()

	requests, err := s.store.Requests.List(ctx, req.filter(), req.order(), req.TopK)
	if err != nil {
		return writeError(c, err)
	}

	groups := make(map[string][]store.Request)
	order := make([]string, 0)
	for _, r := range requests {
		g := store.NormalizeRequestGroup(&r.RequestGroup)
		if _, seen := groups[g]; !seen {
			order = append(order, g)
		}
		groups[g] = append(groups[g], r)
	}
	grouped := make([]map[string]any, 0, len(order))
	for _, g := range order {
		grouped = append(grouped, map[string]any{"request_group": g, "requests": groups[g]})
	}
	return ok(c, map[string]any{"request_groups": grouped})
}

// deleteInteractionHandler handles delete_interaction.
func (s *Server) deleteInteractionHandler(c *echo.Context) error {
	var req deleteInteractionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if err := s.store.Interactions.Delete(c.Request().Context(), req.InteractionID); err != nil {
		return writeError(c, err)
	}
	return ok(c, nil)
}

// deleteRequestHandler handles delete_request: cascades to every Interaction
// beneath the request, leaving derived artifacts untouched (spec.md §6).
func (s *Server) deleteRequestHandler(c *echo.Context) error {
	var req deleteRequestRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	n, err := s.store.Interactions.DeleteRequestCascade(c.Request().Context(), req.RequestID)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"interactions_deleted": n})
}

// deleteRequestGroupHandler handles delete_request_group: cascades every
// Request sharing the group, same per-request semantics as delete_request.
func (s *Server) deleteRequestGroupHandler(c *echo.Context) error {
	var req deleteRequestGroupRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	ctx := c.Request().Context()

	requests, err := s.store.Requests.List(ctx, store.ListFilter{RequestGroup: req.RequestGroup}, store.OrderDesc, 0)
	if err != nil {
		return writeError(c, err)
	}
	var total int64
	for _, r := range requests {
		n, err := s.store.Interactions.DeleteRequestCascade(ctx, r.RequestID)
		if err != nil {
			return writeError(c, err)
		}
		total += n
	}
	return ok(c, map[string]any{"requests_deleted": len(requests), "interactions_deleted": total})
}

func nowUnix() float64 { return float64(time.Now().UnixNano()) / 1e9 }
