package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/beaconlabs/pulse/pkg/store"
)

// getAgentSuccessEvaluationResultsHandler handles
// get_agent_success_evaluation_results (spec.md §6).
func (s *Server) getAgentSuccessEvaluationResultsHandler(c *echo.Context) error {
	var req successResultsRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	results, err := s.store.SuccessResults.ListByAgentVersion(c.Request().Context(), req.AgentVersion, req.EvaluationName, req.Limit)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"results": results})
}
