package api

import (
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/beaconlabs/pulse/pkg/store"
)

// searchFeedbacksHandler handles search_feedbacks: hybrid search over
// `approved`-status aggregated feedback for an agent_version (spec.md §6).
func (s *Server) searchFeedbacksHandler(c *echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	ctx := c.Request().Context()

	params, err := s.buildSearchParams(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	results, err := s.store.SearchAggregatedFeedbacks(ctx, params)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"feedbacks": results})
}

// searchRawFeedbacksHandler handles search_raw_feedbacks.
func (s *Server) searchRawFeedbacksHandler(c *echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	ctx := c.Request().Context()

	params, err := s.buildSearchParams(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	results, err := s.store.SearchRawFeedbacks(ctx, params)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"raw_feedbacks": results})
}

// getFeedbacksHandler handles get_feedbacks: `approved`-status aggregated
// feedback unless status_filter overrides it.
func (s *Server) getFeedbacksHandler(c *echo.Context) error {
	var req listRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	onlyApproved := len(req.StatusFilter) == 0
	results, err := s.store.AggregatedFeedbacks.List(c.Request().Context(), req.filter(), onlyApproved, req.order(), req.TopK)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"feedbacks": results})
}

// getRawFeedbacksHandler handles get_raw_feedbacks.
func (s *Server) getRawFeedbacksHandler(c *echo.Context) error {
	var req listRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	results, err := s.store.RawFeedbacks.List(c.Request().Context(), req.filter(), req.order(), req.TopK)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"raw_feedbacks": results})
}

// addRawFeedbackHandler handles add_raw_feedback: a direct insert bypassing
// the extractor gate, e.g. for feedback sourced from an external review
// workflow (spec.md §6). indexed_content follows the same resolution the
// Feedback Extractor uses: when_condition if present, else feedback_content.
func (s *Server) addRawFeedbackHandler(c *echo.Context) error {
	var req addRawFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if req.AgentVersion == "" || req.FeedbackName == "" || req.FeedbackContent == "" {
		return writeError(c, store.NewValidationError("agent_version/feedback_name/feedback_content", "required"))
	}
	ctx := c.Request().Context()

	indexed := req.FeedbackContent
	if req.WhenCondition != nil && *req.WhenCondition != "" {
		indexed = *req.WhenCondition
	}
	embedding, err := s.adapter.Embed(ctx, indexed)
	if err != nil {
		return writeError(c, err)
	}

	feedback := store.RawFeedback{
		RawFeedbackID:   uuid.NewString(),
		UserID:          req.UserID,
		AgentVersion:    req.AgentVersion,
		RequestID:       req.RequestID,
		Source:          req.Source,
		FeedbackName:    req.FeedbackName,
		FeedbackContent: req.FeedbackContent,
		DoAction:        req.DoAction,
		DoNotAction:     req.DoNotAction,
		WhenCondition:   req.WhenCondition,
		IndexedContent:  indexed,
		Status:          store.StatusCurrent,
		Embedding:       embedding,
		CreatedAt:       nowUnix(),
	}
	if err := s.store.RawFeedbacks.Insert(ctx, feedback); err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"raw_feedback_id": feedback.RawFeedbackID})
}

// addFeedbackHandler handles add_feedbacks: a direct insert of an already
// consolidated rule, bypassing the Feedback Aggregator's clustering.
func (s *Server) addFeedbackHandler(c *echo.Context) error {
	var req addFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if req.AgentVersion == "" || req.FeedbackName == "" || req.FeedbackContent == "" {
		return writeError(c, store.NewValidationError("agent_version/feedback_name/feedback_content", "required"))
	}
	ctx := c.Request().Context()

	embedding, err := s.adapter.Embed(ctx, req.FeedbackContent)
	if err != nil {
		return writeError(c, err)
	}

	feedback := store.AggregatedFeedback{
		FeedbackID:      uuid.NewString(),
		AgentVersion:    req.AgentVersion,
		FeedbackName:    req.FeedbackName,
		FeedbackContent: req.FeedbackContent,
		DoAction:        req.DoAction,
		DoNotAction:     req.DoNotAction,
		WhenCondition:   req.WhenCondition,
		FeedbackStatus:  store.FeedbackStatusApproved,
		Status:          store.StatusCurrent,
		Embedding:       embedding,
		CreatedAt:       nowUnix(),
	}
	if err := s.store.AggregatedFeedbacks.Insert(ctx, feedback); err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"feedback_id": feedback.FeedbackID})
}

// deleteFeedbackHandler handles delete_feedback.
func (s *Server) deleteFeedbackHandler(c *echo.Context) error {
	var req deleteFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if err := s.store.AggregatedFeedbacks.Delete(c.Request().Context(), req.FeedbackID); err != nil {
		return writeError(c, err)
	}
	return ok(c, nil)
}

// deleteRawFeedbackHandler handles delete_raw_feedback.
func (s *Server) deleteRawFeedbackHandler(c *echo.Context) error {
	var req deleteRawFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, store.NewValidationError("body", err.Error()))
	}
	if err := s.store.RawFeedbacks.Delete(c.Request().Context(), req.RawFeedbackID); err != nil {
		return writeError(c, err)
	}
	return ok(c, nil)
}
