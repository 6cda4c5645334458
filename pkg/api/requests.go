package api

import "github.com/beaconlabs/pulse/pkg/store"

// interactionInput is one entry of publish_interaction's interaction list.
type interactionInput struct {
	Role                  string          `json:"role"`
	Content               string          `json:"content"`
	ShadowContent         *string         `json:"shadow_content,omitempty"`
	UserAction            string          `json:"user_action,omitempty"`
	UserActionDescription *string         `json:"user_action_description,omitempty"`
	InteractedImageURL    *string         `json:"interacted_image_url,omitempty"`
	ImageEncoding         *string         `json:"image_encoding,omitempty"`
	ToolsUsed             []store.ToolUse `json:"tools_used,omitempty"`
}

// publishInteractionRequest is the publish_interaction request body
// (spec.md §6).
type publishInteractionRequest struct {
	UserID          string             `json:"user_id"`
	Interactions    []interactionInput `json:"interactions"`
	Source          string             `json:"source"`
	AgentVersion    string             `json:"agent_version,omitempty"`
	RequestGroup    string             `json:"request_group,omitempty"`
	WaitForResponse bool               `json:"wait_for_response,omitempty"`
}

// searchRequest is the shared shape of search_interactions / search_profiles
// / search_feedbacks / search_raw_feedbacks.
type searchRequest struct {
	UserID       string  `json:"user_id,omitempty"`
	AgentVersion string  `json:"agent_version,omitempty"`
	Query        string  `json:"query,omitempty"`
	TopK         int     `json:"top_k,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	Mode         string  `json:"mode,omitempty"`
	RRFConstant  int     `json:"rrf_constant,omitempty"`
}

// listRequest is the shared shape of get_interactions / get_requests /
// get_profiles / get_all_profiles / get_feedbacks / get_raw_feedbacks.
type listRequest struct {
	UserID        string   `json:"user_id,omitempty"`
	AgentVersion  string   `json:"agent_version,omitempty"`
	Source        string   `json:"source,omitempty"`
	FeedbackName  string   `json:"feedback_name,omitempty"`
	RequestGroup  string   `json:"request_group,omitempty"`
	StatusFilter  []string `json:"status_filter,omitempty"`
	CreatedAfter  *float64 `json:"created_after,omitempty"`
	CreatedBefore *float64 `json:"created_before,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	Ascending     bool     `json:"ascending,omitempty"`
}

func (r listRequest) statuses() []store.Status {
	if len(r.StatusFilter) == 0 {
		return nil
	}
	out := make([]store.Status, len(r.StatusFilter))
	for i, s := range r.StatusFilter {
		out[i] = store.Status(s)
	}
	return out
}

func (r listRequest) filter() store.ListFilter {
	return store.ListFilter{
		UserID:        r.UserID,
		AgentVersion:  r.AgentVersion,
		Source:        r.Source,
		FeedbackName:  r.FeedbackName,
		RequestGroup:  r.RequestGroup,
		Statuses:      r.statuses(),
		CreatedAfter:  r.CreatedAfter,
		CreatedBefore: r.CreatedBefore,
	}
}

func (r listRequest) order() store.Order {
	if r.Ascending {
		return store.OrderAsc
	}
	return store.OrderDesc
}

// deleteInteractionRequest is delete_interaction's input.
type deleteInteractionRequest struct {
	InteractionID int64 `json:"interaction_id"`
}

// deleteRequestRequest is delete_request's input.
type deleteRequestRequest struct {
	RequestID string `json:"request_id"`
}

// deleteRequestGroupRequest is delete_request_group's input.
type deleteRequestGroupRequest struct {
	RequestGroup string `json:"request_group"`
}

// deleteProfileRequest is delete_profile's input: either a concrete
// profile_id or a search_query resolved to the top semantic match
// (spec.md §6 "user_id, profile_id or search_query").
type deleteProfileRequest struct {
	UserID      string `json:"user_id"`
	ProfileID   string `json:"profile_id,omitempty"`
	SearchQuery string `json:"search_query,omitempty"`
}

// profileChangeLogRequest is get_profile_change_log's input.
type profileChangeLogRequest struct {
	RequestID string `json:"request_id"`
}

// addRawFeedbackRequest is add_raw_feedback's input: a human- or
// pipeline-external observation inserted directly, bypassing extraction.
type addRawFeedbackRequest struct {
	UserID          *string `json:"user_id,omitempty"`
	AgentVersion    string  `json:"agent_version"`
	RequestID       string  `json:"request_id"`
	Source          *string `json:"source,omitempty"`
	FeedbackName    string  `json:"feedback_name"`
	FeedbackContent string  `json:"feedback_content"`
	DoAction        *string `json:"do_action,omitempty"`
	DoNotAction     *string `json:"do_not_action,omitempty"`
	WhenCondition   *string `json:"when_condition,omitempty"`
}

// addFeedbackRequest is add_feedbacks' input: a consolidated rule inserted
// directly, e.g. imported from an external review workflow.
type addFeedbackRequest struct {
	AgentVersion    string  `json:"agent_version"`
	FeedbackName    string  `json:"feedback_name"`
	FeedbackContent string  `json:"feedback_content"`
	DoAction        *string `json:"do_action,omitempty"`
	DoNotAction     *string `json:"do_not_action,omitempty"`
	WhenCondition   *string `json:"when_condition,omitempty"`
}

// deleteFeedbackRequest is delete_feedback's input.
type deleteFeedbackRequest struct {
	FeedbackID string `json:"feedback_id"`
}

// deleteRawFeedbackRequest is delete_raw_feedback's input.
type deleteRawFeedbackRequest struct {
	RawFeedbackID string `json:"raw_feedback_id"`
}

// profileGenerationRequest is rerun_profile_generation / manual_profile_
// generation's shared input.
type profileGenerationRequest struct {
	ExtractorName   string `json:"extractor_name"`
	UserID          string `json:"user_id"`
	WaitForResponse bool   `json:"wait_for_response,omitempty"`
}

// feedbackGenerationRequest is rerun_feedback_generation / manual_feedback_
// generation's shared input.
type feedbackGenerationRequest struct {
	FeedbackName    string `json:"feedback_name"`
	AgentVersion    string `json:"agent_version"`
	WaitForResponse bool   `json:"wait_for_response,omitempty"`
}

// runAggregationRequest is run_feedback_aggregation's input.
type runAggregationRequest struct {
	FeedbackName    string `json:"feedback_name"`
	AgentVersion    string `json:"agent_version"`
	WaitForResponse bool   `json:"wait_for_response,omitempty"`
}

// synthesizeSkillRequest is synthesize_skill's input.
type synthesizeSkillRequest struct {
	FeedbackName string `json:"feedback_name"`
	AgentVersion string `json:"agent_version"`
}

// successResultsRequest is get_agent_success_evaluation_results' input.
type successResultsRequest struct {
	AgentVersion   string `json:"agent_version,omitempty"`
	EvaluationName string `json:"evaluation_name,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}
