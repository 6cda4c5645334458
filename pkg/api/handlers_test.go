package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackLifecycle_AddListDelete(t *testing.T) {
	srv, apiKey := newTestServer(t)

	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/add_feedbacks", map[string]any{
		"agent_version":    "v1",
		"feedback_name":    "tone",
		"feedback_content": "be concise",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	feedbackID, _ := body["feedback_id"].(string)
	require.NotEmpty(t, feedbackID)

	rec, body = doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/get_feedbacks", map[string]any{
		"agent_version": "v1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	feedbacks, _ := body["feedbacks"].([]any)
	assert.Len(t, feedbacks, 1)

	rec, body = doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/delete_feedback", map[string]any{
		"feedback_id": feedbackID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestRawFeedbackLifecycle_AddListDelete(t *testing.T) {
	srv, apiKey := newTestServer(t)

	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/add_raw_feedback", map[string]any{
		"agent_version":    "v1",
		"request_id":       "req-1",
		"feedback_name":    "tone",
		"feedback_content": "was too verbose",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rawID, _ := body["raw_feedback_id"].(string)
	require.NotEmpty(t, rawID)

	rec, body = doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/get_raw_feedbacks", map[string]any{
		"agent_version": "v1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	raw, _ := body["raw_feedbacks"].([]any)
	assert.Len(t, raw, 1)

	rec, body = doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/delete_raw_feedback", map[string]any{
		"raw_feedback_id": rawID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestAddFeedback_ValidationError(t *testing.T) {
	srv, apiKey := newTestServer(t)
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/add_feedbacks", map[string]any{
		"agent_version": "v1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", body["code"])
}

func TestSearchFeedbacks_EmptyResult(t *testing.T) {
	srv, apiKey := newTestServer(t)
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/search_feedbacks", map[string]any{
		"agent_version": "v1",
		"query":         "tone guidance",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	feedbacks, _ := body["feedbacks"].([]any)
	assert.Empty(t, feedbacks)
}

func TestSetConfigThenGetConfig_RoundTrips(t *testing.T) {
	srv, apiKey := newTestServer(t)

	cfg := map[string]any{
		"storage_config": map[string]any{"type": "local"},
		"profile_extractor_configs": []map[string]any{
			{
				"extractor_name":                     "preferences",
				"profile_content_definition_prompt": "extract stated preferences",
				"manual_trigger":                     true,
				"profile_ttl":                        "INFINITY",
			},
		},
		"api_key_config": map[string]any{"provider_env": "OPENAI_API_KEY"},
		"llm_config": map[string]any{
			"should_run_model_name": "gpt-4o-mini",
			"generation_model_name": "gpt-4o",
			"embedding_model_name":  "text-embedding-3-small",
		},
	}
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/set_config", cfg)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])

	rec, body = doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/get_config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := body["config"].(map[string]any)
	extractors, _ := got["profile_extractor_configs"].([]any)
	require.Len(t, extractors, 1)
	first := extractors[0].(map[string]any)
	assert.Equal(t, "preferences", first["extractor_name"])
}

func TestManualProfileGeneration_UnknownExtractor(t *testing.T) {
	srv, apiKey := newTestServer(t)
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/manual_profile_generation", map[string]any{
		"extractor_name": "does-not-exist",
		"user_id":        "u1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", body["code"])
}

func TestManualProfileGeneration_SchedulesWithoutWaiting(t *testing.T) {
	srv, apiKey := newTestServer(t)

	cfg := map[string]any{
		"storage_config": map[string]any{"type": "local"},
		"profile_extractor_configs": []map[string]any{
			{
				"extractor_name":                     "preferences",
				"profile_content_definition_prompt": "extract stated preferences",
				"manual_trigger":                     true,
				"profile_ttl":                        "INFINITY",
			},
		},
		"api_key_config": map[string]any{"provider_env": "OPENAI_API_KEY"},
		"llm_config": map[string]any{
			"should_run_model_name": "gpt-4o-mini",
			"generation_model_name": "gpt-4o",
			"embedding_model_name":  "text-embedding-3-small",
		},
	}
	rec, _ := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/set_config", cfg)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/manual_profile_generation", map[string]any{
		"extractor_name": "preferences",
		"user_id":        "u1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestGetAgentSuccessEvaluationResults_EmptyResult(t *testing.T) {
	srv, apiKey := newTestServer(t)
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/get_agent_success_evaluation_results", map[string]any{
		"agent_version": "v1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	results, _ := body["results"].([]any)
	assert.Empty(t, results)
}

func TestSynthesizeSkill_NotFoundWithoutApprovedFeedback(t *testing.T) {
	srv, apiKey := newTestServer(t)
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/synthesize_skill", map[string]any{
		"agent_version": "v1",
		"feedback_name": "tone",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestSynthesizeSkill_BuildsSkillFromApprovedFeedback(t *testing.T) {
	srv, apiKey := newTestServer(t)

	// add_feedbacks writes its row with FeedbackStatus: approved directly.
	rec, _ := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/add_feedbacks", map[string]any{
		"agent_version":    "v1",
		"feedback_name":    "tone",
		"feedback_content": "be concise",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/synthesize_skill", map[string]any{
		"agent_version": "v1",
		"feedback_name": "tone",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	skill, ok := body["skill"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v1", skill["AgentVersion"])
	assert.Equal(t, "tone", skill["FeedbackName"])
	assert.Equal(t, "draft", skill["SkillStatus"])
}
