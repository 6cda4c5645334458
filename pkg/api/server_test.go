package api

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/beaconlabs/pulse/pkg/aggregator"
	"github.com/beaconlabs/pulse/pkg/coordinator"
	"github.com/beaconlabs/pulse/pkg/database"
	"github.com/beaconlabs/pulse/pkg/extractor/feedback"
	"github.com/beaconlabs/pulse/pkg/extractor/profile"
	"github.com/beaconlabs/pulse/pkg/extractor/success"
	"github.com/beaconlabs/pulse/pkg/store"
	"github.com/beaconlabs/pulse/pkg/window"
)

// fakeAdapter is a deterministic stand-in for llmadapter.Adapter: every
// embed returns a fixed 512-dimensional vector matching the migrations'
// vector(512) columns, and structured_generate always declines to extract,
// keeping these tests focused on the HTTP surface rather than the
// extractors themselves.
type fakeAdapter struct{}

func (fakeAdapter) StructuredGenerate(ctx context.Context, schema json.RawMessage, prompt string) (json.RawMessage, error) {
	return json.Marshal(map[string]bool{"should_extract": false})
}

func (fakeAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 512)
	v[0] = 1
	return v, nil
}

// newTestServer starts a throwaway Postgres container, wires a full Server
// over it with a fake LLM adapter, and registers an api key for "org-test".
func newTestServer(t *testing.T) (*Server, string) {
	ctx := t.Context()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))

	client := database.NewClientFromDB(db)
	require.NoError(t, database.RunMigrationsForTest(ctx, db, "test"))
	t.Cleanup(func() { _ = client.Close() })

	s := store.NewFromDB(db)
	const apiKey = "test-api-key"
	require.NoError(t, s.ApiKeys.Create(store.WithOrgID(ctx, "org-test"), apiKey, "org-test"))

	adapter := fakeAdapter{}
	assembler := window.New(s)
	coord := coordinator.New(s, 2)
	pipeline := coordinator.NewPipeline(s, coord, assembler,
		profile.New(s, adapter), feedback.New(s, adapter), aggregator.New(s, adapter), success.New(s, adapter),
		20, 10)

	return NewServer(nil, client, s, coord, pipeline, adapter), apiKey
}

func doRequest(t *testing.T, srv *Server, apiKey, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(apiKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestPublishInteraction_RequiresApiKey(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := doRequest(t, srv, "", http.MethodPost, "/api/v1/publish_interaction", map[string]any{
		"user_id": "u1", "interactions": []map[string]any{{"role": "User", "content": "hi"}}, "source": "chat",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "AUTH", body["code"])
}

func TestPublishInteraction_RejectsUnknownApiKey(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := doRequest(t, srv, "bogus-key", http.MethodPost, "/api/v1/publish_interaction", map[string]any{
		"user_id": "u1", "interactions": []map[string]any{{"role": "User", "content": "hi"}}, "source": "chat",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH", body["code"])
}

func TestPublishInteraction_WritesAndReturnsRequestID(t *testing.T) {
	srv, apiKey := newTestServer(t)
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/publish_interaction", map[string]any{
		"user_id": "u1",
		"interactions": []map[string]any{
			{"role": "User", "content": "hello there"},
			{"role": "Agent", "content": "hi, how can I help?"},
		},
		"source": "chat",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, float64(2), body["interactions_written"])
}

func TestPublishInteraction_ValidationError(t *testing.T) {
	srv, apiKey := newTestServer(t)
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/publish_interaction", map[string]any{
		"user_id": "", "interactions": []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", body["code"])
}

func TestGetConfig_ReturnsDefaultWhenUnset(t *testing.T) {
	srv, apiKey := newTestServer(t)
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/get_config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.NotNil(t, body["config"])
}

func TestDeleteInteraction_NotFound(t *testing.T) {
	srv, apiKey := newTestServer(t)
	rec, body := doRequest(t, srv, apiKey, http.MethodPost, "/api/v1/delete_interaction", map[string]any{
		"interaction_id": 999999,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestHealthHandler_NoApiKeyRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, _ := doRequest(t, srv, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
