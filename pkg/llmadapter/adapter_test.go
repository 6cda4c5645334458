package llmadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAdapter_StructuredGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/structured_generate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": {"action": "add", "content": "likes blue"}}`))
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(Config{BaseURL: server.URL, GenerationModel: "test-model"})
	obj, err := adapter.StructuredGenerate(context.Background(), json.RawMessage(`{}`), "extract preferences")
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(obj, &decoded))
	assert.Equal(t, "add", decoded["action"])
}

func TestHTTPAdapter_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding": [0.1, 0.2, 0.3]}`))
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(Config{BaseURL: server.URL, EmbeddingModel: "test-embed"})
	vec, err := adapter.Embed(context.Background(), "likes blue shirts")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestHTTPAdapter_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(Config{BaseURL: server.URL})
	_, err := adapter.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTTPAdapter_ClientErrorIsNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(Config{BaseURL: server.URL})
	_, err := adapter.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}
