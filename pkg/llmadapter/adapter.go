package llmadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Adapter is the opaque LLM contract spec.md §1 requires: callers never see
// a concrete provider, only schema-guided generation and embedding.
type Adapter interface {
	// StructuredGenerate calls the model with prompt, constraining its
	// output to schema, and returns the raw JSON object on success.
	StructuredGenerate(ctx context.Context, schema json.RawMessage, prompt string) (json.RawMessage, error)
	// Embed returns a 512-dimensional embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures the concrete HTTP-backed Adapter.
type Config struct {
	BaseURL          string
	GenerationModel  string
	EmbeddingModel   string
	APIKey           string
	RequestTimeout   time.Duration
	PromptMaxTokens  int
}

// HTTPAdapter implements Adapter over a JSON HTTP API, matching the
// "opaque structured_generate / embed" framing of spec.md §1. The concrete
// provider behind BaseURL is explicitly out of scope; this client only knows
// the request/response envelope.
type HTTPAdapter struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPAdapter builds an HTTPAdapter from cfg, defaulting RequestTimeout to
// 60s and PromptMaxTokens to DefaultPromptMaxTokens when unset. Model names
// are used as cfg gives them; no default model name is applied.
func NewHTTPAdapter(cfg Config) *HTTPAdapter {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.PromptMaxTokens <= 0 {
		cfg.PromptMaxTokens = DefaultPromptMaxTokens
	}
	return &HTTPAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type structuredGenerateRequest struct {
	Model  string          `json:"model"`
	Schema json.RawMessage `json:"schema"`
	Prompt string          `json:"prompt"`
}

type structuredGenerateResponse struct {
	Object json.RawMessage `json:"object"`
	Error  string          `json:"error,omitempty"`
}

// StructuredGenerate truncates prompt to the configured token budget, then
// POSTs a schema + prompt envelope and returns the decoded object.
func (a *HTTPAdapter) StructuredGenerate(ctx context.Context, schema json.RawMessage, prompt string) (json.RawMessage, error) {
	prompt = TruncateToTokenBudget(prompt, a.cfg.PromptMaxTokens)

	body, err := json.Marshal(structuredGenerateRequest{
		Model:  a.cfg.GenerationModel,
		Schema: schema,
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("llmadapter: marshal structured_generate request: %w", err)
	}

	var out structuredGenerateResponse
	if err := a.postJSON(ctx, "/v1/structured_generate", body, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("llmadapter: structured_generate: %s", out.Error)
	}
	return out.Object, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed POSTs text and returns its 512-dimensional embedding vector.
func (a *HTTPAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: a.cfg.EmbeddingModel, Text: text})
	if err != nil {
		return nil, fmt.Errorf("llmadapter: marshal embed request: %w", err)
	}

	var out embedResponse
	if err := a.postJSON(ctx, "/v1/embed", body, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("llmadapter: embed: %s", out.Error)
	}
	return out.Embedding, nil
}

func (a *HTTPAdapter) postJSON(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llmadapter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("llmadapter: request %s: %w", path, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("llmadapter: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &TransientError{Err: fmt.Errorf("llmadapter: %s returned %d: %s", path, resp.StatusCode, respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llmadapter: %s returned %d: %s", path, resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("llmadapter: decode response: %w", err)
	}
	return nil
}
