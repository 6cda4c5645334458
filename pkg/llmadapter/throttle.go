package llmadapter

import (
	"context"
	"encoding/json"
)

// ThrottledAdapter bounds the number of in-flight calls to an Adapter across
// every tenant and extractor (spec.md §5 "global LLM concurrency cap").
// Unlike the per-tenant worker pool in pkg/coordinator, the cap here is
// process-wide: one semaphore shared by every Adapter call regardless of
// which org's task acquired it.
type ThrottledAdapter struct {
	inner Adapter
	sem   chan struct{}
}

// NewThrottledAdapter wraps inner so that at most limit calls run
// concurrently. A non-positive limit disables throttling.
func NewThrottledAdapter(inner Adapter, limit int) *ThrottledAdapter {
	if limit <= 0 {
		return &ThrottledAdapter{inner: inner}
	}
	return &ThrottledAdapter{inner: inner, sem: make(chan struct{}, limit)}
}

func (a *ThrottledAdapter) acquire(ctx context.Context) error {
	if a.sem == nil {
		return nil
	}
	select {
	case a.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *ThrottledAdapter) release() {
	if a.sem != nil {
		<-a.sem
	}
}

func (a *ThrottledAdapter) StructuredGenerate(ctx context.Context, schema json.RawMessage, prompt string) (json.RawMessage, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.inner.StructuredGenerate(ctx, schema, prompt)
}

func (a *ThrottledAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.inner.Embed(ctx, text)
}
