package api

import (
	"context"

	"github.com/beaconlabs/pulse/pkg/store"
)

// buildSearchParams resolves a searchRequest into store.SearchParams,
// embedding the query text when the requested mode needs a vector (spec.md
// §4.A: vector and hybrid modes score on the embedding, fts scores on
// query text alone).
func (s *Server) buildSearchParams(ctx context.Context, req searchRequest) (store.SearchParams, error) {
	mode := store.SearchMode(req.Mode)
	if mode == "" {
		mode = store.SearchModeHybrid
	}
	k := req.TopK
	if k <= 0 {
		k = 10
	}
	rrf := req.RRFConstant
	if rrf <= 0 {
		rrf = store.DefaultRRFConstant
	}

	params := store.SearchParams{
		QueryText:    req.Query,
		K:            k,
		Threshold:    req.Threshold,
		Mode:         mode,
		RRFConstant:  rrf,
		AgentVersion: req.AgentVersion,
	}

	if mode != store.SearchModeFTS && req.Query != "" {
		embedding, err := s.adapter.Embed(ctx, req.Query)
		if err != nil {
			return store.SearchParams{}, err
		}
		params.QueryEmbedding = embedding
	}
	return params, nil
}
