package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// SearchMode selects which half of the hybrid search contributes to score.
type SearchMode string

const (
	SearchModeVector SearchMode = "vector"
	SearchModeFTS    SearchMode = "fts"
	SearchModeHybrid SearchMode = "hybrid"
)

// DefaultRRFConstant is the Reciprocal Rank Fusion constant K used when the
// caller doesn't override it (spec.md §4.A).
const DefaultRRFConstant = 60

// candidateLimitMultiplier is the "top-3k" factor spec.md §4.A asks for: each
// half of the search over-fetches 3x the final k before fusion, so a
// borderline row that ranks well on only one signal still has a chance to
// surface after RRF.
const candidateLimitMultiplier = 3

// ScoredID is one fused hybrid-search result: a primary key plus its
// combined score, ready to be hydrated into the caller's entity type.
type ScoredID struct {
	PK        string
	Score     float64
	CreatedAt float64
}

// hybridSearchTable names the table and columns a hybridSearch call targets.
// Every searchable entity (Interaction, Profile, RawFeedback,
// AggregatedFeedback) shares this shape: a text primary key, a pgvector
// column, a generated tsvector column, and a created_at sort tie-break.
type hybridSearchTable struct {
	Name         string
	PKColumn     string
	EmbeddingCol string
	TSVColumn    string
	CreatedAtCol string
	// StatusPredicate restricts candidates to "status = current" (or
	// equivalent); spec.md §4.A step 1 requires this on every mode.
	StatusPredicate string
}

// hybridSearchParams is the full contract from spec.md §4.A: query text,
// query embedding, threshold, k, mode, and the RRF constant.
type hybridSearchParams struct {
	OrgID         string
	QueryText     string
	QueryEmbedding []float32
	K             int
	Threshold     float64
	Mode          SearchMode
	RRFConstant   int
	// ExtraWhere/ExtraArgs append caller filters (user_id, agent_version,
	// ...) as a raw SQL fragment using $N placeholders starting at $4, after
	// the fixed query/org_id/limit positional args; see callers in search.go.
	ExtraWhere string
	ExtraArgs  []any
}

// hybridSearch implements the spec's four-step algorithm: top-3k vector,
// top-3k full-text, full-outer-join by primary key in Go, fuse by mode, sort
// by score desc with the (created_at desc, pk desc) tie-break.
func hybridSearch(ctx context.Context, db *sql.DB, table hybridSearchTable, p hybridSearchParams) ([]ScoredID, error) {
	if p.RRFConstant <= 0 {
		p.RRFConstant = DefaultRRFConstant
	}
	candidateLimit := p.K * candidateLimitMultiplier
	if candidateLimit <= 0 {
		candidateLimit = candidateLimitMultiplier
	}

	type ranked struct {
		pk        string
		rank      int
		sim       float64
		createdAt float64
	}

	var vectorRanked []ranked
	if p.Mode != SearchModeFTS && len(p.QueryEmbedding) > 0 {
		query := fmt.Sprintf(
			`SELECT %s, 1 - (%s <=> $1) AS similarity, %s
			 FROM %s
			 WHERE org_id = $2 AND %s %s
			 ORDER BY %s <=> $1
			 LIMIT $3`,
			table.PKColumn, table.EmbeddingCol, table.CreatedAtCol, table.Name,
			table.StatusPredicate, p.ExtraWhere, table.EmbeddingCol,
		)
		args := append([]any{vectorArg(p.QueryEmbedding), p.OrgID, candidateLimit}, p.ExtraArgs...)
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("store: hybrid search vector half: %w", err)
		}
		rank := 0
		for rows.Next() {
			rank++
			var row ranked
			if err := rows.Scan(&row.pk, &row.sim, &row.createdAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: scan vector candidate: %w", err)
			}
			row.rank = rank
			if p.Threshold > 0 && row.sim < p.Threshold && p.Mode != SearchModeFTS {
				continue
			}
			vectorRanked = append(vectorRanked, row)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	var ftsRanked []ranked
	if p.Mode != SearchModeVector && p.QueryText != "" {
		query := fmt.Sprintf(
			`SELECT %s, ts_rank_cd(%s, websearch_to_tsquery('english', $1)) AS rank_score, %s
			 FROM %s
			 WHERE org_id = $2 AND %s %s AND %s @@ websearch_to_tsquery('english', $1)
			 ORDER BY rank_score DESC
			 LIMIT $3`,
			table.PKColumn, table.TSVColumn, table.CreatedAtCol, table.Name,
			table.StatusPredicate, p.ExtraWhere, table.TSVColumn,
		)
		args := append([]any{p.QueryText, p.OrgID, candidateLimit}, p.ExtraArgs...)
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("store: hybrid search fts half: %w", err)
		}
		rank := 0
		for rows.Next() {
			rank++
			var row ranked
			if err := rows.Scan(&row.pk, &row.sim, &row.createdAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: scan fts candidate: %w", err)
			}
			row.rank = rank
			ftsRanked = append(ftsRanked, row)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	// Full outer join by primary key, computed in Go per spec.md §4.A so the
	// fusion math and tie-break are plain, testable control flow.
	type fused struct {
		pk           string
		createdAt    float64
		vecRank      int
		vecSim       float64
		ftsRank      int
		ftsScore     float64
		hasVec       bool
		hasFTS       bool
	}
	byPK := make(map[string]*fused)
	order := []string{}
	for _, v := range vectorRanked {
		f, ok := byPK[v.pk]
		if !ok {
			f = &fused{pk: v.pk, createdAt: v.createdAt}
			byPK[v.pk] = f
			order = append(order, v.pk)
		}
		f.vecRank, f.vecSim, f.hasVec = v.rank, v.sim, true
	}
	for _, v := range ftsRanked {
		f, ok := byPK[v.pk]
		if !ok {
			f = &fused{pk: v.pk, createdAt: v.createdAt}
			byPK[v.pk] = f
			order = append(order, v.pk)
		}
		f.ftsRank, f.ftsScore, f.hasFTS = v.rank, v.sim, true
	}

	results := make([]ScoredID, 0, len(order))
	for _, pk := range order {
		f := byPK[pk]
		var score float64
		switch p.Mode {
		case SearchModeVector:
			score = f.vecSim
		case SearchModeFTS:
			score = f.ftsScore
		default: // hybrid
			if f.hasVec {
				score += 1.0 / float64(p.RRFConstant+f.vecRank)
			}
			if f.hasFTS {
				score += 1.0 / float64(p.RRFConstant+f.ftsRank)
			}
		}
		results = append(results, ScoredID{PK: pk, Score: score, CreatedAt: f.createdAt})
	}

	// Sort desc by score, tie-break newest created_at then larger PK.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].CreatedAt != results[j].CreatedAt {
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].PK > results[j].PK
	})

	if p.K > 0 && len(results) > p.K {
		results = results[:p.K]
	}
	return results, nil
}
