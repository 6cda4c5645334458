// Package window implements the Window Assembler: it turns a tenant's
// append-only interaction log into ordered, filtered, typed windows for an
// extractor invocation. It never mutates state.
package window

import (
	"context"
	"fmt"

	"github.com/beaconlabs/pulse/pkg/store"
)

// Mode selects how a window is assembled (spec.md §4.C).
type Mode string

const (
	ModeIncremental Mode = "incremental"
	ModeRerun       Mode = "rerun"
	ModeManual      Mode = "manual"
)

// Scope identifies the unit of concurrency an extractor runs under.
type Scope struct {
	OrgID        string
	ExtractorID  string
	UserID       string // set for profile/feedback scopes keyed by user
	AgentVersion string // set for feedback scopes keyed by agent_version
}

// Overrides narrows the default window parameters for one invocation
// (spec.md §4.C Inputs).
type Overrides struct {
	WindowSize int
	Stride     int
	Sources    []string
	Since      *float64
	Until      *float64
}

// Window is one assembled input slice: an ordered run of Interactions plus
// the status new writes should carry.
type Window struct {
	Interactions []store.Interaction
	WriteStatus  store.Status
	OutputsChunk int // 1-based chunk index within a rerun's total output, 0 otherwise
	TotalChunks  int
}

// Assembler builds windows over a Store's interaction log.
type Assembler struct {
	store *store.Store
}

// New builds an Assembler over store.
func New(s *store.Store) *Assembler {
	return &Assembler{store: s}
}

const (
	defaultWindowSize = 10
	defaultStride     = 5
	// rerunChunkSize bounds memory use when a rerun spans a tenant's entire
	// history (spec.md §4.C "processed in chunks of window_size").
	rerunChunkSize = 200
)

// Assemble produces the window(s) for one extractor invocation. Incremental
// and manual modes return at most one Window (none when there is nothing to
// emit); rerun returns one Window per chunk, each carrying status=pending.
func (a *Assembler) Assemble(ctx context.Context, scope Scope, mode Mode, ov Overrides) ([]Window, error) {
	windowSize := ov.WindowSize
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	stride := ov.Stride
	if stride <= 0 {
		stride = defaultStride
	}

	switch mode {
	case ModeManual:
		return a.assembleManual(ctx, scope, windowSize, ov)
	case ModeRerun:
		return a.assembleRerun(ctx, scope, windowSize, ov)
	case ModeIncremental:
		return a.assembleIncremental(ctx, scope, windowSize, stride, ov)
	default:
		return nil, fmt.Errorf("window: unknown mode %q", mode)
	}
}

// fetchAll loads the full filtered interaction log for the scope, ordered
// ascending by interaction_id (spec.md §4.C "Ordering").
func (a *Assembler) fetchAll(ctx context.Context, scope Scope, ov Overrides) ([]store.Interaction, error) {
	f := store.ListFilter{
		UserID:        scope.UserID,
		AgentVersion:  scope.AgentVersion,
		CreatedAfter:  ov.Since,
		CreatedBefore: ov.Until,
	}
	var all []store.Interaction
	var err error
	switch {
	case scope.UserID != "":
		all, err = a.store.Interactions.ListByUser(ctx, scope.UserID, f, store.OrderAsc, 0)
	case scope.AgentVersion != "":
		all, err = a.store.Interactions.ListByAgentVersion(ctx, scope.AgentVersion, f, store.OrderAsc, 0)
	default:
		return nil, fmt.Errorf("window: scope must set UserID or AgentVersion")
	}
	if err != nil {
		return nil, fmt.Errorf("window: fetch interactions: %w", err)
	}
	return filterBySources(all, ov.Sources), nil
}

func filterBySources(in []store.Interaction, sources []string) []store.Interaction {
	if len(sources) == 0 {
		return in // spec.md §4.C: empty sources means "all sources"
	}
	allowed := make(map[string]bool, len(sources))
	for _, s := range sources {
		allowed[s] = true
	}
	out := in[:0:0]
	for _, i := range in {
		if allowed[i.Source] {
			out = append(out, i)
		}
	}
	return out
}

// assembleIncremental yields the newest contiguous run whose length meets
// windowSize, gated by a per-scope cursor (store.WindowCursorRepository) so a
// new window is only emitted once at least stride new interactions have
// accumulated since the last emission for scope — the window_size - stride
// overlap cadence spec.md §4.C names.
func (a *Assembler) assembleIncremental(ctx context.Context, scope Scope, windowSize, stride int, ov Overrides) ([]Window, error) {
	all, err := a.fetchAll(ctx, scope, ov)
	if err != nil {
		return nil, err
	}
	if len(all) < windowSize {
		return nil, nil // spec.md §4.C edge case: fewer than window_size → emit nothing
	}
	shouldEmit, err := a.store.WindowCursors.ShouldEmit(ctx, scopeKey(scope), len(all), stride)
	if err != nil {
		return nil, fmt.Errorf("window: check stride cadence: %w", err)
	}
	if !shouldEmit {
		return nil, nil // fewer than stride new interactions since the last window
	}
	newest := all[len(all)-windowSize:]
	return []Window{{Interactions: newest, WriteStatus: store.StatusCurrent}}, nil
}

// scopeKey derives the window-cursor key for scope. Distinct from the
// Pipeline Coordinator's own lock-scope string (pkg/coordinator's
// profileScope/feedbackScope) but built from the same identifying fields, so
// it stays unique per extractor+user or feedback-config+agent_version pair.
func scopeKey(scope Scope) string {
	return fmt.Sprintf("%s:%s:%s", scope.ExtractorID, scope.UserID, scope.AgentVersion)
}

// assembleRerun ignores stride and yields ALL matching interactions,
// chunked, each chunk writing status=pending (spec.md §4.C).
func (a *Assembler) assembleRerun(ctx context.Context, scope Scope, windowSize int, ov Overrides) ([]Window, error) {
	all, err := a.fetchAll(ctx, scope, ov)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return chunkRerun(all, windowSize), nil
}

// chunkRerun splits all into status=pending chunks of at most chunkSize
// interactions (spec.md §4.C "processed in chunks of window_size"). Factored
// out of assembleRerun so the chunking math is testable without a store.
func chunkRerun(all []store.Interaction, chunkSize int) []Window {
	if len(all) == 0 {
		return nil
	}
	if chunkSize <= 0 || chunkSize > rerunChunkSize {
		chunkSize = rerunChunkSize
	}
	var windows []Window
	total := (len(all) + chunkSize - 1) / chunkSize
	for i := 0; i < len(all); i += chunkSize {
		end := i + chunkSize
		if end > len(all) {
			end = len(all)
		}
		windows = append(windows, Window{
			Interactions: all[i:end],
			WriteStatus:  store.StatusPending,
			OutputsChunk: len(windows) + 1,
			TotalChunks:  total,
		})
	}
	return windows
}

// assembleManual yields a single window of the most recent windowSize
// interactions, writing status=current directly (spec.md §4.C).
func (a *Assembler) assembleManual(ctx context.Context, scope Scope, windowSize int, ov Overrides) ([]Window, error) {
	all, err := a.fetchAll(ctx, scope, ov)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	start := len(all) - windowSize
	if start < 0 {
		start = 0 // short window is still emitted in manual mode
	}
	return []Window{{Interactions: all[start:], WriteStatus: store.StatusCurrent}}, nil
}
