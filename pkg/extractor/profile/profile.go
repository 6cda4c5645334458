// Package profile implements the Profile Extractor (spec.md §4.D): turns a
// window of interactions plus a user's existing profiles into an add/replace/
// keep/drop delta, deduped against existing profiles by embedding similarity.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/beaconlabs/pulse/pkg/llmadapter"
	"github.com/beaconlabs/pulse/pkg/store"
	"github.com/beaconlabs/pulse/pkg/window"
)

// Action is one LLM-proposed transition for a profile candidate.
type Action string

const (
	ActionAdd     Action = "add"
	ActionReplace Action = "replace"
	ActionKeep    Action = "keep"
	ActionDrop    Action = "drop"
)

// DedupeThreshold gates whether a fresh "add" candidate instead supersedes an
// existing current profile (spec.md §4.D step 4).
const DedupeThreshold = 0.85

// ShareThreshold gates multi-extractor profile reuse (spec.md §4.D
// "Multi-extractor sharing").
const ShareThreshold = 0.9

// Config parameterizes one extractor invocation (spec.md §4.D Inputs).
type Config struct {
	ExtractorName            string
	ContentDefinitionPrompt  string
	ContextPrompt            string
	MetadataDefinitionPrompt string
	GatePrompt               string
	ProfileTTL               *time.Duration // nil means INFINITY
}

// item is one entry of the extractor's structured output.
type item struct {
	Action         Action         `json:"action"`
	ProfileID      string         `json:"profile_id,omitempty"`
	Content        string         `json:"content"`
	CustomFeatures map[string]any `json:"custom_features,omitempty"`
}

type extractResponse struct {
	Items []item `json:"items"`
}

// ProfileDelta is the Profile Extractor's public contract result.
type ProfileDelta struct {
	Add    []store.Profile
	Remove []string
	Keep   []string
}

// Extractor runs the Profile Extractor algorithm against a Store and LLM
// Adapter.
type Extractor struct {
	store   *store.Store
	adapter llmadapter.Adapter
}

// New builds an Extractor.
func New(s *store.Store, a llmadapter.Adapter) *Extractor {
	return &Extractor{store: s, adapter: a}
}

// Run executes the gate → extract → embed → dedupe → apply pipeline for one
// window (spec.md §4.D Algorithm). writeStatus is status=current for
// incremental/manual windows, status=pending for rerun windows (caller
// supplies it from window.Window.WriteStatus).
func (e *Extractor) Run(ctx context.Context, userID string, w window.Window, cfg Config, existing []store.Profile) (ProfileDelta, error) {
	if cfg.GatePrompt != "" {
		shouldExtract, err := e.gate(ctx, cfg, w)
		if err != nil {
			return ProfileDelta{}, fmt.Errorf("profile: gate: %w", err)
		}
		if !shouldExtract {
			return ProfileDelta{}, nil
		}
	}

	items, err := e.extract(ctx, cfg, w, existing)
	if err != nil {
		return ProfileDelta{}, fmt.Errorf("profile: extract: %w", err)
	}

	delta := ProfileDelta{}
	existingByID := make(map[string]store.Profile, len(existing))
	for _, p := range existing {
		existingByID[p.ProfileID] = p
	}

	for _, it := range items {
		switch it.Action {
		case ActionKeep:
			if it.ProfileID != "" {
				delta.Keep = append(delta.Keep, it.ProfileID)
			}
		case ActionDrop:
			if it.ProfileID != "" {
				delta.Remove = append(delta.Remove, it.ProfileID)
			}
		case ActionAdd, ActionReplace:
			embedding, err := e.adapter.Embed(ctx, it.Content)
			if err != nil {
				return ProfileDelta{}, fmt.Errorf("profile: embed: %w", err)
			}
			generatedFrom := w.Interactions[len(w.Interactions)-1].RequestID
			draft := store.Profile{
				ProfileID:              uuid.NewString(),
				UserID:                 userID,
				Content:                it.Content,
				Source:                 w.Interactions[len(w.Interactions)-1].Source,
				ExtractorNames:         []string{cfg.ExtractorName},
				CustomFeatures:         it.CustomFeatures,
				GeneratedFromRequestID: &generatedFrom,
				LastModifiedAt:         nowUnix(),
				ExpirationAt:           expirationAt(cfg.ProfileTTL),
				Status:                 w.WriteStatus,
				Embedding:              embedding,
			}

			if it.Action == ActionReplace && it.ProfileID != "" {
				delta.Remove = append(delta.Remove, it.ProfileID)
				delta.Add = append(delta.Add, draft)
				continue
			}

			// "add": dedupe against the user's current profiles (from any
			// extractor) before deciding whether this really is a new profile (step 4)
			// or reuse/supersession of an existing one (step 4 + "Multi-
			// extractor sharing").
			supersede, share, err := e.dedupe(ctx, userID, cfg.ExtractorName, draft)
			if err != nil {
				return ProfileDelta{}, fmt.Errorf("profile: dedupe: %w", err)
			}
			switch {
			case share != nil:
				if !containsStr(share.ExtractorNames, cfg.ExtractorName) {
					names := append(append([]string{}, share.ExtractorNames...), cfg.ExtractorName)
					if err := e.store.Profiles.UpdateExtractorNames(ctx, share.ProfileID, names); err != nil {
						return ProfileDelta{}, fmt.Errorf("profile: share extractor_names: %w", err)
					}
				}
				delta.Keep = append(delta.Keep, share.ProfileID)
			case supersede != nil:
				delta.Remove = append(delta.Remove, supersede.ProfileID)
				delta.Add = append(delta.Add, draft)
			default:
				delta.Add = append(delta.Add, draft)
			}
		}
	}

	if err := e.apply(ctx, delta); err != nil {
		return ProfileDelta{}, fmt.Errorf("profile: apply: %w", err)
	}
	return delta, nil
}

func (e *Extractor) gate(ctx context.Context, cfg Config, w window.Window) (bool, error) {
	obj, err := e.adapter.StructuredGenerate(ctx, gateSchema, fmt.Sprintf("%s\n\n%s", cfg.GatePrompt, renderWindow(w)))
	if err != nil {
		return false, err
	}
	var out struct {
		ShouldExtract bool `json:"should_extract"`
	}
	if err := json.Unmarshal(obj, &out); err != nil {
		return false, fmt.Errorf("decode gate response: %w", err)
	}
	return out.ShouldExtract, nil
}

func (e *Extractor) extract(ctx context.Context, cfg Config, w window.Window, existing []store.Profile) ([]item, error) {
	prompt := fmt.Sprintf("%s\n\n%s\n\n%s\n\nExisting profiles:\n%s",
		cfg.ContentDefinitionPrompt, cfg.ContextPrompt, renderWindow(w), renderExisting(existing))

	obj, err := llmadapter.WithRetryValue(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return e.adapter.StructuredGenerate(ctx, extractSchema, prompt)
	})
	if err != nil {
		return nil, err
	}
	var out extractResponse
	if err := json.Unmarshal(obj, &out); err != nil {
		// first schema violation per spec.md §4.D "Failure": tightened schema
		// reminder retry, then skip the window with no partial writes.
		retryPrompt := prompt + "\n\nYour previous response did not match the required JSON schema. Respond with ONLY a JSON object of shape {\"items\": [...]}."
		obj2, err2 := e.adapter.StructuredGenerate(ctx, extractSchema, retryPrompt)
		if err2 != nil {
			return nil, fmt.Errorf("schema retry: %w", err2)
		}
		if err := json.Unmarshal(obj2, &out); err != nil {
			return nil, fmt.Errorf("schema violation persisted after retry: %w", err)
		}
	}
	return out.Items, nil
}

// dedupe runs two similarity checks: a vector-similarity search (k=3,
// threshold 0.85) over the user's current profiles for supersession, and a
// 0.9 cosine check on those hits for multi-extractor reuse. The search uses
// the embedding only; the full-text half of hybrid search is not used.
func (e *Extractor) dedupe(ctx context.Context, userID, extractorName string, draft store.Profile) (supersede, share *store.Profile, err error) {
	hits, err := e.store.SearchProfiles(ctx, store.SearchParams{
		QueryEmbedding: draft.Embedding,
		K:              3,
		Threshold:      DedupeThreshold,
		Mode:           store.SearchModeVector,
		UserID:         userID,
	})
	if err != nil {
		return nil, nil, err
	}
	for i := range hits {
		hit := hits[i]
		sim := cosineSimilarity(hit.Embedding, draft.Embedding)
		if sim >= ShareThreshold && containsStr(hit.ExtractorNames, extractorName) {
			return nil, &hit, nil
		}
		if sim >= ShareThreshold {
			return nil, &hit, nil
		}
		if sim >= DedupeThreshold {
			supersede = &hit
		}
	}
	return supersede, nil, nil
}

// apply performs the batched transition of spec.md §4.D step 5: remove
// (and the superseded side of replace) go current→archived, add (and the new
// side of replace) insert at w.WriteStatus.
func (e *Extractor) apply(ctx context.Context, delta ProfileDelta) error {
	for _, id := range delta.Remove {
		if err := e.store.Profiles.UpdateStatus(ctx, id, store.StatusArchived); err != nil {
			return fmt.Errorf("archive profile %s: %w", id, err)
		}
	}
	for _, p := range delta.Add {
		if err := e.store.Profiles.Insert(ctx, p); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
	}
	return nil
}

func renderWindow(w window.Window) string {
	var b []byte
	for _, in := range w.Interactions {
		b = append(b, []byte(fmt.Sprintf("[%s] %s\n", in.Role, in.Content))...)
	}
	return string(b)
}

func renderExisting(profiles []store.Profile) string {
	var b []byte
	for _, p := range profiles {
		b = append(b, []byte(fmt.Sprintf("- (%s) %s\n", p.ProfileID, p.Content))...)
	}
	return string(b)
}

func containsStr(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func nowUnix() float64 { return float64(timeNow().UnixNano()) / 1e9 }

// timeNow is a package-level indirection so tests can pin a clock without
// the extractor taking a full clock dependency for one call site.
var timeNow = time.Now

func expirationAt(ttl *time.Duration) *float64 {
	if ttl == nil {
		return nil // INFINITY → +∞ per spec.md §4.D "Expiration"
	}
	v := nowUnix() + ttl.Seconds()
	return &v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var gateSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"should_extract": {"type": "boolean"}},
	"required": ["should_extract"]
}`)

var extractSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"action": {"type": "string", "enum": ["add", "replace", "keep", "drop"]},
					"profile_id": {"type": "string"},
					"content": {"type": "string"},
					"custom_features": {"type": "object"}
				},
				"required": ["action", "content"]
			}
		}
	},
	"required": ["items"]
}`)
