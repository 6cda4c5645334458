package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// ProfileRepository persists Profile rows.
type ProfileRepository struct {
	db *sql.DB
}

// Insert writes one Profile (status defaults to whatever the caller sets —
// `current` for incremental/manual runs, `pending` for rerun, per spec.md
// §4.D step 5).
func (r *ProfileRepository) Insert(ctx context.Context, p Profile) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	featuresJSON, err := marshalOptionalJSON(p.CustomFeatures)
	if err != nil {
		return fmt.Errorf("store: marshal custom_features: %w", err)
	}
	var vec any
	if p.Embedding != nil {
		vec = pgvector.NewVector(p.Embedding)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO profiles (org_id, profile_id, user_id, content, source, extractor_names,
			custom_features, generated_from_request_id, last_modified_at, expiration_at, status, embedding)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		orgID, p.ProfileID, p.UserID, p.Content, p.Source, p.ExtractorNames,
		featuresJSON, p.GeneratedFromRequestID, p.LastModifiedAt, p.ExpirationAt, string(p.Status), vec,
	)
	if err != nil {
		return fmt.Errorf("store: insert profile: %w", err)
	}
	return nil
}

// UpdateStatus atomically transitions a Profile's status (e.g. current →
// archived on supersession).
func (r *ProfileRepository) UpdateStatus(ctx context.Context, profileID string, newStatus Status) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET status = $1 WHERE org_id = $2 AND profile_id = $3`,
		string(newStatus), orgID, profileID,
	)
	if err != nil {
		return fmt.Errorf("store: update profile status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateExtractorNames overwrites a Profile's extractor_names set, used when
// a fresh "add" candidate is instead folded into an existing shared profile
// (spec.md §4.D "Multi-extractor sharing").
func (r *ProfileRepository) UpdateExtractorNames(ctx context.Context, profileID string, names []string) error {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET extractor_names = $1 WHERE org_id = $2 AND profile_id = $3`,
		names, orgID, profileID,
	)
	if err != nil {
		return fmt.Errorf("store: update profile extractor_names: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCurrentByUser returns a user's `current`-status profiles, optionally
// scoped to extractors carrying extractorName in their extractor_names set.
// `pending` profiles are never returned here (spec.md §3 Profile invariant).
func (r *ProfileRepository) ListCurrentByUser(ctx context.Context, userID, extractorName string) ([]Profile, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT org_id, profile_id, user_id, content, source, extractor_names, custom_features,
			generated_from_request_id, last_modified_at, expiration_at, status, embedding
		FROM profiles WHERE org_id = $1 AND user_id = $2 AND status = 'current'`
	args := []any{orgID, userID}
	if extractorName != "" {
		args = append(args, extractorName)
		query += fmt.Sprintf(" AND $%d = ANY(extractor_names)", len(args))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list current profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// ListByGeneratedFromRequest returns every Profile whose generated_from_request_id
// equals requestID, regardless of status (get_profile_change_log, spec.md §6).
func (r *ProfileRepository) ListByGeneratedFromRequest(ctx context.Context, requestID string) ([]Profile, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT org_id, profile_id, user_id, content, source, extractor_names, custom_features,
			generated_from_request_id, last_modified_at, expiration_at, status, embedding
		 FROM profiles WHERE org_id = $1 AND generated_from_request_id = $2`,
		orgID, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list profiles by generated_from_request: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// List returns Profiles matching f, honoring the default current-only
// visibility unless the caller sets f.Statuses explicitly (search_profiles'
// status_filter override, spec.md §6).
func (r *ProfileRepository) List(ctx context.Context, f ListFilter, order Order, limit int) ([]Profile, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	statuses := f.statusStrings()
	if len(statuses) == 0 {
		statuses = []string{string(StatusCurrent)}
	}
	query := `SELECT org_id, profile_id, user_id, content, source, extractor_names, custom_features,
			generated_from_request_id, last_modified_at, expiration_at, status, embedding
		FROM profiles WHERE org_id = $1 AND status = ANY($2)`
	args := []any{orgID, statuses}
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if order == OrderAsc {
		query += " ORDER BY last_modified_at ASC"
	} else {
		query += " ORDER BY last_modified_at DESC"
	}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// Get fetches one Profile by id regardless of status.
func (r *ProfileRepository) Get(ctx context.Context, profileID string) (*Profile, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT org_id, profile_id, user_id, content, source, extractor_names, custom_features,
			generated_from_request_id, last_modified_at, expiration_at, status, embedding
		 FROM profiles WHERE org_id = $1 AND profile_id = $2`,
		orgID, profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get profile: %w", err)
	}
	defer rows.Close()
	ps, err := scanProfiles(rows)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, ErrNotFound
	}
	return &ps[0], nil
}

func scanProfiles(rows *sql.Rows) ([]Profile, error) {
	var out []Profile
	for rows.Next() {
		var p Profile
		var featuresJSON []byte
		var vec pgvector.Vector
		if err := rows.Scan(&p.OrgID, &p.ProfileID, &p.UserID, &p.Content, &p.Source, &p.ExtractorNames,
			&featuresJSON, &p.GeneratedFromRequestID, &p.LastModifiedAt, &p.ExpirationAt, &p.Status, &vec); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("store: scan profile: %w", err)
		}
		if len(featuresJSON) > 0 {
			if err := json.Unmarshal(featuresJSON, &p.CustomFeatures); err != nil {
				return nil, fmt.Errorf("store: unmarshal custom_features: %w", err)
			}
		}
		p.Embedding = vec.Slice()
		out = append(out, p)
	}
	return out, rows.Err()
}

func marshalOptionalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
