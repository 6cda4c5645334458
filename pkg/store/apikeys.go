package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ApiKeyRepository resolves tenant API keys to org_id. Unlike every other
// repository, its lookup method does not read org_id from the context — it
// is the mechanism that establishes tenant identity in the first place
// (spec.md §6 "Authentication").
type ApiKeyRepository struct {
	db *sql.DB
}

// Lookup returns the org_id owning apiKey, or ErrNotFound if the key is
// unknown. Keys carry no revocation state.
func (r *ApiKeyRepository) Lookup(ctx context.Context, apiKey string) (string, error) {
	var orgID string
	err := r.db.QueryRowContext(ctx,
		`SELECT org_id FROM api_keys WHERE api_key = $1`, apiKey,
	).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: lookup api key: %w", err)
	}
	return orgID, nil
}

// Create issues a new API key for orgID, used by onboarding tooling and
// test fixtures rather than any external operation in spec.md §6.
func (r *ApiKeyRepository) Create(ctx context.Context, apiKey, orgID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (api_key, org_id, created_at) VALUES ($1, $2, $3)`,
		apiKey, orgID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store: create api key: %w", err)
	}
	return nil
}
