package store

import (
	"context"
	"fmt"
)

type orgIDKey struct{}

// WithOrgID returns a context carrying the tenant identity resolved from the
// caller's API key. Every repository method reads org_id from the context
// rather than accepting it as a parameter, so a crafted id argument can never
// smuggle a cross-tenant read past the `WHERE org_id = $1` clause baked into
// each query.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey{}, orgID)
}

// OrgIDFromContext extracts the tenant identity set by WithOrgID.
func OrgIDFromContext(ctx context.Context) (string, error) {
	orgID, _ := ctx.Value(orgIDKey{}).(string)
	if orgID == "" {
		return "", fmt.Errorf("store: no org_id in context")
	}
	return orgID, nil
}
