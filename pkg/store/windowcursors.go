package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WindowCursorRepository tracks, per incremental-window scope, the
// interaction count the window was last assembled at — the stride cadence
// the Window Assembler enforces (spec.md §4.C "consecutive windows overlap
// by window_size - stride").
type WindowCursorRepository struct {
	db *sql.DB
}

// ShouldEmit atomically checks whether currentCount has grown by at least
// stride since the scope's last emission and, if so, advances the cursor to
// currentCount and returns true. A scope with no prior cursor always emits
// (the first incremental window for a scope).
func (r *WindowCursorRepository) ShouldEmit(ctx context.Context, scope string, currentCount, stride int) (bool, error) {
	orgID, err := OrgIDFromContext(ctx)
	if err != nil {
		return false, err
	}

	var emitted bool
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO window_cursors (org_id, scope, last_count)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (org_id, scope) DO UPDATE SET last_count = $3
		 WHERE ($3 - window_cursors.last_count) >= $4
		 RETURNING true`,
		orgID, scope, currentCount, stride,
	)
	if err := row.Scan(&emitted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("store: check window cursor: %w", err)
	}
	return emitted, nil
}
