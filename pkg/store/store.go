package store

import (
	"database/sql"

	"github.com/beaconlabs/pulse/pkg/database"
)

// Store is the Artifact Store: a thin facade over a shared connection pool
// exposing one repository per entity in the data model. Mirrors tarsy's
// pattern of services wrapping a single DB client rather than each owning
// its own pool.
type Store struct {
	Requests            *RequestRepository
	Interactions        *InteractionRepository
	Profiles            *ProfileRepository
	RawFeedbacks        *RawFeedbackRepository
	AggregatedFeedbacks *AggregatedFeedbackRepository
	Skills              *SkillRepository
	SuccessResults      *SuccessResultRepository
	OperationStates     *OperationStateRepository
	FeedbackCounters    *FeedbackCounterRepository
	WindowCursors       *WindowCursorRepository
	TenantConfigs       *TenantConfigRepository
	ApiKeys             *ApiKeyRepository
}

// New builds a Store backed by the given connection pool.
func New(client *database.Client) *Store {
	return NewFromDB(client.DB())
}

// NewFromDB builds a Store directly from a pool (used by tests against
// testcontainers, avoiding the database.Client migration hook).
func NewFromDB(db *sql.DB) *Store {
	return &Store{
		Requests:            &RequestRepository{db: db},
		Interactions:        &InteractionRepository{db: db},
		Profiles:            &ProfileRepository{db: db},
		RawFeedbacks:        &RawFeedbackRepository{db: db},
		AggregatedFeedbacks: &AggregatedFeedbackRepository{db: db},
		Skills:              &SkillRepository{db: db},
		SuccessResults:      &SuccessResultRepository{db: db},
		OperationStates:     &OperationStateRepository{db: db},
		FeedbackCounters:    &FeedbackCounterRepository{db: db},
		WindowCursors:       &WindowCursorRepository{db: db},
		TenantConfigs:       &TenantConfigRepository{db: db},
		ApiKeys:             &ApiKeyRepository{db: db},
	}
}
