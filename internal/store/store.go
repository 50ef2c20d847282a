package store

import (
	"context"

	"github.com/sells-group/leadcheck/internal/model"
)

// ReviewFilter narrows the pending-review listing.
type ReviewFilter struct {
	// HasGeneratedSite filters on whether a completed or published generated
	// site exists for the business. Nil means no filter.
	HasGeneratedSite *bool
	Limit            int
	Offset           int
}

// ValidationUpdate is the single-transaction write that keeps status and
// ledger protocol-coupled. The business row and the ledger deltas commit
// together or not at all.
type ValidationUpdate struct {
	BusinessID      string
	Status          model.ValidationState
	WebsiteURL      *string // nil clears the column
	Source          model.MetadataSource
	Notes           string
	HistoryEntries  []model.ValidationHistoryEntry
	AttemptUpserts  map[string]model.DiscoveryAttempt
	AttemptRemovals []string
}

// Store defines persistence for businesses, their validation ledgers, and
// generated sites.
type Store interface {
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
	// ListForValidation returns NEEDS_DISCOVERY businesses that still carry a
	// candidate URL to check.
	ListForValidation(ctx context.Context, limit int) ([]model.Business, error)
	// ListForDiscovery returns NEEDS_DISCOVERY businesses with no usable URL.
	// The discovery gate itself lives in the metadata ledger, not in SQL.
	ListForDiscovery(ctx context.Context, limit int) ([]model.Business, error)
	ListPendingReview(ctx context.Context, filter ReviewFilter) ([]model.Business, error)
	ApplyValidation(ctx context.Context, update ValidationUpdate) error

	ListGeneratedSites(ctx context.Context, businessID string) ([]model.GeneratedSite, error)
	// SupersedeGeneratedSites marks the business's completed and published
	// sites superseded; returns the number of sites affected.
	SupersedeGeneratedSites(ctx context.Context, businessID string) (int64, error)

	BulkInsertBusinesses(ctx context.Context, businesses []model.Business) (int64, error)
	CountByStatus(ctx context.Context) (map[model.ValidationState]int, error)

	Migrate(ctx context.Context) error
	Close() error
}
