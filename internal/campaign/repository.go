package campaign

import (
	"context"

	"github.com/ignite/repguard/internal/domain"
)

// Repository defines the data access contract for campaigns during sending.
type Repository interface {
	// Get returns a campaign by id. Returns ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter plus the total count.
	List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error)

	// UpdateStatus persists status and lifecycle timestamps.
	UpdateStatus(ctx context.Context, c *domain.Campaign) error

	// IncrementCounters atomically bumps total_sent / total_failed and
	// returns the updated campaign.
	IncrementCounters(ctx context.Context, id string, sentDelta, failedDelta int) (*domain.Campaign, error)

	// PendingRecipients returns the recipients not yet attempted, in
	// stable order.
	PendingRecipients(ctx context.Context, id string, limit int) ([]string, error)

	// MarkAttempted records that a recipient has been attempted so it is
	// not handed out again.
	MarkAttempted(ctx context.Context, id, email string, sent bool) error
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status   string
	DomainID string
	Limit    int
	Offset   int
}
