package suppression

import (
	"context"
	"time"

	"github.com/ignite/repguard/internal/domain"
)

// Repository defines the data access contract for the suppression list.
// Implementations enforce the one-live-entry-per-address invariant with a
// unique index on the normalized email.
type Repository interface {
	// IsSuppressed returns true if the normalized email is on the list.
	IsSuppressed(ctx context.Context, email string) (bool, error)

	// Get returns the entry for a normalized email.
	// Returns ErrNotFound if the address is not suppressed.
	Get(ctx context.Context, email string) (*domain.SuppressionEntry, error)

	// Upsert inserts an entry, or replaces the existing one for the same
	// address. The service decides whether a replace is warranted.
	Upsert(ctx context.Context, e *domain.SuppressionEntry) error

	// Remove deletes an entry. Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, email string) error

	// List returns entries matching the filter plus the total match count
	// ignoring pagination.
	List(ctx context.Context, filter ListFilter) ([]domain.SuppressionEntry, int, error)

	// AllEmails returns every suppressed address (for export).
	AllEmails(ctx context.Context) ([]string, error)

	// DeleteOlderThan removes entries created before the cutoff and
	// returns how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Reason string
	Source string
	Search string
	Limit  int
	Offset int
}
