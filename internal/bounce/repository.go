package bounce

import (
	"context"
	"time"

	"github.com/ignite/repguard/internal/domain"
)

// Repository defines the data access contract for bounce credentials and
// per-message processed state.
type Repository interface {
	// GetCredential returns a credential by id. Returns ErrCredentialNotFound.
	GetCredential(ctx context.Context, id string) (*domain.BounceCredential, error)

	// ListCredentials returns a user's credentials; an empty userID
	// returns everyone's.
	ListCredentials(ctx context.Context, userID string) ([]domain.BounceCredential, error)

	// CreateCredential persists a new credential.
	CreateCredential(ctx context.Context, c *domain.BounceCredential) error

	// UpdateCredential persists credential changes.
	UpdateCredential(ctx context.Context, c *domain.BounceCredential) error

	// DeleteCredential removes a credential. Returns ErrCredentialNotFound.
	DeleteCredential(ctx context.Context, id string) error

	// CountDefaults returns how many account-wide default credentials the
	// user has, excluding the given credential id (pass "" to count all).
	CountDefaults(ctx context.Context, userID, excludeID string) (int, error)

	// IsProcessed reports whether a message hash was already handled for a
	// credential.
	IsProcessed(ctx context.Context, credentialID, messageHash string) (bool, error)

	// MarkProcessed records a handled message hash.
	MarkProcessed(ctx context.Context, credentialID, messageHash string, at time.Time) error

	// RecordSoftBounce records one soft bounce for a recipient and returns
	// how many the recipient has accumulated since the given time.
	RecordSoftBounce(ctx context.Context, recipient string, at, since time.Time) (int, error)
}
