package training

import (
	"context"

	"github.com/ignite/repguard/internal/domain"
)

// Repository defines the data access contract for domains and their
// training configs.
type Repository interface {
	// GetDomain returns a domain by id. Returns ErrDomainNotFound.
	GetDomain(ctx context.Context, domainID string) (*domain.Domain, error)

	// ListDomains returns every domain under training.
	ListDomains(ctx context.Context) ([]domain.Domain, error)

	// ListDomainsByUser returns one user's domains.
	ListDomainsByUser(ctx context.Context, userID string) ([]domain.Domain, error)

	// UpdateDomainTraining persists stage, effective rate and
	// last-trained timestamp for a domain.
	UpdateDomainTraining(ctx context.Context, d *domain.Domain) error

	// GetConfig returns the training config for a domain.
	// Returns ErrConfigNotFound if none has been created yet.
	GetConfig(ctx context.Context, domainID string) (*domain.TrainingConfig, error)

	// SaveConfig upserts a training config.
	SaveConfig(ctx context.Context, c *domain.TrainingConfig) error

	// ListConfigs returns every per-domain training config.
	ListConfigs(ctx context.Context) ([]domain.TrainingConfig, error)
}
