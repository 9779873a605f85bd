package ingest

import (
	"context"
	"time"

	"github.com/ignite/repguard/internal/domain"
)

// Repository defines the data access contract for metric records and
// file-processing markers.
type Repository interface {
	// GetMarker returns the marker for a source file.
	// Returns ErrMarkerNotFound if the file has never been processed.
	GetMarker(ctx context.Context, sourceFile string) (*domain.FileMarker, error)

	// SaveMarker upserts the marker for a source file.
	SaveMarker(ctx context.Context, m *domain.FileMarker) error

	// InsertRecords appends metric records. Existing records are never mutated.
	InsertRecords(ctx context.Context, records []domain.MetricRecord) error

	// AggregateWindow sums metric counts for a domain since the given time.
	// An empty domain aggregates across all domains.
	AggregateWindow(ctx context.Context, sendingDomain string, since time.Time) (domain.MetricCounts, error)

	// Domains returns the distinct sending domains that have metric records
	// since the given time.
	Domains(ctx context.Context, since time.Time) ([]string, error)
}
