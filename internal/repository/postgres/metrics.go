package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/ingest"
)

// MetricsRepo implements ingest.Repository against PostgreSQL.
type MetricsRepo struct{ db *sql.DB }

// NewMetricsRepo creates a Postgres-backed metrics repository.
func NewMetricsRepo(db *sql.DB) *MetricsRepo { return &MetricsRepo{db: db} }

func (r *MetricsRepo) GetMarker(ctx context.Context, sourceFile string) (*domain.FileMarker, error) {
	m := &domain.FileMarker{}
	err := r.db.QueryRowContext(ctx, `
		SELECT source_file, checksum, byte_offset, records, parse_errors, processed_at
		FROM file_markers
		WHERE source_file = $1
	`, sourceFile).Scan(&m.SourceFile, &m.Checksum, &m.Offset, &m.Records, &m.ParseErrors, &m.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, ingest.ErrMarkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file marker: %w", err)
	}
	return m, nil
}

func (r *MetricsRepo) SaveMarker(ctx context.Context, m *domain.FileMarker) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO file_markers (source_file, checksum, byte_offset, records, parse_errors, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_file) DO UPDATE SET
			checksum = EXCLUDED.checksum,
			byte_offset = EXCLUDED.byte_offset,
			records = EXCLUDED.records,
			parse_errors = EXCLUDED.parse_errors,
			processed_at = EXCLUDED.processed_at
	`, m.SourceFile, m.Checksum, m.Offset, m.Records, m.ParseErrors, m.ProcessedAt)
	if err != nil {
		return fmt.Errorf("save file marker: %w", err)
	}
	return nil
}

func (r *MetricsRepo) InsertRecords(ctx context.Context, records []domain.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*9)
	for i, rec := range records {
		base := i * 9
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, rec.ID, rec.Domain, rec.Bucket, rec.Sent, rec.Delivered,
			rec.HardBounced, rec.SoftBounced, rec.Complaints, rec.SourceFile)
	}

	q := `
		INSERT INTO metric_records
			(id, domain, bucket, sent, delivered, hard_bounced, soft_bounced,
			 complaints, source_file, created_at)
		VALUES ` + strings.Join(values, ", ")
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert metric records: %w", err)
	}
	return nil
}

func (r *MetricsRepo) AggregateWindow(ctx context.Context, sendingDomain string, since time.Time) (domain.MetricCounts, error) {
	q := `
		SELECT COALESCE(SUM(sent), 0), COALESCE(SUM(delivered), 0),
		       COALESCE(SUM(hard_bounced), 0), COALESCE(SUM(soft_bounced), 0),
		       COALESCE(SUM(complaints), 0)
		FROM metric_records
		WHERE bucket >= $1`
	args := []interface{}{since}
	if sendingDomain != "" {
		q += ` AND domain = $2`
		args = append(args, sendingDomain)
	}

	var c domain.MetricCounts
	err := r.db.QueryRowContext(ctx, q, args...).Scan(
		&c.Sent, &c.Delivered, &c.HardBounced, &c.SoftBounced, &c.Complaints,
	)
	if err != nil {
		return domain.MetricCounts{}, fmt.Errorf("aggregate metrics: %w", err)
	}
	return c, nil
}

func (r *MetricsRepo) Domains(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT domain FROM metric_records WHERE bucket >= $1 ORDER BY domain
	`, since)
	if err != nil {
		return nil, fmt.Errorf("distinct metric domains: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
