package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/repguard/internal/bounce"
	"github.com/ignite/repguard/internal/domain"
)

// BounceRepo implements bounce.Repository against PostgreSQL.
type BounceRepo struct{ db *sql.DB }

// NewBounceRepo creates a Postgres-backed bounce repository.
func NewBounceRepo(db *sql.DB) *BounceRepo { return &BounceRepo{db: db} }

const credentialColumns = `id, user_id, domain_id, protocol, host, port, username,
	secret_encrypted, is_default, is_active, last_checked_at, processed_count,
	COALESCE(last_error, ''), created_at, updated_at`

func scanCredential(row interface{ Scan(...interface{}) error }) (*domain.BounceCredential, error) {
	c := &domain.BounceCredential{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.DomainID, &c.Protocol, &c.Host, &c.Port, &c.Username,
		&c.SecretEncrypted, &c.IsDefault, &c.IsActive, &c.LastCheckedAt,
		&c.ProcessedCount, &c.LastError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *BounceRepo) GetCredential(ctx context.Context, id string) (*domain.BounceCredential, error) {
	c, err := scanCredential(r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM bounce_credentials WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, bounce.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bounce credential: %w", err)
	}
	return c, nil
}

func (r *BounceRepo) ListCredentials(ctx context.Context, userID string) ([]domain.BounceCredential, error) {
	q := `SELECT ` + credentialColumns + ` FROM bounce_credentials`
	args := []interface{}{}
	if userID != "" {
		q += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	q += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bounce credentials: %w", err)
	}
	defer rows.Close()

	var out []domain.BounceCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bounce credential: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *BounceRepo) CreateCredential(ctx context.Context, c *domain.BounceCredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bounce_credentials
			(id, user_id, domain_id, protocol, host, port, username,
			 secret_encrypted, is_default, is_active, processed_count,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12)
	`, c.ID, c.UserID, c.DomainID, c.Protocol, c.Host, c.Port, c.Username,
		c.SecretEncrypted, c.IsDefault, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create bounce credential: %w", err)
	}
	return nil
}

func (r *BounceRepo) UpdateCredential(ctx context.Context, c *domain.BounceCredential) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bounce_credentials
		SET domain_id = $2, protocol = $3, host = $4, port = $5, username = $6,
		    secret_encrypted = $7, is_default = $8, is_active = $9,
		    last_checked_at = $10, processed_count = $11,
		    last_error = NULLIF($12, ''), updated_at = $13
		WHERE id = $1
	`, c.ID, c.DomainID, c.Protocol, c.Host, c.Port, c.Username,
		c.SecretEncrypted, c.IsDefault, c.IsActive,
		c.LastCheckedAt, c.ProcessedCount, c.LastError, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update bounce credential: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return bounce.ErrCredentialNotFound
	}
	return nil
}

func (r *BounceRepo) DeleteCredential(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM bounce_credentials WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("delete bounce credential: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return bounce.ErrCredentialNotFound
	}
	return nil
}

func (r *BounceRepo) CountDefaults(ctx context.Context, userID, excludeID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bounce_credentials
		WHERE user_id = $1 AND is_default = true AND domain_id IS NULL AND id <> $2
	`, userID, excludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count default credentials: %w", err)
	}
	return n, nil
}

func (r *BounceRepo) IsProcessed(ctx context.Context, credentialID, messageHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM bounce_processed
			WHERE credential_id = $1 AND message_hash = $2
		)
	`, credentialID, messageHash).Scan(&exists)
	return exists, err
}

func (r *BounceRepo) MarkProcessed(ctx context.Context, credentialID, messageHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bounce_processed (credential_id, message_hash, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (credential_id, message_hash) DO NOTHING
	`, credentialID, messageHash, at)
	if err != nil {
		return fmt.Errorf("mark bounce processed: %w", err)
	}
	return nil
}

func (r *BounceRepo) RecordSoftBounce(ctx context.Context, recipient string, at, since time.Time) (int, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO soft_bounces (recipient, bounced_at) VALUES ($1, $2)
	`, recipient, at); err != nil {
		return 0, fmt.Errorf("record soft bounce: %w", err)
	}

	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM soft_bounces WHERE recipient = $1 AND bounced_at >= $2
	`, recipient, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count soft bounces: %w", err)
	}
	return n, nil
}
