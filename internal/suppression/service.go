package suppression

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/logger"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, log: logger.For("suppression")}
}

// IsSuppressed checks whether an address should be blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, email string) (bool, error) {
	return s.repo.IsSuppressed(ctx, domain.NormalizeEmail(email))
}

// Suppress upserts an address onto the list. Idempotent: re-suppressing an
// address only replaces the stored entry when the new reason outranks the
// existing one, so a later unsubscribe never downgrades a hard bounce. The
// read here is just a short-circuit; the repository enforces the same
// precedence inside the upsert, which is what holds under concurrent writers.
func (s *Service) Suppress(ctx context.Context, email string, reason domain.SuppressionReason, source domain.SuppressionSource, campaignID string) error {
	email = domain.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}

	existing, err := s.repo.Get(ctx, email)
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("lookup %s: %w", email, err)
	}
	if existing != nil && !reason.Outranks(existing.Reason) {
		return nil
	}

	entry := &domain.SuppressionEntry{
		ID:         uuid.NewString(),
		Email:      email,
		Reason:     reason,
		Source:     source,
		CampaignID: campaignID,
		CreatedAt:  time.Now().UTC(),
	}
	if existing != nil {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	}

	return s.repo.Upsert(ctx, entry)
}

// Remove deletes a suppression entry. An explicit removal always wins over
// whatever reason put the address on the list.
func (s *Service) Remove(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ErrInvalidEmail
	}
	return s.repo.Remove(ctx, email)
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.SuppressionEntry, int, error) {
	return s.repo.List(ctx, filter)
}

// Cleanup removes entries older than the given number of days and returns
// how many were deleted.
func (s *Service) Cleanup(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("cleanup days must be positive, got %d", days)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.Info("suppression cleanup", "days", days, "removed", n)
	return n, nil
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import reads addresses from r and suppresses each with the given source.
// fileType is "csv" (address in the first column, optional reason in the
// second) or "txt" (one address per line). Unparseable rows are skipped
// and counted, never fatal.
func (s *Service) Import(ctx context.Context, r io.Reader, fileType string, source domain.SuppressionSource) (*ImportResult, error) {
	switch strings.ToLower(fileType) {
	case "csv":
		return s.importCSV(ctx, r, source)
	case "txt":
		return s.importTXT(ctx, r, source)
	default:
		return nil, fmt.Errorf("unsupported import type %q", fileType)
	}
}

func (s *Service) importCSV(ctx context.Context, r io.Reader, source domain.SuppressionSource) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	result := &ImportResult{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			continue
		}
		if len(row) == 0 {
			continue
		}
		email := domain.NormalizeEmail(row[0])
		if email == "email" { // header row
			continue
		}
		reason := domain.ReasonManual
		if len(row) > 1 {
			if r := domain.SuppressionReason(strings.TrimSpace(row[1])); r.Outranks("") {
				reason = r
			}
		}
		if err := s.Suppress(ctx, email, reason, source, ""); err != nil {
			result.Skipped++
			continue
		}
		result.Imported++
	}
	return result, nil
}

func (s *Service) importTXT(ctx context.Context, r io.Reader, source domain.SuppressionSource) (*ImportResult, error) {
	scanner := bufio.NewScanner(r)
	result := &ImportResult{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.Suppress(ctx, line, domain.ReasonManual, source, ""); err != nil {
			result.Skipped++
			continue
		}
		result.Imported++
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// Export writes every suppressed address to w, one per line.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	emails, err := s.repo.AllEmails(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range emails {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return 0, err
		}
	}
	return len(emails), nil
}

// Stats returns aggregate counts grouped by reason and source.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
	BySource map[string]int `json:"by_source"`
}

// GetStats computes suppression statistics for reporting.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:    total,
		ByReason: make(map[string]int),
		BySource: make(map[string]int),
	}
	for _, e := range entries {
		stats.ByReason[string(e.Reason)]++
		stats.BySource[string(e.Source)]++
	}
	return stats, nil
}
