package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/logger"
)

// FileReport is the per-file outcome of an ingestion pass.
type FileReport struct {
	File        string `json:"file"`
	Records     int    `json:"records"`
	ParseErrors int    `json:"parse_errors"`
	Skipped     bool   `json:"skipped"`
	Error       string `json:"error,omitempty"`
}

// WindowReport is the result of ingesting the log directory and aggregating
// a lookback window for one domain.
type WindowReport struct {
	Domain string              `json:"domain"`
	Hours  int                 `json:"hours"`
	Counts domain.MetricCounts `json:"counts"`
	Files  []FileReport        `json:"files"`
}

// Service ingests MTA log files into metric records.
type Service struct {
	repo   Repository
	logDir string
	log    *logger.Logger
}

// NewService creates an ingest service reading from the given log directory.
func NewService(repo Repository, logDir string) *Service {
	return &Service{
		repo:   repo,
		logDir: logDir,
		log:    logger.For("ingest"),
	}
}

// IngestWindow processes every unprocessed accounting and FBL file in the
// log directory, then returns aggregated counts for the domain over the
// last `hours` hours. An empty domain aggregates across all domains.
//
// A file that cannot be opened or read is fatal for that file only; its
// error lands in the per-file report and the pass continues.
func (s *Service) IngestWindow(ctx context.Context, sendingDomain string, hours int) (*WindowReport, error) {
	report := &WindowReport{Domain: sendingDomain, Hours: hours}

	entries, err := os.ReadDir(s.logDir)
	if err != nil {
		return nil, fmt.Errorf("cannot read log directory %s: %w", s.logDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		kind := classifyFile(name)
		if kind == fileUnknown {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Files = append(report.Files, s.ingestFile(ctx, name, kind))
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := s.repo.AggregateWindow(ctx, sendingDomain, since)
	if err != nil {
		return nil, fmt.Errorf("aggregate window: %w", err)
	}
	report.Counts = counts

	return report, nil
}

// ParseDiagnosticFile summarizes one diagnostic log by name. The name is
// resolved inside the log directory; paths escaping it are rejected.
func (s *Service) ParseDiagnosticFile(filename string) (*DiagSummary, error) {
	clean := filepath.Clean(filename)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return nil, ErrOutsideLogDir
	}
	return NewDiagParser().ParseFile(filepath.Join(s.logDir, clean))
}

type fileKind int

const (
	fileUnknown fileKind = iota
	fileAccounting
	fileFBL
)

// The MTA names files acct-YYYYMMDD.csv and fbl-YYYYMMDD.txt.
func classifyFile(name string) fileKind {
	base := strings.ToLower(name)
	switch {
	case strings.HasPrefix(base, "acct"):
		return fileAccounting
	case strings.HasPrefix(base, "fbl"):
		return fileFBL
	default:
		return fileUnknown
	}
}

func (s *Service) ingestFile(ctx context.Context, name string, kind fileKind) FileReport {
	rep := FileReport{File: name}
	path := filepath.Join(s.logDir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		rep.Error = err.Error()
		s.log.Warn("cannot read MTA file", "file", name, "error", err)
		return rep
	}

	marker, err := s.repo.GetMarker(ctx, name)
	if err != nil && err != ErrMarkerNotFound {
		rep.Error = err.Error()
		return rep
	}

	// Resume at the marker offset when the consumed prefix is intact.
	// The MTA appends to the live file, so the idempotency key is the
	// byte offset, not a whole-file checksum: re-ingesting after an
	// append must only parse the tail. A prefix mismatch means the name
	// was reused for a new file and it is re-read from the top.
	var start int64
	prevRecords, prevErrors := 0, 0
	if marker != nil && marker.Offset <= int64(len(data)) &&
		checksum(data[:marker.Offset]) == marker.Checksum {
		if marker.Offset == int64(len(data)) {
			rep.Skipped = true
			rep.Records = marker.Records
			rep.ParseErrors = marker.ParseErrors
			return rep
		}
		start = marker.Offset
		prevRecords = marker.Records
		prevErrors = marker.ParseErrors
	}

	var records []domain.MetricRecord
	switch kind {
	case fileAccounting:
		records, rep.ParseErrors, err = s.parseAccounting(name, data[start:])
	case fileFBL:
		records, rep.ParseErrors, err = s.parseFBL(name, data[start:])
	}
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.Records = len(records)

	if len(records) > 0 {
		if err := s.repo.InsertRecords(ctx, records); err != nil {
			rep.Error = err.Error()
			return rep
		}
	}

	if err := s.repo.SaveMarker(ctx, &domain.FileMarker{
		SourceFile:  name,
		Checksum:    checksum(data),
		Offset:      int64(len(data)),
		Records:     prevRecords + rep.Records,
		ParseErrors: prevErrors + rep.ParseErrors,
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		rep.Error = err.Error()
		return rep
	}

	s.log.Info("ingested MTA file", "file", name, "records", rep.Records, "parse_errors", rep.ParseErrors)
	return rep
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type bucketKey struct {
	domain string
	bucket time.Time
}

func (s *Service) parseAccounting(name string, data []byte) ([]domain.MetricRecord, int, error) {
	recs, parseErrors, err := NewAcctParser().ParseReader(bytes.NewReader(data))
	if err != nil {
		return nil, parseErrors, err
	}

	buckets := make(map[bucketKey]*domain.MetricCounts)
	for _, r := range recs {
		k := bucketKey{domain: r.Domain, bucket: r.TimeLogged.Truncate(time.Hour)}
		c := buckets[k]
		if c == nil {
			c = &domain.MetricCounts{}
			buckets[k] = c
		}
		switch r.Type {
		case eventDelivery:
			c.Sent++
			c.Delivered++
		case eventBounce:
			c.Sent++
			if r.IsHardBounce() {
				c.HardBounced++
			} else {
				c.SoftBounced++
			}
		case eventFeedback:
			c.Complaints++
		}
	}

	return bucketsToRecords(name, buckets), parseErrors, nil
}

func (s *Service) parseFBL(name string, data []byte) ([]domain.MetricRecord, int, error) {
	reports, parseErrors, err := NewFBLParser().ParseReader(bytes.NewReader(data))
	if err != nil {
		return nil, parseErrors, err
	}

	buckets := make(map[bucketKey]*domain.MetricCounts)
	for _, r := range reports {
		k := bucketKey{domain: r.Domain, bucket: r.ReceivedAt.Truncate(time.Hour)}
		c := buckets[k]
		if c == nil {
			c = &domain.MetricCounts{}
			buckets[k] = c
		}
		c.Complaints++
	}

	return bucketsToRecords(name, buckets), parseErrors, nil
}

func bucketsToRecords(sourceFile string, buckets map[bucketKey]*domain.MetricCounts) []domain.MetricRecord {
	records := make([]domain.MetricRecord, 0, len(buckets))
	now := time.Now().UTC()
	for k, c := range buckets {
		records = append(records, domain.MetricRecord{
			ID:          uuid.NewString(),
			Domain:      k.domain,
			Bucket:      k.bucket,
			Sent:        c.Sent,
			Delivered:   c.Delivered,
			HardBounced: c.HardBounced,
			SoftBounced: c.SoftBounced,
			Complaints:  c.Complaints,
			SourceFile:  sourceFile,
			CreatedAt:   now,
		})
	}
	return records
}
