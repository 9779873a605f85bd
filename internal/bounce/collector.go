package bounce

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/logger"
	"github.com/ignite/repguard/internal/pkg/secrets"
)

// Suppressor records a suppression from a bounce signal.
type Suppressor interface {
	Suppress(ctx context.Context, email string, reason domain.SuppressionReason, source domain.SuppressionSource, campaignID string) error
}

// Publisher emits domain events.
type Publisher interface {
	Publish(e domain.Event)
}

// Options tunes the collector.
type Options struct {
	PollInterval        time.Duration
	MaxConcurrent       int
	SoftBounceThreshold int
	SoftBounceWindow    time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 15 * time.Minute
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 8
	}
	if o.SoftBounceThreshold <= 0 {
		o.SoftBounceThreshold = 3
	}
	if o.SoftBounceWindow <= 0 {
		o.SoftBounceWindow = 72 * time.Hour
	}
	return o
}

// CredentialReport is the outcome of polling one mailbox.
type CredentialReport struct {
	CredentialID string `json:"credential_id"`
	Host         string `json:"host"`
	Fetched      int    `json:"fetched"`
	Processed    int    `json:"processed"`
	Duplicates   int    `json:"duplicates"`
	Suppressed   int    `json:"suppressed"`
	SoftRecorded int    `json:"soft_recorded"`
	Error        string `json:"error,omitempty"`
}

// PollReport summarizes one collection run.
type PollReport struct {
	StartedAt   time.Time          `json:"started_at"`
	Due         int                `json:"due"`
	Credentials []CredentialReport `json:"credentials"`
	Suppressed  int                `json:"suppressed"`
	Errors      int                `json:"errors"`
	Cancelled   bool               `json:"cancelled,omitempty"`
}

// Collector polls due bounce mailboxes, classifies what it finds and
// feeds hard bounces, complaints and repeated soft bounces into the
// suppression list.
type Collector struct {
	repo         Repository
	box          *secrets.Box
	dialer       MailboxDialer
	classifier   *Classifier
	suppressions Suppressor
	bus          Publisher
	opts         Options
	log          *logger.Logger
}

// NewCollector creates a collector.
func NewCollector(repo Repository, box *secrets.Box, dialer MailboxDialer, suppressions Suppressor, bus Publisher, opts Options) *Collector {
	return &Collector{
		repo:         repo,
		box:          box,
		dialer:       dialer,
		classifier:   NewClassifier(),
		suppressions: suppressions,
		bus:          bus,
		opts:         opts.withDefaults(),
		log:          logger.For("bounce"),
	}
}

// RunOnce polls every due credential, at most MaxConcurrent mailboxes in
// flight at a time. One failing mailbox never stops the others; its
// error lands on the credential and in the report. Cancellation is
// observed between credentials, not mid-mailbox.
func (c *Collector) RunOnce(ctx context.Context) (*PollReport, error) {
	creds, err := c.repo.ListCredentials(ctx, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	report := &PollReport{StartedAt: now}

	var due []domain.BounceCredential
	for _, cred := range creds {
		if cred.Due(c.opts.PollInterval, now) {
			due = append(due, cred)
		}
	}
	report.Due = len(due)

	sem := make(chan struct{}, c.opts.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := range due {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(cred domain.BounceCredential) {
			defer wg.Done()
			defer func() { <-sem }()
			rep := c.pollCredential(ctx, &cred)
			mu.Lock()
			report.Credentials = append(report.Credentials, rep)
			report.Suppressed += rep.Suppressed
			if rep.Error != "" {
				report.Errors++
			}
			mu.Unlock()
		}(due[i])
	}
	wg.Wait()

	c.log.Info("bounce poll finished",
		"due", report.Due, "suppressed", report.Suppressed, "errors", report.Errors)
	return report, nil
}

func (c *Collector) pollCredential(ctx context.Context, cred *domain.BounceCredential) CredentialReport {
	rep := CredentialReport{CredentialID: cred.ID, Host: cred.Host}

	secret, err := c.box.Open(cred.SecretEncrypted)
	if err != nil {
		return c.fail(ctx, cred, rep, err)
	}

	mb, err := c.dialer.Dial(ctx, cred, secret)
	if err != nil {
		return c.fail(ctx, cred, rep, err)
	}
	defer mb.Close()

	var since time.Time
	if cred.LastCheckedAt != nil {
		since = *cred.LastCheckedAt
	}
	messages, err := mb.Fetch(ctx, since)
	if err != nil {
		return c.fail(ctx, cred, rep, err)
	}
	rep.Fetched = len(messages)

	for _, msg := range messages {
		hash := messageHash(msg)
		seen, err := c.repo.IsProcessed(ctx, cred.ID, hash)
		if err != nil {
			return c.fail(ctx, cred, rep, err)
		}
		if seen {
			rep.Duplicates++
			continue
		}
		if err := c.handleMessage(ctx, cred, msg, &rep); err != nil {
			return c.fail(ctx, cred, rep, err)
		}
		if err := c.repo.MarkProcessed(ctx, cred.ID, hash, time.Now().UTC()); err != nil {
			return c.fail(ctx, cred, rep, err)
		}
		rep.Processed++
	}

	now := time.Now().UTC()
	cred.LastCheckedAt = &now
	cred.ProcessedCount += int64(rep.Processed)
	cred.LastError = ""
	cred.UpdatedAt = now
	if err := c.repo.UpdateCredential(ctx, cred); err != nil {
		rep.Error = err.Error()
	}
	return rep
}

// handleMessage classifies one message and applies suppression policy.
// Non-bounce mail is still marked processed so it is never re-read.
func (c *Collector) handleMessage(ctx context.Context, cred *domain.BounceCredential, msg RawMessage, rep *CredentialReport) error {
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	bounce, err := c.classifier.Classify(bytes.NewReader(msg.Data), receivedAt)
	if err != nil {
		c.log.Warn("unparseable mailbox message", "credential", cred.ID, "error", err)
		return nil
	}
	if bounce == nil || bounce.Recipient == "" {
		return nil
	}

	switch {
	case bounce.Complaint:
		return c.suppress(ctx, cred, bounce.Recipient, domain.ReasonComplaint, rep)
	case bounce.Type == domain.BounceHard:
		return c.suppress(ctx, cred, bounce.Recipient, domain.ReasonHardBounce, rep)
	case bounce.Type == domain.BounceSoft:
		count, err := c.repo.RecordSoftBounce(ctx, bounce.Recipient, receivedAt, receivedAt.Add(-c.opts.SoftBounceWindow))
		if err != nil {
			return err
		}
		rep.SoftRecorded++
		if count >= c.opts.SoftBounceThreshold {
			return c.suppress(ctx, cred, bounce.Recipient, domain.ReasonSoftThreshold, rep)
		}
	}
	return nil
}

func (c *Collector) suppress(ctx context.Context, cred *domain.BounceCredential, email string, reason domain.SuppressionReason, rep *CredentialReport) error {
	if err := c.suppressions.Suppress(ctx, email, reason, domain.SourceBounceMailbox, ""); err != nil {
		return err
	}
	rep.Suppressed++
	if c.bus != nil {
		c.bus.Publish(domain.Event{
			Type:  domain.EventBounceSuppressed,
			Email: email,
			Fields: map[string]any{
				"reason":        string(reason),
				"credential_id": cred.ID,
			},
		})
	}
	return nil
}

// fail records the error on the credential without deactivating it and
// returns the report. A flaky mailbox keeps getting retried on the next
// cycle. Messages handled before the failure are already hash-marked, so
// their count still lands on the credential; last_checked_at stays put so
// the rest of the batch is re-fetched.
func (c *Collector) fail(ctx context.Context, cred *domain.BounceCredential, rep CredentialReport, err error) CredentialReport {
	rep.Error = err.Error()
	cred.LastError = err.Error()
	cred.ProcessedCount += int64(rep.Processed)
	cred.UpdatedAt = time.Now().UTC()
	if uerr := c.repo.UpdateCredential(ctx, cred); uerr != nil {
		c.log.Error("record credential error", "credential", cred.ID, "error", uerr)
	}
	c.log.Warn("bounce mailbox poll failed", "credential", cred.ID, "host", cred.Host, "error", err)
	return rep
}

// Statistics summarizes bounce processing state.
type Statistics struct {
	Credentials    int               `json:"credentials"`
	Active         int               `json:"active"`
	TotalProcessed int64             `json:"total_processed"`
	LastErrors     map[string]string `json:"last_errors,omitempty"`
}

// GetStatistics aggregates credential counters. A non-empty domainID
// restricts the view to credentials scoped to that domain.
func (c *Collector) GetStatistics(ctx context.Context, domainID string) (*Statistics, error) {
	creds, err := c.repo.ListCredentials(ctx, "")
	if err != nil {
		return nil, err
	}
	stats := &Statistics{LastErrors: map[string]string{}}
	for _, cred := range creds {
		if domainID != "" && (cred.DomainID == nil || *cred.DomainID != domainID) {
			continue
		}
		stats.Credentials++
		if cred.IsActive {
			stats.Active++
		}
		stats.TotalProcessed += cred.ProcessedCount
		if cred.LastError != "" {
			stats.LastErrors[cred.ID] = cred.LastError
		}
	}
	return stats, nil
}

func messageHash(msg RawMessage) string {
	h := sha256.New()
	h.Write([]byte(msg.UID))
	h.Write(msg.Data)
	return hex.EncodeToString(h.Sum(nil))
}
