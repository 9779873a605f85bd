package domain

import (
	"strings"
	"time"
)

// SuppressionReason enumerates why an email was suppressed.
type SuppressionReason string

const (
	ReasonHardBounce    SuppressionReason = "hard_bounce"
	ReasonSoftThreshold SuppressionReason = "soft_bounce_threshold"
	ReasonComplaint     SuppressionReason = "complaint"
	ReasonManual        SuppressionReason = "manual"
	ReasonUnsubscribe   SuppressionReason = "unsubscribe"
)

// reasonPrecedence orders reasons for upsert conflicts: delivery-signal
// reasons outrank operator-entered ones so the audit trail keeps the
// strongest evidence.
var reasonPrecedence = map[SuppressionReason]int{
	ReasonHardBounce:    4,
	ReasonComplaint:     4,
	ReasonSoftThreshold: 3,
	ReasonManual:        2,
	ReasonUnsubscribe:   1,
}

// Outranks reports whether r should replace existing on an upsert conflict.
func (r SuppressionReason) Outranks(existing SuppressionReason) bool {
	return reasonPrecedence[r] > reasonPrecedence[existing]
}

// SuppressionSource indicates where the suppression signal originated.
type SuppressionSource string

const (
	SourceBounceMailbox SuppressionSource = "bounce_mailbox"
	SourceFBLFile       SuppressionSource = "fbl_file"
	SourceImport        SuppressionSource = "import"
	SourceManual        SuppressionSource = "manual"
	SourceUnsubscribe   SuppressionSource = "unsubscribe"
)

// SuppressionEntry is a single record in the account suppression list.
// Email is stored normalized; there is at most one live entry per address.
type SuppressionEntry struct {
	ID         string            `json:"id" db:"id"`
	Email      string            `json:"email" db:"email"`
	Reason     SuppressionReason `json:"reason" db:"reason"`
	Source     SuppressionSource `json:"source" db:"source"`
	CampaignID string            `json:"campaign_id,omitempty" db:"campaign_id"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}

// NormalizeEmail lower-cases and trims an address. All suppression keys go
// through this before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
