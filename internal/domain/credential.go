package domain

import "time"

// MailboxProtocol identifies how a bounce mailbox is polled.
type MailboxProtocol string

const (
	ProtocolIMAP MailboxProtocol = "imap"
	ProtocolPOP3 MailboxProtocol = "pop3"
)

// BounceCredential holds the connection details for one bounce mailbox.
//
// A credential with DomainID == nil is an account-wide default candidate;
// at most one such credential per user may have IsDefault set. Domain-scoped
// credentials can never be the default.
type BounceCredential struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	DomainID        *string         `json:"domain_id" db:"domain_id"`
	Protocol        MailboxProtocol `json:"protocol" db:"protocol"`
	Host            string          `json:"host" db:"host"`
	Port            int             `json:"port" db:"port"`
	Username        string          `json:"username" db:"username"`
	SecretEncrypted string          `json:"-" db:"secret_encrypted"`
	IsDefault       bool            `json:"is_default" db:"is_default"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	LastCheckedAt   *time.Time      `json:"last_checked_at" db:"last_checked_at"`
	ProcessedCount  int64           `json:"processed_count" db:"processed_count"`
	LastError       string          `json:"last_error,omitempty" db:"last_error"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Due reports whether the credential should be polled now, given the
// configured poll interval.
func (c *BounceCredential) Due(interval time.Duration, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*c.LastCheckedAt) >= interval
}

// BounceType classifies a single bounce message.
type BounceType string

const (
	BounceHard  BounceType = "hard"
	BounceSoft  BounceType = "soft"
	BounceOther BounceType = "other"
)

// ClassifiedBounce is the outcome of parsing one mailbox message.
type ClassifiedBounce struct {
	Recipient  string     `json:"recipient"`
	Type       BounceType `json:"type"`
	DSNStatus  string     `json:"dsn_status,omitempty"` // e.g. "5.1.1"
	Diagnostic string     `json:"diagnostic,omitempty"`
	Complaint  bool       `json:"complaint"` // FBL/abuse report rather than a bounce
	MessageID  string     `json:"message_id,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
}
