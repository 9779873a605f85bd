package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign is the dispatch-side view of a campaign. Content and targeting
// are owned by the excluded CRUD layer; the core only reads recipients and
// mutates status/counters during sending.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	DomainID       string         `json:"domain_id" db:"domain_id"`
	Name           string         `json:"name" db:"name"`
	Status         CampaignStatus `json:"status" db:"status"`
	RecipientCount int            `json:"recipient_count" db:"recipient_count"`
	TotalSent      int            `json:"total_sent" db:"total_sent"`
	TotalFailed    int            `json:"total_failed" db:"total_failed"`
	StartedAt      *time.Time     `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at" db:"completed_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state. Terminal
// campaigns are immutable.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed || c.Status == CampaignCancelled
}

// Attempted returns how many recipients have been attempted so far.
func (c *Campaign) Attempted() int {
	return c.TotalSent + c.TotalFailed
}

// campaignTransitions is the allowed edge set of the dispatch state machine.
// sending ⇄ paused is the only cycle; stop (→ cancelled) is handled by
// CanTransition's non-terminal rule.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled, CampaignSending, CampaignCancelled},
	CampaignScheduled: {CampaignSending, CampaignCancelled},
	CampaignSending:   {CampaignPaused, CampaignCompleted, CampaignFailed, CampaignCancelled},
	CampaignPaused:    {CampaignSending, CampaignCancelled},
}

// CanTransition reports whether moving from the campaign's current status to
// next is a legal state-machine edge.
func (c *Campaign) CanTransition(next CampaignStatus) bool {
	if c.IsTerminal() {
		return false
	}
	for _, allowed := range campaignTransitions[c.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}
