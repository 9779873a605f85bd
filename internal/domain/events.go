package domain

import "time"

// EventType names the domain events the core publishes. Delivery-channel
// fan-out (mail/Telegram/database) belongs to the external notification
// collaborator; the core only emits.
type EventType string

const (
	EventStageAdvanced     EventType = "stage_advanced"
	EventStageRolledBack   EventType = "stage_rolled_back"
	EventBounceSuppressed  EventType = "bounce_suppressed"
	EventCampaignCompleted EventType = "campaign_completed"
	EventCampaignFailed    EventType = "campaign_failed"
)

// Event is a single domain event on the bus.
type Event struct {
	Type       EventType      `json:"type"`
	Domain     string         `json:"domain,omitempty"`
	Email      string         `json:"email,omitempty"`
	CampaignID string         `json:"campaign_id,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
