package domain

import "time"

// MetricRecord is one hour-bucketed slice of delivery telemetry for a domain,
// produced by the metrics ingestor from a single MTA file. Records are
// append-only; re-ingesting the source file must not create duplicates.
type MetricRecord struct {
	ID          string    `json:"id" db:"id"`
	Domain      string    `json:"domain" db:"domain"`
	Bucket      time.Time `json:"bucket" db:"bucket"` // truncated to the hour, UTC
	Sent        int       `json:"sent" db:"sent"`
	Delivered   int       `json:"delivered" db:"delivered"`
	HardBounced int       `json:"hard_bounced" db:"hard_bounced"`
	SoftBounced int       `json:"soft_bounced" db:"soft_bounced"`
	Complaints  int       `json:"complaints" db:"complaints"`
	SourceFile  string    `json:"source_file" db:"source_file"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// MetricCounts is the aggregate of MetricRecords over a window.
type MetricCounts struct {
	Sent        int `json:"sent"`
	Delivered   int `json:"delivered"`
	HardBounced int `json:"hard_bounced"`
	SoftBounced int `json:"soft_bounced"`
	Complaints  int `json:"complaints"`
}

// Add accumulates another record into the counts.
func (c *MetricCounts) Add(r MetricRecord) {
	c.Sent += r.Sent
	c.Delivered += r.Delivered
	c.HardBounced += r.HardBounced
	c.SoftBounced += r.SoftBounced
	c.Complaints += r.Complaints
}

// FileMarker records how far into an MTA file ingestion has consumed.
// Offset is the byte position after the last ingested record; Checksum is
// over the consumed prefix, so an appended file resumes at Offset while a
// rotated file reusing a name is re-read from the top. Records and
// ParseErrors are cumulative over the file's lifetime.
type FileMarker struct {
	SourceFile  string    `json:"source_file" db:"source_file"`
	Checksum    string    `json:"checksum" db:"checksum"`
	Offset      int64     `json:"offset" db:"byte_offset"`
	Records     int       `json:"records" db:"records"`
	ParseErrors int       `json:"parse_errors" db:"parse_errors"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}

// ReputationRates are the derived rates for one lookback window. Rates are
// fractions (0.02 = 2%), zero-valued when the denominator is zero.
type ReputationRates struct {
	WindowHours   int     `json:"window_hours"`
	Sent          int     `json:"sent"`
	Delivered     int     `json:"delivered"`
	HardBounced   int     `json:"hard_bounced"`
	SoftBounced   int     `json:"soft_bounced"`
	Complaints    int     `json:"complaints"`
	BounceRate    float64 `json:"bounce_rate"`
	ComplaintRate float64 `json:"complaint_rate"`
	DeliveryRate  float64 `json:"delivery_rate"`
}
