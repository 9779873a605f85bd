// Package ingest parses MTA-produced accounting, feedback-loop and
// diagnostic files into normalized per-domain hourly metric records.
//
// Ingestion is idempotent: every fully processed file gets a marker with a
// content checksum, and a file whose checksum is already on record is
// skipped. Rotated files that reuse a name are re-read because the checksum
// changes. Malformed lines are skipped and counted, never fatal to the file.
//
// The service layer depends on the Repository interface defined in
// repository.go. It never imports database/sql directly.
package ingest
