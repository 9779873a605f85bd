// Package bounce polls bounce mailboxes and turns their messages into
// suppression entries and reputation signals.
//
// Credentials point at IMAP or POP3 mailboxes. A bounded worker pool polls
// every due credential: unseen messages are fetched, deduplicated by
// message hash, classified as hard/soft/other via their DSN part (or body
// heuristics when no DSN is attached), and acted on. Hard bounces and
// complaints suppress immediately; soft bounces suppress only after
// repeating past a threshold within a window.
//
// Mailbox secrets are stored encrypted; the collector opens them just
// before connecting.
package bounce
