// Package reputation computes per-domain deliverability rates from ingested
// metric records.
//
// The evaluator is pure over metric counts: bounce rate, complaint rate and
// delivery rate are fractions, zero-valued when the denominator is zero.
// The same output feeds the training engine's stage decisions and the
// read-only analytics endpoints.
package reputation
