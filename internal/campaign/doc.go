// Package campaign implements the dispatch-side campaign lifecycle.
//
// The state machine is draft -> scheduled -> sending with a sending/paused
// cycle and three immutable terminal states (completed, failed, cancelled).
// The runner walks a sending campaign's recipients through the dispatch
// gate one at a time; pause and stop are observed at the per-recipient
// boundary, and an exhausted rate budget defers the remainder of the run.
//
// Campaign creation and content belong to the excluded CRUD layer.
package campaign
