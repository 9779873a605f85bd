// Package training implements the per-domain sending-rate stage machine.
//
// Each sending domain sits at a stage on an ascending schedule of daily
// caps. On every analysis cycle the engine reads the domain's reputation
// over a lookback window and advances, holds, or rolls back the stage.
// Rollback always wins over throughput: either rate past its rollback
// threshold drops the stage immediately, dwell time notwithstanding.
//
// In manual mode a cycle produces a recommendation only; the operator
// applies it explicitly. In automatic mode decisions take effect at once.
// Analysis for one domain is serialized with a distributed lock keyed by
// domain id; different domains are independent.
package training
