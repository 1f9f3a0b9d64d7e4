// Package metrics provides Prometheus metrics for monitoring the relay.
//
// Key metrics:
//   - WebSocket connection counts
//   - Frames received by kind, relayed, and dropped by reason
//   - Matches and waiting pool size
//   - Evaluation reports, flushes per sink, and evicted buckets
//
// Server exposes them on a side port together with a JSON health probe.
package metrics
