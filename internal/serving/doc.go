// Package serving runs ad serving cycles.
//
// The Orchestrator executes one cycle: it reads the user's profile and the
// event log, queries candidates tier by tier (child segments, then parent
// segments, then untargeted), filters, paces and allocates, and hands the
// winner to Delivery.
//
// The Scheduler owns the cycle cadence. It moves Idle → Scheduled → Serving
// and back to Idle or Scheduled, arms timers through an injectable clockwork.Clock, and
// persists next_interval so restarts resume where they left off. Only one
// cycle is ever in flight; stale cycle results are dropped by generation.
package serving
