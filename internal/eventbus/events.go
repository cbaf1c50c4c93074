package eventbus

import "time"

// Event types published by the dispatch engine and the scheduler.
const (
	MindExpired    = "mind.expired"
	DispatchSent   = "dispatch.sent"
	DispatchFailed = "dispatch.failed"
	TickDone       = "tick.done"
	TickFallback   = "tick.fallback"
	JobSkipped     = "job.skipped"
)

// Dispatch is the payload of DispatchSent and DispatchFailed.
type Dispatch struct {
	MindID  string
	Key     string
	Kind    string
	Reason  string
	Elapsed time.Duration
}

// Tick is the payload of TickDone and TickFallback.
type Tick struct {
	Due      int
	Expired  int
	Invalid  int
	Sent     int
	Failed   int
	Skipped  int
	Panicked int
	Elapsed  time.Duration
	Err      string
}
