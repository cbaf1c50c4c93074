// Package scheduler fires named jobs on cron or interval schedules in a
// configured timezone.
//
// Each schedule carries an overlap gate: a cron fire is skipped while the
// previous run of the same schedule is still in flight. RunNow bypasses the
// gate for operator-triggered runs. Every run is recovered from panics,
// bounded by its timeout and appended to a small in-memory history ring.
package scheduler
