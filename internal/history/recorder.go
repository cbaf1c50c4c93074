// Package history appends dispatch outcomes to the bounded, newest-first
// history document.
package history

import (
	"context"
	"time"

	"mindwatch/internal/clock"
	"mindwatch/internal/mind"
)

const (
	// SchedulerCap bounds the list when records come from the dispatch path.
	SchedulerCap = 20
	// ManualCap bounds the list when records are inserted through the API.
	ManualCap = 10
)

// Store is the subset of the repository the recorder needs.
type Store interface {
	LoadHistory(ctx context.Context) (mind.History, bool, error)
	SaveHistory(ctx context.Context, h mind.History) error
}

type Recorder struct {
	store Store
	cap   int
	now   func() time.Time
}

// NewRecorder returns a recorder enforcing limit. A nil now uses time.Now.
func NewRecorder(store Store, limit int, now func() time.Time) *Recorder {
	if limit <= 0 {
		limit = SchedulerCap
	}
	if now == nil {
		now = time.Now
	}
	return &Recorder{store: store, cap: limit, now: now}
}

func (r *Recorder) Cap() int { return r.cap }

// Outcome records the result of one (mind, trigger key) attempt, stamped with
// the recording instant.
func (r *Recorder) Outcome(ctx context.Context, m *mind.Mind, key string, status mind.Status) error {
	return r.Record(ctx, mind.Record{
		ID:            m.ID,
		Title:         m.Title,
		ExecutionTime: clock.Stamp(r.now()),
		Status:        status,
		Trigger:       key,
	})
}

// Record prepends rec and persists the truncated list: one write per call.
func (r *Recorder) Record(ctx context.Context, rec mind.Record) error {
	h, _, err := r.store.LoadHistory(ctx)
	if err != nil {
		return err
	}
	h.List = Append(h.List, rec, r.cap)
	return r.store.SaveHistory(ctx, h)
}

// Clear replaces the history with an empty list.
func (r *Recorder) Clear(ctx context.Context) error {
	return r.store.SaveHistory(ctx, mind.History{List: []mind.Record{}})
}

// Append returns list with rec at the front, keeping at most limit entries.
func Append(list []mind.Record, rec mind.Record, limit int) []mind.Record {
	out := make([]mind.Record, 0, min(len(list)+1, max(limit, 1)))
	out = append(out, rec)
	for _, r := range list {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, r)
	}
	return out
}
