package dispatch

import (
	"sort"
	"time"

	"mindwatch/internal/clock"
	"mindwatch/internal/mind"
)

// Selection is the outcome of evaluating the mind collection against a window.
type Selection struct {
	// Due holds reminders inside the window. The order is not part of the
	// contract; it currently follows time then id.
	Due []*mind.Mind
	// Expired lists ids disabled by this pass.
	Expired []string
	// Invalid maps ids whose time could not be parsed to the parse error.
	Invalid map[string]error
	// Dirty is set when at least one mind was modified and the set needs a write.
	Dirty bool
}

// SelectDue disables expired reminders in place and returns those due within w.
// Times without an offset are read as civil time in loc.
func SelectDue(set *mind.Set, w clock.Window, loc *time.Location) Selection {
	sel := Selection{Invalid: map[string]error{}}
	if set == nil {
		return sel
	}
	stamp := clock.Stamp(w.Now)

	type dueAt struct {
		m  *mind.Mind
		at time.Time
	}
	var due []dueAt
	for _, m := range set.All() {
		if !m.Enabled {
			continue
		}
		at, err := clock.ParseInstant(m.Time, loc)
		if err != nil {
			sel.Invalid[m.ID] = err
			continue
		}
		switch {
		case at.Before(w.Now):
			m.Enabled = false
			m.UpdatedAt = stamp
			sel.Expired = append(sel.Expired, m.ID)
			sel.Dirty = true
		case w.Contains(at):
			due = append(due, dueAt{m: m, at: at})
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].at.Equal(due[j].at) {
			return due[i].at.Before(due[j].at)
		}
		return due[i].m.ID < due[j].m.ID
	})
	sel.Due = make([]*mind.Mind, 0, len(due))
	for _, d := range due {
		sel.Due = append(sel.Due, d.m)
	}
	return sel
}
