// Package clock computes the reference instant and advance window used by the
// dispatch engine, always in a fixed civil timezone regardless of the host.
package clock

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	DefaultZone         = "Asia/Shanghai"
	DefaultAdvanceHours = 3
	MaxAdvanceHours     = 168
)

// Window is the lookahead [Now, End] evaluated by the selector.
type Window struct {
	Now time.Time
	End time.Time
}

// Contains reports whether t lies within the window, both bounds inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Now) && !t.After(w.End)
}

type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Clock in loc. A nil now uses time.Now.
func New(loc *time.Location, now func() time.Time) Clock {
	if loc == nil {
		loc = shanghaiFallback()
	}
	if now == nil {
		now = time.Now
	}
	return Clock{loc: loc, now: now}
}

func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return shanghaiFallback()
	}
	return c.loc
}

// Now returns the current instant expressed in the clock's zone.
func (c Clock) Now() time.Time {
	now := c.now
	if now == nil {
		now = time.Now
	}
	return now().In(c.Location())
}

// Window computes (now, now+advanceHours). advanceHours is clamped first.
func (c Clock) Window(advanceHours float64) Window {
	now := c.Now()
	h := ClampAdvance(advanceHours)
	return Window{Now: now, End: now.Add(time.Duration(h * float64(time.Hour)))}
}

// ClampAdvance bounds h to [0, MaxAdvanceHours]. NaN becomes 0.
func ClampAdvance(h float64) float64 {
	switch {
	case math.IsNaN(h) || h < 0:
		return 0
	case h > MaxAdvanceHours:
		return MaxAdvanceHours
	default:
		return h
	}
}

// LoadZone resolves an IANA zone name. An empty name means DefaultZone.
// Asia/Shanghai falls back to a fixed UTC+8 zone when tzdata is missing.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == DefaultZone {
		return shanghaiFallback(), nil
	}
	return nil, fmt.Errorf("load zone %q: %w", name, err)
}

func shanghaiFallback() *time.Location {
	return time.FixedZone("CST", 8*60*60)
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

var civilLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
}

// ParseInstant parses a reminder time. Values with an explicit offset are
// absolute; values without one are civil time in loc.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if loc == nil {
		loc = shanghaiFallback()
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range civilLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// Stamp formats t for createdAt/updatedAt/executionTime fields.
func Stamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
