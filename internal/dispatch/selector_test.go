package dispatch

import (
	"testing"
	"time"

	"mindwatch/internal/clock"
	"mindwatch/internal/mind"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cst = time.FixedZone("CST", 8*60*60)

// refNow is 2025-09-09 12:00 Asia/Shanghai.
var refNow = time.Date(2025, 9, 9, 12, 0, 0, 0, cst)

func window(h float64) clock.Window {
	return clock.New(cst, func() time.Time { return refNow }).Window(h)
}

func setOf(ms ...*mind.Mind) *mind.Set {
	s := mind.NewSet()
	for _, m := range ms {
		s.Put(m)
	}
	return s
}

func ids(ms []*mind.Mind) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestSelectDueWindowBoundaries(t *testing.T) {
	t.Parallel()
	set := setOf(
		&mind.Mind{ID: "inside", Time: "2025-09-09 14:59", Enabled: true},
		&mind.Mind{ID: "outside", Time: "2025-09-09 15:01", Enabled: true},
		&mind.Mind{ID: "past", Time: "2025-09-09 11:59", Enabled: true},
		&mind.Mind{ID: "now", Time: "2025-09-09T12:00:00+08:00", Enabled: true},
		&mind.Mind{ID: "end", Time: "2025-09-09 15:00", Enabled: true},
	)

	sel := SelectDue(set, window(3), cst)

	assert.ElementsMatch(t, []string{"now", "inside", "end"}, ids(sel.Due))
	assert.Equal(t, []string{"past"}, sel.Expired)
	assert.True(t, sel.Dirty)
	assert.Empty(t, sel.Invalid)

	past, _ := set.Get("past")
	assert.False(t, past.Enabled)
	assert.Equal(t, clock.Stamp(refNow), past.UpdatedAt)

	outside, _ := set.Get("outside")
	assert.True(t, outside.Enabled, "future reminders stay enabled")
}

func TestSelectDueSkipsDisabledAndInvalid(t *testing.T) {
	t.Parallel()
	set := setOf(
		&mind.Mind{ID: "off-past", Time: "2025-09-09 10:00", Enabled: false, UpdatedAt: "x"},
		&mind.Mind{ID: "off-due", Time: "2025-09-09 13:00", Enabled: false},
		&mind.Mind{ID: "garbage", Time: "next tuesday", Enabled: true},
	)

	sel := SelectDue(set, window(3), cst)

	assert.Empty(t, sel.Due)
	assert.Empty(t, sel.Expired)
	assert.False(t, sel.Dirty, "disabling an already-disabled reminder is not a write")
	require.Contains(t, sel.Invalid, "garbage")

	g, _ := set.Get("garbage")
	assert.True(t, g.Enabled, "invalid time is not treated as expired")
	off, _ := set.Get("off-past")
	assert.Equal(t, "x", off.UpdatedAt)
}

func TestSelectDueZones(t *testing.T) {
	t.Parallel()
	set := setOf(
		&mind.Mind{ID: "b", Time: "2025-09-09 13:00", Enabled: true},
		&mind.Mind{ID: "a", Time: "2025-09-09T05:00:00Z", Enabled: true}, // 13:00 CST
		&mind.Mind{ID: "c", Time: "2025-09-09T12:30", Enabled: true},
		&mind.Mind{ID: "utc-late", Time: "2025-09-09T08:00:00Z", Enabled: true}, // 16:00 CST
	)

	sel := SelectDue(set, window(3), cst)
	assert.ElementsMatch(t, []string{"c", "a", "b"}, ids(sel.Due))
}

func TestSelectDueZeroAdvance(t *testing.T) {
	t.Parallel()
	set := setOf(
		&mind.Mind{ID: "exact", Time: "2025-09-09 12:00", Enabled: true},
		&mind.Mind{ID: "soon", Time: "2025-09-09 12:01", Enabled: true},
	)
	sel := SelectDue(set, window(0), cst)
	assert.Equal(t, []string{"exact"}, ids(sel.Due))
	assert.Empty(t, sel.Expired)
}

func TestSelectDueNilSet(t *testing.T) {
	t.Parallel()
	sel := SelectDue(nil, window(3), cst)
	assert.Empty(t, sel.Due)
	assert.False(t, sel.Dirty)
}
