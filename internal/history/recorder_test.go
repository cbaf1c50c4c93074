package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mindwatch/internal/mind"
	"mindwatch/internal/repo"
	"mindwatch/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(i int) mind.Record {
	return mind.Record{ID: fmt.Sprintf("m%d", i), Title: "t", Status: mind.StatusSuccess, Trigger: "k"}
}

func TestAppendCapsNewestFirst(t *testing.T) {
	t.Parallel()
	var list []mind.Record
	for i := 1; i <= 21; i++ {
		list = Append(list, rec(i), SchedulerCap)
	}
	require.Len(t, list, SchedulerCap)
	assert.Equal(t, "m21", list[0].ID)
	assert.Equal(t, "m2", list[len(list)-1].ID, "m1 dropped as oldest")
}

func TestRecorderOneWritePerRecord(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	now := time.Date(2025, 9, 9, 12, 0, 0, 0, time.UTC)
	r := NewRecorder(repo.New(st), SchedulerCap, func() time.Time { return now })
	ctx := context.Background()

	m := &mind.Mind{ID: "a", Title: "stand-up"}
	require.NoError(t, r.Outcome(ctx, m, "mail", mind.StatusSuccess))
	require.NoError(t, r.Outcome(ctx, m, "ding", mind.StatusFail))
	assert.Equal(t, 2, st.Puts())

	h, ok, err := repo.New(st).LoadHistory(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, h.List, 2)
	assert.Equal(t, mind.Record{
		ID: "a", Title: "stand-up", ExecutionTime: "2025-09-09T12:00:00Z", Status: mind.StatusFail, Trigger: "ding",
	}, h.List[0])
}

func TestRecorderCapsDiffer(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	ctx := context.Background()
	sched := NewRecorder(repo.New(st), SchedulerCap, nil)
	manual := NewRecorder(repo.New(st), ManualCap, nil)

	for i := 0; i < 15; i++ {
		require.NoError(t, sched.Record(ctx, rec(i)))
	}
	h, _, err := repo.New(st).LoadHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, h.List, 15)

	require.NoError(t, manual.Record(ctx, rec(99)))
	h, _, err = repo.New(st).LoadHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, h.List, ManualCap)
	assert.Equal(t, "m99", h.List[0].ID)

	require.NoError(t, manual.Clear(ctx))
	h, _, err = repo.New(st).LoadHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, h.List)
}
