package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mindwatch/internal/eventbus"
	logx "mindwatch/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(size int) *Service {
	return New(Config{Enabled: true, Timezone: "Asia/Shanghai", HistorySize: size}, logx.Nop(), eventbus.New())
}

func TestAddScheduleValidation(t *testing.T) {
	t.Parallel()
	s := newTestService(0)
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.AddSchedule("", "@hourly", 0, noop))
	assert.Error(t, s.AddSchedule("x", "@hourly", 0, nil))
	assert.Error(t, s.AddSchedule("x", "61 * * * *", 0, noop))
	require.NoError(t, s.AddSchedule("dispatch", "@hourly", time.Minute, noop))
	require.NoError(t, s.AddSchedule("dispatch", "30m", time.Minute, noop), "re-adding replaces")

	snap := s.Snapshot()
	require.Len(t, snap.Schedules, 1)
	assert.Equal(t, "@every 30m0s", snap.Schedules[0].Spec)
	assert.False(t, snap.Started)
}

func TestRunNowRecordsHistory(t *testing.T) {
	t.Parallel()
	s := newTestService(3)
	var n atomic.Int32
	require.NoError(t, s.AddSchedule("dispatch", "@hourly", time.Second, func(context.Context) error {
		if n.Add(1) == 2 {
			return errors.New("store down")
		}
		return nil
	}))

	for i := 0; i < 5; i++ {
		err := s.RunNow(context.Background(), "dispatch")
		if i == 1 {
			assert.EqualError(t, err, "store down")
		} else {
			assert.NoError(t, err)
		}
	}

	hist := s.Snapshot().History
	require.Len(t, hist, 3)
	assert.Equal(t, []uint64{5, 4, 3}, []uint64{hist[0].ID, hist[1].ID, hist[2].ID})
	for _, h := range hist {
		assert.Equal(t, TriggerManual, h.Trigger)
	}
}

func TestRunNowUnknown(t *testing.T) {
	t.Parallel()
	err := newTestService(0).RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSchedule)
}

func TestRunNowRecoversPanic(t *testing.T) {
	t.Parallel()
	s := newTestService(0)
	require.NoError(t, s.AddSchedule("bad", "@hourly", 0, func(context.Context) error { panic("boom") }))

	err := s.RunNow(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, s.Snapshot().History[0].Error, "boom")
}

func TestRunNowTimeout(t *testing.T) {
	t.Parallel()
	s := newTestService(0)
	require.NoError(t, s.AddSchedule("slow", "@hourly", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), context.DeadlineExceeded)
}

func TestRunNowWithoutTimeoutHasNoDeadline(t *testing.T) {
	t.Parallel()
	s := newTestService(0)
	var hasDeadline atomic.Bool
	require.NoError(t, s.AddSchedule("dispatch", "@hourly", 0, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hasDeadline.Store(ok)
		return nil
	}))
	require.NoError(t, s.RunNow(context.Background(), "dispatch"))
	assert.False(t, hasDeadline.Load())
}

func TestCronFiresAndSkipsOverlap(t *testing.T) {
	t.Parallel()
	s := newTestService(0)
	events, unsub := s.bus.Subscribe(16)
	defer unsub()

	release := make(chan struct{})
	var started atomic.Int32
	require.NoError(t, s.AddSchedule("tick", "* * * * * *", 0, func(ctx context.Context) error {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	s.Start(context.Background())
	defer func() {
		close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	require.Eventually(t, func() bool {
		select {
		case ev := <-events:
			return ev.Type == eventbus.JobSkipped && ev.Data == "tick"
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), started.Load())

	snap := s.Snapshot()
	assert.True(t, snap.Started)
	require.Len(t, snap.Schedules, 1)
	assert.True(t, snap.Schedules[0].Running)
	assert.False(t, snap.Schedules[0].Next.IsZero())
}

func TestStartDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	s.Start(context.Background())
	assert.False(t, s.Snapshot().Started)
	s.Stop(context.Background())
}
