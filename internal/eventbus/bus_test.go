package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TickDone, Data: Tick{Due: 2}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			assert.Equal(t, TickDone, e.Type)
			assert.False(t, e.Time.IsZero(), "publish stamps the time")
			assert.Equal(t, 2, e.Data.(Tick).Due)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: DispatchSent})
	b.Publish(Event{Type: DispatchFailed})

	e := <-ch
	assert.Equal(t, DispatchSent, e.Type)
	select {
	case e := <-ch:
		t.Fatalf("expected drop, got %s", e.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	require.NotPanics(t, func() { b.Publish(Event{Type: JobSkipped}) })
}

func TestNop(t *testing.T) {
	t.Parallel()
	b := Nop()
	ch, unsub := b.Subscribe(4)
	b.Publish(Event{Type: TickDone})
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
}
