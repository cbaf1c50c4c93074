package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mindwatch/internal/channel"
	logx "mindwatch/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type spyBot struct {
	mu    sync.Mutex
	to    []tele.Recipient
	texts []string
	opts  []*tele.SendOptions
	err   error
	block chan struct{}
}

func (b *spyBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.to = append(b.to, to)
	b.texts = append(b.texts, what.(string))
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			b.opts = append(b.opts, so)
		}
	}
	return &tele.Message{}, b.err
}

func msg() channel.Message {
	return channel.Message{
		MindID:    "m1",
		Title:     "Rotate <keys>",
		Time:      "2025-09-09 12:00",
		Target:    "-1001234",
		CancelURL: "https://mind.example.com/api/close/m1?token=t",
	}
}

func TestSend(t *testing.T) {
	t.Parallel()
	spy := &spyBot{}
	s := newWithBot(spy, time.Second, logx.Nop())

	require.NoError(t, s.Send(context.Background(), msg()))
	require.Len(t, spy.to, 1)
	assert.Equal(t, "-1001234", spy.to[0].Recipient())
	assert.Contains(t, spy.texts[0], "Rotate &lt;keys&gt;")
	assert.Contains(t, spy.texts[0], "No description provided")

	require.Len(t, spy.opts, 1)
	assert.Equal(t, tele.ModeHTML, spy.opts[0].ParseMode)
	require.NotNil(t, spy.opts[0].ReplyMarkup)
	require.Len(t, spy.opts[0].ReplyMarkup.InlineKeyboard, 1)
	assert.Equal(t, "https://mind.example.com/api/close/m1?token=t", spy.opts[0].ReplyMarkup.InlineKeyboard[0][0].URL)
}

func TestSendErrors(t *testing.T) {
	t.Parallel()

	s := newWithBot(&spyBot{}, time.Second, logx.Nop())
	bad := msg()
	bad.Target = "@channel"
	assert.Error(t, s.Send(context.Background(), bad))

	s = newWithBot(&spyBot{err: errors.New("chat not found")}, time.Second, logx.Nop())
	assert.ErrorContains(t, s.Send(context.Background(), msg()), "chat not found")
}

func TestSendHonoursContext(t *testing.T) {
	t.Parallel()
	spy := &spyBot{block: make(chan struct{})}
	t.Cleanup(func() { close(spy.block) })
	s := newWithBot(spy, time.Second, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Send(ctx, msg()), context.DeadlineExceeded)
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}, logx.Nop())
	assert.Error(t, err)
}
