package dingtalk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mindwatch/internal/channel"
	logx "mindwatch/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type robot struct {
	mu     sync.Mutex
	bodies []map[string]any
	status int
	reply  string
}

func (r *robot) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	b, _ := io.ReadAll(req.Body)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	r.mu.Lock()
	r.bodies = append(r.bodies, m)
	r.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if r.status != 0 {
		w.WriteHeader(r.status)
	}
	_, _ = io.WriteString(w, r.reply)
}

func message(target string) channel.Message {
	return channel.Message{
		MindID:      "m1",
		Title:       "Deploy freeze",
		Description: "no merges after 18:00",
		Time:        "2025-09-09 18:00",
		Target:      target,
		CancelURL:   "https://mind.example.com/api/close/m1?token=t",
	}
}

func TestSendPostsActionCard(t *testing.T) {
	t.Parallel()
	rb := &robot{reply: `{"errcode":0,"errmsg":"ok"}`}
	srv := httptest.NewServer(rb)
	t.Cleanup(srv.Close)

	s := New(Config{Timeout: time.Second}, logx.Nop())
	require.NoError(t, s.Send(context.Background(), message(srv.URL)))

	require.Len(t, rb.bodies, 1)
	body := rb.bodies[0]
	assert.Equal(t, "actionCard", body["msgtype"])
	card, ok := body["actionCard"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Reminder: Deploy freeze", card["title"])
	assert.Equal(t, "0", card["btnOrientation"])
	assert.Equal(t, "取消提醒", card["singleTitle"])
	assert.Equal(t, "https://mind.example.com/api/close/m1?token=t", card["singleURL"])
	assert.Contains(t, card["text"], "no merges after 18:00")
}

func TestSendFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		reply  string
	}{
		{name: "errcode", reply: `{"errcode":310000,"errmsg":"keywords not in content"}`},
		{name: "http 500", status: http.StatusInternalServerError, reply: `{}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(&robot{status: tt.status, reply: tt.reply})
			t.Cleanup(srv.Close)

			s := New(Config{Timeout: time.Second}, logx.Nop())
			assert.Error(t, s.Send(context.Background(), message(srv.URL)))
		})
	}
}

func TestSendEmptyWebhook(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	assert.Error(t, s.Send(context.Background(), message("  ")))
}

func TestLimiterPerWebhook(t *testing.T) {
	t.Parallel()
	s := New(Config{PerMinute: 2}, logx.Nop())
	a := s.limiter("https://a")
	assert.Same(t, a, s.limiter("https://a"))
	assert.NotSame(t, a, s.limiter("https://b"))
	assert.True(t, a.Allow())
	assert.True(t, a.Allow())
	assert.False(t, a.Allow(), "burst exhausted")
}
