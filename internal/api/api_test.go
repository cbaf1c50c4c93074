package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mindwatch/internal/clock"
	"mindwatch/internal/mind"
	"mindwatch/internal/repo"
	"mindwatch/internal/runtime/supervisor"
	"mindwatch/internal/storage"
	"mindwatch/internal/task/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiToken = "s3cret"

var cst = time.FixedZone("CST", 8*60*60)

type fakeRunner struct {
	calls  []string
	err    error
	ctxErr error
}

func (f *fakeRunner) RunNow(ctx context.Context, name string) error {
	f.calls = append(f.calls, name)
	f.ctxErr = ctx.Err()
	return f.err
}

func (f *fakeRunner) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{Enabled: true, Timezone: "Asia/Shanghai"}
}

type fixture struct {
	mem    *storage.Memory
	repo   *repo.Repository
	runner *fakeRunner
	srv    *Server
	h      http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storage.NewMemory()
	rp := repo.New(mem)
	runner := &fakeRunner{}
	now := time.Date(2025, 9, 9, 12, 0, 0, 0, cst)
	srv := New(Config{Enabled: true, Token: apiToken, CloseToken: "close-me"}, Options{
		Store:    rp,
		Runner:   runner,
		Job:      "dispatch",
		Clock:    clock.New(cst, func() time.Time { return now }),
		Gatherer: prometheus.NewRegistry(),
	})
	return &fixture{mem: mem, repo: rp, runner: runner, srv: srv, h: srv.Handler()}
}

type reply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Msg     string          `json:"msg"`
}

func (f *fixture) do(t *testing.T, method, path string, body any, auth bool) (int, reply) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if auth {
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)

	var out reply
	if rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr.Code, out
}

func (f *fixture) seedMind(t *testing.T, m *mind.Mind) {
	t.Helper()
	set, _, err := f.repo.LoadMinds(context.Background())
	require.NoError(t, err)
	set.Put(m)
	require.NoError(t, f.repo.SaveMinds(context.Background(), set))
}

func TestAuth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, _ := f.do(t, http.MethodGet, "/api/mind", nil, false)
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodGet, "/api/mind", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	code, _ = f.do(t, http.MethodGet, "/api/mind", nil, true)
	assert.Equal(t, http.StatusOK, code)

	code, out := f.do(t, http.MethodGet, "/api/auth/"+apiToken, nil, false)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, out.Success)
	code, out = f.do(t, http.MethodGet, "/api/auth/wrong", nil, false)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, out.Success)

	code, _ = f.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, code)
}

func TestEmptyTokenDeniesEverything(t *testing.T) {
	t.Parallel()
	srv := New(Config{}, Options{Store: repo.New(storage.NewMemory())})
	req := httptest.NewRequest(http.MethodGet, "/api/mind", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMindLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, out := f.do(t, http.MethodPost, "/api/mind", map[string]any{
		"title":   "Renew domain",
		"time":    "2025-09-10 09:00",
		"trigger": []string{"ops", " ", "dev"},
	}, true)
	require.Equal(t, http.StatusOK, code, out.Msg)
	var created mind.Mind
	require.NoError(t, json.Unmarshal(out.Data, &created))
	assert.Len(t, created.ID, 36)
	assert.True(t, created.Enabled)
	assert.Equal(t, []string{"ops", "dev"}, created.Trigger)
	assert.Equal(t, "2025-09-09T12:00:00+08:00", created.CreatedAt)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	code, out = f.do(t, http.MethodGet, "/api/mind", nil, true)
	require.Equal(t, http.StatusOK, code)
	var all map[string]mind.Mind
	require.NoError(t, json.Unmarshal(out.Data, &all))
	assert.Contains(t, all, created.ID)

	code, out = f.do(t, http.MethodPut, "/api/mind/"+created.ID, map[string]any{
		"title":   "",
		"enabled": false,
	}, true)
	require.Equal(t, http.StatusOK, code)
	var updated mind.Mind
	require.NoError(t, json.Unmarshal(out.Data, &updated))
	assert.Equal(t, "Renew domain", updated.Title, "empty title keeps the stored one")
	assert.False(t, updated.Enabled)
	assert.Equal(t, []string{"ops", "dev"}, updated.Trigger)

	code, _ = f.do(t, http.MethodGet, "/api/mind/"+created.ID, nil, true)
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodDelete, "/api/mind/"+created.ID, nil, true)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodDelete, "/api/mind/"+created.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, http.MethodPut, "/api/mind/"+created.ID, map[string]any{"title": "x"}, true)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateMindValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for name, body := range map[string]any{
		"no title": map[string]any{"time": "2025-09-10 09:00"},
		"no time":  map[string]any{"title": "x"},
		"bad time": map[string]any{"title": "x", "time": "tomorrow-ish"},
	} {
		code, out := f.do(t, http.MethodPost, "/api/mind", body, true)
		assert.Equal(t, http.StatusBadRequest, code, name)
		assert.False(t, out.Success, name)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/mind", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+apiToken)
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, f.mem.Puts())
}

func TestCloseLink(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedMind(t, &mind.Mind{ID: "m1", Title: "t", Time: "2025-09-09 13:00", Enabled: true})

	code, _ := f.do(t, http.MethodGet, "/api/close/m1?token=wrong", nil, false)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodGet, "/api/close/missing?token=close-me", nil, false)
	assert.Equal(t, http.StatusNotFound, code)

	code, out := f.do(t, http.MethodGet, "/api/close/m1?token=close-me", nil, false)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, out.Success)

	set, _, err := f.repo.LoadMinds(context.Background())
	require.NoError(t, err)
	m, _ := set.Get("m1")
	assert.False(t, m.Enabled)
	assert.Equal(t, "2025-09-09T12:00:00+08:00", m.UpdatedAt)
}

func TestCloseLinkRequiresConfiguredToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.srv.Apply(context.Background(), Config{Token: apiToken}))
	f.seedMind(t, &mind.Mind{ID: "m1", Title: "t", Time: "2025-09-09 13:00", Enabled: true})

	code, _ := f.do(t, http.MethodGet, "/api/close/m1?token=", nil, false)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestTriggers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, out := f.do(t, http.MethodPost, "/api/trigger", map[string]any{
		"key":    "ops",
		"config": map[string]any{"type": "email", "to": "ops@example.com"},
	}, true)
	require.Equal(t, http.StatusOK, code, out.Msg)

	code, out = f.do(t, http.MethodPost, "/api/trigger", map[string]any{
		"key":    "tg",
		"config": map[string]any{"type": "telegram", "chat_id": -1001234},
	}, true)
	require.Equal(t, http.StatusOK, code, out.Msg)

	code, out = f.do(t, http.MethodGet, "/api/trigger", nil, true)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t,
		`{"ops":{"type":"email","to":"ops@example.com"},"tg":{"type":"telegram","chat_id":"-1001234"}}`,
		string(out.Data))

	code, _ = f.do(t, http.MethodPost, "/api/trigger", map[string]any{
		"key":    "bad",
		"config": map[string]any{"type": "email"},
	}, true)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPost, "/api/trigger", map[string]any{"key": "x"}, true)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodDelete, "/api/trigger/ops", nil, true)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodDelete, "/api/trigger/ops", nil, true)
	assert.Equal(t, http.StatusNotFound, code)

	trig, _, err := f.repo.LoadTriggers(context.Background())
	require.NoError(t, err)
	assert.Len(t, trig, 1)
}

func TestHistoryManualCap(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for i := 0; i < 12; i++ {
		code, out := f.do(t, http.MethodPost, "/api/history", map[string]any{
			"id":            fmt.Sprintf("m%d", i),
			"title":         "t",
			"executionTime": "2025-09-09T12:00:00+08:00",
			"status":        "success",
			"trigger":       "ignored",
		}, true)
		require.Equal(t, http.StatusOK, code, out.Msg)
	}

	h, _, err := f.repo.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, h.List, 10)
	assert.Equal(t, "m11", h.List[0].ID)
	assert.Equal(t, "m2", h.List[9].ID)
	assert.Empty(t, h.List[0].Trigger)

	code, _ := f.do(t, http.MethodPost, "/api/history", map[string]any{
		"id": "x", "title": "t", "executionTime": "now", "status": "maybe",
	}, true)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPost, "/api/history", map[string]any{"id": "x"}, true)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodDelete, "/api/history", nil, true)
	assert.Equal(t, http.StatusOK, code)
	code, out := f.do(t, http.MethodGet, "/api/history", nil, true)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"his_list":[]}`, string(out.Data))
}

func TestRunAndStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, out := f.do(t, http.MethodPost, "/api/run", nil, true)
	require.Equal(t, http.StatusOK, code, out.Msg)
	assert.Equal(t, []string{"dispatch"}, f.runner.calls)

	f.runner.err = errors.New("store down")
	code, out = f.do(t, http.MethodPost, "/api/run", nil, true)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, out.Msg, "store down")

	f.runner.err = fmt.Errorf("%w: %q", scheduler.ErrUnknownSchedule, "dispatch")
	code, _ = f.do(t, http.MethodPost, "/api/run", nil, true)
	assert.Equal(t, http.StatusNotFound, code)

	code, out = f.do(t, http.MethodGet, "/api/status", nil, true)
	require.Equal(t, http.StatusOK, code)
	var snap scheduler.Snapshot
	require.NoError(t, json.Unmarshal(out.Data, &snap))
	assert.Equal(t, "Asia/Shanghai", snap.Timezone)
}

func TestStatusListsWorkers(t *testing.T) {
	t.Parallel()
	started := time.Date(2025, 9, 9, 11, 0, 0, 0, cst)
	srv := New(Config{Enabled: true, Token: apiToken}, Options{
		Store:  repo.New(storage.NewMemory()),
		Runner: &fakeRunner{},
		Job:    "dispatch",
		Workers: func() []supervisor.Stats {
			return []supervisor.Stats{{Name: "metrics", Active: 1, Restarts: 2, LastStartAt: started}}
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+apiToken)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out struct {
		Data struct {
			Timezone string             `json:"timezone"`
			Workers  []supervisor.Stats `json:"workers"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "Asia/Shanghai", out.Data.Timezone)
	require.Len(t, out.Data.Workers, 1)
	assert.Equal(t, "metrics", out.Data.Workers[0].Name)
	assert.Equal(t, 2, out.Data.Workers[0].Restarts)
}

func TestRunSurvivesClientHangup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/run", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+apiToken)
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, []string{"dispatch"}, f.runner.calls)
	assert.NoError(t, f.runner.ctxErr, "tick context must not follow the request")
}

func TestCorruptDocumentIs500(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.mem.Put(context.Background(), mind.KeyMinds, []byte(`[1,2`)))

	code, out := f.do(t, http.MethodGet, "/api/mind", nil, true)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, out.Success)
	assert.Contains(t, out.Msg, "corrupt")

	code, _ = f.do(t, http.MethodPost, "/api/mind", map[string]any{"title": "x", "time": "2025-09-10 09:00"}, true)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestPprofGatedByConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.Header.Set("Authorization", "Bearer "+apiToken)
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	srv := New(Config{Token: apiToken, Pprof: true}, Options{Store: f.repo})
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestApplyStartsAndStops(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.srv.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: apiToken}))
	addr := f.srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.srv.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "rotated"}))
	assert.Equal(t, addr, f.srv.Addr(), "token change keeps the listener")

	require.NoError(t, f.srv.Apply(ctx, Config{Enabled: false}))
	assert.Empty(t, f.srv.Addr())
	f.srv.Stop(ctx)
}
