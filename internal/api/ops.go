package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mindwatch/internal/runtime/supervisor"
	"mindwatch/internal/task/scheduler"
	logx "mindwatch/pkg/logx"

	"github.com/gorilla/mux"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeMsg(w, s.log, "ok")
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if !tokenEqual(mux.Vars(r)["token"], s.config().Token) {
		writeError(w, s.log, http.StatusUnauthorized, "login fail")
		return
	}
	writeMsg(w, s.log, "login success")
}

// handleRun executes one dispatch tick synchronously and reports its outcome.
// The tick outlives a client that hangs up: sends in flight and their history
// writes are not aborted.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runner == nil {
		writeError(w, s.log, http.StatusServiceUnavailable, "Scheduler not available")
		return
	}
	start := time.Now()
	err := s.opts.Runner.RunNow(context.WithoutCancel(r.Context()), s.opts.Job)
	took := time.Since(start)
	switch {
	case errors.Is(err, scheduler.ErrUnknownSchedule):
		writeError(w, s.log, http.StatusNotFound, err.Error())
	case err != nil:
		s.log.Warn("manual run failed", logx.Err(err), logx.Duration("took", took))
		writeError(w, s.log, http.StatusInternalServerError, "Run failed: "+err.Error())
	default:
		s.log.Info("manual run done", logx.Duration("took", took))
		writeData(w, s.log, map[string]any{"job": s.opts.Job, "took": took.String()})
	}
}

// status is the scheduler snapshot plus the supervised goroutines.
type status struct {
	scheduler.Snapshot
	Workers []supervisor.Stats `json:"workers,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Runner == nil {
		writeError(w, s.log, http.StatusServiceUnavailable, "Scheduler not available")
		return
	}
	out := status{Snapshot: s.opts.Runner.Snapshot()}
	if s.opts.Workers != nil {
		out.Workers = s.opts.Workers()
	}
	writeData(w, s.log, out)
}
