package api

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"runtime/debug"
	"strings"
	"time"

	logx "mindwatch/pkg/logx"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler builds the route table. Pprof routes follow the config at build time.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverMiddleware, s.logMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	pub := r.PathPrefix("/api").Subrouter()
	pub.HandleFunc("/auth/{token}", s.handleAuth).Methods(http.MethodGet)
	pub.HandleFunc("/close/{id}", s.handleClose).Methods(http.MethodGet)

	priv := r.PathPrefix("/api").Subrouter()
	priv.Use(s.authMiddleware)
	priv.HandleFunc("/mind", s.listMinds).Methods(http.MethodGet)
	priv.HandleFunc("/mind", s.createMind).Methods(http.MethodPost)
	priv.HandleFunc("/mind/{id}", s.getMind).Methods(http.MethodGet)
	priv.HandleFunc("/mind/{id}", s.updateMind).Methods(http.MethodPut)
	priv.HandleFunc("/mind/{id}", s.deleteMind).Methods(http.MethodDelete)
	priv.HandleFunc("/trigger", s.listTriggers).Methods(http.MethodGet)
	priv.HandleFunc("/trigger", s.putTrigger).Methods(http.MethodPost)
	priv.HandleFunc("/trigger/{key}", s.deleteTrigger).Methods(http.MethodDelete)
	priv.HandleFunc("/history", s.listHistory).Methods(http.MethodGet)
	priv.HandleFunc("/history", s.addHistory).Methods(http.MethodPost)
	priv.HandleFunc("/history", s.clearHistory).Methods(http.MethodDelete)
	priv.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	priv.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	if s.config().Pprof {
		dbg := r.PathPrefix("/debug/pprof").Subrouter()
		dbg.Use(s.authMiddleware)
		dbg.HandleFunc("/cmdline", pprof.Cmdline)
		dbg.HandleFunc("/profile", pprof.Profile)
		dbg.HandleFunc("/symbol", pprof.Symbol)
		dbg.HandleFunc("/trace", pprof.Trace)
		dbg.PathPrefix("/").HandlerFunc(pprof.Index)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, s.log, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, s.log, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// authMiddleware requires "Authorization: Bearer <api token>".
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		tok, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || !tokenEqual(strings.TrimSpace(tok), s.config().Token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mindwatch"`)
			writeError(w, s.log, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenEqual compares in constant time. An unset expected token never matches.
func tokenEqual(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered",
					logx.Any("panic", rec),
					logx.String("method", r.Method),
					logx.String("path", r.URL.Path),
					logx.Stack(string(debug.Stack())),
				)
				writeError(w, s.log, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.log.Enabled(logx.LevelDebug) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		// Path only: the close link carries its token in the query.
		s.log.Debug("request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("took", time.Since(start)),
		)
	})
}
