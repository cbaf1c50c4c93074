package api

import (
	"net/http"
	"strings"

	"mindwatch/internal/mind"
)

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	h, _, err := s.opts.Store.LoadHistory(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "get history", err)
		return
	}
	writeData(w, s.log, h)
}

func (s *Server) addHistory(w http.ResponseWriter, r *http.Request) {
	var rec mind.Record
	if err := decodeBody(w, r, &rec); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.Title) == "" ||
		strings.TrimSpace(rec.ExecutionTime) == "" || rec.Status == "" {
		writeError(w, s.log, http.StatusBadRequest, "id, title, executionTime, and status are required")
		return
	}
	if !rec.Status.Valid() {
		writeError(w, s.log, http.StatusBadRequest, `status must be "success" or "fail"`)
		return
	}
	// Manual inserts are not tied to a trigger key.
	rec.Trigger = ""

	if err := s.opts.Recorder.Record(r.Context(), rec); err != nil {
		writeStoreError(w, s.log, "add history record", err)
		return
	}
	h, _, err := s.opts.Store.LoadHistory(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "add history record", err)
		return
	}
	writeData(w, s.log, h)
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Recorder.Clear(r.Context()); err != nil {
		writeStoreError(w, s.log, "clear history", err)
		return
	}
	writeMsg(w, s.log, "History cleared successfully")
}
