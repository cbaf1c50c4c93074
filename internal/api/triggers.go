package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"mindwatch/internal/mind"
	logx "mindwatch/pkg/logx"

	"github.com/gorilla/mux"
)

type putTriggerRequest struct {
	Key    string          `json:"key"`
	Config json.RawMessage `json:"config"`
}

func (s *Server) listTriggers(w http.ResponseWriter, r *http.Request) {
	t, _, err := s.opts.Store.LoadTriggers(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "get triggers", err)
		return
	}
	writeData(w, s.log, t)
}

// putTrigger creates or replaces the config stored under key.
func (s *Server) putTrigger(w http.ResponseWriter, r *http.Request) {
	var req putTriggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" || len(req.Config) == 0 || string(req.Config) == "null" {
		writeError(w, s.log, http.StatusBadRequest, "Key and config are required")
		return
	}
	var tc mind.TriggerConfig
	if err := json.Unmarshal(req.Config, &tc); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "Invalid config: "+err.Error())
		return
	}
	if err := tc.Validate(); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "Invalid config: "+err.Error())
		return
	}

	all, _, err := s.opts.Store.LoadTriggers(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "save trigger", err)
		return
	}
	all[req.Key] = tc
	if err := s.opts.Store.SaveTriggers(r.Context(), all); err != nil {
		writeStoreError(w, s.log, "save trigger", err)
		return
	}
	s.log.Info("trigger saved", logx.String("key", req.Key), logx.String("kind", string(tc.Kind)))
	writeData(w, s.log, map[string]any{"key": req.Key, "config": tc})
}

func (s *Server) deleteTrigger(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	all, _, err := s.opts.Store.LoadTriggers(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "delete trigger", err)
		return
	}
	if _, ok := all.Lookup(key); !ok {
		writeError(w, s.log, http.StatusNotFound, "Trigger not found")
		return
	}
	delete(all, key)
	if err := s.opts.Store.SaveTriggers(r.Context(), all); err != nil {
		writeStoreError(w, s.log, "delete trigger", err)
		return
	}
	s.log.Info("trigger deleted", logx.String("key", key))
	writeMsg(w, s.log, "Trigger deleted successfully")
}
