package api

import (
	"net/http"
	"strings"

	"mindwatch/internal/clock"
	"mindwatch/internal/mind"
	logx "mindwatch/pkg/logx"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type createMindRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Time        string   `json:"time"`
	Trigger     []string `json:"trigger"`
	Enabled     *bool    `json:"enabled"`
}

// updateMindRequest is a merge patch: nil fields keep the stored value.
type updateMindRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Time        *string   `json:"time"`
	Trigger     *[]string `json:"trigger"`
	Enabled     *bool     `json:"enabled"`
}

func (s *Server) listMinds(w http.ResponseWriter, r *http.Request) {
	set, _, err := s.opts.Store.LoadMinds(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "get minds", err)
		return
	}
	writeData(w, s.log, set)
}

func (s *Server) getMind(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	set, _, err := s.opts.Store.LoadMinds(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "get mind", err)
		return
	}
	m, ok := set.Get(id)
	if !ok {
		writeError(w, s.log, http.StatusNotFound, "Mind not found")
		return
	}
	writeData(w, s.log, m)
}

func (s *Server) createMind(w http.ResponseWriter, r *http.Request) {
	var req createMindRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Time = strings.TrimSpace(req.Time)
	if req.Title == "" || req.Time == "" {
		writeError(w, s.log, http.StatusBadRequest, "Title and time are required")
		return
	}
	if _, err := clock.ParseInstant(req.Time, s.opts.Clock.Location()); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "Invalid time: "+err.Error())
		return
	}

	set, _, err := s.opts.Store.LoadMinds(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "create mind", err)
		return
	}
	now := s.now()
	m := &mind.Mind{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Time:        req.Time,
		Trigger:     cleanKeys(req.Trigger),
		Enabled:     req.Enabled == nil || *req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	set.Put(m)
	if err := s.opts.Store.SaveMinds(r.Context(), set); err != nil {
		writeStoreError(w, s.log, "create mind", err)
		return
	}
	s.log.Info("mind created", logx.String("mind", m.ID), logx.String("time", m.Time))
	writeData(w, s.log, m)
}

func (s *Server) updateMind(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateMindRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Time != nil {
		t := strings.TrimSpace(*req.Time)
		if _, err := clock.ParseInstant(t, s.opts.Clock.Location()); err != nil {
			writeError(w, s.log, http.StatusBadRequest, "Invalid time: "+err.Error())
			return
		}
		req.Time = &t
	}

	set, _, err := s.opts.Store.LoadMinds(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "update mind", err)
		return
	}
	m, ok := set.Get(id)
	if !ok {
		writeError(w, s.log, http.StatusNotFound, "Mind not found")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		m.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	if req.Time != nil {
		m.Time = *req.Time
	}
	if req.Trigger != nil {
		m.Trigger = cleanKeys(*req.Trigger)
	}
	if req.Enabled != nil {
		m.Enabled = *req.Enabled
	}
	m.UpdatedAt = s.now()

	if err := s.opts.Store.SaveMinds(r.Context(), set); err != nil {
		writeStoreError(w, s.log, "update mind", err)
		return
	}
	writeData(w, s.log, m)
}

func (s *Server) deleteMind(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	set, _, err := s.opts.Store.LoadMinds(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "delete mind", err)
		return
	}
	if !set.Delete(id) {
		writeError(w, s.log, http.StatusNotFound, "Mind not found")
		return
	}
	if err := s.opts.Store.SaveMinds(r.Context(), set); err != nil {
		writeStoreError(w, s.log, "delete mind", err)
		return
	}
	s.log.Info("mind deleted", logx.String("mind", id))
	writeMsg(w, s.log, "Mind deleted successfully")
}

// handleClose serves the cancellation link embedded in every notification.
// It is authenticated by the close token in the query, not the API token.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !tokenEqual(r.URL.Query().Get("token"), s.config().CloseToken) {
		writeError(w, s.log, http.StatusUnauthorized, "Invalid token")
		return
	}
	set, _, err := s.opts.Store.LoadMinds(r.Context())
	if err != nil {
		writeStoreError(w, s.log, "close mind", err)
		return
	}
	m, ok := set.Get(id)
	if !ok {
		writeError(w, s.log, http.StatusNotFound, "Mind not found")
		return
	}
	m.Enabled = false
	m.UpdatedAt = s.now()
	if err := s.opts.Store.SaveMinds(r.Context(), set); err != nil {
		writeStoreError(w, s.log, "close mind", err)
		return
	}
	s.log.Info("mind closed via link", logx.String("mind", id))
	writeMsg(w, s.log, "Reminder closed")
}

// cleanKeys trims trigger keys and drops empty ones, keeping order.
func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
