// Package mind holds the reminder data model shared by the scheduler,
// the dispatch engine and the management API.
package mind

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Document keys in the KV store.
const (
	KeyMinds    = "mind"
	KeyTriggers = "trigger"
	KeyHistory  = "history"
)

// Mind is a single time-triggered reminder.
type Mind struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Time        string   `json:"time"`
	Trigger     []string `json:"trigger"`
	Enabled     bool     `json:"enabled"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy.
func (m *Mind) Clone() *Mind {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Trigger = append([]string(nil), m.Trigger...)
	return &cp
}

// Set is the mind collection keyed by id.
//
// Entries that fail to decode are kept verbatim so a write-back never drops
// data the scheduler could not understand.
type Set struct {
	items     map[string]*Mind
	malformed map[string]json.RawMessage
	errs      map[string]error
}

func NewSet() *Set {
	return &Set{items: map[string]*Mind{}}
}

func (s *Set) Len() int { return len(s.items) }

func (s *Set) Get(id string) (*Mind, bool) {
	m, ok := s.items[id]
	return m, ok
}

// Put inserts or replaces m. A malformed entry under the same id is dropped.
func (s *Set) Put(m *Mind) {
	if m == nil {
		return
	}
	if s.items == nil {
		s.items = map[string]*Mind{}
	}
	delete(s.malformed, m.ID)
	delete(s.errs, m.ID)
	s.items[m.ID] = m
}

// Delete removes id (well-formed or not) and reports whether it existed.
func (s *Set) Delete(id string) bool {
	_, ok := s.items[id]
	_, bad := s.malformed[id]
	delete(s.items, id)
	delete(s.malformed, id)
	delete(s.errs, id)
	return ok || bad
}

// IDs returns the well-formed ids in lexical order.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the well-formed minds ordered by id.
func (s *Set) All() []*Mind {
	out := make([]*Mind, 0, len(s.items))
	for _, id := range s.IDs() {
		out = append(out, s.items[id])
	}
	return out
}

// Malformed returns the decode error of every entry that could not be read.
func (s *Set) Malformed() map[string]error {
	out := make(map[string]error, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.items = make(map[string]*Mind, len(raw))
	s.malformed = nil
	s.errs = nil
	for id, body := range raw {
		m, err := decodeMind(body)
		if err != nil {
			if s.malformed == nil {
				s.malformed = map[string]json.RawMessage{}
				s.errs = map[string]error{}
			}
			s.malformed[id] = append(json.RawMessage(nil), body...)
			s.errs[id] = err
			continue
		}
		if m.ID == "" {
			m.ID = id
		}
		s.items[id] = m
	}
	return nil
}

func (s *Set) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.items)+len(s.malformed))
	for id, body := range s.malformed {
		out[id] = body
	}
	for id, m := range s.items {
		out[id] = m
	}
	return json.Marshal(out)
}

func decodeMind(body json.RawMessage) (*Mind, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("mind entry is not an object")
	}
	var m Mind
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, err
	}
	if strings.TrimSpace(m.Time) == "" {
		return nil, fmt.Errorf("mind entry has no time")
	}
	return &m, nil
}
