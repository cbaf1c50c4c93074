// Package channel defines the uniform send contract the dispatch engine uses
// for every notification transport.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"mindwatch/internal/mind"
)

// ErrNoSender is returned when a known kind has no configured transport.
var ErrNoSender = errors.New("no sender configured for channel")

// Message is what a sender needs to notify about one reminder.
type Message struct {
	MindID      string
	Title       string
	Description string
	Time        string
	Target      string
	CancelURL   string
}

type Sender interface {
	Kind() mind.Kind
	Send(ctx context.Context, msg Message) error
}

// Registry maps channel kinds to senders. Safe for concurrent use so the
// app can swap senders on config reload.
type Registry struct {
	mu      sync.RWMutex
	senders map[mind.Kind]Sender
}

func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: map[mind.Kind]Sender{}}
	for _, s := range senders {
		r.Set(s)
	}
	return r
}

func (r *Registry) Set(s Sender) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.senders[s.Kind()] = s
	r.mu.Unlock()
}

func (r *Registry) Remove(kind mind.Kind) {
	r.mu.Lock()
	delete(r.senders, kind)
	r.mu.Unlock()
}

func (r *Registry) Lookup(kind mind.Kind) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[kind]
	return s, ok
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []mind.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mind.Kind, 0, len(r.senders))
	for k := range r.senders {
		out = append(out, k)
	}
	return out
}

// CancelLink builds <base-url>/api/close/<id>?token=<token>.
func CancelLink(baseURL, id, token string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	q := url.Values{}
	q.Set("token", token)
	return fmt.Sprintf("%s/api/close/%s?%s", base, url.PathEscape(id), q.Encode())
}
