// Package repo maps the mind, trigger and history documents onto typed values.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mindwatch/internal/mind"
	"mindwatch/internal/storage"
)

// ErrDecode marks a stored document that exists but cannot be parsed.
var ErrDecode = errors.New("decode document")

type Repository struct {
	store storage.Store
}

func New(store storage.Store) *Repository {
	return &Repository{store: store}
}

// LoadMinds returns the mind collection. ok is false when the document is absent.
func (r *Repository) LoadMinds(ctx context.Context) (*mind.Set, bool, error) {
	set := mind.NewSet()
	ok, err := r.load(ctx, mind.KeyMinds, set)
	if err != nil || !ok {
		return mind.NewSet(), ok, err
	}
	return set, true, nil
}

func (r *Repository) SaveMinds(ctx context.Context, set *mind.Set) error {
	if set == nil {
		set = mind.NewSet()
	}
	return r.save(ctx, mind.KeyMinds, set)
}

// LoadTriggers returns the trigger collection; an absent document is an empty map.
func (r *Repository) LoadTriggers(ctx context.Context) (mind.Triggers, bool, error) {
	var t mind.Triggers
	ok, err := r.load(ctx, mind.KeyTriggers, &t)
	if err != nil {
		return mind.Triggers{}, ok, err
	}
	if t == nil {
		t = mind.Triggers{}
	}
	return t, ok, nil
}

func (r *Repository) SaveTriggers(ctx context.Context, t mind.Triggers) error {
	if t == nil {
		t = mind.Triggers{}
	}
	return r.save(ctx, mind.KeyTriggers, t)
}

// LoadHistory returns the history document; an absent document is an empty list.
func (r *Repository) LoadHistory(ctx context.Context) (mind.History, bool, error) {
	var h mind.History
	ok, err := r.load(ctx, mind.KeyHistory, &h)
	if err != nil {
		return mind.History{List: []mind.Record{}}, ok, err
	}
	if h.List == nil {
		h.List = []mind.Record{}
	}
	return h, ok, nil
}

func (r *Repository) SaveHistory(ctx context.Context, h mind.History) error {
	if h.List == nil {
		h.List = []mind.Record{}
	}
	return r.save(ctx, mind.KeyHistory, h)
}

func (r *Repository) load(ctx context.Context, key string, v any) (bool, error) {
	b, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok || len(b) == 0 || string(b) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return true, fmt.Errorf("%w %s: %v", ErrDecode, key, err)
	}
	return true, nil
}

func (r *Repository) save(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.Put(ctx, key, b); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
