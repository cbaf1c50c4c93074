package app

import (
	"context"
	"fmt"

	"mindwatch/internal/clock"
	"mindwatch/internal/config"
	"mindwatch/internal/repo"
	"mindwatch/internal/storage"
	logx "mindwatch/pkg/logx"
)

// CheckReport summarizes a config and the documents its store holds.
type CheckReport struct {
	Driver    string   `json:"driver"`
	Channels  []string `json:"channels"`
	Minds     int      `json:"minds"`
	Enabled   int      `json:"enabled"`
	Malformed int      `json:"malformed"`
	Invalid   int      `json:"invalid_time"`
	Triggers  int      `json:"triggers"`
	History   int      `json:"history"`
	// Dangling lists trigger keys referenced by a mind but not configured.
	Dangling []string `json:"dangling,omitempty"`
}

// Check validates the config at path, opens its store and verifies that
// every document decodes. Nothing is written.
func Check(ctx context.Context, path string) (CheckReport, error) {
	var rep CheckReport
	cfg, err := config.NewConfigManager(path).Parse()
	if err != nil {
		return rep, err
	}
	if err := validate(cfg); err != nil {
		return rep, fmt.Errorf("config: %w", err)
	}
	built, err := buildSenders(cfg, logx.Nop())
	if err != nil {
		return rep, err
	}
	for _, s := range built {
		rep.Channels = append(rep.Channels, string(s.Kind()))
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return rep, err
	}
	rep.Driver = sc.Driver
	if rep.Driver == "" {
		rep.Driver = "memory"
	}
	store, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return rep, fmt.Errorf("storage: %w", err)
	}
	defer store.Close()
	rp := repo.New(store)

	set, _, err := rp.LoadMinds(ctx)
	if err != nil {
		return rep, err
	}
	triggers, _, err := rp.LoadTriggers(ctx)
	if err != nil {
		return rep, err
	}
	h, _, err := rp.LoadHistory(ctx)
	if err != nil {
		return rep, err
	}

	loc, _ := clock.LoadZone(clock.DefaultZone)
	seen := map[string]bool{}
	for _, m := range set.All() {
		rep.Minds++
		if m.Enabled {
			rep.Enabled++
		}
		if _, err := clock.ParseInstant(m.Time, loc); err != nil {
			rep.Invalid++
		}
		for _, k := range m.Trigger {
			if _, ok := triggers.Lookup(k); !ok && !seen[k] {
				seen[k] = true
				rep.Dangling = append(rep.Dangling, k)
			}
		}
	}
	rep.Malformed = len(set.Malformed())
	rep.Triggers = len(triggers)
	rep.History = len(h.List)
	return rep, nil
}
