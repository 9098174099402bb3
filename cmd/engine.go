package cmd

import (
	"fmt"

	"github.com/tempohq/tempo/internal/backend"
	"github.com/tempohq/tempo/internal/config"
	"github.com/tempohq/tempo/internal/store"
	tsync "github.com/tempohq/tempo/internal/sync"
)

// runtimeDeps bundles everything a command needs to talk to the
// backend. Close releases the store.
type runtimeDeps struct {
	cfg    *config.Config
	client *backend.Client
	events *backend.EventStream
	store  *store.Store
}

func (d *runtimeDeps) Close() {
	if d.store != nil {
		d.store.Close()
	}
}

// openDeps loads configuration and opens the local store.
func openDeps() (*runtimeDeps, error) {
	cfg, err := config.Load(getBaseDir())
	if err != nil {
		return nil, err
	}

	st, err := store.Open(getBaseDir())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &runtimeDeps{
		cfg:    cfg,
		client: backend.New(cfg.ServerURL, cfg.APIKey),
		events: backend.NewEventStream(cfg.ServerURL, cfg.APIKey),
		store:  st,
	}, nil
}

// engineOptions applies config overrides on top of engine defaults.
func engineOptions(deps *runtimeDeps) tsync.Options {
	opts := tsync.Options{Bookkeeper: deps.store}
	if d := deps.cfg.SyncTimeout.Duration; d > 0 {
		opts.SyncTimeout = d
	}
	if d := deps.cfg.HealthCheckInterval.Duration; d > 0 {
		opts.HealthCheckInterval = d
	}
	return opts
}
