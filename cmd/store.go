package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sisplade-cli/internal/config"
	"github.com/sells-group/sisplade-cli/internal/store"
)

func poolConfig(sc config.StoreConfig) *store.PoolConfig {
	return &store.PoolConfig{MaxConns: sc.MaxConns, MinConns: sc.MinConns}
}

// initStore opens and migrates the configured run store. It returns a nil
// store when persistence is disabled.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, poolConfig(cfg.Store))
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if st == nil {
		return nil, nil
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// requireStore is initStore for commands that cannot run without a store.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("no run store configured (set store.driver to sqlite or postgres)")
	}
	return st, nil
}
