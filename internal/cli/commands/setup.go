package commands

import (
	"context"
	"log/slog"

	"github.com/calidata/icaflow/internal/config"
	"github.com/calidata/icaflow/internal/store"
)

type runtimeKey struct{}

type runtime struct {
	cfg    config.Config
	logger *slog.Logger
}

// WithRuntime stores the loaded configuration and logger for the
// subcommands. The root command calls it after config resolution.
func WithRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, runtimeKey{}, runtime{cfg: cfg, logger: logger})
}

func runtimeFrom(ctx context.Context) runtime {
	if rt, ok := ctx.Value(runtimeKey{}).(runtime); ok {
		return rt
	}
	return runtime{cfg: config.Config{}, logger: slog.New(slog.DiscardHandler)}
}

// openStore connects to the configured backend.
func openStore(ctx context.Context) (*store.DB, runtime, error) {
	rt := runtimeFrom(ctx)
	db, err := store.Open(ctx, rt.cfg.Store, rt.logger)
	return db, rt, err
}
