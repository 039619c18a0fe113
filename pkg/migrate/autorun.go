package migrate

import (
	"context"
	"fmt"

	"github.com/aruvi/kot-gateway/pkg/config"
	"github.com/aruvi/kot-gateway/pkg/db"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

// MaybeAutoRun applies pending migrations at startup when the feature flag is
// enabled. A gateway box usually owns its sqlite file, so the flag defaults on.
func MaybeAutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": client.Driver()})
	logg.Info(ctx, "migrate.autorun.start")

	if err := Run(ctx, sqlDB, client.Driver(), "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "migrate.autorun.done")
	return nil
}
