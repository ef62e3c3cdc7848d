package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled. sqlite databases get the embedded schema instead of goose.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	if strings.EqualFold(cfg.DB.Driver, db.DriverSQLite) {
		logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "applying sqlite schema (dev auto-run)")
		return ApplySQLiteSchema(ctx, sqlDB)
	}

	meta := map[string]any{"env": cfg.App.Env, "dir": DefaultDir}
	ctx = logg.WithFields(ctx, meta)
	logg.Info(ctx, "running Goose migrations (dev auto-run)")

	migrator, err := New(sqlDB, DefaultDir, logg)
	if err != nil {
		return err
	}
	if err := migrator.Up(ctx); err != nil {
		return err
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}
