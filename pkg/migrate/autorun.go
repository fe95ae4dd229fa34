package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/appointly-backend/pkg/config"
	"github.com/angelmondragon/appointly-backend/pkg/db"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup in dev when
// FeatureFlags.AutoMigrate is set. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "dialect", client.Dialect())
	applied, err := Run(ctx, sqlDB, client.Dialect(), "", "up")
	if err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "migrate.dev_autorun")
	return nil
}
