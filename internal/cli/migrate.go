package cli

import (
	"errors"
	"fmt"

	"github.com/avstrong/pension/internal/config"
	"github.com/avstrong/pension/internal/migration"
	"github.com/avstrong/pension/internal/storage/cache"
	"github.com/avstrong/pension/internal/storage/postgres"
	"github.com/spf13/cobra"
)

var ErrNotPostgres = errors.New("migrate requires the postgres storage driver")

var seed bool

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the postgres schema and optionally load the seed catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, l, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = l.Sync() }()

		if cfg.Storage.Driver != config.StoragePostgres {
			return ErrNotPostgres
		}

		ctx := cmd.Context()

		db, err := postgres.Open(ctx, postgres.Config{L: l, DSN: cfg.Storage.PostgresDSN})
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}

		l.LogInfo("Schema is up to date")

		if !seed {
			return nil
		}

		if err := migration.Up(ctx, l, db); err != nil {
			return fmt.Errorf("load seed: %w", err)
		}

		l.LogInfo("Seed catalog has been loaded")

		if !cfg.Cache.Enabled {
			return nil
		}

		cacheConf := cache.Config{
			L:        l,
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		}

		client, err := cache.NewClient(ctx, cacheConf)
		if err != nil {
			return err
		}
		defer client.Close()

		return cache.NewCatalog(db, client, cacheConf).Invalidate(ctx, migration.RoomTypes(), migration.ProgramIDs())
	},
}

func init() {
	MigrateCmd.Flags().BoolVar(&seed, "seed", false, "load the seed rooms, programs and reservations")
}
