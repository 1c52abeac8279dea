package main

import (
	"context"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
	"github.com/yomuyume/yomuyume/pkg/config"
	"github.com/yomuyume/yomuyume/pkg/database"
	"github.com/yomuyume/yomuyume/pkg/metrics"
	"github.com/yomuyume/yomuyume/pkg/migrations"
	"github.com/yomuyume/yomuyume/pkg/version"
	"github.com/yomuyume/yomuyume/pkg/worker"
)

func main() {
	log := logger.New()

	app := &cli.App{
		Name:    "yomuyume",
		Usage:   "scan a comic library into its catalog",
		Version: version.Version,
		Action:  runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "scan the library on a schedule until interrupted",
				Action: runAction,
			},
			{
				Name:   "scan",
				Usage:  "scan the library once and exit",
				Action: scanAction,
			},
			migrateCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

// setup loads the config, opens the database and applies any pending
// migrations.
func setup(ctx context.Context) (*config.Config, *bun.DB, error) {
	log := logger.FromContext(ctx)

	cfg, err := config.New()
	if err != nil {
		return nil, nil, errors.Wrap(err, "config error")
	}

	if err := initTempDir(cfg.TempDir); err != nil {
		return nil, nil, err
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	return cfg, db, nil
}

func runAction(c *cli.Context) error {
	log := logger.New()
	ctx := log.WithContext(c.Context)

	log.Info("starting yomuyume", logger.Data{"version": version.Version})

	cfg, db, err := setup(ctx)
	if err != nil {
		return err
	}

	var srv *http.Server
	if cfg.MetricsPort > 0 {
		srv = metrics.NewServer(cfg.MetricsPort)
		go func() {
			log.Info("metrics server started", logger.Data{"port": cfg.MetricsPort})
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Error("metrics server stopped")
			}
		}()
	}

	graceful := signals.Setup()

	wrkr := worker.New(cfg, db)
	wrkr.Start()
	log.Info("worker started", logger.Data{"library_path": cfg.LibraryPath, "sync_interval_minutes": cfg.SyncIntervalMinutes})

	<-graceful
	log.Info("starting graceful shutdown")

	if srv != nil {
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Err(err).Error("metrics server shutdown error")
		}
		log.Info("metrics server shutdown")
	}

	wrkr.Shutdown()
	log.Info("worker shutdown")

	if err := db.Close(); err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")

	return nil
}

// initTempDir creates the scratch directory and checks that it's writable, so
// a misconfigured path fails at startup instead of on every title.
func initTempDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create temp directory: %s", dir)
	}

	f, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		return errors.Wrapf(err, "temp directory is not writable: %s", dir)
	}
	f.Close()

	if err := os.Remove(f.Name()); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", f.Name())
	}
	return nil
}
