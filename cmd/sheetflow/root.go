package main

import (
	"context"
	"fmt"

	"github.com/datallboy/sheetflow/internal/app"
	"github.com/datallboy/sheetflow/internal/backup"
	"github.com/datallboy/sheetflow/internal/container"
	"github.com/datallboy/sheetflow/internal/downloader"
	"github.com/datallboy/sheetflow/internal/handoff"
	"github.com/datallboy/sheetflow/internal/infra/config"
	"github.com/datallboy/sheetflow/internal/infra/logger"
	"github.com/datallboy/sheetflow/internal/platform"
	"github.com/datallboy/sheetflow/internal/store"
	"github.com/datallboy/sheetflow/internal/watcher"
	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sheetflow",
		Short:         "Hand spreadsheets to a local n8n workflow and collect the results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newExportCmd(),
		newImportCmd(),
		newContainerCmd(),
		newRunsCmd(),
	)
	return root
}

// bootstrap loads config and wires every service into an app.Context. The
// returned cleanup closes the store.
func bootstrap(ctx context.Context) (*app.Context, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}

	log, err := logger.New(cfg.ResolvePath(cfg.Log.Path), logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	notes, err := platform.ValidateDependencies(cfg.Container.Runtime)
	if err != nil {
		log.Warn("%v", err)
	}
	for _, n := range notes {
		log.Debug("%s", n)
	}

	a := app.NewContext(cfg, log)
	a.Env = platform.Detect(ctx, platform.Options{})
	log.Debug("Platform: %s, downloads: %s", a.Env.Name(), a.Env.DownloadsDir())

	dsn := cfg.Store.PostgresDSN
	if cfg.Store.Driver == store.DriverSQLite {
		dsn = cfg.ResolvePath(cfg.Store.SQLitePath)
	}
	db, err := store.NewPersistentStore(cfg.Store.Driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run store: %w", err)
	}

	layout := cfg.Layout()
	runtime := container.NewRuntime(cfg.Container.Runtime, cfg.Container.Name, layout.DockerDir, cfg.Container.StartScript, cfg.Container.StopScript)
	trigger := handoff.NewTrigger(cfg.TestWebhookURL(), cfg.WebhookURL(), cfg.N8N.Template, cfg.N8N.TriggerTimeout, log)

	a.Store = db
	a.Downloader = downloader.NewService(layout.StagingDir(), cfg.Download.UserAgent, cfg.Download.Timeout)
	a.Watcher = watcher.NewService(a.Env.DownloadsDir(), a.Env, cfg.Watch.Interval, cfg.Watch.Timeout, log)
	a.Handoff = handoff.NewService(layout.InboxDir(), trigger, log)
	a.Container = runtime
	a.Backup = backup.NewService(layout.DataDir(), layout.EnvFile(), layout.UserDataDir(), runtime, log)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Warn("Failed to close run store: %v", err)
		}
	}
	return a, cleanup, nil
}
