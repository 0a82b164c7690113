package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datallboy/sheetflow/internal/api"
	"github.com/datallboy/sheetflow/internal/app"
	"github.com/datallboy/sheetflow/internal/container"
	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/engine"
	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const containerPollInterval = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the callback receiver and the local control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			mgr := engine.NewRunManager(a)
			defer mgr.Close()

			if err := mgr.Recover(ctx); err != nil {
				a.Logger.Warn("Could not recover previous runs: %v", err)
			}

			e := echo.New()
			api.RegisterRoutes(e, a, mgr, true)

			srv, err := api.Listen(a.Config.Callback.Listen, e, a.Logger)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Serve(gctx) })
			g.Go(func() error { drainEvents(gctx, a, mgr.Events()); return nil })
			g.Go(func() error { pollContainer(gctx, a); return nil })

			return g.Wait()
		},
	}
}

// drainEvents keeps the event channel moving when no front end is attached.
func drainEvents(ctx context.Context, a *app.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			a.Logger.Debug("event %s run=%s: %s", e.Type, e.RunID, e.Message)
		}
	}
}

// pollContainer logs container state transitions.
func pollContainer(ctx context.Context, a *app.Context) {
	ticker := time.NewTicker(containerPollInterval)
	defer ticker.Stop()

	var last container.Status
	for {
		status, err := a.Container.Status(ctx)
		if status != last {
			if err != nil {
				a.Logger.Warn("Container status unknown: %v", err)
			} else {
				a.Logger.Info("Container %s is %s", a.Config.Container.Name, status)
			}
			last = status
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
