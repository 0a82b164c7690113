package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/datallboy/sheetflow/internal/api"
	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/engine"
	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd() *cobra.Command {
	var (
		outputDir  string
		keepSource bool
		wait       time.Duration
		toClip     bool
	)

	cmd := &cobra.Command{
		Use:   "run <sheet-url|file.xlsx>",
		Short: "Send one spreadsheet through the workflow and wait for the result",
		Args:  cobra.ExactArgs(1),
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
			if outputDir != "" {
				abs, err := filepath.Abs(outputDir)
				if err != nil {
					return err
				}
				mgr.SetOutputDir(abs)
			}

			// The workflow reports back to us, so the receiver must be up
			// before anything is triggered.
			e := echo.New()
			api.RegisterRoutes(e, a, mgr, false)
			srv, err := api.Listen(a.Config.Callback.Listen, e, a.Logger)
			if err != nil {
				return err
			}

			req := domain.SubmitRequest{KeepSource: keepSource}
			if strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://") {
				req.URL = args[0]
			} else {
				req.Path = args[0]
			}

			g, gctx := errgroup.WithContext(ctx)
			waitCtx, cancelWait := context.WithTimeout(gctx, wait)
			defer cancelWait()

			g.Go(func() error { return srv.Serve(waitCtx) })

			var final domain.Event
			g.Go(func() error {
				defer cancelWait()

				run, err := mgr.Submit(req)
				if err != nil {
					return err
				}

				final, err = awaitRun(waitCtx, mgr.Events(), run.ID, !a.Config.Log.IncludeStdout)
				return err
			})

			if err := g.Wait(); err != nil {
				return err
			}

			if final.Type != domain.EventCompleted {
				return errors.New(final.Message)
			}

			if toClip {
				return copyToClipboard(ctx, mgr, final)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "copy generated files into this directory")
	cmd.Flags().BoolVar(&keepSource, "keep-source", false, "keep the local file after handing it off")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Minute, "how long to wait for the workflow result")
	cmd.Flags().BoolVar(&toClip, "clipboard", false, "copy the generated file list to the clipboard")
	return cmd
}

// awaitRun follows events for runID until one closes it out. Messages are
// printed when the logger is not already echoing to stdout.
func awaitRun(ctx context.Context, events <-chan domain.Event, runID string, verbose bool) (domain.Event, error) {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return domain.Event{}, errors.New("timed out waiting for the workflow result")
			}
			return domain.Event{}, ctx.Err()
		case e := <-events:
			if e.RunID != "" && e.RunID != runID {
				continue
			}
			if verbose {
				fmt.Println(e.Message)
			}
			if e.Terminal() {
				return e, nil
			}
		}
	}
}

func copyToClipboard(ctx context.Context, mgr *engine.RunManager, final domain.Event) error {
	files := final.Files
	if run, err := mgr.Get(ctx, final.RunID); err == nil && run != nil && len(run.Copied) > 0 {
		files = run.Copied
	}
	if len(files) == 0 {
		return nil
	}

	if err := clipboard.WriteAll(strings.Join(files, "\n")); err != nil {
		return fmt.Errorf("failed to copy file list to clipboard: %w", err)
	}
	fmt.Printf("Copied %d path(s) to the clipboard\n", len(files))
	return nil
}
