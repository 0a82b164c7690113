package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newContainerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Control the n8n container",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the container is running",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, cleanup, err := bootstrap(cmd.Context())
				if err != nil {
					return err
				}
				defer cleanup()

				status, err := a.Container.Status(cmd.Context())
				fmt.Printf("%s: %s\n", a.Config.Container.Name, status)
				return err
			},
		},
		&cobra.Command{
			Use:   "start",
			Short: "Run the start script",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, cleanup, err := bootstrap(cmd.Context())
				if err != nil {
					return err
				}
				defer cleanup()

				a.Logger.Info("Starting n8n container...")
				if err := a.Container.Start(cmd.Context()); err != nil {
					return err
				}
				a.Logger.Info("Container started successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Run the stop script",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, cleanup, err := bootstrap(cmd.Context())
				if err != nil {
					return err
				}
				defer cleanup()

				a.Logger.Info("Stopping n8n container...")
				if err := a.Container.Stop(cmd.Context()); err != nil {
					return err
				}
				a.Logger.Info("Container stopped successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "open",
			Short: "Open the n8n web UI in the browser",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, cleanup, err := bootstrap(cmd.Context())
				if err != nil {
					return err
				}
				defer cleanup()

				running, err := a.Container.IsRunning(cmd.Context())
				if err == nil && !running {
					a.Logger.Warn("Container %s is not running; the page may not load", a.Config.Container.Name)
				}
				return a.Env.OpenURL(cmd.Context(), a.Config.N8N.BaseURL)
			},
		},
	)
	return cmd
}
