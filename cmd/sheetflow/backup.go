package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Archive n8n-data and .env into n8n-files/user-data (container must be stopped)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.Backup.Export(cmd.Context(), printProgress("Exporting"))
			if err != nil {
				return err
			}

			fmt.Printf("Exported %d file(s) to %s (%s)\n", res.Files, res.Path, humanize.Bytes(uint64(res.Size)))
			if res.EnvKeys > 0 {
				fmt.Printf("Included .env with %d variable(s)\n", res.EnvKeys)
			}
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive.zip>",
		Short: "Restore n8n-data and .env from an export archive (container must be stopped)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			res, err := a.Backup.Import(cmd.Context(), path, printProgress("Importing"))
			if err != nil {
				return err
			}

			fmt.Println(res.Message)
			return nil
		},
	}
}

func printProgress(label string) func(int) {
	return func(pct int) {
		fmt.Printf("\r%s... %3d%%", label, pct)
		if pct == 100 {
			fmt.Println()
		}
	}
}
