package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rosa/internal/config"
)

func ingestCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Merge every CSV export in dir into the contact table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := cfg.IngestDir
			if len(args) == 1 {
				dir = args[0]
			}

			ctx := cmd.Context()
			be, err := openBackend(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer be.close()

			in, err := newIngester(cfg, dir, be.sink)
			if err != nil {
				return err
			}
			res, err := in.Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range res.Files {
				if f.Error != "" {
					fmt.Fprintf(out, "  %-40s FAILED: %s\n", f.Name, f.Error)
					continue
				}
				fmt.Fprintf(out, "  %-40s %d rows\n", f.Name, f.Rows)
			}
			fmt.Fprintf(out, "%d files, %d rows read, %d unique records (%d failed)\n",
				len(res.Files), res.RowsRead, res.UniqueRecords, res.Failed)
			slog.Info("ingest finished", "backend", be.name, "duration", res.Duration)
			report(ctx, newReporter(cfg), dir, res)
			return nil
		},
	}
}
