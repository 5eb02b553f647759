package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rosa/internal/config"
)

func inspectCmd(cfg config.Config) *cobra.Command {
	var sample int
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the structure, statistics and duplicates of the contact table",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if sample < 0 {
				return fmt.Errorf("--sample must be zero or more, got %d", sample)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			be, err := openBackend(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer be.close()

			out := cmd.OutOrStdout()

			cols, err := be.source.Columns(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Backend: %s\nColumns:\n", be.name)
			for _, c := range cols {
				fmt.Fprintf(out, "  - %s\n", c)
			}

			st, err := be.source.Statistics(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nTotal records:  %d\nUnique sources: %d\n", st.TotalRecords, st.UniqueSources)
			if st.FirstImport != nil {
				fmt.Fprintf(out, "First import:   %s\n", st.FirstImport.Format(time.DateTime))
			}
			if st.LastImport != nil {
				fmt.Fprintf(out, "Last import:    %s\n", st.LastImport.Format(time.DateTime))
			}

			dups, err := be.source.Duplicates(ctx)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(dups))
			for name := range dups {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintln(out, "\nDuplicated values per column:")
			for _, name := range names {
				fmt.Fprintf(out, "  %-15s %d\n", name, dups[name])
			}

			records, err := be.source.Contacts(ctx)
			if err != nil {
				return err
			}
			records = records[:min(sample, len(records))]
			fmt.Fprintf(out, "\nFirst %d records:\n", len(records))
			for _, r := range records {
				fmt.Fprintf(out, "  %-20s %-15s %3d  %s %s\n",
					r.Status, r.PhoneNumber, r.TotalCalls, r.FirstName, r.LastName)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&sample, "sample", "n", 5, "number of records to print")
	return cmd
}
