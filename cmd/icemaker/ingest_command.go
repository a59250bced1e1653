package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"icemaker/internal/config"
	"icemaker/internal/ingest"
	"icemaker/internal/matcher"
	"icemaker/internal/store"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <source> [file]",
		Short: "Ingest scraped venue records from a JSON file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceName := args[0]

			var reader io.Reader = cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				file, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("open records file: %w", err)
				}
				defer file.Close()
				reader = file
			}

			records, err := ingest.ReadRecords(reader)
			if err != nil {
				return err
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				ing := ingest.New(st, matcher.New(cfg.Matching, logger), logger)
				stats, err := ing.Run(cmd.Context(), sourceName, records)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Ingested %d records from %s\n", stats.Read, sourceName)
				fmt.Fprintln(out, renderTable(
					[]string{"New", "Unchanged", "Invalid", "Duplicates", "Streetless"},
					[][]string{{
						formatCount(stats.New),
						formatCount(stats.Skipped),
						formatCount(stats.Invalid),
						formatCount(stats.Duplicates()),
						formatCount(stats.Streetless),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}
