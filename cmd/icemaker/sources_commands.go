package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"icemaker/internal/config"
	"icemaker/internal/store"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage scrape sources",
	}

	sourcesCmd.AddCommand(newSourcesListCommand(ctx))
	sourcesCmd.AddCommand(newSourcesAddCommand(ctx))
	sourcesCmd.AddCommand(newSourcesEnableCommand(ctx, true))
	sourcesCmd.AddCommand(newSourcesEnableCommand(ctx, false))

	return sourcesCmd
}

func newSourcesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sources and their last runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				sources, err := st.ListSources(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(sources))
				for _, src := range sources {
					rows = append(rows, []string{
						src.Name,
						yesNo(src.Enabled),
						strconv.FormatFloat(src.ConfidenceWeight, 'f', 2, 64),
						formatTimestamp(src.LastRunAt),
						orDash(src.LastRunStatus),
						formatCount(src.LastRunEntryCount),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Source", "Enabled", "Weight", "Last run", "Status", "Entries"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newSourcesAddCommand(ctx *commandContext) *cobra.Command {
	var notes string
	var weight float64

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new scrape source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				src, err := st.RegisterSource(cmd.Context(), args[0], notes, weight)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered source %s (id %d)\n", src.Name, src.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes about the source")
	cmd.Flags().Float64Var(&weight, "weight", 1.0, "Confidence weight for this source")
	return cmd
}

func newSourcesEnableCommand(ctx *commandContext, enable bool) *cobra.Command {
	verb, short := "enable", "Enable a source for ingestion"
	if !enable {
		verb, short = "disable", "Disable a source; its records are refused at ingest"
	}
	return &cobra.Command{
		Use:   verb + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				if err := st.SetSourceEnabled(cmd.Context(), args[0], enable); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source %s %sd\n", args[0], verb)
				return nil
			})
		},
	}
}
