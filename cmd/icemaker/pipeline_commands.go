package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"icemaker/internal/geocode"
	"icemaker/internal/pipeline"
	"icemaker/internal/promoter"
	"icemaker/internal/push"
	"icemaker/internal/store"
)

func newGeocodeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "geocode",
		Short: "Verify pending candidates against the geocoding provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(func(runner *pipeline.Runner, _ *store.Store) error {
				stats, err := runner.Verify(cmd.Context())
				if err != nil {
					return err
				}
				printVerifyStats(cmd, stats)
				return nil
			})
		},
	}
}

func newPromoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "promote",
		Short: "Promote verified candidates into the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(func(runner *pipeline.Runner, _ *store.Store) error {
				stats, err := runner.Promote(cmd.Context())
				if err != nil {
					return err
				}
				printPromoteStats(cmd, stats)
				return nil
			})
		},
	}
}

func newPushCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Reconcile active directory entries into the downstream consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(func(runner *pipeline.Runner, _ *store.Store) error {
				stats, err := runner.PushDownstream(cmd.Context(), dryRun)
				if err != nil {
					return err
				}
				printPushStats(cmd, stats, dryRun)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan the downstream writes without applying them")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var skipPush bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: verify, promote, push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(func(runner *pipeline.Runner, _ *store.Store) error {
				stats, err := runner.Run(cmd.Context(), pipeline.Options{
					SkipPush:   skipPush,
					PushDryRun: dryRun,
				})
				if err != nil {
					return err
				}
				printVerifyStats(cmd, stats.Verify)
				printPromoteStats(cmd, stats.Promote)
				if !skipPush {
					printPushStats(cmd, stats.Push, dryRun)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&skipPush, "skip-push", false, "Stop after promotion")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan the downstream writes without applying them")
	return cmd
}

func newRepairCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repair [candidate-id...]",
		Short: "Reset failed candidates to pending for another verification pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("candidate id %q is not numeric", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withRunner(func(runner *pipeline.Runner, _ *store.Store) error {
				count, err := runner.Repair(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed candidates to pending\n", count)
				return nil
			})
		},
	}
}

func printVerifyStats(cmd *cobra.Command, stats geocode.Stats) {
	fmt.Fprintln(cmd.OutOrStdout(), "Geocode verification:")
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Processed", "Verified", "Source-verified", "Failed", "Mismatched", "Transient", "Streetless"},
		[][]string{{
			formatCount(stats.Processed),
			formatCount(stats.Verified),
			formatCount(stats.SourceVerified),
			formatCount(stats.Failed),
			formatCount(stats.Mismatched),
			formatCount(stats.Transient),
			formatCount(stats.Streetless),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
}

func printPromoteStats(cmd *cobra.Command, stats promoter.Stats) {
	fmt.Fprintln(cmd.OutOrStdout(), "Promotion:")
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"New", "Corroborated", "Adopted IDs", "Duplicates linked", "No ZIP", "Streetless linked"},
		[][]string{{
			formatCount(stats.PromotedNew),
			formatCount(stats.PromotedExisting),
			formatCount(stats.AdoptedIdentifiers),
			formatCount(stats.DuplicatesLinked),
			formatCount(stats.SkippedNoZip),
			formatCount(stats.StreetlessLinked),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
}

func printPushStats(cmd *cobra.Command, stats push.Stats, dryRun bool) {
	label := "Downstream push:"
	if dryRun {
		label = "Downstream push (dry run, nothing written):"
	}
	fmt.Fprintln(cmd.OutOrStdout(), label)
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Inserted", "Updated", "Aliases recorded", "No ZIP"},
		[][]string{{
			formatCount(stats.Inserted),
			formatCount(stats.Updated),
			formatCount(stats.Aliased),
			formatCount(stats.SkippedNoZip),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
	))
}
