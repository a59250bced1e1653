package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"icemaker/internal/config"
	"icemaker/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize staging and directory state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()

				candStats, err := st.CandidateStats(cmd.Context())
				if err != nil {
					return err
				}
				unpromoted, err := st.VerifiedUnpromoted(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Candidates:")
				fmt.Fprintln(out, renderTable(
					[]string{"Pending", "Verified", "Awaiting promotion", "Duplicate", "Failed"},
					[][]string{{
						formatCount(candStats[store.CandidatePending]),
						formatCount(candStats[store.CandidateVerified]),
						formatCount(len(unpromoted)),
						formatCount(candStats[store.CandidateDuplicate]),
						formatCount(candStats[store.CandidateFailed]),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))

				locStats, err := st.LocationStats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Directory entries:")
				fmt.Fprintln(out, renderTable(
					[]string{"Active", "Seasonal", "Closed (temp)", "Closed (perm)", "Merged"},
					[][]string{{
						formatCount(locStats[store.LocationActive]),
						formatCount(locStats[store.LocationSeasonal]),
						formatCount(locStats[store.LocationClosedTemporarily]),
						formatCount(locStats[store.LocationClosedPermanently]),
						formatCount(locStats[store.LocationMerged]),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))

				rejections, err := st.UnreviewedRejections(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Unreviewed rejections: %d\n", len(rejections))
				fmt.Fprintf(out, "Database: %s\n", cfg.Database.Path)
				return nil
			})
		},
	}
}
