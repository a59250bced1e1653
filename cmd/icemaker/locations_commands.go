package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"icemaker/internal/config"
	"icemaker/internal/store"
)

func newLocationsCommand(ctx *commandContext) *cobra.Command {
	locationsCmd := &cobra.Command{
		Use:   "locations",
		Short: "Inspect and administer directory entries",
	}

	locationsCmd.AddCommand(newLocationsListCommand(ctx))
	locationsCmd.AddCommand(newLocationsSearchCommand(ctx))
	locationsCmd.AddCommand(newLocationsShowCommand(ctx))
	locationsCmd.AddCommand(newLocationsDemoteCommand(ctx))
	locationsCmd.AddCommand(newLocationsReactivateCommand(ctx))
	locationsCmd.AddCommand(newLocationsRenameCommand(ctx))
	locationsCmd.AddCommand(newLocationsMergeCommand(ctx))

	return locationsCmd
}

func newLocationsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List directory entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusList(statusFlag)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				locations, err := st.ListLocations(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				printLocationTable(cmd, locations)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Comma-separated statuses to include (default: all)")
	return cmd
}

func newLocationsSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search entries by name, city, or former name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				locations, err := st.SearchLocations(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(locations) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No entries matched")
					return nil
				}
				printLocationTable(cmd, locations)
				return nil
			})
		},
	}
}

func newLocationsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one entry with its aliases and corroborating sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				loc, resolvedFrom, err := st.ResolveLocation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if loc == nil {
					return fmt.Errorf("no entry with id %s", args[0])
				}

				out := cmd.OutOrStdout()
				if resolvedFrom != "" {
					fmt.Fprintf(out, "Note: %s was merged; showing surviving entry %s\n", resolvedFrom, loc.ID)
				}
				fmt.Fprintf(out, "%s (%s)\n", loc.Name, loc.ID)
				fmt.Fprintf(out, "  Status:    %s\n", loc.Status)
				fmt.Fprintf(out, "  Address:   %s, %s, %s %s\n", orDash(loc.Street), loc.City, loc.State, orDash(loc.Zip))
				fmt.Fprintf(out, "  Coords:    %s\n", formatCoords(loc.Latitude, loc.Longitude))
				fmt.Fprintf(out, "  Timezone:  %s\n", orDash(loc.Timezone))
				fmt.Fprintf(out, "  Phone:     %s\n", orDash(loc.Phone))
				fmt.Fprintf(out, "  Website:   %s\n", orDash(loc.Website))
				fmt.Fprintf(out, "  Source:    %s\n", orDash(loc.DataSource))
				fmt.Fprintf(out, "  Confirmed: %s\n", formatTimestamp(loc.LastConfirmedAt))

				aliases, err := st.Aliases(cmd.Context(), loc.ID)
				if err != nil {
					return err
				}
				if len(aliases) > 0 {
					fmt.Fprintln(out, "Also known as:")
					for _, alias := range aliases {
						note := ""
						if alias.Notes != "" {
							note = " (" + alias.Notes + ")"
						}
						fmt.Fprintf(out, "  %s%s\n", alias.Name, note)
					}
				}

				links, err := st.SourceLinks(cmd.Context(), loc.ID)
				if err != nil {
					return err
				}
				if len(links) > 0 {
					fmt.Fprintln(out, "Corroborated by:")
					for _, link := range links {
						src, err := st.SourceByID(cmd.Context(), link.SourceID)
						if err != nil {
							return err
						}
						name := fmt.Sprintf("source %d", link.SourceID)
						if src != nil {
							name = src.Name
						}
						fmt.Fprintf(out, "  %s (first %s, last %s)\n",
							name, formatTimestamp(&link.FirstSeenAt), formatTimestamp(&link.LastSeenAt))
					}
				}
				return nil
			})
		},
	}
}

func newLocationsDemoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "demote <id> <status>",
		Short: "Move an entry to seasonal or a closed status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := store.ParseLocationStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				if err := st.Demote(cmd.Context(), args[0], status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s is now %s\n", args[0], status)
				return nil
			})
		},
	}
}

func newLocationsReactivateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Reopen a permanently closed entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				if err := st.Reactivate(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s is active again\n", args[0])
				return nil
			})
		},
	}
}

func newLocationsRenameCommand(ctx *commandContext) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "rename <id> <new name>",
		Short: "Rename an entry, keeping the old name as an alias",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				if err := st.Rename(cmd.Context(), args[0], args[1], notes); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s renamed to %q\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Reason for the rename")
	return cmd
}

func newLocationsMergeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <retired-id> <surviving-id>",
		Short: "Fold a duplicate entry into the surviving one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				if err := st.Merge(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s merged into %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func parseStatusList(flag string) ([]store.LocationStatus, error) {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return nil, nil
	}
	var statuses []store.LocationStatus
	for _, part := range strings.Split(flag, ",") {
		status, ok := store.ParseLocationStatus(strings.TrimSpace(part))
		if !ok {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func printLocationTable(cmd *cobra.Command, locations []*store.Location) {
	rows := make([][]string, 0, len(locations))
	for _, loc := range locations {
		rows = append(rows, []string{
			loc.ID,
			loc.Name,
			loc.City,
			loc.State,
			orDash(loc.Zip),
			string(loc.Status),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Name", "City", "State", "ZIP", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	))
}
