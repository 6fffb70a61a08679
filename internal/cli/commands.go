package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var listLimit int

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 12, "Number of releases to show.")
	rootCmd.AddCommand(scrapeCmd, listCmd, itemCmd, refreshCmd, trimCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrapes the live listing and stores it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Getenv)
		if err != nil {
			return err
		}
		defer a.Close()

		listing, err := a.reconciler.ScrapeListing(cmd.Context())
		if err != nil {
			return err
		}
		renderSummaries(cmd.OutOrStdout(), listing)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list [--limit <n>]",
	Short: "Lists the most recently stored releases.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Getenv)
		if err != nil {
			return err
		}
		defer a.Close()

		listing, err := a.store.GetRecentSummaries(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		renderSummaries(cmd.OutOrStdout(), listing)
		return nil
	},
}

var itemCmd = &cobra.Command{
	Use:   "item <id>",
	Short: "Shows one release, refreshing its detail if stale.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Getenv)
		if err != nil {
			return err
		}
		defer a.Close()

		item, err := a.reconciler.GetItem(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renderItem(cmd.OutOrStdout(), item)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-scrapes every missing or stale release detail once.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Getenv)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.refresher.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "candidates %d, refreshed %d, failed %d, skipped %d\n",
			report.Candidates, report.Refreshed, report.Failed, report.Skipped)
		return nil
	},
}

var trimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Keeps only the most recent releases and drops orphaned details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Getenv)
		if err != nil {
			return err
		}
		defer a.Close()

		trimmed, orphans, err := a.refresher.Trim(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d releases, %d orphaned details\n", trimmed, orphans)
		return nil
	},
}
