package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var cacheFailureKind string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the durable cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var cacheFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List recorded failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		failures, err := st.ListFailures(ctx, cacheFailureKind)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(failures)
	},
}

var cacheClearFailuresCmd = &cobra.Command{
	Use:   "clear-failures",
	Short: "Clear recorded failures so the next run retries them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		return st.ClearFailures(ctx, cacheFailureKind)
	},
}

func init() {
	cacheFailuresCmd.Flags().StringVar(&cacheFailureKind, "kind", "", "filter by failure kind (place-search-page, place-detail, crawl)")
	cacheClearFailuresCmd.Flags().StringVar(&cacheFailureKind, "kind", "", "clear only this failure kind")
	cacheCmd.AddCommand(cacheStatsCmd, cacheFailuresCmd, cacheClearFailuresCmd)
	rootCmd.AddCommand(cacheCmd)
}
