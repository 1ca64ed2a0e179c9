package main

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/crawl"
	"github.com/sells-group/lead-engine/internal/pipeline"
	"github.com/sells-group/lead-engine/internal/resilience"
	"github.com/sells-group/lead-engine/internal/search"
	"github.com/sells-group/lead-engine/pkg/places"
	"github.com/sells-group/lead-engine/pkg/ratelimit"
)

var (
	runQueries       []string
	runQueriesFile   string
	runLocation      string
	runMaxResults    int
	runMaxPages      int
	runQPS           float64
	runSleepMs       int
	runNoCrawl       bool
	runMaxCrawlPages int
	runCrawlTimeout  int
	runConcurrency   int
	runNoCache       bool
	runCachePath     string
	runNoResume      bool
	runRunID         string
	runOutput        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run lead generation for one or more query/location pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Flags override the config file.
		if runMaxResults > 0 {
			cfg.Search.MaxResults = runMaxResults
		}
		if runMaxPages > 0 {
			cfg.Search.MaxPages = runMaxPages
		}
		if runQPS > 0 {
			cfg.Places.QPS = runQPS
		}
		if runSleepMs > 0 {
			cfg.Places.MinDelayMs = runSleepMs
		}
		if runNoCrawl {
			cfg.Crawl.Disabled = true
		}
		if runMaxCrawlPages > 0 {
			cfg.Crawl.MaxPages = runMaxCrawlPages
		}
		if runCrawlTimeout > 0 {
			cfg.Crawl.TimeoutSecs = runCrawlTimeout
		}
		if runConcurrency > 0 {
			cfg.Crawl.Concurrency = runConcurrency
		}
		if runNoCache {
			cfg.Cache.Disabled = true
		}
		if runCachePath != "" {
			cfg.Cache.Path = runCachePath
		}
		if runNoResume {
			cfg.Pipeline.Resume = false
		}
		if runRunID != "" {
			cfg.Pipeline.RunID = runRunID
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		pairs, err := collectPairs()
		if err != nil {
			return err
		}
		if len(pairs) == 0 {
			return eris.New("no queries given: pass --query or --queries-file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		limiter, err := ratelimit.New(cfg.Places.QPS, time.Duration(cfg.Places.MinDelayMs)*time.Millisecond)
		if err != nil {
			return err
		}

		retry := resilience.DefaultRetryConfig()
		if cfg.Places.MaxAttempts > 0 {
			retry.MaxAttempts = cfg.Places.MaxAttempts
		}
		retry.OnRetry = resilience.RetryLogger("places", "request")

		api := places.NewClient(cfg.Places.Key)
		searchClient := search.New(api, st, limiter, cfg.Search.MaxPages, retry)
		crawler := crawl.New(
			crawl.WithMaxPages(cfg.Crawl.MaxPages),
			crawl.WithTimeout(time.Duration(cfg.Crawl.TimeoutSecs)*time.Second),
		)

		p := pipeline.New(cfg, st, searchClient, crawler)
		result, err := p.Run(ctx, pairs)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run finished",
			zap.Int("leads", result.Summary.Leads),
			zap.Int("emails", result.Summary.EmailsFound),
			zap.Int("api_calls", result.Summary.APICalls))

		out := os.Stdout
		if runOutput != "" {
			f, err := os.Create(runOutput)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// collectPairs merges --query flags and the optional CSV file. CSV rows
// are "query,location"; a row with a single column uses --location.
func collectPairs() ([]pipeline.Pair, error) {
	pairs := pipeline.ParsePairs(runQueries, runLocation)

	if runQueriesFile != "" {
		f, err := os.Open(runQueriesFile)
		if err != nil {
			return nil, eris.Wrap(err, "open queries file")
		}
		defer f.Close() //nolint:errcheck

		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		rows, err := r.ReadAll()
		if err != nil {
			return nil, eris.Wrap(err, "parse queries file")
		}
		for _, row := range rows {
			switch len(row) {
			case 0:
			case 1:
				pairs = append(pairs, pipeline.ParsePairs(row, runLocation)...)
			default:
				// Unquoted locations with commas split into extra columns.
				location := strings.Join(row[1:], ",")
				pairs = append(pairs, pipeline.ParsePairs([]string{row[0] + "|" + location}, runLocation)...)
			}
		}
	}
	return pairs, nil
}

func init() {
	runCmd.Flags().StringArrayVar(&runQueries, "query", nil, `search query, repeatable ("plumbers" or "plumbers|Austin, TX")`)
	runCmd.Flags().StringVar(&runQueriesFile, "queries-file", "", "CSV file of query,location rows")
	runCmd.Flags().StringVar(&runLocation, "location", "", "location applied to queries without one")
	runCmd.Flags().IntVar(&runMaxResults, "max-results", 0, "stop after this many raw candidates (0 = unlimited)")
	runCmd.Flags().IntVar(&runMaxPages, "max-pages", 0, "search pages per pair, 1-3 (0 = config default)")
	runCmd.Flags().Float64Var(&runQPS, "qps", 0, "API requests per second (0 = config default)")
	runCmd.Flags().IntVar(&runSleepMs, "sleep-ms", 0, "minimum gap between API calls in milliseconds (0 = config default)")
	runCmd.Flags().BoolVar(&runNoCrawl, "no-crawl", false, "skip website crawling; leads carry no emails")
	runCmd.Flags().IntVar(&runMaxCrawlPages, "max-crawl-pages", 0, "pages fetched per website (0 = config default)")
	runCmd.Flags().IntVar(&runCrawlTimeout, "crawl-timeout", 0, "per-page crawl timeout in seconds (0 = config default)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "concurrent website crawls (0 = config default)")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "bypass the durable cache for this run")
	runCmd.Flags().StringVar(&runCachePath, "cache", "", "sqlite cache path (overrides config)")
	runCmd.Flags().BoolVar(&runNoResume, "no-resume", false, "ignore prior progress and start fresh")
	runCmd.Flags().StringVar(&runRunID, "run-id", "", "explicit run identifier (overrides derivation)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "write result JSON to this file instead of stdout")
	rootCmd.AddCommand(runCmd)
}
