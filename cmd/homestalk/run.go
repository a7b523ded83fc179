package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/enrich"
	"github.com/IshaanNene/homestalk/internal/fetcher"
	"github.com/IshaanNene/homestalk/internal/filter"
	"github.com/IshaanNene/homestalk/internal/observability"
	"github.com/IshaanNene/homestalk/internal/parser"
	"github.com/IshaanNene/homestalk/internal/pipeline"
	"github.com/IshaanNene/homestalk/internal/storage"
	"github.com/IshaanNene/homestalk/internal/types"
)

// app holds everything one command invocation owns.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	orch       *pipeline.Orchestrator
	cache      enrich.PageCache
	metricsSrv *http.Server
	pending    []io.Closer // owned until the orchestrator takes them over
}

// loadConfig loads, overrides and validates the configuration.
func loadConfig(withQueries bool) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if outputDir != "" {
		cfg.Storage.OutputDir = outputDir
	}
	if !withQueries {
		cfg.Queries = nil
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp wires fetchers, enrichment, storage and metrics for cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(logger)
		a.metricsSrv = metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(&cfg.Fetcher, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	a.pending = append(a.pending, httpFetcher)
	bulk := fetcher.NewGISCSVFetcherWithClient(httpFetcher, &cfg.Fetcher, metrics, logger)

	stores := []storage.ArtifactStore{}
	fileStore, err := storage.NewFileStore(cfg.Storage.OutputDir, logger)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}
	a.pending = append(a.pending, fileStore)
	stores = append(stores, fileStore)
	if cfg.Storage.Mongo.Enabled {
		sink, err := storage.NewMongoSink(cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database, cfg.Storage.Mongo.Collection, logger)
		if err != nil {
			return nil, fmt.Errorf("create mongodb sink: %w", err)
		}
		stores = append(stores, sink)
	}
	var store storage.ArtifactStore = fileStore
	if len(stores) > 1 {
		store = storage.NewMultiStore(stores, logger)
	}

	schedOpts := []enrich.Option{enrich.WithMetrics(metrics)}
	if cfg.Enrich.Cache.Enabled {
		cache, err := enrich.NewRedisCache(ctx, cfg.Enrich.Cache.Addr, cfg.Enrich.Cache.TTL, logger)
		if err != nil {
			logger.Warn("page cache unavailable, continuing without it", "addr", cfg.Enrich.Cache.Addr, "error", err)
		} else {
			a.cache = cache
			schedOpts = append(schedOpts, enrich.WithCache(cache))
		}
	}
	scheduler := enrich.NewScheduler(httpFetcher, parser.NewDetailExtractor(logger), cfg, logger, schedOpts...)

	opts := []pipeline.Option{
		pipeline.WithEnricher(scheduler),
		pipeline.WithStore(store),
		pipeline.WithChain(pipeline.ChainFromConfig(cfg.Rows, logger)),
		pipeline.WithMetrics(metrics),
	}
	if cfg.Fallback.Enabled {
		opts = append(opts, pipeline.WithFallback(fetcher.NewBrowserFallback(cfg, metrics, logger)))
	}
	a.orch = pipeline.New(bulk, cfg, logger, opts...)
	a.pending = nil
	return a, nil
}

// Close releases everything newApp acquired, including a partial setup.
func (a *app) Close() {
	if a.orch != nil {
		if err := a.orch.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	for i := len(a.pending) - 1; i >= 0; i-- {
		_ = a.pending[i].Close()
	}
	a.pending = nil
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
}

// signalContext cancels on SIGINT or SIGTERM. In-flight enrichment stops
// at the next URL and the run still returns its partial result.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- query and filter flags ---

type queryFlags struct {
	name       string
	regionID   int
	regionType string
	minPrice   int
	maxPrice   int
	minBeds    int
	minBaths   float64
	numHomes   int
}

func (qf *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&qf.name, "name", "", "name for this search (required)")
	cmd.Flags().IntVar(&qf.regionID, "region-id", 0, "region id (required)")
	cmd.Flags().StringVar(&qf.regionType, "region-type", "6", "region type: 1/neighborhood, 2/zip, 5/county, 6/city")
	cmd.Flags().IntVar(&qf.minPrice, "min-price", 0, "server-side minimum price")
	cmd.Flags().IntVar(&qf.maxPrice, "max-price", 0, "server-side maximum price")
	cmd.Flags().IntVar(&qf.minBeds, "min-beds", 0, "server-side minimum beds")
	cmd.Flags().Float64Var(&qf.minBaths, "min-baths", 0, "server-side minimum baths")
	cmd.Flags().IntVar(&qf.numHomes, "num-homes", types.DefaultNumHomes, "maximum rows requested")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("region-id")
}

func (qf *queryFlags) query(cmd *cobra.Command) (*types.Query, error) {
	rt, err := types.ParseRegionType(qf.regionType)
	if err != nil {
		return nil, err
	}
	q := &types.Query{
		Name:       qf.name,
		RegionID:   qf.regionID,
		RegionType: rt,
		NumHomes:   qf.numHomes,
	}
	flags := cmd.Flags()
	if flags.Changed("min-price") {
		q.MinPrice = types.Int(qf.minPrice)
	}
	if flags.Changed("max-price") {
		q.MaxPrice = types.Int(qf.maxPrice)
	}
	if flags.Changed("min-beds") {
		q.MinBeds = types.Int(qf.minBeds)
	}
	if flags.Changed("min-baths") {
		q.MinBaths = types.Float(qf.minBaths)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

type filterFlags struct {
	minPrice, maxPrice float64
	minBeds, maxBeds   float64
	minBaths           float64
	minSqft, maxSqft   float64
	minYear, maxDOM    float64
	propertyTypes      []string
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&ff.minPrice, "filter-min-price", 0, "keep rows with price >= value")
	cmd.Flags().Float64Var(&ff.maxPrice, "filter-max-price", 0, "keep rows with price <= value")
	cmd.Flags().Float64Var(&ff.minBeds, "filter-min-beds", 0, "keep rows with beds >= value")
	cmd.Flags().Float64Var(&ff.maxBeds, "filter-max-beds", 0, "keep rows with beds <= value")
	cmd.Flags().Float64Var(&ff.minBaths, "filter-min-baths", 0, "keep rows with baths >= value")
	cmd.Flags().Float64Var(&ff.minSqft, "filter-min-sqft", 0, "keep rows with sqft >= value")
	cmd.Flags().Float64Var(&ff.maxSqft, "filter-max-sqft", 0, "keep rows with sqft <= value")
	cmd.Flags().Float64Var(&ff.minYear, "filter-min-year", 0, "keep rows built in or after year")
	cmd.Flags().Float64Var(&ff.maxDOM, "filter-max-dom", 0, "keep rows with days on market <= value")
	cmd.Flags().StringSliceVar(&ff.propertyTypes, "filter-property-type", nil, "keep rows of these property types")
}

func (ff *filterFlags) criteria(cmd *cobra.Command) filter.Criteria {
	flags := cmd.Flags()
	opt := func(name string, v float64) *float64 {
		if flags.Changed(name) {
			return types.Float(v)
		}
		return nil
	}
	return filter.Criteria{
		MinPrice:      opt("filter-min-price", ff.minPrice),
		MaxPrice:      opt("filter-max-price", ff.maxPrice),
		MinBeds:       opt("filter-min-beds", ff.minBeds),
		MaxBeds:       opt("filter-max-beds", ff.maxBeds),
		MinBaths:      opt("filter-min-baths", ff.minBaths),
		MinSqft:       opt("filter-min-sqft", ff.minSqft),
		MaxSqft:       opt("filter-max-sqft", ff.maxSqft),
		MinYearBuilt:  opt("filter-min-year", ff.minYear),
		MaxDOM:        opt("filter-max-dom", ff.maxDOM),
		PropertyTypes: ff.propertyTypes,
	}
}

// --- commands ---

// downloadCmd fetches and saves one export without filtering.
func downloadCmd() *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a region's CSV export",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.query(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			path, rows, err := a.orch.Download(ctx, q)
			if err != nil {
				return fmt.Errorf("download: %w", err)
			}
			fmt.Printf("Downloaded %d listings to %s\n", rows, path)
			return nil
		},
	}
	qf.register(cmd)
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output directory (overrides config)")
	return cmd
}

// pipelineCmd runs the full pipeline for one query given on the command line.
func pipelineCmd() *cobra.Command {
	var (
		qf         queryFlags
		ff         filterFlags
		noScrape   bool
		noFallback bool
	)
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Download, filter and enrich one query",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.query(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if noFallback {
				cfg.Fallback.Enabled = false
			}
			logger := setupLogger(cfg.Logging)
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := pipeline.DefaultRunOptions(cfg)
			opts.Enrich = opts.Enrich && !noScrape
			result := a.orch.Run(ctx, q, ff.criteria(cmd).Predicate(), opts)
			printResult(result)
			if result.Failed() {
				return errors.New(result.Error)
			}
			return nil
		},
	}
	qf.register(cmd)
	ff.register(cmd)
	cmd.Flags().BoolVar(&noScrape, "no-scrape", false, "skip listing page enrichment")
	cmd.Flags().BoolVar(&noFallback, "no-fallback", false, "do not try the browser when the CSV download fails")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output directory (overrides config)")
	return cmd
}

// runConfigCmd runs every query stored in the config file.
func runConfigCmd() *cobra.Command {
	var (
		noScrape bool
		names    []string
	)
	cmd := &cobra.Command{
		Use:   "run-config",
		Short: "Run the pipeline for every configured query",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			if len(cfg.Queries) == 0 {
				return errors.New("no queries configured; run init-config to create a sample")
			}
			if err := selectQueries(cfg, names); err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			specs := pipeline.SpecsFromConfig(cfg)
			if noScrape {
				for i := range specs {
					specs[i].Options.Enrich = false
				}
			}
			fmt.Printf("Loaded %d queries\n", len(specs))

			results := a.orch.RunAll(ctx, specs)
			var failed int
			for _, r := range results {
				printResult(r)
				if r.Failed() {
					failed++
				}
			}
			if failed == len(results) && failed > 0 {
				return fmt.Errorf("all %d queries failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noScrape, "no-scrape", false, "skip listing page enrichment")
	cmd.Flags().StringSliceVarP(&names, "query", "q", nil, "run only the named queries (default: all)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output directory (overrides config)")
	return cmd
}

// selectQueries narrows cfg.Queries to names, in the order given. No names
// keeps every query.
func selectQueries(cfg *config.Config, names []string) error {
	if len(names) == 0 {
		return nil
	}
	selected := make([]config.QueryConfig, 0, len(names))
	for _, name := range names {
		qc, ok := cfg.Query(name)
		if !ok {
			return fmt.Errorf("no configured query named %q", name)
		}
		selected = append(selected, *qc)
	}
	cfg.Queries = selected
	return nil
}

func printResult(r *types.PipelineResult) {
	fmt.Printf("\nResults for '%s' (%s):\n", r.QueryName, r.State)
	fmt.Printf("  Raw listings:      %d\n", r.RawCount)
	fmt.Printf("  After filtering:   %d\n", r.FilteredCount)
	fmt.Printf("  Enriched:          %d\n", r.EnrichedCount)
	fmt.Printf("  Elapsed:           %s\n", r.Duration.Round(time.Millisecond))
	if len(r.Artifacts) > 0 {
		fmt.Printf("  Saved:             %s\n", strings.Join(r.Artifacts, ", "))
	}
	if r.Error != "" {
		fmt.Printf("  Error: %s\n", r.Error)
	}
}
