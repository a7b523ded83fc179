// Package pipeline runs a query through fetch, normalize, filter, enrich
// and save.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/enrich"
	"github.com/IshaanNene/homestalk/internal/fetcher"
	"github.com/IshaanNene/homestalk/internal/filter"
	"github.com/IshaanNene/homestalk/internal/normalize"
	"github.com/IshaanNene/homestalk/internal/observability"
	"github.com/IshaanNene/homestalk/internal/storage"
	"github.com/IshaanNene/homestalk/internal/types"
)

// State is a run's position in the pipeline.
type State int32

const (
	StateFetching State = iota
	StateNormalizing
	StateFiltering
	StateEnriching
	StateSaving
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StateFiltering:
		return "filtering"
	case StateEnriching:
		return "enriching"
	case StateSaving:
		return "saving"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// NoDataMessage prefixes the error of every aborted run.
const NoDataMessage = "No data returned from CSV download"

// Event is emitted on every state transition.
type Event struct {
	RunID string
	Query string
	State State
	Time  time.Time
	Err   error
}

// Observer receives run events. It is called synchronously.
type Observer func(Event)

// Enricher turns listing URLs into details, one per URL in order.
type Enricher interface {
	Enrich(ctx context.Context, urls []string) []types.ListingDetail
}

// RunOptions toggles the optional stages of one run.
type RunOptions struct {
	Enrich   bool
	Fallback bool
}

// QuerySpec is one entry for RunAll.
type QuerySpec struct {
	Query   *types.Query
	Filter  filter.Predicate
	Options RunOptions
}

// Orchestrator owns the fetchers and stores for a sequence of runs.
type Orchestrator struct {
	primary   fetcher.TableFetcher
	fallback  fetcher.TableFetcher
	enricher  Enricher
	store     storage.ArtifactStore
	chain     *Chain
	metrics   *observability.Metrics
	observers []Observer
	baseURL   string
	newID     func() string
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFallback sets the fetcher tried when the primary fetch fails.
func WithFallback(f fetcher.TableFetcher) Option {
	return func(o *Orchestrator) { o.fallback = f }
}

// WithEnricher sets the listing page enricher.
func WithEnricher(e Enricher) Option {
	return func(o *Orchestrator) { o.enricher = e }
}

// WithStore sets where artifacts are saved.
func WithStore(s storage.ArtifactStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithChain sets the row middleware run before the filter.
func WithChain(c *Chain) Option {
	return func(o *Orchestrator) { o.chain = c }
}

// WithMetrics records row counts and run outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithObserver registers a state transition callback.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, fn) }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New creates an orchestrator around the primary bulk fetcher.
func New(primary fetcher.TableFetcher, cfg *config.Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		primary: primary,
		baseURL: cfg.Fetcher.BaseURL,
		newID:   uuid.NewString,
		logger:  logger.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DefaultRunOptions reads the stage toggles from cfg.
func DefaultRunOptions(cfg *config.Config) RunOptions {
	return RunOptions{Enrich: cfg.Enrich.Enabled, Fallback: cfg.Fallback.Enabled}
}

// SpecsFromConfig builds one QuerySpec per configured query with its
// stored filter.
func SpecsFromConfig(cfg *config.Config) []QuerySpec {
	base := DefaultRunOptions(cfg)
	specs := make([]QuerySpec, 0, len(cfg.Queries))
	for i := range cfg.Queries {
		qc := &cfg.Queries[i]
		opts := base
		if qc.NoScrape {
			opts.Enrich = false
		}
		specs = append(specs, QuerySpec{
			Query:   &qc.Query,
			Filter:  qc.Filter.Predicate(),
			Options: opts,
		})
	}
	return specs
}

// run carries one query through the stages.
type run struct {
	id     string
	query  *types.Query
	pred   filter.Predicate
	opts   RunOptions
	result *types.PipelineResult
	logger *slog.Logger
}

// Run executes every stage for q. It never returns nil; an aborted run has
// a non-empty Error and zero counts.
func (o *Orchestrator) Run(ctx context.Context, q *types.Query, pred filter.Predicate, opts RunOptions) *types.PipelineResult {
	r := &run{
		id:    o.newID(),
		query: q,
		pred:  pred,
		opts:  opts,
		result: &types.PipelineResult{
			QueryName: q.Name,
			StartedAt: time.Now(),
		},
	}
	r.result.RunID = r.id
	r.logger = o.logger.With("query", q.Name, "run_id", r.id)

	o.chain.Reset()
	if rs, ok := o.store.(storage.RunScoped); ok {
		rs.SetRun(r.id, q.Name)
	}

	r.logger.Info("pipeline started", "region_id", q.RegionID, "region_type", q.RegionType.String())

	raw, err := o.fetch(ctx, r)
	if err != nil {
		return o.abort(r, err)
	}

	o.transition(r, StateNormalizing, nil)
	table := normalize.Normalize(raw)
	r.result.Raw = table
	r.result.RawCount = table.Len()
	o.metrics.SetRows(q.Name, "raw", r.result.RawCount)
	r.logger.Info("fetch complete", "raw", r.result.RawCount)

	o.transition(r, StateFiltering, nil)
	filtered, err := o.filter(table, pred)
	if err != nil {
		// Middleware failures leave the rows unfiltered rather than losing the run.
		r.logger.Error("row middleware failed", "error", err)
		filtered = filter.Apply(table, pred)
	}
	r.result.Filtered = filtered
	r.result.FilteredCount = filtered.Len()
	o.metrics.SetRows(q.Name, "filtered", r.result.FilteredCount)
	r.logger.Info("filtering complete", "passed", r.result.FilteredCount, "raw", r.result.RawCount)

	o.enrich(ctx, r)

	o.transition(r, StateSaving, nil)
	o.save(r)

	return o.finish(r, StateDone)
}

// RunAll runs every query in order. A failing query does not stop the rest.
func (o *Orchestrator) RunAll(ctx context.Context, specs []QuerySpec) []*types.PipelineResult {
	results := make([]*types.PipelineResult, 0, len(specs))
	for _, spec := range specs {
		if ctx.Err() != nil {
			o.logger.Warn("run cancelled", "remaining", len(specs)-len(results))
			break
		}
		results = append(results, o.Run(ctx, spec.Query, spec.Filter, spec.Options))
	}
	return results
}

// Download fetches q's export with the primary fetcher only and saves it
// unmodified. It returns the saved locator and the row count.
func (o *Orchestrator) Download(ctx context.Context, q *types.Query) (string, int, error) {
	dl, ok := o.primary.(interface {
		Download(ctx context.Context, q *types.Query) (*types.RawTable, []byte, error)
	})
	if !ok {
		return "", 0, fmt.Errorf("fetcher %s cannot download raw exports", o.primary.Type())
	}
	if o.store == nil {
		return "", 0, errors.New("no artifact store configured")
	}

	raw, data, err := dl.Download(ctx, q)
	if err != nil {
		return "", 0, err
	}
	if raw.Len() == 0 {
		o.logger.Warn("export has no rows", "query", q.Name)
	}
	path, err := o.store.SaveRaw(q.Name, data)
	if err != nil {
		return "", raw.Len(), err
	}
	return path, raw.Len(), nil
}

// Close releases the fetchers and the store.
func (o *Orchestrator) Close() error {
	var errs []error
	if o.primary != nil {
		errs = append(errs, o.primary.Close())
	}
	if o.fallback != nil {
		errs = append(errs, o.fallback.Close())
	}
	if o.store != nil {
		errs = append(errs, o.store.Close())
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) fetch(ctx context.Context, r *run) (*types.RawTable, error) {
	o.transition(r, StateFetching, nil)

	raw, err := o.primary.FetchTable(ctx, r.query)
	if err == nil {
		if raw.Len() == 0 {
			return nil, types.ErrNoData
		}
		return raw, nil
	}

	r.logger.Warn("bulk download failed", "fetcher", o.primary.Type(), "error", err)
	if !types.IsFetchFailure(err) || ctx.Err() != nil {
		return nil, err
	}
	if !r.opts.Fallback || o.fallback == nil {
		return nil, err
	}

	r.logger.Info("attempting fallback", "fetcher", o.fallback.Type())
	raw, ferr := o.fallback.FetchTable(ctx, r.query)
	if ferr != nil {
		r.logger.Error("fallback also failed", "error", ferr)
		return nil, errors.Join(err, ferr)
	}
	if raw.Len() == 0 {
		return nil, types.ErrNoData
	}
	return raw, nil
}

func (o *Orchestrator) filter(t *types.Table, pred filter.Predicate) (*types.Table, error) {
	if o.chain.Len() == 0 {
		return filter.Apply(t, pred), nil
	}
	cleaned, err := o.chain.Process(t)
	if err != nil {
		return nil, err
	}
	return filter.Apply(cleaned, pred), nil
}

func (o *Orchestrator) enrich(ctx context.Context, r *run) {
	if !r.opts.Enrich || o.enricher == nil || r.result.FilteredCount == 0 {
		r.logger.Info("enrichment skipped", "enabled", r.opts.Enrich, "filtered", r.result.FilteredCount)
		return
	}

	urls := ListingURLs(r.result.Filtered, o.baseURL)
	if len(urls) == 0 {
		r.logger.Warn("no listing urls in filtered rows")
		return
	}

	o.transition(r, StateEnriching, nil)
	details := o.enricher.Enrich(ctx, urls)
	r.result.Details = details
	for _, d := range details {
		if d.IsEnriched() {
			r.result.EnrichedCount++
		}
	}
	o.metrics.SetRows(r.query.Name, "enriched", r.result.EnrichedCount)
	r.logger.Info("enrichment complete", "enriched", r.result.EnrichedCount, "filtered", r.result.FilteredCount)
}

// save writes artifacts. Failures are logged and never fail the run.
func (o *Orchestrator) save(r *run) {
	if o.store == nil {
		return
	}
	name := r.query.Name

	if r.result.FilteredCount > 0 {
		if loc, err := o.store.SaveTable(storage.StageFiltered, name, r.result.Filtered); err != nil {
			r.logger.Error("saving filtered listings failed", "backend", o.store.Name(), "error", err)
		} else if loc != "" {
			r.result.Artifacts = append(r.result.Artifacts, loc)
		}
	}
	if len(r.result.Details) > 0 {
		if loc, err := o.store.SaveDetails(name, r.result.Details); err != nil {
			r.logger.Error("saving listing details failed", "backend", o.store.Name(), "error", err)
		} else if loc != "" {
			r.result.Artifacts = append(r.result.Artifacts, loc)
		}
	}
}

func (o *Orchestrator) abort(r *run, cause error) *types.PipelineResult {
	r.result.Error = fmt.Sprintf("%s: %v", NoDataMessage, cause)
	r.result.Raw = nil
	r.result.Filtered = nil
	r.result.Details = nil
	r.logger.Error("pipeline aborted", "error", cause)
	o.transition(r, StateAborted, cause)
	return o.finish(r, StateAborted)
}

func (o *Orchestrator) finish(r *run, final State) *types.PipelineResult {
	if final == StateDone {
		o.transition(r, StateDone, nil)
	}
	r.result.State = final.String()
	r.result.Duration = time.Since(r.result.StartedAt)
	o.metrics.ObserveRun(final.String(), r.result.Duration)

	if final == StateDone {
		r.logger.Info("pipeline complete",
			"raw", r.result.RawCount,
			"filtered", r.result.FilteredCount,
			"enriched", r.result.EnrichedCount,
			"duration", r.result.Duration,
		)
	}
	return r.result
}

func (o *Orchestrator) transition(r *run, s State, err error) {
	ev := Event{RunID: r.id, Query: r.query.Name, State: s, Time: time.Now(), Err: err}
	r.logger.Debug("state", "state", s.String())
	for _, fn := range o.observers {
		fn(ev)
	}
}

// ListingURLs returns the absolute listing URLs of t, taken from the url
// column, or URL when that is absent. Blank cells are skipped.
func ListingURLs(t *types.Table, baseURL string) []string {
	col := ""
	switch {
	case t.HasColumn(normalize.FieldURL):
		col = normalize.FieldURL
	case t.HasColumn("URL"):
		col = "URL"
	default:
		return nil
	}

	var urls []string
	for _, v := range t.Column(col) {
		s := v.Text()
		if v.IsNull() || s == "" {
			continue
		}
		urls = append(urls, enrich.AbsoluteURL(baseURL, s))
	}
	return urls
}
