// Package enrich fetches listing pages one at a time with a politeness
// delay between requests and extracts their details.
package enrich

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/fetcher"
	"github.com/IshaanNene/homestalk/internal/observability"
	"github.com/IshaanNene/homestalk/internal/parser"
	"github.com/IshaanNene/homestalk/internal/types"
)

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Extractor turns a fetched page into a ListingDetail.
type Extractor interface {
	Extract(resp *types.Response) types.ListingDetail
}

// Scheduler enriches listing URLs strictly in sequence.
type Scheduler struct {
	fetcher   fetcher.Fetcher
	extractor Extractor
	cache     PageCache
	metrics   *observability.Metrics
	logger    *slog.Logger

	baseURL  string
	delayMin time.Duration
	delayMax time.Duration
	timeout  time.Duration
	sleep    Sleeper

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSleeper replaces the politeness sleep, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(sc *Scheduler) { sc.sleep = s }
}

// WithCache serves page bodies from c when present.
func WithCache(c PageCache) Option {
	return func(sc *Scheduler) { sc.cache = c }
}

// WithMetrics records page outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(sc *Scheduler) { sc.metrics = m }
}

// WithRand seeds the delay jitter.
func WithRand(r *rand.Rand) Option {
	return func(sc *Scheduler) { sc.rng = r }
}

// NewScheduler creates a scheduler that fetches through f.
func NewScheduler(f fetcher.Fetcher, ex Extractor, cfg *config.Config, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:   f,
		extractor: ex,
		logger:    logger.With("component", "enrich_scheduler"),
		baseURL:   cfg.Fetcher.BaseURL,
		delayMin:  cfg.Enrich.DelayMin,
		delayMax:  cfg.Enrich.DelayMax,
		timeout:   cfg.Enrich.Timeout,
		sleep:     SleepContext,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = parser.NewDetailExtractor(logger)
	}
	return s
}

// Enrich fetches and extracts every URL in order. The result has one entry
// per input URL in the same order; a failed page yields an empty detail.
// After every URL except the last the scheduler waits a delay drawn from
// [delayMin, delayMax).
func (s *Scheduler) Enrich(ctx context.Context, urls []string) []types.ListingDetail {
	details := make([]types.ListingDetail, len(urls))
	var enriched, failed int

	for i, raw := range urls {
		if ctx.Err() != nil {
			for j := i; j < len(urls); j++ {
				details[j] = types.EmptyDetail(AbsoluteURL(s.baseURL, urls[j]))
			}
			s.logger.Warn("enrichment cancelled", "done", i, "remaining", len(urls)-i)
			break
		}

		pageURL := AbsoluteURL(s.baseURL, raw)
		s.logger.Info("scraping listing", "index", i+1, "total", len(urls), "url", pageURL)

		detail, err := s.enrichOne(ctx, pageURL)
		if err != nil {
			failed++
			s.logger.Warn("listing fetch failed", "url", pageURL, "error", err)
			detail = types.EmptyDetail(pageURL)
		} else if detail.IsEnriched() {
			enriched++
		}
		details[i] = detail

		// Cancellation during the wait is picked up at the top of the loop.
		if i < len(urls)-1 {
			_ = s.sleep(ctx, s.nextDelay())
		}
	}

	s.logger.Info("enrichment complete", "urls", len(urls), "enriched", enriched, "failed", failed)
	return details
}

func (s *Scheduler) enrichOne(ctx context.Context, pageURL string) (types.ListingDetail, error) {
	if body, ok := s.cached(ctx, pageURL); ok {
		s.metrics.ObservePage("cached")
		return s.extractor.Extract(cachedResponse(pageURL, body)), nil
	}

	req, err := types.NewRequest(pageURL, "listing")
	if err != nil {
		s.metrics.ObservePage("error")
		return types.ListingDetail{}, &types.PageError{URL: pageURL, Err: err}
	}
	req.Timeout = s.timeout

	resp, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		s.metrics.ObservePage("error")
		return types.ListingDetail{}, &types.PageError{URL: pageURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		s.metrics.ObservePage("status")
		return types.ListingDetail{}, &types.PageError{URL: pageURL, StatusCode: resp.StatusCode}
	}
	s.metrics.ObservePage("ok")

	if s.cache != nil {
		if err := s.cache.Put(ctx, pageURL, resp.Body); err != nil {
			s.logger.Debug("page cache write failed", "url", pageURL, "error", err)
		}
	}
	return s.extractor.Extract(resp), nil
}

func (s *Scheduler) cached(ctx context.Context, pageURL string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	body, ok, err := s.cache.Get(ctx, pageURL)
	if err != nil {
		s.logger.Debug("page cache read failed", "url", pageURL, "error", err)
		return nil, false
	}
	return body, ok
}

// nextDelay draws uniformly from [delayMin, delayMax).
func (s *Scheduler) nextDelay() time.Duration {
	span := s.delayMax - s.delayMin
	if span <= 0 {
		return s.delayMin
	}
	s.rngMu.Lock()
	f := s.rng.Float64()
	s.rngMu.Unlock()
	return s.delayMin + time.Duration(f*float64(span))
}

// AbsoluteURL resolves a listing path against the site origin. Absolute
// URLs are returned unchanged.
func AbsoluteURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	b, err := url.Parse(base)
	if err != nil || raw == "" {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(raw, "/")
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(raw, "/")
	}
	return b.ResolveReference(ref).String()
}

func cachedResponse(pageURL string, body []byte) *types.Response {
	req, _ := types.NewRequest(pageURL, "listing")
	return &types.Response{
		StatusCode:  200,
		Body:        body,
		Request:     req,
		ContentType: "text/html",
		FinalURL:    pageURL,
	}
}
