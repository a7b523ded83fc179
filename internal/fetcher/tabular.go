package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/observability"
	"github.com/IshaanNene/homestalk/internal/types"
)

const (
	csvAccept      = "text/csv,application/csv,text/plain,*/*"
	excerptLen     = 500
	htmlSniffBytes = 200
)

var errHTMLInsteadOfCSV = errors.New("received HTML instead of CSV, likely a captcha or block page")

// GISCSVFetcher downloads a query's results from the bulk CSV endpoint in a
// single GET. It does not retry.
type GISCSVFetcher struct {
	http     *HTTPFetcher
	cfg      *config.FetcherConfig
	limiter  *rate.Limiter
	metrics  *observability.Metrics
	logger   *slog.Logger
	endpoint string
}

// NewGISCSVFetcher creates a bulk fetcher that owns its own HTTP client.
func NewGISCSVFetcher(cfg *config.FetcherConfig, metrics *observability.Metrics, logger *slog.Logger) (*GISCSVFetcher, error) {
	hf, err := NewHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewGISCSVFetcherWithClient(hf, cfg, metrics, logger), nil
}

// NewGISCSVFetcherWithClient creates a bulk fetcher on a shared HTTP client.
func NewGISCSVFetcherWithClient(hf *HTTPFetcher, cfg *config.FetcherConfig, metrics *observability.Metrics, logger *slog.Logger) *GISCSVFetcher {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &GISCSVFetcher{
		http:     hf,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
		metrics:  metrics,
		logger:   logger.With("component", "gis_csv_fetcher"),
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + cfg.CSVPath,
	}
}

// URL returns the full request URL for q.
func (f *GISCSVFetcher) URL(q *types.Query) string {
	return f.endpoint + "?" + q.ToParams().Encode()
}

// FetchTable downloads and parses the export for q.
func (f *GISCSVFetcher) FetchTable(ctx context.Context, q *types.Query) (*types.RawTable, error) {
	table, _, err := f.Download(ctx, q)
	return table, err
}

// Download returns the parsed export and the raw bytes it was parsed from.
func (f *GISCSVFetcher) Download(ctx context.Context, q *types.Query) (*types.RawTable, []byte, error) {
	rawURL := f.URL(q)
	start := time.Now()

	table, body, err := f.download(ctx, rawURL)

	outcome := "ok"
	if err != nil {
		outcome = fetchOutcome(err)
	}
	f.metrics.ObserveFetch("csv", outcome, time.Since(start))

	if err != nil {
		f.logger.Warn("bulk fetch failed", "query", q.Name, "error", err)
		return nil, nil, err
	}
	if table.Len() == 0 {
		f.logger.Warn("bulk fetch returned no rows", "query", q.Name, "url", rawURL)
	} else {
		f.logger.Info("bulk fetch complete", "query", q.Name, "rows", table.Len(), "columns", len(table.Columns))
	}
	return table, body, nil
}

func (f *GISCSVFetcher) download(ctx context.Context, rawURL string) (*types.RawTable, []byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, nil, &types.FetchError{Kind: types.FetchBlocked, URL: rawURL, Err: err}
	}

	req, err := types.NewRequest(rawURL, "bulk")
	if err != nil {
		return nil, nil, &types.FetchError{Kind: types.FetchBlocked, URL: rawURL, Err: err}
	}
	req.Headers.Set("Accept", csvAccept)

	resp, err := f.http.Fetch(ctx, req)
	if errors.Is(err, types.ErrBodyTooLarge) {
		return nil, nil, &types.FetchError{Kind: types.FetchMalformed, URL: rawURL, Err: err}
	}
	if err != nil {
		return nil, nil, &types.FetchError{Kind: types.FetchBlocked, URL: rawURL, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &types.FetchError{
			Kind:       types.FetchBlocked,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Excerpt:    resp.Excerpt(excerptLen),
		}
	}

	if looksLikeHTML(resp.ContentType, resp.Body) {
		return nil, nil, &types.FetchError{
			Kind:       types.FetchBlocked,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Excerpt:    resp.Excerpt(excerptLen),
			Err:        errHTMLInsteadOfCSV,
		}
	}

	table, err := ParseCSV(resp.Body)
	if err != nil {
		return nil, nil, &types.FetchError{
			Kind:       types.FetchMalformed,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Excerpt:    resp.Excerpt(excerptLen),
			Err:        err,
		}
	}
	return table, resp.Body, nil
}

// Close releases the HTTP client's connections.
func (f *GISCSVFetcher) Close() error {
	return f.http.Close()
}

// Type returns the fetcher type identifier.
func (f *GISCSVFetcher) Type() string {
	return "csv"
}

// looksLikeHTML reports a markup page served where CSV was expected, which
// usually means a captcha or block page.
func looksLikeHTML(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/csv") || strings.Contains(ct, "text/plain") {
		return false
	}
	head := body[:min(len(body), htmlSniffBytes)]
	return strings.Contains(strings.ToLower(string(head)), "<html")
}

func fetchOutcome(err error) string {
	var fe *types.FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	return "error"
}
