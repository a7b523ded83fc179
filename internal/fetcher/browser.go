package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/observability"
	"github.com/IshaanNene/homestalk/internal/types"
)

// Download control selectors, tried in order.
const (
	primaryDownloadSelector = `a#download-and-save`
	altDownloadSelector     = `a[href*="gis-csv"]`
	altDownloadButton       = `button`
	altDownloadButtonText   = `Download All`
)

var regionSlugs = map[types.RegionType]string{
	types.RegionNeighborhood: "neighborhood",
	types.RegionZip:          "zipcode",
	types.RegionCounty:       "county",
	types.RegionCity:         "city",
}

// RegionURL is the search page the fallback renders for q. Only the region
// is encoded, so the export may be broader than the bulk request would be.
func RegionURL(baseURL string, q *types.Query) string {
	slug, ok := regionSlugs[q.RegionType]
	if !ok {
		slug = "city"
	}
	return fmt.Sprintf("%s/%s/%d", strings.TrimRight(baseURL, "/"), slug, q.RegionID)
}

// BrowserFallback acquires the bulk export by rendering the region search
// page in headless Chromium and clicking its download control. The browser
// is launched on first use and reused until Close.
type BrowserFallback struct {
	cfg     *config.FallbackConfig
	baseURL string
	ua      string
	metrics *observability.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	tmpDir  string
}

// NewBrowserFallback creates the render-path fetcher. No browser is started
// until FetchTable is called.
func NewBrowserFallback(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *BrowserFallback {
	return &BrowserFallback{
		cfg:     &cfg.Fallback,
		baseURL: cfg.Fetcher.BaseURL,
		ua:      cfg.Fetcher.UserAgent,
		metrics: metrics,
		logger:  logger.With("component", "browser_fallback"),
	}
}

// ensureBrowser launches Chromium with appropriate flags once.
func (bf *BrowserFallback) ensureBrowser() (*rod.Browser, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if bf.browser != nil {
		return bf.browser, nil
	}

	l := launcher.New().
		Headless(bf.cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", fmt.Sprintf("%d,%d", bf.cfg.ViewportWidth, bf.cfg.ViewportHeight))
	if bf.cfg.Bin != "" {
		l = l.Bin(bf.cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser, err := connectBrowser(controlURL, l.Kill)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "homestalk-download-")
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	bf.browser = browser
	bf.tmpDir = dir
	bf.logger.Info("browser ready", "headless", bf.cfg.Headless, "download_dir", dir)
	return browser, nil
}

// connectBrowser attaches to the launched browser at controlURL. kill stops
// the launched process when the connection fails.
func connectBrowser(controlURL string, kill func()) (*rod.Browser, error) {
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return browser, nil
}

// FetchTable renders the region page for q, triggers the export and parses
// the downloaded file.
func (bf *BrowserFallback) FetchTable(ctx context.Context, q *types.Query) (*types.RawTable, error) {
	start := time.Now()
	table, err := bf.fetch(ctx, q)

	outcome := "ok"
	var fe *types.FallbackError
	switch {
	case errors.As(err, &fe):
		outcome = fe.Kind.String()
	case err != nil:
		outcome = fetchOutcome(err)
	}
	bf.metrics.ObserveFetch("browser", outcome, time.Since(start))

	return table, err
}

func (bf *BrowserFallback) fetch(ctx context.Context, q *types.Query) (*types.RawTable, error) {
	pageURL := RegionURL(bf.baseURL, q)

	browser, err := bf.ensureBrowser()
	if err != nil {
		return nil, &types.FallbackError{Kind: types.FallbackUnavailable, URL: pageURL, Err: err}
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, &types.FallbackError{Kind: types.FallbackUnavailable, URL: pageURL, Err: fmt.Errorf("stealth page: %w", err)}
	}
	defer func() { _ = page.Close() }()
	page = page.Context(ctx)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             bf.cfg.ViewportWidth,
		Height:            bf.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		bf.logger.Warn("failed to set viewport", "error", err)
	}
	if bf.ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: bf.ua}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	bf.logger.Info("rendering search page", "query", q.Name, "url", pageURL)

	timeout := bf.cfg.Timeout
	if err := page.Timeout(timeout).Navigate(pageURL); err != nil {
		return nil, &types.FallbackError{Kind: types.FallbackUnavailable, URL: pageURL, Err: fmt.Errorf("navigate: %w", err)}
	}
	if err := page.Timeout(timeout).WaitStable(500 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", pageURL, "error", err)
	}
	if err := sleepCtx(ctx, bf.cfg.SettleDelay); err != nil {
		return nil, &types.FallbackError{Kind: types.FallbackTimeout, URL: pageURL, Err: err}
	}

	button, selector, err := bf.findDownloadControl(page, timeout)
	if err != nil {
		return nil, &types.FallbackError{Kind: types.FallbackUnavailable, URL: pageURL, Selector: selector, Err: err}
	}

	data, err := bf.captureDownload(ctx, browser, button, timeout)
	if err != nil {
		return nil, &types.FallbackError{Kind: types.FallbackTimeout, URL: pageURL, Selector: selector, Err: err}
	}

	table, err := ParseCSV(data)
	if err != nil {
		return nil, &types.FetchError{Kind: types.FetchMalformed, URL: pageURL, Err: err}
	}
	bf.logger.Info("fallback download complete", "query", q.Name, "rows", table.Len())
	return table, nil
}

// findDownloadControl waits for the primary selector, then races the
// alternates. Each stage is bounded by timeout.
func (bf *BrowserFallback) findDownloadControl(page *rod.Page, timeout time.Duration) (*rod.Element, string, error) {
	el, err := page.Timeout(timeout).Element(primaryDownloadSelector)
	if err == nil {
		return el, primaryDownloadSelector, nil
	}
	bf.logger.Debug("primary download selector not found, trying alternates", "error", err)

	el, err = page.Timeout(timeout).Race().
		Element(altDownloadSelector).
		ElementR(altDownloadButton, altDownloadButtonText).
		Do()
	if err != nil {
		return nil, altDownloadSelector, fmt.Errorf("no download control within %s: %w", timeout, err)
	}
	return el, altDownloadSelector, nil
}

// captureDownload clicks el and waits for the browser to finish writing the
// file, returning its contents.
func (bf *BrowserFallback) captureDownload(ctx context.Context, browser *rod.Browser, el *rod.Element, timeout time.Duration) ([]byte, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := browser.Context(waitCtx)
	wait := b.WaitDownload(bf.tmpDir)

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("click download control: %w", err)
	}

	info := wait()
	if waitCtx.Err() != nil {
		return nil, fmt.Errorf("download not finished within %s: %w", timeout, waitCtx.Err())
	}
	if info == nil {
		return nil, errors.New("download never started")
	}

	path := filepath.Join(bf.tmpDir, info.GUID)
	defer os.Remove(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read download: %w", err)
	}
	return data, nil
}

// Close shuts down the browser and removes downloaded files.
func (bf *BrowserFallback) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	var err error
	if bf.browser != nil {
		err = bf.browser.Close()
		bf.browser = nil
	}
	if bf.tmpDir != "" {
		_ = os.RemoveAll(bf.tmpDir)
		bf.tmpDir = ""
	}
	return err
}

// Type returns the fetcher type identifier.
func (bf *BrowserFallback) Type() string {
	return "browser"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
