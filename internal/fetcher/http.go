package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/types"
)

// HTTPFetcher implements Fetcher using net/http. One instance owns one
// connection pool; Close releases it.
type HTTPFetcher struct {
	client *http.Client
	cfg    *config.FetcherConfig
	logger *slog.Logger
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.FetcherConfig, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // decoded in decompressReader, brotli included
	}

	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   cfg.Timeout,
	}

	return &HTTPFetcher{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "http_fetcher"),
	}, nil
}

// Fetch executes a GET and returns the response whatever its status. Only
// transport failures and bodies over MaxBodySize are returned as errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URLString(), nil)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("User-Agent", f.userAgent())
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if f.cfg.Referer != "" {
		httpReq.Header.Set("Referer", f.cfg.Referer)
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Set(key, v)
		}
	}

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var reader io.Reader = httpResp.Body
	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", httpResp.Header.Get("Content-Encoding"), err)
	}
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.MaxBodySize+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.cfg.MaxBodySize > 0 && int64(len(body)) > f.cfg.MaxBodySize {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", types.ErrBodyTooLarge, f.cfg.MaxBodySize, req.URLString())
	}
	duration := time.Since(start)

	resp := types.NewResponse(req, httpResp, body, duration)

	f.logger.Debug("fetch complete",
		"url", req.URLString(),
		"tag", req.Tag,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return resp, nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

func (f *HTTPFetcher) userAgent() string {
	if f.cfg.UserAgent != "" {
		return f.cfg.UserAgent
	}
	return config.DefaultUserAgent
}

// decompressReader wraps a reader with the decoder for the response's
// Content-Encoding: gzip, deflate or br.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
