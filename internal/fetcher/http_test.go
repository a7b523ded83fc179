package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/types"
)

func newHTTPFetcher(t *testing.T, mutate func(*config.FetcherConfig)) *HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig().Fetcher
	if mutate != nil {
		mutate(&cfg)
	}
	f, err := NewHTTPFetcher(&cfg, testLogger)
	if err != nil {
		t.Fatalf("create fetcher: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestHTTPFetchDecodesBody(t *testing.T) {
	const page = "<html><body>listing</body></html>"

	var br, gz bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte(page))
	bw.Close()
	gw := gzip.NewWriter(&gz)
	gw.Write([]byte(page))
	gw.Close()

	tests := []struct {
		encoding string
		body     []byte
	}{
		{"br", br.Bytes()},
		{"gzip", gz.Bytes()},
		{"", []byte(page)},
	}

	for _, tt := range tests {
		t.Run("encoding="+tt.encoding, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				w.Write(tt.body)
			}))
			defer srv.Close()

			f := newHTTPFetcher(t, nil)
			req, _ := types.NewRequest(srv.URL, "listing")
			resp, err := f.Fetch(context.Background(), req)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if string(resp.Body) != page {
				t.Errorf("body = %q", resp.Body)
			}
		})
	}
}

func TestHTTPFetchReturnsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newHTTPFetcher(t, nil)
	req, _ := types.NewRequest(srv.URL, "listing")
	resp, err := f.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("status errors are not transport errors: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHTTPFetchHeadersAndLimit(t *testing.T) {
	var referer, accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		accept = r.Header.Get("Accept")
		w.Write(bytes.Repeat([]byte("a"), 100))
	}))
	defer srv.Close()

	f := newHTTPFetcher(t, func(c *config.FetcherConfig) { c.MaxBodySize = 100 })
	req, _ := types.NewRequest(srv.URL, "bulk")
	req.Headers.Set("Accept", "text/csv")
	resp, err := f.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("body exactly at the limit should pass: %v", err)
	}
	if len(resp.Body) != 100 {
		t.Errorf("body = %d bytes", len(resp.Body))
	}
	if referer != config.DefaultBaseURL+"/" {
		t.Errorf("Referer = %q", referer)
	}
	if accept != "text/csv" {
		t.Errorf("request header override not applied: %q", accept)
	}
}

func TestHTTPFetchBodyOverLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), 100))
	}))
	defer srv.Close()

	f := newHTTPFetcher(t, func(c *config.FetcherConfig) { c.MaxBodySize = 99 })
	req, _ := types.NewRequest(srv.URL, "listing")
	resp, err := f.Fetch(context.Background(), req)
	if !errors.Is(err, types.ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	if resp != nil {
		t.Error("an oversize body should not be returned")
	}
}

func TestHTTPFetchRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := newHTTPFetcher(t, nil)
	req, _ := types.NewRequest(srv.URL, "listing")
	req.Timeout = 50 * time.Millisecond
	if _, err := f.Fetch(context.Background(), req); err == nil {
		t.Fatal("expected timeout error")
	}
}
