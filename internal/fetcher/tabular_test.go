package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const miamiCSV = `SALE TYPE,PRICE,BEDS,URL (SEE https://www.redfin.com/buy-a-home/comparative-market-analysis FOR INFO ON PRICING)
MLS Listing,450000,3,/FL/Miami/1/home/1
MLS Listing,650000,4,/FL/Miami/2/home/2
`

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*GISCSVFetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().Fetcher
	cfg.BaseURL = srv.URL
	cfg.RateLimit = 0

	f, err := NewGISCSVFetcher(&cfg, nil, testLogger)
	if err != nil {
		t.Fatalf("create fetcher: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f, srv
}

func miamiQuery() *types.Query {
	return &types.Query{Name: "Miami", RegionID: 11203, RegionType: types.RegionCity, MinPrice: types.Int(400000)}
}

func TestFetchTableSuccess(t *testing.T) {
	var gotPath, gotQuery, gotAccept, gotUA string
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(miamiCSV))
	})

	table, err := f.FetchTable(context.Background(), miamiQuery())
	if err != nil {
		t.Fatalf("FetchTable: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.Len())
	}
	if table.Columns[1] != "PRICE" {
		t.Errorf("unexpected header %v", table.Columns)
	}
	if gotPath != config.DefaultCSVPath {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != miamiQuery().ToParams().Encode() {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAccept != csvAccept {
		t.Errorf("Accept = %q", gotAccept)
	}
	if !strings.Contains(gotUA, "Chrome/120") {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetchTableBlockedStatus(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<html><body>Access denied " + strings.Repeat("x", 1000) + "</body></html>"))
	})

	_, err := f.FetchTable(context.Background(), miamiQuery())
	if !errors.Is(err, types.ErrFetchBlocked) {
		t.Fatalf("expected ErrFetchBlocked, got %v", err)
	}
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", fe.StatusCode)
	}
	if n := len([]rune(fe.Excerpt)); n != excerptLen {
		t.Errorf("excerpt length = %d, want %d", n, excerptLen)
	}
}

func TestFetchTableHTMLWithOK(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<!DOCTYPE html><HTML><body>captcha</body></HTML>"))
	})

	_, err := f.FetchTable(context.Background(), miamiQuery())
	if !errors.Is(err, types.ErrFetchBlocked) {
		t.Fatalf("expected ErrFetchBlocked, got %v", err)
	}
}

func TestFetchTableHTMLTextInCSVAllowed(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("NOTE,PRICE\n<html> in a cell,1\n"))
	})

	table, err := f.FetchTable(context.Background(), miamiQuery())
	if err != nil {
		t.Fatalf("csv content type should bypass the markup check: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 row, got %d", table.Len())
	}
}

func TestFetchTableMalformed(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("A,B\n1,2,3,4\n"))
	})

	_, err := f.FetchTable(context.Background(), miamiQuery())
	if !errors.Is(err, types.ErrFetchMalformed) {
		t.Fatalf("expected ErrFetchMalformed, got %v", err)
	}
	if !types.IsFetchFailure(err) {
		t.Error("malformed export should trigger the fallback path")
	}
}

func TestFetchTableOversizeIsMalformed(t *testing.T) {
	var b strings.Builder
	b.WriteString("PRICE,ADDRESS\n")
	for i := 0; i < 100; i++ {
		b.WriteString("500000,1234 Long Street\n")
	}
	export := b.String()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(export))
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().Fetcher
	cfg.BaseURL = srv.URL
	cfg.RateLimit = 0
	cfg.MaxBodySize = int64(len(export) / 2)
	f, err := NewGISCSVFetcher(&cfg, nil, testLogger)
	if err != nil {
		t.Fatalf("create fetcher: %v", err)
	}
	defer f.Close()

	table, err := f.FetchTable(context.Background(), miamiQuery())
	if !errors.Is(err, types.ErrFetchMalformed) {
		t.Fatalf("expected ErrFetchMalformed, got %v (rows=%d)", err, table.Len())
	}
	if !errors.Is(err, types.ErrBodyTooLarge) {
		t.Errorf("cause should be kept: %v", err)
	}
}

func TestFetchTableEmpty(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
	})

	table, err := f.FetchTable(context.Background(), miamiQuery())
	if err != nil {
		t.Fatalf("empty export is not an error: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("expected 0 rows, got %d", table.Len())
	}
}

func TestFetchTableTransportError(t *testing.T) {
	f, srv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := f.FetchTable(context.Background(), miamiQuery())
	if !errors.Is(err, types.ErrFetchBlocked) {
		t.Fatalf("transport failure should map to blocked, got %v", err)
	}
}

func TestDownloadReturnsRawBytes(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(miamiCSV))
	})

	table, data, err := f.Download(context.Background(), miamiQuery())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != miamiCSV {
		t.Errorf("raw bytes differ from the served export")
	}
	if table.Len() != 2 {
		t.Errorf("expected 2 rows, got %d", table.Len())
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantCols int
		wantRows int
		wantErr  bool
	}{
		{"basic", "A,B\n1,2\n3,4\n", 2, 2, false},
		{"bom", "\xEF\xBB\xBFA,B\n1,2\n", 2, 1, false},
		{"short rows", "A,B,C\n1\n1,2\n", 3, 2, false},
		{"blank lines", "A,B\n\n1,2\n\n", 2, 1, false},
		{"empty", "", 0, 0, false},
		{"long row", "A\n1,2\n", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseCSV([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCSV error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(table.Columns) != tt.wantCols || table.Len() != tt.wantRows {
				t.Errorf("got %d cols %d rows, want %d cols %d rows", len(table.Columns), table.Len(), tt.wantCols, tt.wantRows)
			}
		})
	}
	table, _ := ParseCSV([]byte("\xEF\xBB\xBFPRICE\n1\n"))
	if table.Columns[0] != "PRICE" {
		t.Errorf("BOM not stripped: %q", table.Columns[0])
	}
}
