package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("gis_csv", "ok", time.Second)
	m.SetRows("Miami", "raw", 10)
	m.ObservePage("ok")
	m.ObserveRun("done", time.Second)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestMetricsRecorded(t *testing.T) {
	m := NewMetrics(testLogger)
	m.ObserveFetch("gis_csv", "blocked", 200*time.Millisecond)
	m.ObserveFetch("gis_csv", "ok", time.Second)
	m.SetRows("Miami", "raw", 10)
	m.SetRows("Miami", "filtered", 6)
	m.ObservePage("ok")
	m.ObservePage("ok")
	m.ObservePage("status")
	m.ObserveRun("done", 3*time.Second)

	text := scrape(t, m)
	for _, want := range []string{
		`homestalk_fetch_total{outcome="blocked",source="gis_csv"} 1`,
		`homestalk_rows{query="Miami",stage="filtered"} 6`,
		`homestalk_pages_total{outcome="ok"} 2`,
		`homestalk_runs_total{state="done"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics(testLogger)
	m.ObservePage("cached")

	if text := scrape(t, m); !strings.Contains(text, `homestalk_pages_total{outcome="cached"} 1`) {
		t.Errorf("exposition missing page counter:\n%s", text)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Each instance owns its registry, so two never collide on registration.
	a := NewMetrics(testLogger)
	b := NewMetrics(testLogger)
	a.ObservePage("ok")
	if strings.Contains(scrape(t, b), "homestalk_pages_total{") {
		t.Error("registries should be independent")
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read exposition: %v", err)
	}
	return string(body)
}
