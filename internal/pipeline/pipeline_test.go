package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/IshaanNene/homestalk/internal/config"
	"github.com/IshaanNene/homestalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func sampleTable() *types.Table {
	return &types.Table{
		Columns: []string{"address", "price", "url"},
		Rows: []types.Record{
			{"address": types.String("  1 Main St "), "price": types.Number(450000), "url": types.String("/home/1")},
			{"address": types.String("2 Oak Ave"), "price": types.Number(500000), "url": types.String("/home/2")},
			{"address": types.String("1 Main St"), "price": types.Number(450000), "url": types.String("/home/1")},
			{"address": types.Null, "price": types.Number(300000), "url": types.String("")},
		},
	}
}

func TestChainEmptyCopiesRows(t *testing.T) {
	in := sampleTable()
	out, err := NewChain(testLogger).Process(in)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Len() != in.Len() {
		t.Fatalf("expected %d rows, got %d", in.Len(), out.Len())
	}
	out.Rows[0]["price"] = types.Number(1)
	if v, _ := in.Rows[0].Get("price").Float(); v != 450000 {
		t.Error("output rows must not alias input rows")
	}
}

func TestChainFromConfig(t *testing.T) {
	if c := ChainFromConfig(config.RowsConfig{}, testLogger); c != nil {
		t.Fatalf("default rows config should build no chain, got %d middleware", c.Len())
	}
	if c := ChainFromConfig(config.DefaultConfig().Rows, testLogger); c != nil {
		t.Fatal("DefaultConfig should not enable row middleware")
	}

	c := ChainFromConfig(config.RowsConfig{DedupURL: true, RequiredFields: []string{"address"}}, testLogger)
	if c.Len() != 2 {
		t.Fatalf("expected 2 middleware, got %d", c.Len())
	}
}

func TestDedupMiddleware(t *testing.T) {
	c := NewChain(testLogger)
	c.Use(NewDedupMiddleware("url"))

	out, err := c.Process(sampleTable())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	// Row 2 repeats row 0; the blank url row is kept.
	if out.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", out.Len())
	}
	if out.Rows[2].Get("url").Text() != "" {
		t.Errorf("expected blank-key row last, got %v", out.Rows[2])
	}
}

func TestChainReset(t *testing.T) {
	c := NewChain(testLogger)
	c.Use(NewDedupMiddleware("url"))

	first, _ := c.Process(sampleTable())
	second, _ := c.Process(sampleTable())
	if second.Len() != 1 {
		t.Errorf("without reset every keyed row is a duplicate, got %d rows", second.Len())
	}

	c.Reset()
	third, _ := c.Process(sampleTable())
	if third.Len() != first.Len() {
		t.Errorf("after reset expected %d rows, got %d", first.Len(), third.Len())
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	c := NewChain(testLogger)
	c.Use(&RequiredFieldsMiddleware{Fields: []string{"address", "url"}})

	out, err := c.Process(sampleTable())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Len() != 3 {
		t.Errorf("expected 3 rows, got %d", out.Len())
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "fail" }
func (failingMiddleware) Process(types.Record) (types.Record, error) {
	return nil, errors.New("boom")
}

func TestChainError(t *testing.T) {
	c := NewChain(testLogger)
	c.Use(NewDedupMiddleware("url"))
	c.Use(failingMiddleware{})

	if _, err := c.Process(sampleTable()); err == nil {
		t.Fatal("expected middleware error")
	}
}

func TestNilChain(t *testing.T) {
	var c *Chain
	if c.Len() != 0 {
		t.Error("nil chain should be empty")
	}
	c.Reset()
}
