package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/homestalk/internal/types"
)

func parseQuery(t *testing.T, args ...string) (*types.Query, error) {
	t.Helper()
	var qf queryFlags
	cmd := &cobra.Command{Use: "test"}
	qf.register(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return qf.query(cmd)
}

func TestQueryFlags(t *testing.T) {
	q, err := parseQuery(t, "--name", "Miami", "--region-id", "11203", "--min-price", "400000", "--min-baths", "2")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if q.RegionType != types.RegionCity {
		t.Errorf("region type = %v", q.RegionType)
	}
	if q.MinPrice == nil || *q.MinPrice != 400000 {
		t.Errorf("min price = %v", q.MinPrice)
	}
	if q.MaxPrice != nil || q.MinBeds != nil {
		t.Error("flags not given should stay unset")
	}
	if q.NumHomes != types.DefaultNumHomes {
		t.Errorf("num homes = %d", q.NumHomes)
	}
}

func TestQueryFlagsZeroIsSet(t *testing.T) {
	q, err := parseQuery(t, "--name", "Z", "--region-id", "1", "--region-type", "zip", "--min-beds", "0")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if q.MinBeds == nil || *q.MinBeds != 0 {
		t.Errorf("explicit zero should be sent, got %v", q.MinBeds)
	}
	if q.RegionType != types.RegionZip {
		t.Errorf("region type = %v", q.RegionType)
	}
}

func TestQueryFlagsInvalid(t *testing.T) {
	if _, err := parseQuery(t, "--name", "X", "--region-id", "1", "--region-type", "planet"); err == nil {
		t.Error("expected error for unknown region type")
	}
	if _, err := parseQuery(t, "--name", "X", "--region-id", "0"); err == nil {
		t.Error("expected error for zero region id")
	}
}

func TestFilterFlags(t *testing.T) {
	var ff filterFlags
	cmd := &cobra.Command{Use: "test"}
	ff.register(cmd)
	if err := cmd.ParseFlags([]string{"--filter-min-price", "400000", "--filter-max-dom", "0", "--filter-property-type", "Condo/Co-op,Townhouse"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	c := ff.criteria(cmd)
	if c.MinPrice == nil || *c.MinPrice != 400000 {
		t.Errorf("min price = %v", c.MinPrice)
	}
	if c.MaxDOM == nil || *c.MaxDOM != 0 {
		t.Errorf("max dom = %v", c.MaxDOM)
	}
	if c.MaxPrice != nil || c.MinSqft != nil {
		t.Error("unset bounds should be nil")
	}
	if len(c.PropertyTypes) != 2 {
		t.Errorf("property types = %v", c.PropertyTypes)
	}
	if len(c.Predicates()) != 3 {
		t.Errorf("expected 3 predicates, got %d", len(c.Predicates()))
	}
}

func TestFilterFlagsNone(t *testing.T) {
	var ff filterFlags
	cmd := &cobra.Command{Use: "test"}
	ff.register(cmd)
	_ = cmd.ParseFlags(nil)
	if !ff.criteria(cmd).Empty() {
		t.Error("no flags should give empty criteria")
	}
}
