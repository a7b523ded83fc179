package types

import (
	"encoding/json"
	"testing"
)

func TestTableSelectDoesNotMutate(t *testing.T) {
	tbl := &Table{
		Columns: []string{"price"},
		Rows: []Record{
			{"price": Number(1)},
			{"price": Number(2)},
			{"price": Number(3)},
		},
	}
	out := tbl.Select([]bool{true, false, true})
	if out.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", out.Len())
	}
	out.Rows[0]["price"] = Number(99)
	if v, _ := tbl.Rows[0]["price"].Float(); v != 1 {
		t.Errorf("source row modified: %v", v)
	}
	if tbl.Len() != 3 {
		t.Errorf("source table changed length: %d", tbl.Len())
	}
}

func TestValueText(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Number(450000), "450000"},
		{Number(2.5), "2.5"},
		{String("Condo"), "Condo"},
		{Null, ""},
	}
	for _, tt := range tests {
		if got := tt.v.Text(); got != tt.want {
			t.Errorf("Text() = %q, want %q", got, tt.want)
		}
	}
}

func TestRecordJSON(t *testing.T) {
	r := Record{"price": Number(10), "city": String("Miami"), "hoa_monthly": Null}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"city":"Miami","hoa_monthly":null,"price":10}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestFetchErrorMatching(t *testing.T) {
	err := error(&FetchError{Kind: FetchBlocked, URL: "u", StatusCode: 403})
	if !IsFetchFailure(err) {
		t.Error("blocked fetch should be a fetch failure")
	}
	err = &FetchError{Kind: FetchMalformed, URL: "u"}
	if !IsFetchFailure(err) {
		t.Error("malformed fetch should be a fetch failure")
	}
	if IsFetchFailure(&PageError{URL: "u", StatusCode: 500}) {
		t.Error("page error is not a bulk fetch failure")
	}
}

func TestListingDetailEnriched(t *testing.T) {
	if EmptyDetail("u").IsEnriched() {
		t.Error("empty detail should not count as enriched")
	}
	if !(ListingDetail{URL: "u", ImageURLs: []string{"a"}}).IsEnriched() {
		t.Error("detail with an image should count as enriched")
	}
	if !(ListingDetail{URL: "u", Description: "d"}).IsEnriched() {
		t.Error("detail with a description should count as enriched")
	}
}
