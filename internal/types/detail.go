package types

import "time"

// ListingDetail is what enrichment extracted from one listing page. A
// failed fetch still yields a ListingDetail with only URL set.
type ListingDetail struct {
	URL         string         `json:"url"          bson:"url"`
	Description string         `json:"description"  bson:"description"`
	ImageURLs   []string       `json:"image_urls"   bson:"image_urls"`
	RawData     map[string]any `json:"-"            bson:"raw_data,omitempty"`
}

// EmptyDetail returns the placeholder for a page that could not be fetched.
func EmptyDetail(url string) ListingDetail {
	return ListingDetail{URL: url, ImageURLs: []string{}, RawData: map[string]any{}}
}

// IsEnriched reports whether the page produced a description or images.
func (d ListingDetail) IsEnriched() bool {
	return d.Description != "" || len(d.ImageURLs) > 0
}

// PipelineResult summarizes one query run. A run that aborted carries a
// non-empty Error and zero counts.
type PipelineResult struct {
	RunID         string
	QueryName     string
	State         string
	RawCount      int
	FilteredCount int
	EnrichedCount int
	Raw           *Table
	Filtered      *Table
	Details       []ListingDetail
	Artifacts     []string
	Error         string
	StartedAt     time.Time
	Duration      time.Duration
}

// Failed reports whether the run aborted.
func (r *PipelineResult) Failed() bool {
	return r.Error != ""
}
