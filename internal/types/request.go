package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Request is a single GET issued by a fetcher.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Headers override the fetcher's default headers.
	Headers http.Header

	// Timeout overrides the client timeout for this request when > 0.
	Timeout time.Duration

	// Tag categorizes the request ("bulk", "listing") for logs and metrics.
	Tag string
}

// NewRequest parses rawURL into a Request.
func NewRequest(rawURL, tag string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	return &Request{
		URL:     u,
		Headers: make(http.Header),
		Tag:     tag,
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}
