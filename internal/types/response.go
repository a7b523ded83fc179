package types

import (
	"net/http"
	"time"
)

// Response is the result of fetching a Request.
type Response struct {
	StatusCode  int
	Headers     http.Header
	Body        []byte
	Request     *Request
	ContentType string

	// FinalURL is the URL after any redirects.
	FinalURL      string
	FetchDuration time.Duration
}

// NewResponse creates a Response from an http.Response and its read body.
func NewResponse(req *Request, httpResp *http.Response, body []byte, duration time.Duration) *Response {
	finalURL := req.URLString()
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}
	return &Response{
		StatusCode:    httpResp.StatusCode,
		Headers:       httpResp.Header,
		Body:          body,
		Request:       req,
		ContentType:   httpResp.Header.Get("Content-Type"),
		FinalURL:      finalURL,
		FetchDuration: duration,
	}
}

// Excerpt returns at most n leading characters of the body.
func (r *Response) Excerpt(n int) string {
	s := []rune(string(r.Body))
	if len(s) > n {
		s = s[:n]
	}
	return string(s)
}
