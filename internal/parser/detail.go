package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/homestalk/internal/types"
)

// Outcome is the result of one extraction strategy.
type Outcome[T any] struct {
	Value T
	Found bool
}

// Found wraps a successful extraction.
func Found[T any](v T) Outcome[T] { return Outcome[T]{Value: v, Found: true} }

// NotFound is the empty outcome.
func NotFound[T any]() Outcome[T] { return Outcome[T]{} }

// Strategy is one way of extracting a T from a listing page.
type Strategy[T any] struct {
	Name string
	Run  func(p *Page) Outcome[T]
}

// FirstFound runs strategies in order and returns the first Found outcome
// along with the name of the strategy that produced it.
func FirstFound[T any](p *Page, strategies []Strategy[T]) (Outcome[T], string) {
	for _, s := range strategies {
		if out := s.Run(p); out.Found {
			return out, s.Name
		}
	}
	return NotFound[T](), ""
}

// Page is a fetched listing page with lazily built parse trees.
type Page struct {
	URL  string
	Body []byte

	doc     *goquery.Document
	docErr  error
	node    *html.Node
	nodeErr error
	logger  *slog.Logger
}

// NewPage wraps a page body.
func NewPage(url string, body []byte, logger *slog.Logger) *Page {
	return &Page{URL: url, Body: body, logger: logger}
}

// Document returns the goquery document for CSS selection.
func (p *Page) Document() (*goquery.Document, error) {
	if p.doc == nil && p.docErr == nil {
		p.doc, p.docErr = goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	}
	return p.doc, p.docErr
}

// Node returns the parsed html tree for XPath queries.
func (p *Page) Node() (*html.Node, error) {
	if p.node == nil && p.nodeErr == nil {
		p.node, p.nodeErr = html.Parse(bytes.NewReader(p.Body))
	}
	return p.node, p.nodeErr
}

// skipped logs a strategy that could not run.
func (p *Page) skipped(strategy string, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("extraction strategy skipped",
		"url", p.URL,
		"strategy", strategy,
		"error", fmt.Errorf("%w: %v", types.ErrParseSkipped, err),
	)
}

// DetailExtractor turns a listing page into a ListingDetail. It never
// returns an error; anything it cannot find is left empty.
type DetailExtractor struct {
	description []Strategy[string]
	images      []Strategy[[]string]
	structured  []Strategy[map[string]any]
	logger      *slog.Logger
}

// NewDetailExtractor creates an extractor with the default strategy chains.
func NewDetailExtractor(logger *slog.Logger) *DetailExtractor {
	return &DetailExtractor{
		description: DescriptionStrategies(),
		images:      ImageStrategies(),
		structured:  StructuredStrategies(),
		logger:      logger.With("component", "detail_extractor"),
	}
}

// Extract parses a fetched response.
func (e *DetailExtractor) Extract(resp *types.Response) types.ListingDetail {
	pageURL := resp.FinalURL
	if resp.Request != nil {
		pageURL = resp.Request.URLString()
	}
	return e.ExtractHTML(pageURL, resp.Body)
}

// ExtractHTML parses raw page markup fetched from pageURL.
func (e *DetailExtractor) ExtractHTML(pageURL string, body []byte) types.ListingDetail {
	p := NewPage(pageURL, body, e.logger)
	detail := types.EmptyDetail(pageURL)

	if out, name := FirstFound(p, e.description); out.Found {
		detail.Description = out.Value
		e.logger.Debug("description found", "url", pageURL, "strategy", name, "length", len(out.Value))
	}
	if out, name := FirstFound(p, e.images); out.Found {
		detail.ImageURLs = out.Value
		e.logger.Debug("images found", "url", pageURL, "strategy", name, "count", len(out.Value))
	}
	if out, name := FirstFound(p, e.structured); out.Found {
		detail.RawData = out.Value
		e.logger.Debug("structured data found", "url", pageURL, "strategy", name, "keys", len(out.Value))
	}
	return detail
}

// dedupe keeps the first occurrence of each string, in order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
