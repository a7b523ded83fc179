package parser

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
)

const jsonLDXPath = `//script[@type="application/ld+json"]`

// serverConfigPattern captures the object assigned to the page's server
// render config. The object may span many lines.
var serverConfigPattern = regexp.MustCompile(`(?ms)reactServerAgent\.config\s*=\s*(\{.+?\});?\s*$`)

var errNoJSONObject = errors.New("not a JSON object or array")

// StructuredStrategies returns the linked-data lookup followed by the
// server config scan.
func StructuredStrategies() []Strategy[map[string]any] {
	return []Strategy[map[string]any]{
		{Name: "json-ld", Run: jsonLD},
		{Name: "server-config", Run: serverConfig},
	}
}

// jsonLD parses the first linked-data script that holds valid JSON.
func jsonLD(p *Page) Outcome[map[string]any] {
	root, err := p.Node()
	if err != nil {
		p.skipped("json-ld", err)
		return NotFound[map[string]any]()
	}
	nodes, err := htmlquery.QueryAll(root, jsonLDXPath)
	if err != nil {
		p.skipped("json-ld", err)
		return NotFound[map[string]any]()
	}
	for _, n := range nodes {
		data, err := decodeObject(htmlquery.InnerText(n))
		if err != nil {
			p.skipped("json-ld", err)
			continue
		}
		return Found(data)
	}
	return NotFound[map[string]any]()
}

// serverConfig scans inline scripts for the server render config.
func serverConfig(p *Page) Outcome[map[string]any] {
	root, err := p.Node()
	if err != nil {
		p.skipped("server-config", err)
		return NotFound[map[string]any]()
	}
	for _, n := range htmlquery.Find(root, "//script") {
		text := htmlquery.InnerText(n)
		if !strings.Contains(text, "reactServerAgent") {
			continue
		}
		m := serverConfigPattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		data, err := decodeObject(m[1])
		if err != nil {
			p.skipped("server-config", err)
			continue
		}
		return Found(data)
	}
	return NotFound[map[string]any]()
}

// decodeObject parses raw as a JSON object. A top-level array is wrapped
// as {"@graph": [...]}.
func decodeObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errNoJSONObject
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case map[string]any:
		return val, nil
	case []any:
		return map[string]any{"@graph": val}, nil
	default:
		return nil, errNoJSONObject
	}
}
