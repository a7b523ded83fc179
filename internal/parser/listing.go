package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// descriptionSelectors are tried in order: the remarks container id, the
// known class names, then the test-id marker.
var descriptionSelectors = []string{
	`div#marketing-remarks-scroll`,
	`div.remarks`,
	`div[data-testid="listing-remarks"]`,
	`p.marketing-remarks`,
}

// imageURLPattern matches photo URLs on the listing image CDN.
var imageURLPattern = regexp.MustCompile(`(?i)https?://ssl\.cdn-redfin\.com/[^"'\\\s]+\.(?:jpg|jpeg|png|webp)`)

const (
	imageTagSelector = `img[src*="cdn-redfin"]`
	iconSuffix       = "_icon.png"
)

// photoScriptMarkers identify script blocks that carry the photo payload.
var photoScriptMarkers = []string{"listingImages", "photos"}

// DescriptionStrategies returns one strategy per description selector.
func DescriptionStrategies() []Strategy[string] {
	strategies := make([]Strategy[string], 0, len(descriptionSelectors))
	for _, sel := range descriptionSelectors {
		strategies = append(strategies, Strategy[string]{
			Name: "css:" + sel,
			Run:  selectorText(sel),
		})
	}
	return strategies
}

func selectorText(sel string) func(p *Page) Outcome[string] {
	return func(p *Page) Outcome[string] {
		doc, err := p.Document()
		if err != nil {
			p.skipped("css:"+sel, err)
			return NotFound[string]()
		}
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			return NotFound[string]()
		}
		text := strings.TrimSpace(node.Text())
		if text == "" {
			return NotFound[string]()
		}
		return Found(text)
	}
}

// ImageStrategies returns the script scan followed by the img tag scan.
func ImageStrategies() []Strategy[[]string] {
	return []Strategy[[]string]{
		{Name: "script", Run: scriptImages},
		{Name: "img", Run: tagImages},
	}
}

// scriptImages scans photo-bearing script blocks in document order and
// stops at the first block that yields any URL.
func scriptImages(p *Page) Outcome[[]string] {
	doc, err := p.Document()
	if err != nil {
		p.skipped("script", err)
		return NotFound[[]string]()
	}

	var urls []string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !containsAny(text, photoScriptMarkers...) {
			return true
		}
		matches := imageURLPattern.FindAllString(text, -1)
		if len(matches) == 0 {
			return true
		}
		urls = dedupe(matches)
		return false
	})

	if len(urls) == 0 {
		return NotFound[[]string]()
	}
	return Found(urls)
}

// tagImages collects CDN img sources, skipping icon sprites.
func tagImages(p *Page) Outcome[[]string] {
	doc, err := p.Document()
	if err != nil {
		p.skipped("img", err)
		return NotFound[[]string]()
	}

	var srcs []string
	doc.Find(imageTagSelector).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			return
		}
		src = strings.TrimSpace(src)
		if src == "" || strings.HasSuffix(src, iconSuffix) {
			return
		}
		srcs = append(srcs, src)
	})

	srcs = dedupe(srcs)
	if len(srcs) == 0 {
		return NotFound[[]string]()
	}
	return Found(srcs)
}
