package pageinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shopmon/models"
)

// The extractor runs once per product at add time (and again from the
// enrichment worker for incomplete products). The product name is
// required; image, description and the variant set are opportunistic.

var ErrNoProductName = errors.New("no product name found on page")

type PageInfo struct {
	Name        string
	ImageURL    string
	Description string
	Variants    []DiscoveredVariant
}

// DiscoveredVariant is one monitorable unit found on the page, before it
// gets an ID and joins a product.
type DiscoveredVariant struct {
	Label     string
	URL       string
	SKU       string
	Family    models.Family
	Price     string
	Available bool
}

func Extract(body, pageURL string) (*PageInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	name := extractName(doc)
	if name == "" {
		return nil, ErrNoProductName
	}

	info := &PageInfo{
		Name:        name,
		ImageURL:    extractImage(doc),
		Description: extractDescription(doc),
	}
	info.Variants = discoverVariants(doc, body, pageURL)
	return info, nil
}

// Each extraction family is an ordered strategy list; the first
// non-empty result wins.
type fieldStrategy func(doc *goquery.Document) string

var nameStrategies = []fieldStrategy{
	nameFromHeading,
	nameFromOpenGraph,
	nameFromJSONLD,
	nameFromTitle,
}

func extractName(doc *goquery.Document) string {
	for _, strat := range nameStrategies {
		if name := plausibleName(strat(doc)); name != "" {
			return name
		}
	}
	return ""
}

var namePlaceholders = []string{
	"page not found",
	"not found",
	"404",
	"error",
	"access denied",
	"forbidden",
	"just a moment",
	"untitled",
}

func plausibleName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) < 3 {
		return ""
	}
	lowered := strings.ToLower(name)
	for _, p := range namePlaceholders {
		if strings.Contains(lowered, p) {
			return ""
		}
	}
	return name
}

func nameFromHeading(doc *goquery.Document) string {
	return doc.Find("h1").First().Text()
}

func nameFromOpenGraph(doc *goquery.Document) string {
	return doc.Find("meta[property='og:title']").AttrOr("content", "")
}

func nameFromJSONLD(doc *goquery.Document) string {
	name := ""
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if n := jsonLDField(s.Text(), "name"); n != "" {
			name = n
			return false
		}
		return true
	})
	return name
}

// nameFromTitle strips the site suffix storefronts append to <title>.
func nameFromTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	for _, sep := range []string{" | ", " – ", " - "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}
	return title
}

var imageStrategies = []fieldStrategy{
	imageFromOpenGraph,
	imageFromJSONLD,
	imageFromItemprop,
	imageFromProductMarkup,
}

func extractImage(doc *goquery.Document) string {
	for _, strat := range imageStrategies {
		if src := strings.TrimSpace(strat(doc)); src != "" {
			return src
		}
	}
	return ""
}

func imageFromOpenGraph(doc *goquery.Document) string {
	return doc.Find("meta[property='og:image']").AttrOr("content", "")
}

func imageFromJSONLD(doc *goquery.Document) string {
	img := ""
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v := jsonLDField(s.Text(), "image"); v != "" {
			img = v
			return false
		}
		return true
	})
	return img
}

func imageFromItemprop(doc *goquery.Document) string {
	return doc.Find("img[itemprop='image']").First().AttrOr("src", "")
}

func imageFromProductMarkup(doc *goquery.Document) string {
	return doc.Find("[class*='product'] img").First().AttrOr("src", "")
}

var descriptionStrategies = []fieldStrategy{
	descriptionFromOpenGraph,
	descriptionFromMeta,
	descriptionFromJSONLD,
}

func extractDescription(doc *goquery.Document) string {
	for _, strat := range descriptionStrategies {
		if d := strings.TrimSpace(strat(doc)); d != "" {
			return d
		}
	}
	return ""
}

func descriptionFromOpenGraph(doc *goquery.Document) string {
	return doc.Find("meta[property='og:description']").AttrOr("content", "")
}

func descriptionFromMeta(doc *goquery.Document) string {
	return doc.Find("meta[name='description']").AttrOr("content", "")
}

func descriptionFromJSONLD(doc *goquery.Document) string {
	desc := ""
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v := jsonLDField(s.Text(), "description"); v != "" {
			desc = v
			return false
		}
		return true
	})
	return desc
}

// jsonLDField pulls a top-level string field out of a JSON-LD block,
// looking into @graph and arrays one level deep. Image fields may be a
// list; the first entry wins.
func jsonLDField(raw, field string) string {
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return ""
	}
	return jsonField(data, field, 0)
}

func jsonField(data any, field string, depth int) string {
	if depth > 2 {
		return ""
	}
	switch v := data.(type) {
	case map[string]any:
		if val, ok := v[field]; ok {
			switch fv := val.(type) {
			case string:
				return fv
			case []any:
				if len(fv) > 0 {
					if s, ok := fv[0].(string); ok {
						return s
					}
				}
			}
		}
		if graph, ok := v["@graph"]; ok {
			return jsonField(graph, field, depth+1)
		}
	case []any:
		for _, item := range v {
			if s := jsonField(item, field, depth+1); s != "" {
				return s
			}
		}
	}
	return ""
}
