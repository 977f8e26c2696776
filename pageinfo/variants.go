package pageinfo

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shopmon/models"
)

// Variant discovery is an ordered cascade: structured storefront JSON
// embedded in the page, then selection-widget markup, then a synthesized
// default variant. The result is never empty.

type variantStrategy func(doc *goquery.Document, body, pageURL string) []DiscoveredVariant

var variantStrategies = []variantStrategy{
	variantsFromEmbeddedJSON,
	variantsFromSelectionWidgets,
}

func discoverVariants(doc *goquery.Document, body, pageURL string) []DiscoveredVariant {
	for _, strat := range variantStrategies {
		if found := strat(doc, body, pageURL); len(found) > 0 {
			return found
		}
	}
	return []DiscoveredVariant{defaultVariant(pageURL)}
}

func defaultVariant(pageURL string) DiscoveredVariant {
	return DiscoveredVariant{
		Label:  "Default",
		URL:    pageURL,
		Family: models.FamilyForLabel("Default", ""),
	}
}

type embeddedVariant struct {
	ID        json.Number     `json:"id"`
	Title     string          `json:"title"`
	SKU       string          `json:"sku"`
	Available *bool           `json:"available"`
	Price     json.RawMessage `json:"price"`
}

func variantsFromEmbeddedJSON(_ *goquery.Document, body, pageURL string) []DiscoveredVariant {
	raw := extractJSONArray(body, `"variants"`)
	if raw == "" {
		return nil
	}

	var parsed []embeddedVariant
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}

	var out []DiscoveredVariant
	for _, ev := range parsed {
		label := strings.TrimSpace(ev.Title)
		if label == "" || strings.EqualFold(label, "default title") {
			label = "Default"
		}
		v := DiscoveredVariant{
			Label:  label,
			URL:    variantURL(pageURL, ev.ID.String()),
			SKU:    ev.SKU,
			Family: models.FamilyForLabel(label, ev.SKU),
			Price:  displayPrice(ev.Price),
		}
		if ev.Available != nil {
			v.Available = *ev.Available
		}
		out = append(out, v)
	}
	return out
}

// variantURL addresses one variant of a storefront product page.
func variantURL(pageURL, id string) string {
	if id == "" {
		return pageURL
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	q := u.Query()
	q.Set("variant", id)
	u.RawQuery = q.Encode()
	return u.String()
}

// displayPrice renders an embedded price value. Storefront variant blobs
// carry integer cents, JSON-LD style blobs carry decimal strings, some
// themes nest money objects (those are skipped).
func displayPrice(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		n = json.Number(s)
	}

	s := n.String()
	if s == "" {
		return ""
	}
	if strings.Contains(s, ".") {
		if f, err := n.Float64(); err == nil && f > 0 {
			return "€" + s
		}
		return ""
	}
	cents, err := n.Int64()
	if err != nil || cents <= 0 {
		return ""
	}
	return "€" + strconv.FormatInt(cents/100, 10) + "." + twoDigits(cents%100)
}

func twoDigits(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

var selectionSelectors = []string{
	"select[name*='option']",
	"select[id*='option']",
	"select[name*='variant']",
	"select[data-product-select]",
}

func variantsFromSelectionWidgets(doc *goquery.Document, _ string, pageURL string) []DiscoveredVariant {
	if doc == nil {
		return nil
	}

	var out []DiscoveredVariant
	seen := make(map[string]bool)

	for _, sel := range selectionSelectors {
		doc.Find(sel + " option").Each(func(_ int, opt *goquery.Selection) {
			label := strings.TrimSpace(opt.Text())
			if label == "" || seen[strings.ToLower(label)] {
				return
			}
			if _, isDisabled := opt.Attr("disabled"); isDisabled && opt.AttrOr("value", "") == "" {
				return
			}
			lowered := strings.ToLower(label)
			if lowered == "default title" || strings.HasPrefix(lowered, "select ") ||
				strings.HasPrefix(lowered, "choose ") || lowered == "bitte wählen" {
				return
			}
			seen[strings.ToLower(label)] = true

			u := pageURL
			if val := opt.AttrOr("value", ""); isNumeric(val) {
				u = variantURL(pageURL, val)
			}
			out = append(out, DiscoveredVariant{
				Label:  label,
				URL:    u,
				Family: models.FamilyForLabel(label, ""),
			})
		})
		if len(out) > 0 {
			return out
		}
	}

	// Radio-button option groups
	doc.Find("input[type='radio'][name*='option']").Each(func(_ int, in *goquery.Selection) {
		label := strings.TrimSpace(in.AttrOr("value", ""))
		if label == "" || seen[strings.ToLower(label)] {
			return
		}
		seen[strings.ToLower(label)] = true
		out = append(out, DiscoveredVariant{
			Label:  label,
			URL:    pageURL,
			Family: models.FamilyForLabel(label, ""),
		})
	})
	return out
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// extractJSONArray finds `key: [...]` in the body and returns the
// balanced array literal, quote and escape aware.
func extractJSONArray(body, key string) string {
	idx := strings.Index(body, key)
	if idx < 0 {
		return ""
	}
	rest := body[idx+len(key):]

	start := -1
	for i, r := range rest {
		if r == '[' {
			start = i
			break
		}
		if r != ':' && r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return ""
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(rest); i++ {
		c := rest[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '[':
			if !inString {
				depth++
			}
		case ']':
			if !inString {
				depth--
				if depth == 0 {
					return rest[start : i+1]
				}
			}
		}
	}
	return ""
}
