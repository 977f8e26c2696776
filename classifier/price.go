package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Price extraction is best effort and ordered: structured data first
// (meta tags, itemprop, embedded JSON), then currency-adjacent text.
// Amounts are normalized to a dot decimal separator and rendered as
// symbol-prefixed display strings like "€19.99".

type priceStrategy func(doc *goquery.Document, body string) string

var priceStrategies = []priceStrategy{
	priceFromMeta,
	priceFromItemprop,
	priceFromEmbeddedJSON,
	priceFromText,
}

func ExtractPrice(doc *goquery.Document, body string) string {
	for _, strat := range priceStrategies {
		if p := strat(doc, body); p != "" {
			return p
		}
	}
	return ""
}

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"JPY": "¥",
}

func symbolFor(code string) string {
	if sym, ok := currencySymbols[strings.ToUpper(code)]; ok {
		return sym
	}
	return strings.ToUpper(code) + " "
}

func priceFromMeta(doc *goquery.Document, _ string) string {
	if doc == nil {
		return ""
	}
	for _, sel := range []string{
		"meta[property='og:price:amount']",
		"meta[property='product:price:amount']",
	} {
		amount := doc.Find(sel).AttrOr("content", "")
		if amount == "" {
			continue
		}
		norm := normalizeAmount(amount)
		if norm == "" {
			continue
		}
		currency := doc.Find(strings.Replace(sel, ":amount", ":currency", 1)).AttrOr("content", "")
		if currency == "" {
			currency = "EUR"
		}
		return symbolFor(currency) + norm
	}
	return ""
}

func priceFromItemprop(doc *goquery.Document, _ string) string {
	if doc == nil {
		return ""
	}
	sel := doc.Find("[itemprop='price']").First()
	if sel.Length() == 0 {
		return ""
	}
	amount := sel.AttrOr("content", "")
	if amount == "" {
		amount = strings.TrimSpace(sel.Text())
	}
	// The text form may already carry a symbol
	if p := matchSymbolPrice(amount); p != "" {
		return p
	}
	norm := normalizeAmount(amount)
	if norm == "" {
		return ""
	}
	currency := doc.Find("[itemprop='priceCurrency']").AttrOr("content", "EUR")
	return symbolFor(currency) + norm
}

var (
	jsonPriceRe    = regexp.MustCompile(`"price"\s*:\s*"?([0-9]+(?:[.,][0-9]+)*)"?`)
	jsonCurrencyRe = regexp.MustCompile(`"priceCurrency"\s*:\s*"([A-Za-z]{3})"`)
)

// priceFromEmbeddedJSON scans script-embedded product data (JSON-LD,
// storefront variant blobs) in the raw body.
func priceFromEmbeddedJSON(_ *goquery.Document, body string) string {
	m := jsonPriceRe.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	norm := normalizeAmount(m[1])
	if norm == "" {
		return ""
	}
	currency := "EUR"
	if cm := jsonCurrencyRe.FindStringSubmatch(body); cm != nil {
		currency = cm[1]
	}
	return symbolFor(currency) + norm
}

var (
	symbolPrefixRe = regexp.MustCompile(`([€$£¥])\s?([0-9]+(?:[.,][0-9]{3})*(?:[.,][0-9]{1,2})?)`)
	symbolSuffixRe = regexp.MustCompile(`([0-9]+(?:[.,][0-9]{3})*(?:[.,][0-9]{1,2})?)\s?([€$£¥])`)
	codeSuffixRe   = regexp.MustCompile(`([0-9]+(?:[.,][0-9]{3})*(?:[.,][0-9]{1,2})?)\s?(EUR|USD|GBP|JPY)`)
)

func priceFromText(doc *goquery.Document, body string) string {
	text := body
	if doc != nil {
		text = doc.Text()
	}
	return matchSymbolPrice(text)
}

func matchSymbolPrice(text string) string {
	if m := symbolPrefixRe.FindStringSubmatch(text); m != nil {
		if norm := normalizeAmount(m[2]); norm != "" {
			return m[1] + norm
		}
	}
	if m := symbolSuffixRe.FindStringSubmatch(text); m != nil {
		if norm := normalizeAmount(m[1]); norm != "" {
			return m[2] + norm
		}
	}
	if m := codeSuffixRe.FindStringSubmatch(text); m != nil {
		if norm := normalizeAmount(m[1]); norm != "" {
			return symbolFor(m[2]) + norm
		}
	}
	return ""
}

// normalizeAmount rewrites a localized amount to use a dot decimal
// separator: "1.299,00" and "1,299.00" both become "1299.00". Returns ""
// when the input is not a price-shaped number.
func normalizeAmount(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, " ", "")
	raw = strings.ReplaceAll(raw, " ", "")
	if raw == "" {
		return ""
	}

	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: the later one is the decimal separator
		if lastComma > lastDot {
			raw = strings.ReplaceAll(raw, ".", "")
			raw = strings.ReplaceAll(raw, ",", ".")
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	case lastComma >= 0:
		// Comma only: decimal when 1-2 digits follow, thousands otherwise
		if frac := len(raw) - lastComma - 1; frac >= 1 && frac <= 2 {
			raw = raw[:lastComma] + "." + raw[lastComma+1:]
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	case lastDot >= 0:
		// Dot only: three trailing digits on a long number reads as a
		// thousands separator ("1.299"), anything else as a decimal
		if frac := len(raw) - lastDot - 1; frac == 3 && lastDot > 0 {
			raw = strings.ReplaceAll(raw, ".", "")
		}
	}

	if strings.Count(raw, ".") > 1 {
		return ""
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return ""
	}
	return raw
}
