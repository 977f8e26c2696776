package classifier

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shopmon/models"
)

// The classifier turns a fetched page into an availability verdict. It is
// deterministic: the same status code, body and site always produce the
// same verdict. Rules run in order and the first decisive rule wins; the
// default order is:
//
//  1. anti-bot block (status or interstitial marker), previous
//     availability is retained
//  2. unavailable marker
//  3. available marker or an extractable price
//  4. live-looking product page (shopfront strategy only)
//  5. undetermined, previous availability is retained
//
// The order itself is data: a Strategy may carry its own rule sequence.

type Availability int

const (
	Unknown Availability = iota
	Unavailable
	Available
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Input is one fetched page to classify.
type Input struct {
	StatusCode int
	Body       string
	URL        string
	Site       models.Site
}

// Verdict is the classification outcome. Blocked and Unknown both mean
// the caller keeps the variant's previous availability.
type Verdict struct {
	Availability Availability
	Blocked      bool
	Price        string
	Rule         string
	Marker       string
}

type Classifier struct {
	strategies map[models.Site]*Strategy
}

func New() *Classifier {
	return &Classifier{strategies: defaultStrategies()}
}

func (c *Classifier) strategyFor(site models.Site) *Strategy {
	if st, ok := c.strategies[site]; ok {
		return st
	}
	return c.strategies[models.SiteShopfront]
}

// ruleInput is the page, pre-digested once per classification.
type ruleInput struct {
	status  int
	lowered string
	doc     *goquery.Document
	price   string
	st      *Strategy
}

// A rule inspects one signal; decisive rules return true.
type rule func(ri ruleInput) (Verdict, bool)

var defaultRules = []rule{
	ruleBlockedStatus,
	ruleBlockedMarker,
	ruleUnavailableMarker,
	ruleAvailableMarker,
	rulePricePresent,
	ruleProductPage,
}

func (c *Classifier) Classify(in Input) Verdict {
	st := c.strategyFor(in.Site)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.Body))
	if err != nil {
		doc = nil
	}
	ri := ruleInput{
		status:  in.StatusCode,
		lowered: strings.ToLower(in.Body),
		doc:     doc,
		price:   ExtractPrice(doc, in.Body),
		st:      st,
	}

	rules := st.Rules
	if len(rules) == 0 {
		rules = defaultRules
	}
	for _, r := range rules {
		if v, ok := r(ri); ok {
			return v
		}
	}
	return Verdict{Availability: Unknown, Rule: "undetermined"}
}

func ruleBlockedStatus(ri ruleInput) (Verdict, bool) {
	if ri.status == http.StatusForbidden || ri.status == http.StatusTooManyRequests {
		return Verdict{Blocked: true, Rule: "anti-bot", Marker: http.StatusText(ri.status)}, true
	}
	return Verdict{}, false
}

func ruleBlockedMarker(ri ruleInput) (Verdict, bool) {
	if m := containsAny(ri.lowered, ri.st.BlockMarkers); m != "" {
		return Verdict{Blocked: true, Rule: "anti-bot", Marker: m}, true
	}
	return Verdict{}, false
}

func ruleUnavailableMarker(ri ruleInput) (Verdict, bool) {
	if m := containsAny(ri.lowered, ri.st.UnavailableMarkers); m != "" {
		return Verdict{Availability: Unavailable, Price: ri.price, Rule: "unavailable-marker", Marker: m}, true
	}
	return Verdict{}, false
}

func ruleAvailableMarker(ri ruleInput) (Verdict, bool) {
	if m := containsAny(ri.lowered, ri.st.AvailableMarkers); m != "" {
		return Verdict{Availability: Available, Price: ri.price, Rule: "available-marker", Marker: m}, true
	}
	return Verdict{}, false
}

func rulePricePresent(ri ruleInput) (Verdict, bool) {
	if ri.price != "" {
		return Verdict{Availability: Available, Price: ri.price, Rule: "price-present"}, true
	}
	return Verdict{}, false
}

func ruleProductPage(ri ruleInput) (Verdict, bool) {
	if ri.st.DefaultAvailability && looksLikeProductPage(ri.doc) {
		return Verdict{Availability: Available, Rule: "product-page"}, true
	}
	return Verdict{}, false
}

func containsAny(lowered string, markers []string) string {
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return m
		}
	}
	return ""
}

var placeholderNames = []string{
	"page not found",
	"not found",
	"404",
	"error",
	"access denied",
	"forbidden",
	"just a moment",
}

// looksLikeProductPage is the shopfront bias rule: a page that still has
// a plausible product name and product imagery counts as a live product
// page, and live shopfront product pages default to purchasable.
func looksLikeProductPage(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}

	name := strings.TrimSpace(doc.Find("h1").First().Text())
	if name == "" {
		name = strings.TrimSpace(doc.Find("meta[property='og:title']").AttrOr("content", ""))
	}
	if len(name) < 3 {
		return false
	}
	lowered := strings.ToLower(name)
	for _, p := range placeholderNames {
		if strings.Contains(lowered, p) {
			return false
		}
	}

	if doc.Find("meta[property='og:image']").AttrOr("content", "") != "" {
		return true
	}
	if doc.Find("img[itemprop='image']").Length() > 0 {
		return true
	}
	return doc.Find("[class*='product'] img").Length() > 0
}
