package models

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Site identifies which storefront family a product belongs to. The
// classifier and extractor pick their strategy set from it.
type Site string

const (
	SiteShopfront   Site = "shopfront"
	SiteMarketplace Site = "marketplace"
)

// Family classifies what a variant's label describes.
type Family string

const (
	FamilyWholeSet   Family = "whole set"
	FamilyRandom     Family = "random"
	FamilyLimited    Family = "limited"
	FamilySingleItem Family = "single item"
	FamilySpecific   Family = "specific"
)

const (
	DefaultIntervalSeconds = 300
	DefaultMaxRetries      = 5
)

// Product is a monitored product page and the variants discovered on it.
type Product struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	ImageURL    string    `json:"image_url"`
	Description string    `json:"description"`
	Site        Site      `json:"site"`

	IntervalSeconds int    `json:"interval_seconds"`
	MaxRetries      int    `json:"max_retries"`
	AutoStart       bool   `json:"auto_start"`
	CustomUserAgent string `json:"custom_user_agent,omitempty"`
	Debug           bool   `json:"debug,omitempty"`

	IsMonitoring bool `json:"is_monitoring"`

	Checks    int64 `json:"checks"`
	Successes int64 `json:"successes"`
	Errors    int64 `json:"errors"`

	Variants []*Variant           `json:"variants"`
	History  []AvailabilityChange `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Variant is one monitorable unit of a product. Single-page products
// carry exactly one synthesized variant whose URL equals the product URL.
type Variant struct {
	ID     uuid.UUID `json:"id"`
	Label  string    `json:"label"`
	URL    string    `json:"url"`
	SKU    string    `json:"sku,omitempty"`
	Family Family    `json:"family"`

	IsAvailable    bool       `json:"is_available"`
	Price          string     `json:"price"`
	LastChecked    *time.Time `json:"last_checked"`
	LastStatusCode int        `json:"last_status_code"`

	IsMonitoring bool `json:"is_monitoring"`

	Checks    int64 `json:"checks"`
	Successes int64 `json:"successes"`
	Errors    int64 `json:"errors"`
}

// Interval returns the product's polling cadence as a duration.
func (p *Product) Interval() time.Duration {
	secs := p.IntervalSeconds
	if secs <= 0 {
		secs = DefaultIntervalSeconds
	}
	return time.Duration(secs) * time.Second
}

// Retries returns the auto-pause threshold, falling back to the default.
func (p *Product) Retries() int {
	if p.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return p.MaxRetries
}

// Variant returns the variant with the given ID, or nil.
func (p *Product) Variant(id uuid.UUID) *Variant {
	for _, v := range p.Variants {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// Clone returns a deep copy safe to share outside the monitor's lock.
func (p *Product) Clone() *Product {
	cp := *p
	cp.Variants = make([]*Variant, len(p.Variants))
	for i, v := range p.Variants {
		vc := *v
		if v.LastChecked != nil {
			t := *v.LastChecked
			vc.LastChecked = &t
		}
		cp.Variants[i] = &vc
	}
	cp.History = append([]AvailabilityChange(nil), p.History...)
	return &cp
}

// MonitoringCount returns how many variants are currently monitoring.
func (p *Product) MonitoringCount() int {
	n := 0
	for _, v := range p.Variants {
		if v.IsMonitoring {
			n++
		}
	}
	return n
}

const historyCap = 100

// RecordChange prepends an availability transition to the product history,
// trimming past the cap.
func (p *Product) RecordChange(c AvailabilityChange) {
	p.History = append([]AvailabilityChange{c}, p.History...)
	if len(p.History) > historyCap {
		p.History = p.History[:historyCap]
	}
}

var marketplaceHosts = []string{
	"ebay.",
	"mercari.",
	"stockx.",
	"marketplace.",
}

// SiteForURL derives the storefront family from the URL host.
func SiteForURL(rawURL string) Site {
	u, err := url.Parse(rawURL)
	if err != nil {
		return SiteShopfront
	}
	host := strings.ToLower(u.Hostname())
	for _, m := range marketplaceHosts {
		if strings.Contains(host, m) {
			return SiteMarketplace
		}
	}
	return SiteShopfront
}

// FamilyForLabel infers the label class from variant label and SKU text.
func FamilyForLabel(label, sku string) Family {
	s := strings.ToLower(label + " " + sku)
	switch {
	case strings.Contains(s, "whole set") || strings.Contains(s, "full set") ||
		strings.Contains(s, "complete set") || strings.Contains(s, "komplettset"):
		return FamilyWholeSet
	case strings.Contains(s, "random") || strings.Contains(s, "blind"):
		return FamilyRandom
	case strings.Contains(s, "limited") || strings.Contains(s, "exclusive") ||
		strings.Contains(s, "sonderedition"):
		return FamilyLimited
	case strings.Contains(s, "single") || strings.Contains(s, "einzel"):
		return FamilySingleItem
	default:
		return FamilySpecific
	}
}
