package classifier

import "shopmon/models"

// Marker lists are ordered data, not code: the first hit wins and the
// lists can be tuned per storefront family without touching the rules.

// blockMarkers indicate an anti-bot interstitial rather than a product
// page. Matched against the lowercased body.
var blockMarkers = []string{
	"just a moment",
	"checking your browser",
	"cf-browser-verification",
	"cf_chl_opt",
	"attention required",
	"pardon our interruption",
	"verify you are human",
	"are you a robot",
	"captcha",
	"access denied",
	"ddos protection",
}

var unavailableMarkers = []string{
	"ausverkauft",
	"nicht verfügbar",
	"nicht auf lager",
	"vergriffen",
	"sold out",
	"out of stock",
	"currently unavailable",
	"no longer available",
	"notify me when",
	"back in stock soon",
	"épuisé",
	"rupture de stock",
	"agotado",
	"esaurito",
	"uitverkocht",
	"esgotado",
	"在庫切れ",
	"売り切れ",
}

var availableMarkers = []string{
	"in den warenkorb",
	"jetzt kaufen",
	"auf lager",
	"sofort lieferbar",
	"sofort verfügbar",
	"add to cart",
	"add to bag",
	"add to basket",
	"buy it now",
	"buy now",
	"in stock",
	"ajouter au panier",
	"añadir al carrito",
	"aggiungi al carrello",
	"in winkelwagen",
	"adicionar ao carrinho",
	"カートに入れる",
}

// marketplaceUnavailableMarkers extend the shared set for listing pages,
// where an ended listing phrases things differently.
var marketplaceUnavailableMarkers = []string{
	"this listing has ended",
	"listing ended",
	"item sold",
	"verkauft",
	"angebot beendet",
}

// Strategy tunes the rule set for one storefront family. A nil Rules
// slice runs the default rule order.
type Strategy struct {
	Name                string
	Rules               []rule
	UnavailableMarkers  []string
	AvailableMarkers    []string
	BlockMarkers        []string
	DefaultAvailability bool // live product page with no markers counts as available
}

func defaultStrategies() map[models.Site]*Strategy {
	shared := unavailableMarkers
	return map[models.Site]*Strategy{
		models.SiteShopfront: {
			Name:                "shopfront",
			UnavailableMarkers:  shared,
			AvailableMarkers:    availableMarkers,
			BlockMarkers:        blockMarkers,
			DefaultAvailability: true,
		},
		models.SiteMarketplace: {
			Name:                "marketplace",
			UnavailableMarkers:  append(append([]string{}, marketplaceUnavailableMarkers...), shared...),
			AvailableMarkers:    availableMarkers,
			BlockMarkers:        blockMarkers,
			DefaultAvailability: false,
		},
	}
}
