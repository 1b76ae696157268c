// Package shopping integrates the Shopping.com publisher API for
// offers and scrapes the merchant review pages the API does not cover.
package shopping

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"bazaar-backend/lib/extract"
	"bazaar-backend/lib/fetch"
	"bazaar-backend/lib/money"
	"bazaar-backend/lib/offers"
	"bazaar-backend/lib/requestsig"
	"bazaar-backend/lib/respcache"
	"bazaar-backend/lib/sources"
	"bazaar-backend/lib/telemetry"

	"github.com/shopspring/decimal"
)

var tracer = telemetry.Tracer("lib/scrapers/shopping")

const (
	defaultAPIBaseURL  = "http://publisher.api.shopping.com/publisher/3.0/rest"
	defaultSiteBaseURL = "http://www.shopping.com"

	maxOffersPerProduct = 20
	fingerprintVersion  = "v3"
)

type Config struct {
	TrackingID string `json:"tracking_id"`
	APIKey     string `json:"api_key"`

	// base url overrides for tests
	APIBaseURL  string `json:"api_base_url"`
	SiteBaseURL string `json:"site_base_url"`
}

type Scraper struct {
	client *fetch.Client
	cache  respcache.Store
	source *sources.Source
	config Config
}

func NewScraper(pctx sources.PipelineContext, config Config) (*Scraper, error) {
	source, err := pctx.Registry.BySourceName(sources.Shopping)
	if err != nil {
		return nil, err
	}
	if config.APIKey == "" || config.TrackingID == "" {
		return nil, sources.ConfigurationError{
			Source: sources.Shopping,
			Detail: "api key and tracking id are required",
		}
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.SiteBaseURL == "" {
		config.SiteBaseURL = defaultSiteBaseURL
	}

	return &Scraper{
		client: fetch.NewClient("lib/scrapers/shopping", fetch.Options{
			MaxAttempts: 4,
			Transport:   pctx.Transport,
		}),
		cache:  pctx.Cache,
		source: source,
		config: config,
	}, nil
}

func (s *Scraper) Source() *sources.Source {
	return s.source
}

// SourceError is an error reported inside an otherwise successful API
// response.
type SourceError struct {
	Code    int
	Message string
}

func (e SourceError) Error() string {
	return fmt.Sprintf("shopping api error %d: %s", e.Code, e.Message)
}

// apiRequest executes one publisher API call with response caching.
func (s *Scraper) apiRequest(ctx context.Context, action string, userParams url.Values) (*extract.Document, error) {
	ctx, span := tracer.Start(ctx, "apiRequest")
	defer span.End()

	params := url.Values{}
	params.Set("trackingId", s.config.TrackingID)
	params.Set("apiKey", s.config.APIKey)
	for k, vs := range userParams {
		params[k] = vs
	}

	key := requestsig.Fingerprint("shopping-"+action, fingerprintVersion, params)
	body, ok := s.cache.Get(ctx, key)
	if !ok {
		err := s.source.Throttle(ctx)
		if err != nil {
			return nil, err
		}
		requestURL := fmt.Sprintf(
			"%s/%s?%s", s.config.APIBaseURL, action, requestsig.Canonical(params),
		)
		body, err = s.client.Fetch(ctx, requestURL)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, body, s.source.OfferTTL)
	}

	doc, err := extract.Parse(body, extract.XML)
	if err != nil {
		return nil, err
	}
	for _, exception := range doc.Search("exceptions exception") {
		if exception.Attr("type") != "error" {
			continue
		}
		code, _ := strconv.Atoi(exception.At("code").Text())
		return nil, SourceError{
			Code:    code,
			Message: exception.At("message").Text(),
		}
	}
	return doc, nil
}

// FetchOffers pulls every in-stock offer for a product id, one offer
// per merchant, cheapest kept.
func (s *Scraper) FetchOffers(ctx context.Context, productID string) ([]offers.Offer, error) {
	ctx, span := tracer.Start(ctx, "FetchOffers")
	defer span.End()

	params := url.Values{}
	params.Set("productId", productID)
	params.Set("numItems", strconv.Itoa(maxOffersPerProduct))
	params.Set("showOffersOnly", "true")

	doc, err := s.apiRequest(ctx, "GeneralSearch", params)
	if err != nil {
		return nil, err
	}

	list := []offers.Offer{}
	for i, node := range doc.At("categories category items").Search("offer") {
		offer, ok := s.parseOffer(node)
		if !ok {
			continue
		}
		offer.OriginalIndex = i
		list = append(list, offer)
	}

	merged := offers.Merge(list)
	offers.Sort(merged)
	return merged, nil
}

func (s *Scraper) parseOffer(node extract.Node) (offers.Offer, bool) {
	stockStatus := node.At("stockstatus").Text()
	if stockStatus == "out-of-stock" || stockStatus == "back-order" {
		return offers.Offer{}, false
	}

	store := node.At("store")
	storeID := store.Attr("id")
	if storeID == "" {
		return offers.Offer{}, false
	}

	price := money.ParsePriceOrNil(node.At("baseprice").Text())
	if price == nil {
		return offers.Offer{}, false
	}

	// checkSite means the merchant hides shipping until checkout,
	// which is unknown, not free
	var shipping *decimal.Decimal
	if shippingNode := node.At("shippingcost"); shippingNode.Attr("checksite") != "true" {
		shipping = money.ParsePriceOrNil(shippingNode.Text())
	}

	offer := offers.Offer{
		Source:       sources.Shopping,
		MerchantCode: storeID,
		MerchantName: store.At("name").Text(),
		MerchantType: offers.MerchantTypeMerchant,
		Price:        *price,
		Shipping:     shipping,
		Available:    true,
		OfferURL:     node.At("offerurl").Text(),
		Tier:         offers.TierFeaturedMerchant,
	}

	if logo := store.At("logo"); logo.Attr("available") == "true" {
		offer.MerchantLogo = logo.At("sourceurl").Text()
	}
	if cpc, err := strconv.ParseFloat(node.At("cpc").Text(), 64); err == nil {
		offer.CPC = int64(cpc * 100)
	}
	if ratingInfo := store.At("ratinginfo"); ratingInfo.Exists() {
		if rating, err := strconv.ParseFloat(ratingInfo.At("rating").Text(), 64); err == nil {
			normalized := s.source.NormalizeRating(rating)
			offer.MerchantRating = &normalized
		}
		if count, err := strconv.Atoi(ratingInfo.At("reviewcount").Text()); err == nil {
			offer.NumMerchantReviews = &count
		}
	}

	return offer, true
}

// StreetPrice averages the total price across offers from reasonably
// rated merchants with known shipping. Nil when no offer qualifies.
func (s *Scraper) StreetPrice(ctx context.Context, productID string) (*decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "StreetPrice")
	defer span.End()

	list, err := s.FetchOffers(ctx, productID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	count := 0
	for _, offer := range list {
		if offer.MerchantRating == nil || *offer.MerchantRating < 55 {
			continue
		}
		if offer.Shipping == nil {
			continue
		}
		total = total.Add(offer.TotalPrice())
		count++
	}
	if count == 0 {
		return nil, nil
	}

	avg := total.Div(decimal.NewFromInt(int64(count)))
	return &avg, nil
}

func (s *Scraper) merchantPageURL(code string) string {
	return fmt.Sprintf("%s/xMR-~MRD-%s", s.config.SiteBaseURL, code)
}

func (s *Scraper) merchantSearchURL(query string) string {
	return fmt.Sprintf("%s/xSD-%s", s.config.SiteBaseURL, url.QueryEscape(query))
}

func (s *Scraper) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	err := s.source.Throttle(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Fetch(ctx, pageURL)
}
