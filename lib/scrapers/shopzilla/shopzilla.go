// Package shopzilla integrates the Shopzilla catalog services. Offers
// and merchant detail come from separate service endpoints, prices
// arrive as integral minor units in attributes.
package shopzilla

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

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

var tracer = telemetry.Tracer("lib/scrapers/shopzilla")

const (
	defaultAPIBaseURL  = "http://catalog.bizrate.com/services/catalog/v1/us"
	defaultLogoBaseURL = "http://img.bizrate.com/merchant"

	fingerprintVersion = "v3"
)

var (
	merchantPagePattern = regexp.MustCompile(`(?i)6[A-Z](--.*)?_-_mid--(\d+)`)
	tParamPattern       = regexp.MustCompile(`[?&]t=(.+)`)
	hostPattern         = regexp.MustCompile(`https?://(.+?)(/|&|\?|$)`)
	lastHostPattern     = regexp.MustCompile(`.+https?://(.+?)(/|&|\?|$)`)
)

type Config struct {
	APIKey      string `json:"api_key"`
	PublisherID string `json:"publisher_id"`
	PlacementID string `json:"placement_id"`

	// base url overrides for tests
	APIBaseURL  string `json:"api_base_url"`
	LogoBaseURL string `json:"logo_base_url"`
}

type Scraper struct {
	client *fetch.Client
	cache  respcache.Store
	source *sources.Source
	config Config
}

func NewScraper(pctx sources.PipelineContext, config Config) (*Scraper, error) {
	source, err := pctx.Registry.BySourceName(sources.Shopzilla)
	if err != nil {
		return nil, err
	}
	if config.APIKey == "" || config.PublisherID == "" {
		return nil, sources.ConfigurationError{
			Source: sources.Shopzilla,
			Detail: "api key and publisher id are required",
		}
	}
	if config.PlacementID == "" {
		config.PlacementID = "1"
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.LogoBaseURL == "" {
		config.LogoBaseURL = defaultLogoBaseURL
	}

	return &Scraper{
		client: fetch.NewClient("lib/scrapers/shopzilla", fetch.Options{
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

// MerchantPageURL is the canonical review page for a merchant id.
func (s *Scraper) MerchantPageURL(merchantID string) string {
	return fmt.Sprintf("http://www.shopzilla.com/6E_-_mid--%s", merchantID)
}

// MerchantCodeFromPageURL recovers the merchant id from a review page
// url, which embeds it after a mid marker.
func MerchantCodeFromPageURL(pageURL string) (string, bool) {
	m := merchantPagePattern.FindStringSubmatch(pageURL)
	if m == nil {
		return "", false
	}
	return m[2], true
}

func (s *Scraper) logoURL(merchantID string) string {
	return fmt.Sprintf("%s/%s.gif", s.config.LogoBaseURL, merchantID)
}

func (s *Scraper) apiRequest(ctx context.Context, service string, userParams url.Values) (*extract.Document, error) {
	ctx, span := tracer.Start(ctx, "apiRequest")
	defer span.End()

	params := url.Values{}
	params.Set("apiKey", s.config.APIKey)
	params.Set("publisherId", s.config.PublisherID)
	params.Set("placementId", s.config.PlacementID)
	for k, vs := range userParams {
		params[k] = vs
	}

	key := requestsig.Fingerprint("shopzilla-"+service, fingerprintVersion, params)
	body, ok := s.cache.Get(ctx, key)
	if !ok {
		err := s.source.Throttle(ctx)
		if err != nil {
			return nil, err
		}
		requestURL := fmt.Sprintf(
			"%s/%s?%s", s.config.APIBaseURL, service, requestsig.Canonical(params),
		)
		body, err = s.client.Fetch(ctx, requestURL)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, body, s.source.OfferTTL)
	}

	return extract.Parse(body, extract.XML)
}

// FetchOffers returns the bidded offers for a product id, one per
// merchant, new condition and in stock only.
func (s *Scraper) FetchOffers(ctx context.Context, productID string) ([]offers.Offer, error) {
	ctx, span := tracer.Start(ctx, "FetchOffers")
	defer span.End()

	params := url.Values{}
	params.Set("productId", strings.TrimSpace(productID))
	params.Set("offersOnly", "true")
	params.Set("biddedOnly", "true")
	params.Set("resultsOffers", "100")
	params.Set("zipCode", "64141")

	doc, err := s.apiRequest(ctx, "product", params)
	if err != nil {
		return nil, err
	}

	list := []offers.Offer{}
	for i, node := range doc.Search("products product offers offer") {
		offer, ok := s.parseOffer(node)
		if !ok {
			continue
		}
		offer.OriginalIndex = i
		list = append(list, offer)
	}

	return offers.Merge(list), nil
}

func (s *Scraper) parseOffer(node extract.Node) (offers.Offer, bool) {
	if !likelyNewCondition(node.At("condition").Text()) {
		return offers.Offer{}, false
	}
	if !likelyInStock(node.At("stock").Text()) {
		return offers.Offer{}, false
	}

	merchantID := node.Attr("merchantid")
	if merchantID == "" {
		return offers.Offer{}, false
	}
	price := integralPrice(node.At("price"))
	if price == nil {
		return offers.Offer{}, false
	}

	offer := offers.Offer{
		Source:       sources.Shopzilla,
		MerchantCode: merchantID,
		MerchantName: node.At("merchantname").Text(),
		MerchantLogo: s.logoURL(merchantID),
		MerchantType: offers.MerchantTypeMerchant,
		Price:        *price,
		Shipping:     integralPrice(node.At("shipamount")),
		Available:    true,
		OfferURL:     node.At("url").Text(),
		Tier:         offers.TierFeaturedMerchant,
	}
	if rating := node.At("merchantrating"); rating.Exists() {
		if value, err := strconv.ParseFloat(rating.Attr("value"), 64); err == nil {
			normalized := s.source.NormalizeRating(value)
			offer.MerchantRating = &normalized
		}
	}

	return offer, true
}

// FetchMerchantProfile looks a merchant up through the merchant
// service.
func (s *Scraper) FetchMerchantProfile(ctx context.Context, merchantID string) (offers.MerchantProfile, error) {
	ctx, span := tracer.Start(ctx, "FetchMerchantProfile")
	defer span.End()

	params := url.Values{}
	params.Set("merchantId", strings.TrimSpace(merchantID))
	params.Set("expandDetails", "true")

	doc, err := s.apiRequest(ctx, "merchant", params)
	if err != nil {
		return offers.MerchantProfile{}, err
	}

	var merchant extract.Node
	for _, node := range doc.Search("merchants merchant") {
		if node.Attr("id") == merchantID {
			merchant = node
			break
		}
	}
	if !merchant.Exists() {
		return offers.MerchantProfile{}, fetch.NotFoundError{URL: s.MerchantPageURL(merchantID)}
	}

	profile := offers.MerchantProfile{
		Source:  sources.Shopzilla,
		Code:    merchantID,
		Name:    merchant.At("name").Text(),
		LogoURL: s.logoURL(merchantID),
		URL:     s.MerchantPageURL(merchantID),
	}

	// unrated merchants have no Rating/Overall element at all
	if overall := merchant.At("rating overall"); overall.Exists() {
		if value, err := strconv.ParseFloat(overall.Attr("value"), 64); err == nil {
			profile.Rating = s.source.NormalizeRating(value)
		}
		if count, err := strconv.Atoi(merchant.At("details surveycount").Text()); err == nil {
			profile.NumReviews = count
		}
	}

	profile.Homepage = homepageFromRedirect(merchant.At("url").Text())

	return profile, nil
}

// homepageFromRedirect digs the merchant homepage out of the bizrate
// redirect url's t parameter. Redirects that bounce through an ad
// server carry the real destination after a second http marker.
func homepageFromRedirect(redirect string) string {
	decoded, err := url.QueryUnescape(redirect)
	if err != nil {
		decoded = redirect
	}
	m := tParamPattern.FindStringSubmatch(decoded)
	if m == nil {
		return ""
	}
	target := m[1]

	pattern := hostPattern
	if strings.Contains(target, "doubleclick") {
		pattern = lastHostPattern
	}
	host := pattern.FindStringSubmatch(target)
	if host == nil {
		return ""
	}
	return "http://" + host[1] + "/"
}

func likelyNewCondition(condition string) bool {
	upper := strings.ToUpper(condition)
	return condition == "" || upper == "NEW" || upper == "OEM"
}

func likelyInStock(stock string) bool {
	return stock == "" || strings.ToUpper(stock) != "OUT"
}

// integralPrice reads a price element whose integral attribute holds
// minor units.
func integralPrice(node extract.Node) *decimal.Decimal {
	if !node.HasAttr("integral") {
		return nil
	}
	return money.ParseCentsOrNil(node.Attr("integral"))
}
