// Package amazon talks to the Product Advertising API and scrapes the
// offer listing pages it leaves gaps in. API requests are signed,
// responses are cached by the fingerprint of their unsigned
// parameters.
package amazon

import (
	"fmt"
	"net/url"
	"time"

	"bazaar-backend/lib/fetch"
	"bazaar-backend/lib/respcache"
	"bazaar-backend/lib/sources"
	"bazaar-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("lib/scrapers/amazon")

const (
	defaultAPIBaseURL  = "http://ecs.amazonaws.com"
	defaultSiteBaseURL = "http://www.amazon.com"

	apiPath    = "/onca/xml"
	apiService = "AWSECommerceService"
	apiVersion = "2007-07-16"

	fingerprintVersion = "v2"
)

type Config struct {
	AccessKeyID  string `json:"access_key_id"`
	SecretKey    string `json:"secret_key"`
	AssociateTag string `json:"associate_tag"`

	// base url overrides for tests
	APIBaseURL  string `json:"api_base_url"`
	SiteBaseURL string `json:"site_base_url"`
}

type Scraper struct {
	client *fetch.Client
	cache  respcache.Store
	source *sources.Source
	config Config

	apiBase  *url.URL
	siteBase string
}

func NewScraper(pctx sources.PipelineContext, config Config) (*Scraper, error) {
	source, err := pctx.Registry.BySourceName(sources.Amazon)
	if err != nil {
		return nil, err
	}
	if config.SecretKey == "" || config.AccessKeyID == "" {
		return nil, sources.ConfigurationError{
			Source: sources.Amazon,
			Detail: "api credentials are required",
		}
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.SiteBaseURL == "" {
		config.SiteBaseURL = defaultSiteBaseURL
	}
	apiBase, err := url.Parse(config.APIBaseURL)
	if err != nil {
		return nil, sources.ConfigurationError{
			Source: sources.Amazon,
			Detail: "invalid api_base_url: " + err.Error(),
		}
	}

	return &Scraper{
		client: fetch.NewClient("lib/scrapers/amazon", fetch.Options{
			MaxAttempts: 10,
			Backoff:     time.Second * 2,
			Transport:   pctx.Transport,
		}),
		cache:    pctx.Cache,
		source:   source,
		config:   config,
		apiBase:  apiBase,
		siteBase: config.SiteBaseURL,
	}, nil
}

func (s *Scraper) Source() *sources.Source {
	return s.source
}

// ASINNotFoundError means the product identifier is unknown to the
// catalog, as opposed to the source being broken.
type ASINNotFoundError struct {
	ASIN string
}

func (e ASINNotFoundError) Error() string {
	return fmt.Sprintf("asin not found: %s", e.ASIN)
}

type ASINFatalError struct {
	ASIN string
	Err  error
}

func (e ASINFatalError) Error() string {
	return fmt.Sprintf("asin %s: %v", e.ASIN, e.Err)
}

func (e ASINFatalError) Unwrap() error {
	return e.Err
}

func (s *Scraper) offerURL(asin string, merchantType, merchantID string) string {
	param := "m"
	if merchantType == "seller" {
		param = "seller"
	}
	return fmt.Sprintf(
		"%s/exec/obidos/ASIN/%s/?%s=%s&tag=%s",
		s.siteBase, asin, param, merchantID, s.config.AssociateTag,
	)
}

func (s *Scraper) offerListingURL(asin string) string {
	return fmt.Sprintf("%s/gp/offer-listing/%s?condition=new", s.siteBase, asin)
}

func (s *Scraper) atAGlanceURL(sellerID string) string {
	return fmt.Sprintf(
		"%s/gp/help/seller/at-a-glance.html?seller=%s",
		s.siteBase, sellerID,
	)
}
