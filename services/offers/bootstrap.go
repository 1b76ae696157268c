package offers

import (
	"errors"
	"log/slog"

	"bazaar-backend/lib/scrapers/amazon"
	"bazaar-backend/lib/scrapers/resellerratings"
	"bazaar-backend/lib/scrapers/shopping"
	"bazaar-backend/lib/scrapers/shopzilla"
	"bazaar-backend/lib/sources"
)

// SourcesConfig carries the per-source credentials and overrides.
type SourcesConfig struct {
	Amazon          amazon.Config          `json:"amazon"`
	Shopping        shopping.Config        `json:"shopping"`
	Shopzilla       shopzilla.Config       `json:"shopzilla"`
	ResellerRatings resellerratings.Config `json:"reseller_ratings"`
}

// Bootstrap builds every scraper the config has credentials for and
// registers it with a new service. A source missing credentials is
// logged and left out instead of failing startup.
func Bootstrap(pctx sources.PipelineContext, config SourcesConfig) (*Service, error) {
	service := NewService()

	amazonScraper, err := amazon.NewScraper(pctx, config.Amazon)
	if err := skippable(err, sources.Amazon); err != nil {
		return nil, err
	} else if amazonScraper != nil {
		service.Register(AmazonAdapter{Scraper: amazonScraper})
	}

	shoppingScraper, err := shopping.NewScraper(pctx, config.Shopping)
	if err := skippable(err, sources.Shopping); err != nil {
		return nil, err
	} else if shoppingScraper != nil {
		service.Register(ShoppingAdapter{Scraper: shoppingScraper})
	}

	shopzillaScraper, err := shopzilla.NewScraper(pctx, config.Shopzilla)
	if err := skippable(err, sources.Shopzilla); err != nil {
		return nil, err
	} else if shopzillaScraper != nil {
		service.Register(ShopzillaAdapter{Scraper: shopzillaScraper})
	}

	rrScraper, err := resellerratings.NewScraper(pctx, config.ResellerRatings)
	if err != nil {
		return nil, err
	}
	service.Register(ResellerRatingsAdapter{Scraper: rrScraper})

	return service, nil
}

// skippable swallows missing-credential errors, those just disable the
// source.
func skippable(err error, keyname string) error {
	if err == nil {
		return nil
	}
	var confErr sources.ConfigurationError
	if errors.As(err, &confErr) {
		slog.Warn("source not configured, skipping", "source", keyname, "reason", confErr.Detail)
		return nil
	}
	return err
}
