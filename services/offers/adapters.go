package offers

import (
	"context"
	"log/slog"
	"strings"

	"bazaar-backend/lib/offers"
	"bazaar-backend/lib/scrapers/amazon"
	"bazaar-backend/lib/scrapers/resellerratings"
	"bazaar-backend/lib/scrapers/shopping"
	"bazaar-backend/lib/scrapers/shopzilla"
	"bazaar-backend/lib/sources"
)

// AmazonAdapter prefers the product advertising api and falls back to
// scraping the offer listing page when the api call fails.
type AmazonAdapter struct {
	Scraper *amazon.Scraper
}

func (a AmazonAdapter) Source() *sources.Source {
	return a.Scraper.Source()
}

func (a AmazonAdapter) FetchOffers(ctx context.Context, productCode string) ([]offers.Offer, error) {
	list, err := a.Scraper.FetchOffersViaAPI(ctx, productCode, false)
	if err == nil {
		return list, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	slog.WarnContext(ctx, "api offer fetch failed, scraping offer listing",
		"asin", productCode, "err", err)
	return a.Scraper.ScrapeOffers(ctx, productCode, false)
}

func (a AmazonAdapter) FetchMerchantProfile(ctx context.Context, codeOrURL string) (offers.MerchantProfile, error) {
	return a.Scraper.SellerLookup(ctx, codeOrURL)
}

type ShoppingAdapter struct {
	Scraper *shopping.Scraper
}

func (a ShoppingAdapter) Source() *sources.Source {
	return a.Scraper.Source()
}

func (a ShoppingAdapter) FetchOffers(ctx context.Context, productCode string) ([]offers.Offer, error) {
	return a.Scraper.FetchOffers(ctx, productCode)
}

func (a ShoppingAdapter) FetchMerchantProfile(ctx context.Context, codeOrURL string) (offers.MerchantProfile, error) {
	if code, ok := shopping.MerchantCodeFromPageURL(codeOrURL); ok {
		return a.Scraper.FetchMerchantProfile(ctx, code)
	}
	return a.Scraper.FetchMerchantProfile(ctx, codeOrURL)
}

func (a ShoppingAdapter) SearchMerchants(ctx context.Context, query string, limit int) ([]offers.MerchantProfile, error) {
	return a.Scraper.SearchMerchants(ctx, query, limit)
}

// ShopzillaAdapter accepts either a raw merchant id or a review page
// url with the id embedded after the mid marker.
type ShopzillaAdapter struct {
	Scraper *shopzilla.Scraper
}

func (a ShopzillaAdapter) Source() *sources.Source {
	return a.Scraper.Source()
}

func (a ShopzillaAdapter) FetchOffers(ctx context.Context, productCode string) ([]offers.Offer, error) {
	return a.Scraper.FetchOffers(ctx, productCode)
}

func (a ShopzillaAdapter) FetchMerchantProfile(ctx context.Context, codeOrURL string) (offers.MerchantProfile, error) {
	if code, ok := shopzilla.MerchantCodeFromPageURL(codeOrURL); ok {
		return a.Scraper.FetchMerchantProfile(ctx, code)
	}
	return a.Scraper.FetchMerchantProfile(ctx, codeOrURL)
}

// ResellerRatingsAdapter carries merchant reputation only, it never
// serves offers.
type ResellerRatingsAdapter struct {
	Scraper *resellerratings.Scraper
}

func (a ResellerRatingsAdapter) Source() *sources.Source {
	return a.Scraper.Source()
}

func (a ResellerRatingsAdapter) FetchMerchantProfile(ctx context.Context, codeOrURL string) (offers.MerchantProfile, error) {
	if strings.Contains(codeOrURL, "://") {
		return a.Scraper.FetchMerchantProfile(ctx, codeOrURL)
	}
	return a.Scraper.FetchMerchantProfileByAltCode(ctx, codeOrURL)
}

func (a ResellerRatingsAdapter) SearchMerchants(ctx context.Context, query string, limit int) ([]offers.MerchantProfile, error) {
	return a.Scraper.SearchMerchants(ctx, query, limit)
}
