package amazon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bazaar-backend/lib/respcache"
	"bazaar-backend/lib/sources"
	"bazaar-backend/lib/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const itemLookupPage1 = `<ItemLookupResponse><Items><Item><Offers>
<TotalOfferPages>2</TotalOfferPages>
<Offer>
	<Merchant><MerchantId>MERCH1</MerchantId><Name>Acme Deals</Name></Merchant>
	<OfferListing><OfferListingId>OL1</OfferListingId>
		<Price><Amount>21995</Amount><FormattedPrice>$219.95</FormattedPrice></Price>
	</OfferListing>
</Offer>
<Offer>
	<Seller><SellerId>SELL1</SellerId><Nickname>gadget guy</Nickname></Seller>
	<OfferListing><OfferListingId>OL2</OfferListingId>
		<Price><FormattedPrice>Too low to display</FormattedPrice></Price>
	</OfferListing>
</Offer>
<Offer>
	<Merchant><MerchantId>MERCH9</MerchantId><Name>Ghost Deals</Name></Merchant>
	<OfferListing>
		<Price><FormattedPrice>Too low to display</FormattedPrice></Price>
	</OfferListing>
</Offer>
</Offers></Item></Items></ItemLookupResponse>`

const itemLookupPage2 = `<ItemLookupResponse><Items><Item><Offers>
<TotalOfferPages>2</TotalOfferPages>
<Offer>
	<Merchant><MerchantId>MERCH1</MerchantId><Name>Acme Deals</Name></Merchant>
	<OfferListing><OfferListingId>OL3</OfferListingId>
		<Price><Amount>24999</Amount><FormattedPrice>$249.99</FormattedPrice></Price>
	</OfferListing>
</Offer>
</Offers></Item></Items></ItemLookupResponse>`

const cartCreateResponse = `<CartCreateResponse><Cart><CartItems>
<SubTotal><Amount>999</Amount><FormattedPrice>$9.99</FormattedPrice></SubTotal>
</CartItems></Cart></CartCreateResponse>`

const sellerLookupResponse = `<SellerLookupResponse><Sellers><Seller>
<SellerId>SELL1</SellerId>
<SellerName>Gadget Guy Inc</SellerName>
<GlancePage>http://www.amazon.com/gp/help/seller/at-a-glance.html?seller=SELL1</GlancePage>
<AverageFeedbackRating>4.5</AverageFeedbackRating>
<TotalFeedback>1234</TotalFeedback>
</Seller></Sellers></SellerLookupResponse>`

const sellerLookupNoName = `<SellerLookupResponse><Sellers><Seller>
<SellerId>SELL2</SellerId>
<AverageFeedbackRating>3.0</AverageFeedbackRating>
<TotalFeedback>10</TotalFeedback>
</Seller></Sellers></SellerLookupResponse>`

const atAGlancePage = `<html><body>
<table><tr><td>
	<h1 class="sans"><strong>Acme Store</strong></h1>
	<img src="http://logo.example/acme.gif"/>
</td></tr></table>
<table><tr class="tiny"><td>
	<a target="_blank" href="http://www.acme.example">http://www.acme.example</a>
</td></tr></table>
</body></html>`

const offerListingPage = `<html><body><div class="resultsset">
<table>
<thead><tr><td>Featured Merchants</td></tr></thead>
<tbody class="result">
<tr>
	<td class="readytobuy"><form><input name="offering-id.OLX1" type="hidden"/></form></td>
	<td><span class="price">$219.95</span>
		<div class="shipping_block"><span class="price_shipping">$5.00</span></div></td>
	<td><ul class="sellerInformation"></ul>
		<div class="seller"><a href="/shops/superstore">SuperStore</a></div>
		<div class="rating">
			<a href="/gp/help/seller/at-a-glance.html?seller=A1SELLER">4.5 stars</a>
			<img src="http://g-images.example/stars-4-5.gif"/>
			(1234 ratings)
		</div>
		<div class="availability">In Stock.</div></td>
</tr>
</tbody>
</table>
<table>
<thead><tr><td>New from $189.00</td></tr></thead>
<tbody class="result">
<tr>
	<td class="readytobuy"><form><input name="offering-id.OLX2" type="hidden"/></form></td>
	<td><span class="price">$199.99</span><span class="supersaver">FREE Super Saver Shipping</span></td>
	<td><ul class="sellerInformation"></ul>
		<a href="/shops/megamart"><img src="http://logo.example/megamart.gif" alt="MegaMart"/></a>
		<div class="rating"><a href="/seller-profile?seller=A2MEGA">ratings</a></div>
		<div class="availability">Usually ships within 1 to 2 months</div></td>
</tr>
<tr>
	<td class="readytobuy"></td>
	<td></td>
	<td><ul class="sellerInformation"></ul>
		<div class="rating"><a href="/profile?seller=A3NOPRICE">ratings</a></div></td>
</tr>
<tr>
	<td class="readytobuy"><form><input name="offering-id.OLX4" type="hidden"/></form></td>
	<td><span class="price">$225.00</span></td>
	<td><ul class="sellerInformation"></ul>
		<a href="/shops/budget"><img src="http://logo.example/budget.gif" alt="Budget Bin"/></a>
		<div class="rating"><a href="/profile?seller=A4BUDGET">ratings</a></div>
		<div class="availability">Usually ships within 2 to 3 days</div></td>
</tr>
</tbody>
</table>
</div></body></html>`

func newTestScraper(t *testing.T, handler http.Handler) *Scraper {
	pctx, cleanup := testutil.SetupPipeline(t, "amazon_test")
	t.Cleanup(cleanup)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	scraper, err := NewScraper(
		pctx,
		Config{
			AccessKeyID:  "test-access-key",
			SecretKey:    "test-secret",
			AssociateTag: "partner-20",
			APIBaseURL:   server.URL,
			SiteBaseURL:  server.URL,
		},
	)
	require.NoError(t, err)
	return scraper
}

func apiHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		require.NotEmpty(t, query.Get("Signature"), "api requests must be signed")
		require.NotEmpty(t, query.Get("Timestamp"))

		switch query.Get("Operation") {
		case "ItemLookup":
			if query.Get("OfferPage") == "2" {
				fmt.Fprint(w, itemLookupPage2)
				return
			}
			fmt.Fprint(w, itemLookupPage1)
		case "CartCreate":
			require.Equal(t, "OL2", query.Get("Item.1.OfferListingId"))
			fmt.Fprint(w, cartCreateResponse)
		case "SellerLookup":
			if query.Get("SellerId") == "SELL2" {
				fmt.Fprint(w, sellerLookupNoName)
				return
			}
			fmt.Fprint(w, sellerLookupResponse)
		default:
			t.Errorf("unexpected operation %q", query.Get("Operation"))
		}
	})
}

func TestFetchOffersViaAPI(t *testing.T) {
	scraper := newTestScraper(t, apiHandler(t))

	list, err := scraper.FetchOffersViaAPI(context.Background(), "B00EZPXYP4", false)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byCode := map[string]int{}
	for i, offer := range list {
		byCode[offer.MerchantCode] = i
	}

	// page 2 had MERCH1 at a higher price, the cheaper page 1 offer wins
	acme := list[byCode["MERCH1"]]
	require.True(t, acme.Price.Equal(decimal.RequireFromString("219.95")))
	require.Equal(t, 1, acme.Tier)
	require.False(t, acme.AddedToCart)

	// the suppressed price got revealed through a cart add
	seller := list[byCode["SELL1"]]
	require.Equal(t, "gadget guy", seller.MerchantName)
	require.True(t, seller.Price.Equal(decimal.RequireFromString("9.99")))
	require.True(t, seller.AddedToCart)
	require.Equal(t, 2, seller.Tier)

	// a suppressed price with no listing id cannot be revealed, the
	// row is dropped and the rest of the batch survives
	require.NotContains(t, byCode, "MERCH9")
}

func TestFetchOffersViaAPIUsesCache(t *testing.T) {
	const singlePage = `<ItemLookupResponse><Items><Item><Offers>
<TotalOfferPages>1</TotalOfferPages>
<Offer>
	<Merchant><MerchantId>MERCH1</MerchantId><Name>Acme Deals</Name></Merchant>
	<OfferListing><OfferListingId>OL1</OfferListingId>
		<Price><Amount>21995</Amount><FormattedPrice>$219.95</FormattedPrice></Price>
	</OfferListing>
</Offer>
</Offers></Item></Items></ItemLookupResponse>`

	calls := 0
	scraper := newTestScraper(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprint(w, singlePage)
		},
	))

	_, err := scraper.FetchOffersViaAPI(context.Background(), "B00EZPXYP4", false)
	require.NoError(t, err)
	_, err = scraper.FetchOffersViaAPI(context.Background(), "B00EZPXYP4", false)
	require.NoError(t, err)

	require.Equal(t, 1, calls, "identical lookups must hit the response cache")
}

func TestScrapeOffers(t *testing.T) {
	scraper := newTestScraper(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, offerListingPage)
		},
	))

	list, err := scraper.ScrapeOffers(context.Background(), "B00EZPXYP4", false)
	require.NoError(t, err)

	// out-of-stock and priceless rows are dropped entirely
	require.Len(t, list, 2)

	featured := list[0]
	require.Equal(t, "A1SELLER", featured.MerchantCode)
	require.Equal(t, "SuperStore", featured.MerchantName)
	require.True(t, featured.Price.Equal(decimal.RequireFromString("219.95")))
	require.NotNil(t, featured.Shipping)
	require.True(t, featured.Shipping.Equal(decimal.RequireFromString("5.00")))
	require.Equal(t, 1, featured.Tier)
	require.NotNil(t, featured.MerchantRating)
	require.InDelta(t, 90, *featured.MerchantRating, 0.001)
	require.NotNil(t, featured.NumMerchantReviews)
	require.Equal(t, 1234, *featured.NumMerchantReviews)

	other := list[1]
	require.Equal(t, "A4BUDGET", other.MerchantCode)
	require.Equal(t, "Budget Bin", other.MerchantName)
	require.Equal(t, "http://logo.example/budget.gif", other.MerchantLogo)
	require.Nil(t, other.Shipping, "no shipping info means unknown, not free")
	require.Equal(t, 3, other.Tier)
}

func TestScrapeOffersFeaturedOnly(t *testing.T) {
	scraper := newTestScraper(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, offerListingPage)
		},
	))

	list, err := scraper.ScrapeOffers(context.Background(), "B00EZPXYP4", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "A1SELLER", list[0].MerchantCode)
}

func TestScrapeOffersNotFound(t *testing.T) {
	scraper := newTestScraper(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	))

	_, err := scraper.ScrapeOffers(context.Background(), "B000000000", false)

	var notFound ASINNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "B000000000", notFound.ASIN)
}

func TestSellerLookup(t *testing.T) {
	scraper := newTestScraper(t, apiHandler(t))

	profile, err := scraper.SellerLookup(context.Background(), "SELL1")
	require.NoError(t, err)
	require.Equal(t, "Gadget Guy Inc", profile.Name)
	require.InDelta(t, 90, profile.Rating, 0.001)
	require.Equal(t, 1234, profile.NumReviews)
}

func TestSellerLookupFallsBackToGlancePage(t *testing.T) {
	scraper := newTestScraper(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == apiPath {
				fmt.Fprint(w, sellerLookupNoName)
				return
			}
			fmt.Fprint(w, atAGlancePage)
		},
	))

	profile, err := scraper.SellerLookup(context.Background(), "SELL2")
	require.NoError(t, err)
	require.Equal(t, "Acme Store", profile.Name)
	require.Equal(t, "http://logo.example/acme.gif", profile.LogoURL)
	require.Equal(t, "http://www.acme.example", profile.Homepage)
}

func TestFindOfferByMerchantName(t *testing.T) {
	scraper := newTestScraper(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, offerListingPage)
		},
	))

	offer, found, err := scraper.FindOfferByMerchantName(
		context.Background(), "B00EZPXYP4", "superstore")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "A1SELLER", offer.MerchantCode)

	_, found, err = scraper.FindOfferByMerchantName(
		context.Background(), "B00EZPXYP4", "completely unrelated shop")
	require.NoError(t, err)
	require.False(t, found)
}

func TestNewScraperRequiresCredentials(t *testing.T) {
	registry := sources.DefaultRegistry()
	_, err := NewScraper(
		sources.NewPipelineContext(registry, respcache.NewMemory()),
		Config{},
	)

	var confErr sources.ConfigurationError
	require.ErrorAs(t, err, &confErr)
}
