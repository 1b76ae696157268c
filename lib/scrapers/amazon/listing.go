package amazon

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"bazaar-backend/lib/extract"
	"bazaar-backend/lib/money"
	"bazaar-backend/lib/offers"
	"bazaar-backend/lib/sources"
	"bazaar-backend/lib/textutil"

	"github.com/antzucaro/matchr"
	"github.com/shopspring/decimal"
)

var (
	sellerIDPattern   = regexp.MustCompile(`seller=([^&#]+)`)
	numRatingsPattern = regexp.MustCompile(`\((\d+) ratings\)`)
	starsPattern      = regexp.MustCompile(`stars-([\d-]+)`)

	outOfStockPattern  = regexp.MustCompile(`(?i)out of stock`)
	shipsDaysPattern   = regexp.MustCompile(`(?i)Usually ships within .+ days`)
	shipsMonthsPattern = regexp.MustCompile(`(?i)Usually ships within .+ months`)
	inStockPattern     = regexp.MustCompile(`(?i)In Stock`)
)

// ScrapeOffers parses the offer listing page for an asin. The page
// groups offers into a featured merchants table and a table of other
// new-condition listings; featuredOnly skips the latter.
func (s *Scraper) ScrapeOffers(ctx context.Context, asin string, featuredOnly bool) ([]offers.Offer, error) {
	ctx, span := tracer.Start(ctx, "ScrapeOffers")
	defer span.End()

	body, err := s.fetchListingPage(ctx, asin)
	if err != nil {
		return nil, s.classifyASINError(asin, err)
	}
	doc, err := extract.Parse(body, extract.HTML)
	if err != nil {
		return nil, err
	}

	list := []offers.Offer{}
	for _, table := range doc.At("div.resultsset").Search("table") {
		text := table.Text()
		switch {
		case strings.Contains(text, "Featured Merchants"):
			rows := table.Search("tbody.result tr")
			list = append(list, s.parseListingRows(ctx, asin, rows, true, len(list))...)
		case !featuredOnly && strings.Contains(text, "New"):
			rows := table.Search("tbody.result tr")
			list = append(list, s.parseListingRows(ctx, asin, rows, false, len(list))...)
		}
	}

	return list, nil
}

func (s *Scraper) fetchListingPage(ctx context.Context, asin string) ([]byte, error) {
	key := fmt.Sprintf("amazon-offer-listing-%s-%s", asin, fingerprintVersion)
	if body, ok := s.cache.Get(ctx, key); ok {
		return body, nil
	}

	err := s.source.Throttle(ctx)
	if err != nil {
		return nil, err
	}
	body, err := s.client.Fetch(ctx, s.offerListingURL(asin))
	if err != nil {
		return nil, err
	}

	// pages cache at half the offer ttl, scraped prices move faster
	// than the api's
	s.cache.Set(ctx, key, body, s.source.OfferTTL/2)
	return body, nil
}

func (s *Scraper) parseListingRows(ctx context.Context, asin string, rows []extract.Node, featured bool, indexOffset int) []offers.Offer {
	list := []offers.Offer{}

	for _, row := range rows {
		offer, ok := s.parseListingRow(ctx, asin, row)
		if !ok {
			continue
		}
		offer.OriginalIndex = indexOffset + len(list)
		offer.Tier = offers.TierOtherMerchant
		if featured {
			offer.Tier = offers.TierFeaturedMerchant
		}
		list = append(list, offer)
	}

	return list
}

func (s *Scraper) parseListingRow(ctx context.Context, asin string, row extract.Node) (offers.Offer, bool) {
	var offerListingID string
	for _, input := range row.Search("td.readytobuy form input") {
		name := input.Attr("name")
		if strings.HasPrefix(name, "offering-id.") {
			offerListingID = strings.TrimPrefix(name, "offering-id.")
			break
		}
	}

	price := money.ParsePriceOrNil(row.At("span.price").Text())

	addedToCart := false
	if offerListingID != "" && hasSuppressedPriceMarker(row) {
		revealed, err := s.revealSuppressedPrice(ctx, offerListingID)
		if err != nil {
			slog.WarnContext(ctx, "price reveal failed, dropping row",
				"source", sources.Amazon, "asin", asin, "err", err)
			return offers.Offer{}, false
		}
		price = money.ParseCentsOrNil(revealed)
		addedToCart = true
	}
	if price == nil {
		slog.WarnContext(ctx, "offer listing row without price, skipping",
			"source", sources.Amazon, "asin", asin)
		return offers.Offer{}, false
	}

	var shipping *decimal.Decimal
	if node := row.At("div.shipping_block span.price_shipping"); node.Exists() {
		shipping = money.ParsePriceOrNil(node.Text())
	} else if row.At("span.supersaver").Exists() {
		free := decimal.Zero
		shipping = &free
	}

	sellerInfo := row.At("td:has(ul.sellerInformation)")
	if !sellerInfo.Exists() {
		slog.WarnContext(ctx, "offer listing row without seller info, skipping",
			"source", sources.Amazon, "asin", asin)
		return offers.Offer{}, false
	}

	sellerID := resolveSellerID(sellerInfo)
	if sellerID == "" {
		slog.WarnContext(ctx, "failed to find seller id, skipping row",
			"source", sources.Amazon, "asin", asin)
		return offers.Offer{}, false
	}

	var rating *float64
	if img := sellerInfo.At("div.rating img"); img.Exists() {
		if m := starsPattern.FindStringSubmatch(img.Attr("src")); m != nil {
			stars, err := strconv.ParseFloat(strings.Replace(m[1], "-", ".", 1), 64)
			if err == nil {
				normalized := s.source.NormalizeRating(stars)
				rating = &normalized
			}
		}
	}
	var numReviews *int
	if m := numRatingsPattern.FindStringSubmatch(sellerInfo.At("div.rating").Text()); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			numReviews = &n
		}
	}

	merchantType := offers.MerchantTypeMerchant
	var name, logoURL string
	if label := sellerInfo.At("div.seller a"); label.Exists() {
		name = label.Text()
		merchantType = offers.MerchantTypeSeller
	} else {
		img := sellerInfo.At("a img")
		if !img.Exists() {
			img = sellerInfo.At("img")
		}
		name = strings.TrimSpace(img.Attr("alt"))
		logoURL = img.Attr("src")
	}

	availability := sellerInfo.At("div.availability").Text()
	if !classifyAvailability(availability) {
		return offers.Offer{}, false
	}

	return offers.Offer{
		Source:             sources.Amazon,
		MerchantCode:       sellerID,
		MerchantName:       name,
		MerchantLogo:       logoURL,
		MerchantType:       merchantType,
		MerchantRating:     rating,
		NumMerchantReviews: numReviews,
		Price:              *price,
		Shipping:           shipping,
		Available:          true,
		AvailabilityText:   availability,
		OfferURL:           s.offerURL(asin, string(merchantType), sellerID),
		CPC:                s.source.CPC,
		AddedToCart:        addedToCart,
	}, true
}

func hasSuppressedPriceMarker(row extract.Node) bool {
	for _, span := range row.Search("td span") {
		text := span.Text()
		if strings.Contains(text, "Add to cart to see price.") ||
			strings.Contains(text, "Price not displayed.") {
			return true
		}
	}
	return false
}

// resolveSellerID tries the rating link, then the shipping rates link,
// then the seller profile link. First match wins.
func resolveSellerID(sellerInfo extract.Node) string {
	if link := sellerInfo.At("div.rating a"); link.Exists() {
		if m := sellerIDPattern.FindStringSubmatch(link.Attr("href")); m != nil {
			return m[1]
		}
	}
	for _, link := range sellerInfo.Search("div.availability a") {
		if !strings.Contains(link.Text(), "shipping rates") {
			continue
		}
		if m := sellerIDPattern.FindStringSubmatch(link.Attr("href")); m != nil {
			return m[1]
		}
	}
	for _, link := range sellerInfo.Search("div.rating a") {
		if link.Text() != "Seller Profile" {
			continue
		}
		if m := sellerIDPattern.FindStringSubmatch(link.Attr("href")); m != nil {
			return m[1]
		}
	}
	return ""
}

// classifyAvailability maps the availability blurb to in stock or not.
// Unknown phrasing defaults to in stock.
func classifyAvailability(text string) bool {
	switch {
	case text == "":
		return true
	case outOfStockPattern.MatchString(text):
		return false
	case shipsDaysPattern.MatchString(text):
		return true
	case shipsMonthsPattern.MatchString(text):
		return false
	case inStockPattern.MatchString(text):
		return true
	}
	return true
}

// FindOfferByMerchantName scrapes the offer listing and returns the
// offer whose merchant name best matches the query, if any match is
// close enough.
func (s *Scraper) FindOfferByMerchantName(ctx context.Context, asin, merchantName string) (offers.Offer, bool, error) {
	ctx, span := tracer.Start(ctx, "FindOfferByMerchantName")
	defer span.End()

	list, err := s.ScrapeOffers(ctx, asin, false)
	if err != nil {
		return offers.Offer{}, false, err
	}

	const threshold = 0.85
	best := offers.Offer{}
	bestScore := 0.0
	for _, offer := range list {
		score := matchr.JaroWinkler(
			textutil.NormalizeName(offer.MerchantName),
			textutil.NormalizeName(merchantName),
			true,
		)
		if score > bestScore {
			best = offer
			bestScore = score
		}
	}
	if bestScore < threshold {
		return offers.Offer{}, false, nil
	}
	return best, true, nil
}
