package amazon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"bazaar-backend/lib/extract"
	"bazaar-backend/lib/fetch"
	"bazaar-backend/lib/money"
	"bazaar-backend/lib/offers"
	"bazaar-backend/lib/requestsig"
	"bazaar-backend/lib/sources"

	"github.com/shopspring/decimal"
)

// apiRequest signs and executes one Product Advertising API call,
// caching the response body by the fingerprint of the unsigned
// parameters.
func (s *Scraper) apiRequest(ctx context.Context, userParams url.Values) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "apiRequest")
	defer span.End()

	params := url.Values{}
	params.Set("Service", apiService)
	params.Set("Version", apiVersion)
	params.Set("AWSAccessKeyId", s.config.AccessKeyID)
	for k, vs := range userParams {
		params[k] = vs
	}

	key := requestsig.Fingerprint(sources.Amazon, fingerprintVersion, params)
	if body, ok := s.cache.Get(ctx, key); ok {
		return body, nil
	}

	signedURL, err := requestsig.SignedURL(
		s.apiBase.Scheme, s.apiBase.Host, apiPath,
		params, []byte(s.config.SecretKey), time.Now(),
	)
	if err != nil {
		return nil, sources.ConfigurationError{
			Source: sources.Amazon,
			Detail: err.Error(),
		}
	}

	err = s.source.Throttle(ctx)
	if err != nil {
		return nil, err
	}
	body, err := s.client.Fetch(ctx, signedURL)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, key, body, s.source.OfferTTL)
	return body, nil
}

// FetchOffersViaAPI pulls every offer page for an asin through the
// ItemLookup operation. Featured-only narrows the lookup to featured
// merchants.
func (s *Scraper) FetchOffersViaAPI(ctx context.Context, asin string, featuredOnly bool) ([]offers.Offer, error) {
	ctx, span := tracer.Start(ctx, "FetchOffersViaAPI")
	defer span.End()

	merchantID := "All"
	if featuredOnly {
		merchantID = "Featured"
	}
	params := url.Values{}
	params.Set("Operation", "ItemLookup")
	params.Set("ResponseGroup", "Large,OfferFull")
	params.Set("ItemId", asin)
	params.Set("IdType", "ASIN")
	params.Set("MerchantId", merchantID)
	params.Set("Condition", "New")

	list := []offers.Offer{}
	totalPages := 1

	for page := 1; page <= totalPages; page++ {
		params.Set("OfferPage", strconv.Itoa(page))
		body, err := s.apiRequest(ctx, params)
		if err != nil {
			return nil, s.classifyASINError(asin, err)
		}
		doc, err := extract.Parse(body, extract.XML)
		if err != nil {
			return nil, err
		}

		if page == 1 {
			reported, err := strconv.Atoi(doc.At("items offers totalofferpages").Text())
			if err == nil && reported > 0 {
				totalPages = reported
			}
		}

		for _, node := range doc.Search("items offers offer") {
			offer, ok := s.parseAPIOffer(ctx, asin, node)
			if !ok {
				continue
			}
			list = append(list, offer)
		}
	}

	return offers.Merge(list), nil
}

func (s *Scraper) parseAPIOffer(ctx context.Context, asin string, node extract.Node) (offers.Offer, bool) {
	merchantType := offers.MerchantTypeMerchant
	id := node.At("merchant merchantid").Text()
	name := node.At("merchant name").Text()
	if id == "" {
		id = node.At("seller sellerid").Text()
		name = node.At("seller nickname").Text()
		merchantType = offers.MerchantTypeSeller
	}
	if id == "" {
		slog.WarnContext(ctx, "offer without merchant identity, skipping",
			"source", sources.Amazon, "asin", asin)
		return offers.Offer{}, false
	}

	priceNode := node.At("offerlisting price")
	if node.At("offerlisting saleprice").Exists() {
		priceNode = node.At("offerlisting saleprice")
	}
	amount := priceNode.At("amount").Text()
	formatted := priceNode.At("formattedprice").Text()

	addedToCart := false
	if formatted == "Too low to display" {
		listingID := node.At("offerlisting offerlistingid").Text()
		if listingID == "" {
			slog.WarnContext(ctx, "suppressed price with no offer listing id, dropping row",
				"source", sources.Amazon, "asin", asin, "merchant", id)
			return offers.Offer{}, false
		}
		revealed, err := s.revealSuppressedPrice(ctx, listingID)
		if err != nil {
			slog.WarnContext(ctx, "price reveal failed, dropping row",
				"source", sources.Amazon, "asin", asin, "merchant", id, "err", err)
			return offers.Offer{}, false
		}
		amount = revealed
		addedToCart = true
	}

	var price decimal.Decimal
	if cents := money.ParseCentsOrNil(amount); cents != nil {
		price = *cents
	} else if parsed := money.ParsePriceOrNil(formatted); parsed != nil {
		price = *parsed
	} else {
		slog.WarnContext(ctx, "offer without price, skipping",
			"source", sources.Amazon, "asin", asin, "merchant", id)
		return offers.Offer{}, false
	}

	if quantity := node.At("offerlisting quantity").Text(); quantity != "" {
		n, err := strconv.Atoi(quantity)
		if err == nil && n <= 0 {
			return offers.Offer{}, false
		}
	}

	tier := offers.TierFeaturedMerchant
	if merchantType == offers.MerchantTypeSeller {
		tier = offers.TierSeller
	}

	return offers.Offer{
		Source:       sources.Amazon,
		MerchantCode: id,
		MerchantName: name,
		MerchantType: merchantType,
		Price:        price,
		Available:    true,
		OfferURL:     s.offerURL(asin, string(merchantType), id),
		AddedToCart:  addedToCart,
		Tier:         tier,
	}, true
}

// revealSuppressedPrice uncovers a "too low to display" price by
// simulating a cart add. Returns the subtotal in minor units.
func (s *Scraper) revealSuppressedPrice(ctx context.Context, offerListingID string) (string, error) {
	ctx, span := tracer.Start(ctx, "revealSuppressedPrice")
	defer span.End()

	params := url.Values{}
	params.Set("Operation", "CartCreate")
	params.Set("AssociateTag", s.config.AssociateTag)
	params.Set("Item.1.OfferListingId", offerListingID)
	params.Set("Item.1.Quantity", "1")

	body, err := s.apiRequest(ctx, params)
	if err != nil {
		return "", err
	}
	doc, err := extract.Parse(body, extract.XML)
	if err != nil {
		return "", err
	}

	amount := doc.At("cart cartitems subtotal amount").Text()
	if amount == "" {
		return "", fmt.Errorf("cart create response had no subtotal for listing %s", offerListingID)
	}
	return amount, nil
}

// SellerLookup resolves a seller id into a merchant profile, falling
// back to scraping the seller's at-a-glance page when the API response
// is missing the name.
func (s *Scraper) SellerLookup(ctx context.Context, sellerID string) (offers.MerchantProfile, error) {
	ctx, span := tracer.Start(ctx, "SellerLookup")
	defer span.End()

	params := url.Values{}
	params.Set("Operation", "SellerLookup")
	params.Set("SellerId", sellerID)

	body, err := s.apiRequest(ctx, params)
	if err != nil {
		return offers.MerchantProfile{}, err
	}
	doc, err := extract.Parse(body, extract.XML)
	if err != nil {
		return offers.MerchantProfile{}, err
	}

	seller := doc.At("sellers seller")
	name := seller.At("sellername").Text()
	if name == "" {
		name = seller.At("nickname").Text()
	}

	profile := offers.MerchantProfile{
		Source: sources.Amazon,
		Code:   sellerID,
		URL:    seller.At("glancepage").Text(),
	}

	if rating, err := strconv.ParseFloat(seller.At("averagefeedbackrating").Text(), 64); err == nil {
		profile.Rating = s.source.NormalizeRating(rating)
	}
	if reviews, err := strconv.Atoi(seller.At("totalfeedback").Text()); err == nil {
		profile.NumReviews = reviews
	}

	if name == "" {
		glance, err := s.scrapeAtAGlance(ctx, sellerID)
		if err != nil {
			slog.WarnContext(ctx, "at-a-glance scrape failed",
				"source", sources.Amazon, "seller", sellerID, "err", err)
		} else {
			name = glance.Name
			profile.LogoURL = glance.LogoURL
			profile.Homepage = glance.Homepage
		}
	}
	if name == "" {
		name = fmt.Sprintf("Amazon merchant (%s)", sellerID)
	}
	profile.Name = name

	return profile, nil
}

func (s *Scraper) classifyASINError(asin string, err error) error {
	var notFound fetch.NotFoundError
	if errors.As(err, &notFound) {
		return ASINNotFoundError{ASIN: asin}
	}
	var fatal fetch.FatalError
	var exhausted fetch.RetriesExhaustedError
	if errors.As(err, &fatal) || errors.As(err, &exhausted) {
		return ASINFatalError{ASIN: asin, Err: err}
	}
	return err
}
