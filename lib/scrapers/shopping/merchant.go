package shopping

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bazaar-backend/lib/extract"
	"bazaar-backend/lib/offers"
	"bazaar-backend/lib/sources"
)

var (
	merchantCodePattern = regexp.MustCompile(`merch_logos/(.+)\.gif`)
	searchResultPattern = regexp.MustCompile(`~MRD-(\d+)`)
	ratingTitlePattern  = regexp.MustCompile(`((\d|,)*\.?\d)`)
	reviewsOfPattern    = regexp.MustCompile(`of\s+((\d|,)+)`)
	nullTitlePattern    = regexp.MustCompile(` null `)
)

const merchantPageAttempts = 4

// MerchantCodeFromPageURL recovers the numeric merchant code from a
// review page url, which embeds it after the MRD marker.
func MerchantCodeFromPageURL(pageURL string) (string, bool) {
	m := searchResultPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FetchMerchantProfile scrapes a merchant's review page. Roughly one
// in ten responses is a bogus page with zeroed stats, recognizable by
// a "null" merchant name in the title, so the fetch retries on that
// marker.
func (s *Scraper) FetchMerchantProfile(ctx context.Context, merchantCode string) (offers.MerchantProfile, error) {
	ctx, span := tracer.Start(ctx, "FetchMerchantProfile")
	defer span.End()

	pageURL := s.merchantPageURL(merchantCode)
	key := fmt.Sprintf("shopping-merchant-%s-%s", merchantCode, fingerprintVersion)

	body, ok := s.cache.Get(ctx, key)
	if !ok {
		for attempt := 1; attempt <= merchantPageAttempts; attempt++ {
			var err error
			body, err = s.fetchPage(ctx, pageURL)
			if err != nil {
				return offers.MerchantProfile{}, err
			}
			if !nullTitlePattern.MatchString(pageTitle(body)) {
				break
			}
			slog.DebugContext(ctx, "got null merchant page, refetching",
				"source", sources.Shopping, "merchant", merchantCode, "attempt", attempt)
		}
		s.cache.Set(ctx, key, body, time.Minute*10)
	}

	doc, err := extract.Parse(body, extract.HTML)
	if err != nil {
		return offers.MerchantProfile{}, err
	}

	profile := offers.MerchantProfile{
		Source: sources.Shopping,
		Code:   merchantCode,
		URL:    pageURL,
		Name:   doc.At("h1.pageTitle").Text(),
	}

	if logo := doc.At("img.logoBorder1"); logo.Exists() {
		profile.LogoURL = logo.Attr("src")
		if m := merchantCodePattern.FindStringSubmatch(profile.LogoURL); m != nil {
			profile.AltCode = m[1]
		}
	}

	if img := doc.At("td#image img"); img.Exists() {
		if m := ratingTitlePattern.FindStringSubmatch(img.Attr("title")); m != nil {
			rating, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
			if err == nil {
				profile.Rating = s.source.NormalizeRating(rating)
			}
		}
	}

	reviewsText := doc.At("table.boxTableTop h3.boxTitleNB").Text()
	if m := reviewsOfPattern.FindStringSubmatch(reviewsText); m != nil {
		reviews, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err == nil {
			profile.NumReviews = reviews
		}
	}

	return profile, nil
}

// SearchMerchants scrapes the store directory search results.
func (s *Scraper) SearchMerchants(ctx context.Context, query string, limit int) ([]offers.MerchantProfile, error) {
	ctx, span := tracer.Start(ctx, "SearchMerchants")
	defer span.End()

	body, err := s.fetchPage(ctx, s.merchantSearchURL(strings.TrimSpace(query)))
	if err != nil {
		return nil, err
	}
	doc, err := extract.Parse(body, extract.HTML)
	if err != nil {
		return nil, err
	}

	boxes := doc.Search(`div[class*="contentContainer"] div.boxMid`)
	if len(boxes) < 2 {
		return nil, nil
	}

	results := []offers.MerchantProfile{}
	for _, row := range boxes[1].Search("tr") {
		if !rowHasStoreInfoLink(row) {
			continue
		}

		link := row.At("td a")
		if !link.Exists() {
			continue
		}
		m := searchResultPattern.FindStringSubmatch(link.Attr("href"))
		if m == nil {
			continue
		}

		profile := offers.MerchantProfile{
			Source: sources.Shopping,
			Code:   m[1],
			Name:   link.Text(),
		}
		if logo := row.At("td.smallTxt img"); logo.Exists() {
			profile.LogoURL = logo.Attr("src")
		}
		results = append(results, profile)

		if limit > 0 && len(results) >= limit {
			break
		}
	}

	return results, nil
}

func rowHasStoreInfoLink(row extract.Node) bool {
	for _, span := range row.Search("td div ul li a span") {
		if span.Text() == "See Store Info" {
			return true
		}
	}
	return false
}

func pageTitle(body []byte) string {
	doc, err := extract.Parse(body, extract.HTML)
	if err != nil {
		return ""
	}
	return doc.At("head title").Text()
}
