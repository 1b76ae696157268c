// Package sources is the registry of upstream source policy: affiliate
// economics, cache lifetimes, fetch throttling, and the link rules
// each scraper shares.
package sources

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/time/rate"
)

// Source keynames. These are stable identifiers, persisted by callers,
// not display names.
const (
	Amazon          = "AMAZON"
	Shopping        = "SHOPPING"
	Shopzilla       = "SHOPZILLA"
	ResellerRatings = "RESELLER_RATINGS"
)

type ConfigurationError struct {
	Source string
	Detail string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("source %s misconfigured: %s", e.Source, e.Detail)
}

// InvalidProductCodeError rejects a product code before any request is
// spent on it.
type InvalidProductCodeError struct {
	Source string
	Code   string
}

func (e InvalidProductCodeError) Error() string {
	return fmt.Sprintf("product code %q does not match the %s identifier shape", e.Code, e.Source)
}

// Policy is the immutable per-source configuration, loaded once at
// startup.
type Policy struct {
	Keyname  string
	Name     string
	Homepage string

	// CPC is the affiliate payout per click, in cents.
	CPC           int64
	OffersEnabled bool
	OfferTTL      time.Duration
	// OfferAffiliate means offer urls carry affiliate parameters that
	// NullifyOfferURL knows how to neutralize.
	OfferAffiliate bool

	UseForMerchantRatings   bool
	SupportsLifetimeRatings bool
	// RatingFactor converts the scale the source reports on to the
	// canonical 0-100 scale (20 for 5-point sources, 10 for 10-point).
	RatingFactor float64

	// BatchFetchDelay is the minimum interval between requests to this
	// source.
	BatchFetchDelay time.Duration

	ProductCodePattern  *regexp.Regexp
	ProductCodeExamples []string
	// ProductPageLink is a template with a single %s for the product
	// code.
	ProductPageLink string
}

// Source pairs a policy with the per-source throttle shared by every
// request to that upstream.
type Source struct {
	Policy
	limiter *rate.Limiter
}

func newSource(p Policy) *Source {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.BatchFetchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(p.BatchFetchDelay), 1)
	}
	return &Source{Policy: p, limiter: limiter}
}

// Throttle blocks until this source may be fetched again, or until the
// context is canceled.
func (s *Source) Throttle(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// ValidProductCode reports whether the code matches the source's
// identifier shape. Sources without a pattern accept any non-empty
// code.
func (s *Source) ValidProductCode(code string) bool {
	if code == "" {
		return false
	}
	if s.ProductCodePattern == nil {
		return true
	}
	return s.ProductCodePattern.MatchString(code)
}

// NormalizeRating converts a rating on this source's native scale to
// the canonical 0-100 scale.
func (s *Source) NormalizeRating(native float64) float64 {
	if s.RatingFactor == 0 {
		return native
	}
	return native * s.RatingFactor
}

// FormatRating renders a canonical 0-100 rating back on the source's
// native scale, for display next to the source's own pages.
func (s *Source) FormatRating(normalized float64) string {
	if s.RatingFactor == 0 {
		return fmt.Sprintf("%.0f%%", normalized)
	}
	scale := 100 / s.RatingFactor
	return fmt.Sprintf("%.1f out of %.0f", normalized/s.RatingFactor, scale)
}

// ProductPage expands the source's product page template for a code.
// Empty when the source has no canonical product page.
func (s *Source) ProductPage(code string) string {
	if s.ProductPageLink == "" {
		return ""
	}
	return fmt.Sprintf(s.ProductPageLink, code)
}
