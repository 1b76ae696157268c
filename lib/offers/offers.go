// Package offers holds the domain model shared by every source: a
// normalized product offer, a merchant reputation profile, and the
// aggregation rules that pick winners across sources.
package offers

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Merchant tiers, lower sorts first on price ties.
const (
	TierFeaturedMerchant = 1
	TierSeller           = 2
	TierOtherMerchant    = 3
)

type MerchantType string

const (
	MerchantTypeMerchant MerchantType = "merchant"
	MerchantTypeSeller   MerchantType = "seller"
)

type Offer struct {
	Source       string       `json:"source"`
	MerchantCode string       `json:"merchant_code"`
	MerchantName string       `json:"merchant_name"`
	MerchantLogo string       `json:"merchant_logo,omitempty"`
	MerchantType MerchantType `json:"merchant_type"`

	// MerchantRating is on the normalized 0-100 scale when known.
	MerchantRating     *float64 `json:"merchant_rating,omitempty"`
	NumMerchantReviews *int     `json:"num_merchant_reviews,omitempty"`

	Price decimal.Decimal `json:"price"`
	// Shipping is nil when the source could not determine it. Unknown
	// shipping is treated as free for comparison purposes.
	Shipping *decimal.Decimal `json:"shipping,omitempty"`

	Available        bool   `json:"available"`
	AvailabilityText string `json:"availability_text,omitempty"`

	OfferURL string `json:"offer_url"`
	// CPC is the cost-per-click owed to the source for this offer, in cents.
	CPC int64 `json:"cpc"`

	// AddedToCart marks offers whose price came from a cart reveal
	// rather than the listing itself.
	AddedToCart bool `json:"added_to_cart,omitempty"`

	Tier int `json:"tier"`
	// OriginalIndex preserves the position the source listed this offer
	// at, used as the final sort tiebreaker.
	OriginalIndex int `json:"-"`
}

// TotalPrice is price plus shipping, with unknown shipping counting as
// zero.
func (o Offer) TotalPrice() decimal.Decimal {
	if o.Shipping == nil {
		return o.Price
	}
	return o.Price.Add(*o.Shipping)
}

type MerchantProfile struct {
	Source string `json:"source"`
	Code   string `json:"code"`
	// AltCode is a secondary identifier some sources expose, like the
	// store slug a numeric merchant id resolves to.
	AltCode string `json:"alt_code,omitempty"`

	Name     string `json:"name"`
	LogoURL  string `json:"logo_url,omitempty"`
	Homepage string `json:"homepage,omitempty"`
	URL      string `json:"url,omitempty"`

	// Rating is normalized to a 0-100 scale regardless of the scale the
	// source reports on.
	Rating     float64 `json:"rating"`
	NumReviews int     `json:"num_reviews"`

	// Lifetime figures are only set by sources that track them
	// separately from the rolling window.
	RatingLifetime     float64 `json:"rating_lifetime,omitempty"`
	NumReviewsLifetime int     `json:"num_reviews_lifetime,omitempty"`
}

func (p MerchantProfile) HasRating() bool {
	return p.NumReviews > 0
}

// Merge collapses duplicate merchants, keeping the cheapest offer per
// merchant code. On equal totals the earlier offer wins.
func Merge(list []Offer) []Offer {
	merged := []Offer{}
	byMerchant := map[string]int{}

	for _, offer := range list {
		at, seen := byMerchant[offer.MerchantCode]
		if !seen {
			byMerchant[offer.MerchantCode] = len(merged)
			merged = append(merged, offer)
			continue
		}
		if offer.TotalPrice().LessThan(merged[at].TotalPrice()) {
			merged[at] = offer
		}
	}

	return merged
}

// Sort orders offers cheapest total first, breaking ties by tier and
// then by the order the source listed them. The sort is stable so
// equal offers keep their relative order.
func Sort(list []Offer) {
	sort.SliceStable(list, func(i, j int) bool {
		cmp := list[i].TotalPrice().Cmp(list[j].TotalPrice())
		if cmp != 0 {
			return cmp < 0
		}
		if list[i].Tier != list[j].Tier {
			return list[i].Tier < list[j].Tier
		}
		return list[i].OriginalIndex < list[j].OriginalIndex
	})
}

// Best returns the cheapest available offer, but only when the listing
// is liquid enough to trust: fewer than minOffers candidates yields no
// winner.
func Best(list []Offer, minOffers int) (Offer, bool) {
	available := []Offer{}
	for _, offer := range list {
		if offer.Available {
			available = append(available, offer)
		}
	}
	if len(available) == 0 || len(available) < minOffers {
		return Offer{}, false
	}
	Sort(available)
	return available[0], true
}
