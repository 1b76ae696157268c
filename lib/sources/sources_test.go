package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	registry := DefaultRegistry()

	amazon, err := registry.BySourceName(Amazon)
	require.NoError(t, err)
	require.Equal(t, "Amazon", amazon.Name)
	require.True(t, amazon.OffersEnabled)
	require.Equal(t, time.Hour, amazon.OfferTTL)
	require.EqualValues(t, 12, amazon.CPC)

	shopzilla, err := registry.BySourceName(Shopzilla)
	require.NoError(t, err)
	require.False(t, shopzilla.OffersEnabled)

	reseller, err := registry.BySourceName(ResellerRatings)
	require.NoError(t, err)
	require.True(t, reseller.SupportsLifetimeRatings)

	_, err = registry.BySourceName("EBAY")
	var confErr ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

func TestValidProductCode(t *testing.T) {
	registry := DefaultRegistry()

	amazon, err := registry.BySourceName(Amazon)
	require.NoError(t, err)
	for _, example := range amazon.ProductCodeExamples {
		require.True(t, amazon.ValidProductCode(example), example)
	}
	require.False(t, amazon.ValidProductCode("not-an-asin"))
	require.False(t, amazon.ValidProductCode(""))

	shopzilla, err := registry.BySourceName(Shopzilla)
	require.NoError(t, err)
	require.True(t, shopzilla.ValidProductCode("8000000545"))
	require.False(t, shopzilla.ValidProductCode("123"))

	// no pattern means any non-empty code passes
	shopping, err := registry.BySourceName(Shopping)
	require.NoError(t, err)
	require.True(t, shopping.ValidProductCode("anything"))
}

func TestRatingConversion(t *testing.T) {
	registry := DefaultRegistry()

	amazon, err := registry.BySourceName(Amazon)
	require.NoError(t, err)
	require.InDelta(t, 90, amazon.NormalizeRating(4.5), 0.001)
	require.Equal(t, "4.5 out of 5", amazon.FormatRating(90))

	reseller, err := registry.BySourceName(ResellerRatings)
	require.NoError(t, err)
	require.InDelta(t, 87, reseller.NormalizeRating(8.7), 0.001)
	require.Equal(t, "8.7 out of 10", reseller.FormatRating(87))
}

func TestNullifyOfferURL(t *testing.T) {
	registry := DefaultRegistry()

	amazon, err := registry.BySourceName(Amazon)
	require.NoError(t, err)
	nullified := amazon.NullifyOfferURL("http://www.amazon.com/dp/B00EZPXYP4?tag=partner-20&psc=1")
	require.NotContains(t, nullified, "tag=partner-20")
	require.Contains(t, nullified, "psc=1")

	// sources without affiliate links pass urls through untouched
	reseller, err := registry.BySourceName(ResellerRatings)
	require.NoError(t, err)
	url := "http://www.resellerratings.com/store/acme?tag=whatever"
	require.Equal(t, url, reseller.NullifyOfferURL(url))
}

func TestProductPage(t *testing.T) {
	registry := DefaultRegistry()

	amazon, err := registry.BySourceName(Amazon)
	require.NoError(t, err)
	require.Equal(t, "http://www.amazon.com/dp/B00EZPXYP4", amazon.ProductPage("B00EZPXYP4"))

	shopping, err := registry.BySourceName(Shopping)
	require.NoError(t, err)
	require.Equal(t, "", shopping.ProductPage("12345"))
}

func TestLoadRegistryOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json5")
	override := `{
	AMAZON: {offers_enabled: false, cpc: 0},
	SHOPZILLA: {offers_enabled: true},
}`
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	registry, err := LoadRegistry(path)
	require.NoError(t, err)

	// false and zero overrides must land on top of nonzero defaults
	amazon, err := registry.BySourceName(Amazon)
	require.NoError(t, err)
	require.False(t, amazon.OffersEnabled)
	require.EqualValues(t, 0, amazon.CPC)

	// keys the override file omits keep their builtin values
	require.Equal(t, "Amazon", amazon.Name)
	require.Equal(t, time.Hour, amazon.OfferTTL)
	require.True(t, amazon.OfferAffiliate)

	shopzilla, err := registry.BySourceName(Shopzilla)
	require.NoError(t, err)
	require.True(t, shopzilla.OffersEnabled)
}

func TestLoadRegistryMissingFile(t *testing.T) {
	registry, err := LoadRegistry(filepath.Join(t.TempDir(), "sources.json5"))
	require.NoError(t, err)

	amazon, err := registry.BySourceName(Amazon)
	require.NoError(t, err)
	require.True(t, amazon.OffersEnabled)
}

func TestThrottleHonorsCancellation(t *testing.T) {
	source := newSource(Policy{Keyname: "SLOW", BatchFetchDelay: time.Hour})

	// first wait consumes the initial token
	require.NoError(t, source.Throttle(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*10)
	defer cancel()
	require.Error(t, source.Throttle(ctx))
}
