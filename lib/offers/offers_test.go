package offers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool {
	return a.Equal(b)
})

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestTotalPrice(t *testing.T) {
	withShipping := Offer{Price: dec("100.00"), Shipping: decp("5.00")}
	require.True(t, withShipping.TotalPrice().Equal(dec("105.00")))

	unknownShipping := Offer{Price: dec("100.00")}
	require.True(t, unknownShipping.TotalPrice().Equal(dec("100.00")))
}

func TestMergeKeepsCheapestPerMerchant(t *testing.T) {
	list := []Offer{
		{MerchantCode: "acme", Price: dec("100.00"), Shipping: decp("5.00")},
		{MerchantCode: "acme", Price: dec("98.00"), Shipping: decp("10.00")},
		{MerchantCode: "other", Price: dec("120.00")},
	}

	merged := Merge(list)

	// 100+5 beats 98+10 on total
	expected := []Offer{
		{MerchantCode: "acme", Price: dec("100.00"), Shipping: decp("5.00")},
		{MerchantCode: "other", Price: dec("120.00")},
	}
	if diff := cmp.Diff(expected, merged, decimalComparer); diff != "" {
		t.Fatalf("unexpected merge result (-want +got):\n%s", diff)
	}
}

func TestMergeTieKeepsFirst(t *testing.T) {
	list := []Offer{
		{MerchantCode: "acme", Price: dec("50.00"), OriginalIndex: 0},
		{MerchantCode: "acme", Price: dec("45.00"), Shipping: decp("5.00"), OriginalIndex: 1},
	}

	merged := Merge(list)
	require.Len(t, merged, 1)
	require.Equal(t, 0, merged[0].OriginalIndex)
}

func TestSortOrder(t *testing.T) {
	list := []Offer{
		{MerchantCode: "c", Price: dec("20.00"), Tier: TierOtherMerchant, OriginalIndex: 2},
		{MerchantCode: "b", Price: dec("20.00"), Tier: TierFeaturedMerchant, OriginalIndex: 5},
		{MerchantCode: "a", Price: dec("10.00"), Tier: TierOtherMerchant, OriginalIndex: 9},
		{MerchantCode: "d", Price: dec("20.00"), Tier: TierFeaturedMerchant, OriginalIndex: 1},
	}

	Sort(list)

	codes := []string{}
	for _, o := range list {
		codes = append(codes, o.MerchantCode)
	}
	require.Equal(t, []string{"a", "d", "b", "c"}, codes)
}

func TestBest(t *testing.T) {
	list := []Offer{
		{MerchantCode: "a", Price: dec("10.00"), Available: true},
		{MerchantCode: "b", Price: dec("8.00"), Available: false},
		{MerchantCode: "c", Price: dec("12.00"), Available: true},
	}

	best, ok := Best(list, 2)
	require.True(t, ok)
	require.Equal(t, "a", best.MerchantCode, "unavailable offers never win")

	_, ok = Best(list, 3)
	require.False(t, ok, "two available offers do not satisfy a minimum of three")

	_, ok = Best(nil, 1)
	require.False(t, ok)
}

func TestBestNoAvailableOffers(t *testing.T) {
	// a minimum of zero must not produce a winner out of nothing
	_, ok := Best(nil, 0)
	require.False(t, ok)

	_, ok = Best([]Offer{
		{MerchantCode: "a", Price: dec("10.00"), Available: false},
	}, 0)
	require.False(t, ok)
}
