package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveShopTaxRate(t *testing.T) {
	cases := []struct {
		name string
		shop string
		want int64
	}{
		{name: "shein exact", shop: "Shein", want: 0},
		{name: "shein embedded", shop: "SHEIN Official Store", want: 0},
		{name: "amazon", shop: "Amazon", want: 3},
		{name: "amazon regional", shop: "Amazon México", want: 3},
		{name: "temu", shop: "temu", want: 3},
		{name: "aliexpress", shop: "AliExpress", want: 5},
		{name: "unknown", shop: "Ebay", want: 5},
		{name: "empty", shop: "", want: 5},
		{name: "whitespace only", shop: "   ", want: 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveShopTaxRate(tc.shop)
			require.True(t, got.Equal(dec(tc.want)), "rate for %q: got %s want %d", tc.shop, got, tc.want)
		})
	}
}

func TestResolverOrderSheinWinsOverAmazon(t *testing.T) {
	// A name matching multiple fragments resolves by rule order.
	got := ResolveShopTaxRate("shein via amazon")
	require.True(t, got.IsZero())
}
