package invoice

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func decf(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestTagSubtotalPesaje(t *testing.T) {
	tag := Pesaje(decf(5), decf(2), decf(1))
	require.True(t, tag.Subtotal.Equal(decf(11)), "got %s", tag.Subtotal)
}

func TestTagSubtotalNominalIgnoresWeightFields(t *testing.T) {
	tag := Tag{Kind: TagNominal, Weight: decf(5), CostPerLb: decf(2), FixedCost: decf(7)}
	require.True(t, TagSubtotal(tag).Equal(decf(7)))
}

func TestTagSubtotalPartialFieldsTreatedAsZero(t *testing.T) {
	require.True(t, TagSubtotal(Tag{Kind: TagPesaje}).IsZero())
	require.True(t, TagSubtotal(Tag{Kind: TagPesaje, Weight: decf(3)}).IsZero())
	require.True(t, TagSubtotal(Tag{Kind: TagNominal}).IsZero())
}

func TestNormalizeResetsIrrelevantFields(t *testing.T) {
	tag := Tag{Kind: TagNominal, Weight: decf(5), CostPerLb: decf(2), FixedCost: decf(7)}
	normalized := tag.Normalize()
	require.True(t, normalized.Weight.IsZero())
	require.True(t, normalized.CostPerLb.IsZero())
	require.True(t, normalized.Subtotal.Equal(decf(7)))
}

func TestTotalAggregatesAndRounds(t *testing.T) {
	tags := []Tag{
		Pesaje(decf(5), decf(2), decf(1)), // 11
		Nominal(decf(7)),                  // 7
		Nominal(decf(0.005)),              // rounds the grand total up
	}
	require.True(t, Total(tags).Equal(decf(18.01)), "got %s", Total(tags))
}

func TestTotalEmpty(t *testing.T) {
	require.True(t, Total(nil).IsZero())
	require.True(t, Total([]Tag{}).IsZero())
}

func TestValidateTag(t *testing.T) {
	cases := []struct {
		name    string
		tag     Tag
		wantErr bool
	}{
		{name: "valid pesaje", tag: Pesaje(decf(5), decf(2), decf(0))},
		{name: "valid nominal", tag: Nominal(decf(7))},
		{name: "pesaje zero weight", tag: Pesaje(decf(0), decf(2), decf(1)), wantErr: true},
		{name: "pesaje zero cost per lb", tag: Pesaje(decf(5), decf(0), decf(1)), wantErr: true},
		{name: "nominal zero fixed cost", tag: Nominal(decf(0)), wantErr: true},
		{name: "unknown kind", tag: Tag{Kind: "other", FixedCost: decf(1)}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTag(tc.tag)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCheckPrecision(t *testing.T) {
	require.NoError(t, CheckPrecision(decf(18.01)))
	require.NoError(t, CheckPrecision(decf(18)))
	require.Error(t, CheckPrecision(decf(18.005)))
	// The aggregate calculator always emits a precision-safe value.
	require.NoError(t, CheckPrecision(Total([]Tag{Nominal(decf(0.005)), Pesaje(decf(1.111), decf(3), decf(0))})))
}
