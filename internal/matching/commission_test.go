package matching

import (
	"testing"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

func TestIBKRNetherlandsFixedUSD(t *testing.T) {
	tests := []struct {
		name  string
		price string
		qty   string
		want  string
	}{
		{name: "zero value", price: "0", qty: "10", want: "0"},
		{name: "minimum applies", price: "10", qty: "10", want: "1.7"},
		{name: "rate applies", price: "100", qty: "100", want: "5"},
		{name: "maximum applies", price: "1000", qty: "1000", want: "39"},
	}
	model := IBKRNetherlandsFixedUSD()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := model.Fee("ASML", types.SideTypeBuy, decimal.RequireFromString(tt.price), decimal.RequireFromString(tt.qty))
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Fee() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIBKRForexTier1HasNoCap(t *testing.T) {
	got := IBKRForexTier1().Fee("EURUSD", types.SideTypeSell, decimal.NewFromInt(1), decimal.NewFromInt(1_000_000_000))
	if !got.Equal(decimal.NewFromInt(20000)) {
		t.Errorf("Fee() = %s, want 20000", got)
	}
}
