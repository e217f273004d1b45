package live

import (
	"github.com/shopspring/decimal"

	"union-live/internal/domain"
)

var (
	basePrice = decimal.RequireFromString("0.50")
	maxPrice  = decimal.RequireFromString("8.00")
)

// PairPrice is the fee to move a pair: the base price doubled once per
// previous swap, capped at the maximum. The cap is reached at four swaps,
// so larger counts short-circuit rather than shifting past 64 bits.
func PairPrice(count int) decimal.Decimal {
	if count < 0 {
		count = 0
	}
	if count >= 4 {
		return maxPrice
	}
	return basePrice.Mul(decimal.NewFromInt(1 << uint(count)))
}

// SwapCost is the charge for exchanging two pairs: the dearer of the two.
func SwapCost(a, b domain.SwapPair) decimal.Decimal {
	pa, pb := PairPrice(a.Count), PairPrice(b.Count)
	if pb.GreaterThan(pa) {
		return pb
	}
	return pa
}

// SwapCostMinor converts the cost to minor currency units for ledger
// arithmetic against integer credit balances.
func SwapCostMinor(a, b domain.SwapPair) int64 {
	return SwapCost(a, b).Mul(decimal.NewFromInt(100)).IntPart()
}
