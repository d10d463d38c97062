package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimals of the chain's native currency
const NativeDecimals = 18

// ToBaseUnits converts a human amount (e.g. "12.5" tokens) into integer base units
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount %s is negative", amount)
	}

	scaled := amount.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}

	value := scaled.BigInt()
	if value.Cmp(math.MaxBig256) > 0 {
		return nil, fmt.Errorf("amount %s does not fit in uint256", amount)
	}
	return value, nil
}

// FromBaseUnits converts integer base units back into a human amount
func FromBaseUnits(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}
