package eth

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimals of ether and of DAI.
const EtherDecimals = 18

// ParseUnits converts a decimal string to its integer base-unit amount.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return DecimalToUnits(d, decimals)
}

// DecimalToUnits converts d to base units, rejecting fractional remainders.
func DecimalToUnits(d decimal.Decimal, decimals int32) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %s is negative", d)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", d, decimals)
	}
	return shifted.BigInt(), nil
}

// ParseEther converts an ether amount like "0.25" to wei.
func ParseEther(s string) (*big.Int, error) {
	return ParseUnits(s, EtherDecimals)
}

// MustParseEther is ParseEther for constants; it panics on malformed input.
func MustParseEther(s string) *big.Int {
	wei, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return wei
}

// ToDecimal converts base units to a decimal amount.
func ToDecimal(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}

// FormatEther renders wei as an ether string.
func FormatEther(wei *big.Int) string {
	return ToDecimal(wei, EtherDecimals).String()
}
