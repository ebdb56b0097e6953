// Package amount converts between the decimal strings used on the API
// surface and the base-unit big integers used on chain.
package amount

import (
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// ParseUnits converts a decimal string into base units for a token with the
// given number of decimals. The amount must be strictly positive and must
// not carry more fractional digits than the token supports.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	dec, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid decimal amount %q: %w", s, err)
	}
	if !dec.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %q", s)
	}

	shifted := dec.MulInt(sdkmath.NewIntWithDecimal(1, decimals))
	truncated := shifted.TruncateInt()
	if !shifted.Equal(sdkmath.LegacyNewDecFromInt(truncated)) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}

	return truncated.BigInt(), nil
}

// FormatUnits renders base units as a decimal string, trimming trailing
// zeros from the fractional part.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	if decimals == 0 {
		return v.String()
	}

	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo, rem := new(big.Int).QuoRem(v, div, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}

	frac := rem.String()
	if len(frac) < decimals {
		frac = strings.Repeat("0", decimals-len(frac)) + frac
	}
	frac = strings.TrimRight(frac, "0")

	return quo.String() + "." + frac
}
