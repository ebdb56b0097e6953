package fees

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"
)

// Config holds the fee policy. Rates are chain-agnostic. MinFee and MaxFee
// are denominated in the fee token's smallest unit (FeeTokenDecimals) and
// scale to the charged token's decimals at calculation time. A nil or zero
// MaxFee disables the upper clamp.
type Config struct {
	SameChainBps     int64
	CrossChainBps    int64
	MinFee           *big.Int
	MaxFee           *big.Int
	FeeTokenDecimals int
}

// Calculator computes relay service fees
type Calculator struct {
	cfg    Config
	logger *zap.Logger
}

// NewCalculator creates a new fee calculator
func NewCalculator(cfg Config, logger *zap.Logger) *Calculator {
	return &Calculator{
		cfg:    cfg,
		logger: logger,
	}
}

// Fee calculates the service fee for an amount in base units of a token
// with tokenDecimals: amount * bps / 10000, clamped to [MinFee, MaxFee].
// The cross-chain rate applies to quotes only; execution is same-chain.
func (c *Calculator) Fee(amount *big.Int, tokenDecimals int, crossChain bool) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	bps := c.cfg.SameChainBps
	if crossChain {
		bps = c.cfg.CrossChainBps
	}

	fee := new(big.Int).Mul(amount, big.NewInt(bps))
	fee.Quo(fee, big.NewInt(10000))

	minFee, maxFee := c.clamps(tokenDecimals)
	if minFee != nil && fee.Cmp(minFee) < 0 {
		fee.Set(minFee)
	}
	if maxFee != nil && maxFee.Sign() > 0 && fee.Cmp(maxFee) > 0 {
		fee.Set(maxFee)
	}

	c.logger.Debug("Calculated relay fee",
		zap.String("amount", amount.String()),
		zap.Int64("bps", bps),
		zap.Bool("cross_chain", crossChain),
		zap.String("fee", fee.String()))

	return fee, nil
}

// Split returns the fee and the net amount forwarded to the recipient.
// The two always sum to the input amount; a net of zero or less is an error.
func (c *Calculator) Split(amount *big.Int, tokenDecimals int, crossChain bool) (*big.Int, *big.Int, error) {
	fee, err := c.Fee(amount, tokenDecimals, crossChain)
	if err != nil {
		return nil, nil, err
	}

	net := new(big.Int).Sub(amount, fee)
	if net.Sign() <= 0 {
		return nil, nil, fmt.Errorf("net amount would be zero or negative after fees")
	}

	return fee, net, nil
}

// clamps scales the configured clamp values from the fee token's decimals
// to the charged token's decimals. No price conversion is involved.
func (c *Calculator) clamps(tokenDecimals int) (*big.Int, *big.Int) {
	diff := tokenDecimals - c.cfg.FeeTokenDecimals
	return scaleClamp(c.cfg.MinFee, diff), scaleClamp(c.cfg.MaxFee, diff)
}

func scaleClamp(v *big.Int, diff int) *big.Int {
	if v == nil {
		return nil
	}
	scaled := new(big.Int).Set(v)
	if diff > 0 {
		scaled.Mul(scaled, pow10(diff))
	} else if diff < 0 {
		scaled.Quo(scaled, pow10(-diff))
	}
	return scaled
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
