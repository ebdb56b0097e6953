package fees

import (
	"math/big"
	"testing"

	"go.uber.org/zap"
)

func defaultConfig() Config {
	return Config{
		SameChainBps:     50,
		CrossChainBps:    150,
		MinFee:           big.NewInt(500_000),    // 0.5 in 6-decimal units
		MaxFee:           big.NewInt(10_000_000), // 10 in 6-decimal units
		FeeTokenDecimals: 6,
	}
}

func TestCalculator_Fee(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name        string
		amount      int64
		decimals    int
		crossChain  bool
		cfg         Config
		expectedFee int64
		expectError bool
	}{
		{
			name:        "100 tokens at 50 bps hits min exactly",
			amount:      100_000_000, // 100
			decimals:    6,
			cfg:         defaultConfig(),
			expectedFee: 500_000, // 0.5
		},
		{
			name:        "large amount clamps at max",
			amount:      10_000_000_000, // 10000
			decimals:    6,
			cfg:         defaultConfig(),
			expectedFee: 10_000_000, // 10, not 50
		},
		{
			name:        "small amount clamps at min",
			amount:      10_000_000, // 10, 50 bps = 0.05
			decimals:    6,
			cfg:         defaultConfig(),
			expectedFee: 500_000, // 0.5
		},
		{
			name:        "mid-range amount is pure bps",
			amount:      1_000_000_000, // 1000
			decimals:    6,
			cfg:         defaultConfig(),
			expectedFee: 5_000_000, // 5
		},
		{
			name:        "cross-chain rate is higher",
			amount:      1_000_000_000, // 1000
			decimals:    6,
			crossChain:  true,
			cfg:         defaultConfig(),
			expectedFee: 10_000_000, // 15 clamped to max 10
		},
		{
			name:        "cross-chain mid-range",
			amount:      200_000_000, // 200 at 150 bps = 3
			decimals:    6,
			crossChain:  true,
			cfg:         defaultConfig(),
			expectedFee: 3_000_000,
		},
		{
			name:     "18-decimal token scales clamps",
			amount:   2_000_000_000_000_000, // 0.002 of an 18-decimal token
			decimals: 18,
			cfg:      defaultConfig(),
			// 50 bps = 1e13, below min 0.5 scaled to 5e17
			expectedFee: 500_000_000_000_000_000,
		},
		{
			name:     "no max clamp when unset",
			amount:   10_000_000_000,
			decimals: 6,
			cfg: Config{
				SameChainBps:     50,
				MinFee:           big.NewInt(500_000),
				FeeTokenDecimals: 6,
			},
			expectedFee: 50_000_000, // 50, unclamped
		},
		{
			name:        "zero amount rejected",
			amount:      0,
			decimals:    6,
			cfg:         defaultConfig(),
			expectError: true,
		},
		{
			name:        "negative amount rejected",
			amount:      -1,
			decimals:    6,
			cfg:         defaultConfig(),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewCalculator(tt.cfg, logger)

			fee, err := calc.Fee(big.NewInt(tt.amount), tt.decimals, tt.crossChain)

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if fee.Int64() != tt.expectedFee {
				t.Errorf("expected fee %d, got %s", tt.expectedFee, fee.String())
			}
		})
	}
}

func TestCalculator_Split(t *testing.T) {
	logger := zap.NewNop()
	calc := NewCalculator(defaultConfig(), logger)

	tests := []struct {
		name        string
		amount      int64
		expectedFee int64
		expectedNet int64
		expectError bool
	}{
		{
			name:        "100 tokens splits 0.5 and 99.5",
			amount:      100_000_000,
			expectedFee: 500_000,
			expectedNet: 99_500_000,
		},
		{
			name:        "10000 tokens splits 10 and 9990",
			amount:      10_000_000_000,
			expectedFee: 10_000_000,
			expectedNet: 9_990_000_000,
		},
		{
			name:        "amount below min fee rejected",
			amount:      400_000, // 0.4, min fee is 0.5
			expectError: true,
		},
		{
			name:        "amount equal to min fee rejected",
			amount:      500_000,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net, err := calc.Split(big.NewInt(tt.amount), 6, false)

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if fee.Int64() != tt.expectedFee {
				t.Errorf("expected fee %d, got %s", tt.expectedFee, fee.String())
			}
			if net.Int64() != tt.expectedNet {
				t.Errorf("expected net %d, got %s", tt.expectedNet, net.String())
			}

			sum := new(big.Int).Add(fee, net)
			if sum.Int64() != tt.amount {
				t.Errorf("fee %s + net %s != amount %d", fee, net, tt.amount)
			}
		})
	}
}

// Fees must never decrease when the amount increases.
func TestCalculator_FeeMonotonic(t *testing.T) {
	calc := NewCalculator(defaultConfig(), zap.NewNop())

	amounts := []int64{
		1_000_000,      // 1
		100_000_000,    // 100
		500_000_000,    // 500
		1_000_000_000,  // 1000
		2_000_000_000,  // 2000
		10_000_000_000, // 10000
		50_000_000_000, // 50000
	}

	prev := big.NewInt(-1)
	for _, a := range amounts {
		fee, err := calc.Fee(big.NewInt(a), 6, false)
		if err != nil {
			t.Fatalf("Fee(%d): %v", a, err)
		}
		if fee.Cmp(prev) < 0 {
			t.Errorf("fee decreased at amount %d: %s < %s", a, fee, prev)
		}
		prev = fee
	}
}
