package chains

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tokenrelay/internal/config"
)

// Feature identifies a relay capability a chain may support
type Feature string

const (
	FeatureTransfer   Feature = "transfer"
	FeatureSwap       Feature = "swap"
	FeatureNativeSwap Feature = "native_swap"
)

// Token describes an ERC-20 token supported on a chain
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
	Stable   bool
}

// Chain holds everything the relay needs to know about one EVM chain. It is
// built once at startup and read-only afterwards.
type Chain struct {
	Name             string
	ChainID          *big.Int
	RPCEndpoint      string
	ExplorerBaseURL  string
	Router           common.Address
	WrappedNative    Token
	GasThreshold     *big.Int // minimum relayer native balance to accept work
	LowBalanceAlert  *big.Int
	SponsorThreshold *big.Int // users below this native balance qualify for funding
	SponsorAmount    *big.Int // native amount sent per funding

	tokens   map[string]Token
	features map[Feature]bool
}

// Token looks up a configured token by symbol, case-insensitively
func (c *Chain) Token(symbol string) (Token, bool) {
	t, ok := c.tokens[strings.ToUpper(symbol)]
	return t, ok
}

// Tokens returns the configured token symbols in sorted order
func (c *Chain) Tokens() []string {
	symbols := make([]string, 0, len(c.tokens))
	for s := range c.tokens {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Supports reports whether the chain has a feature enabled
func (c *Chain) Supports(f Feature) bool {
	return c.features[f]
}

// Features returns the enabled features in sorted order
func (c *Chain) Features() []string {
	fs := make([]string, 0, len(c.features))
	for f := range c.features {
		fs = append(fs, string(f))
	}
	sort.Strings(fs)
	return fs
}

// ExplorerTx returns the explorer URL for a transaction hash
func (c *Chain) ExplorerTx(txHash string) string {
	return strings.TrimSuffix(c.ExplorerBaseURL, "/") + "/tx/" + txHash
}

// Registry holds all configured chains keyed by lowercase name
type Registry struct {
	chains map[string]*Chain
}

// Get returns the chain with the given name, case-insensitively
func (r *Registry) Get(name string) (*Chain, bool) {
	c, ok := r.chains[strings.ToLower(name)]
	return c, ok
}

// Names returns the configured chain names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.chains))
	for n := range r.chains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every configured chain, ordered by name
func (r *Registry) All() []*Chain {
	out := make([]*Chain, 0, len(r.chains))
	for _, n := range r.Names() {
		out = append(out, r.chains[n])
	}
	return out
}

// FromConfig validates the chain configuration and builds the registry
func FromConfig(cfg *config.Config) (*Registry, error) {
	reg := &Registry{chains: make(map[string]*Chain)}

	for name, cc := range cfg.Chains {
		chain, err := buildChain(cc)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", name, err)
		}
		reg.chains[strings.ToLower(name)] = chain
	}

	return reg, nil
}

func buildChain(cc config.ChainConfig) (*Chain, error) {
	if cc.ChainID <= 0 {
		return nil, fmt.Errorf("invalid chain ID %d", cc.ChainID)
	}

	chain := &Chain{
		Name:            strings.ToLower(cc.Name),
		ChainID:         big.NewInt(cc.ChainID),
		RPCEndpoint:     cc.RPCEndpoint,
		ExplorerBaseURL: cc.ExplorerBaseURL,
		tokens:          make(map[string]Token),
		features:        make(map[Feature]bool),
	}

	for _, tc := range cc.Tokens {
		if !common.IsHexAddress(tc.Address) {
			return nil, fmt.Errorf("token %s: invalid address %q", tc.Symbol, tc.Address)
		}
		if tc.Decimals < 0 || tc.Decimals > 36 {
			return nil, fmt.Errorf("token %s: invalid decimals %d", tc.Symbol, tc.Decimals)
		}
		symbol := strings.ToUpper(tc.Symbol)
		if _, dup := chain.tokens[symbol]; dup {
			return nil, fmt.Errorf("token %s configured twice", symbol)
		}
		chain.tokens[symbol] = Token{
			Symbol:   symbol,
			Address:  common.HexToAddress(tc.Address),
			Decimals: tc.Decimals,
			Stable:   tc.Stable,
		}
	}

	for _, f := range cc.Features {
		switch Feature(strings.ToLower(f)) {
		case FeatureTransfer:
			chain.features[FeatureTransfer] = true
		case FeatureSwap:
			chain.features[FeatureSwap] = true
		case FeatureNativeSwap:
			chain.features[FeatureNativeSwap] = true
		default:
			return nil, fmt.Errorf("unknown feature %q", f)
		}
	}

	if chain.Supports(FeatureSwap) || chain.Supports(FeatureNativeSwap) {
		if !common.IsHexAddress(cc.RouterAddress) {
			return nil, fmt.Errorf("swap enabled but router address %q is invalid", cc.RouterAddress)
		}
		chain.Router = common.HexToAddress(cc.RouterAddress)

		wrapped, ok := chain.Token(cc.WrappedNative)
		if !ok {
			return nil, fmt.Errorf("swap enabled but wrapped native token %q is not configured", cc.WrappedNative)
		}
		chain.WrappedNative = wrapped
	}

	var err error
	if chain.GasThreshold, err = parseWei(cc.GasThresholdWei, "gas threshold"); err != nil {
		return nil, err
	}
	if chain.LowBalanceAlert, err = parseWei(cc.LowBalanceWei, "low balance alert"); err != nil {
		return nil, err
	}
	if chain.SponsorThreshold, err = parseWei(cc.SponsorThresholdWei, "sponsor threshold"); err != nil {
		return nil, err
	}
	if chain.SponsorAmount, err = parseWei(cc.SponsorAmountWei, "sponsor amount"); err != nil {
		return nil, err
	}

	return chain, nil
}

func parseWei(s, what string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s value %q", what, s)
	}
	return v, nil
}
