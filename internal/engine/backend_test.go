package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	relayerAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	userAddr      = common.HexToAddress("0x2000000000000000000000000000000000000002")
	recipientAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")
	usdcAddr      = common.HexToAddress("0x4000000000000000000000000000000000000004")
	usdtAddr      = common.HexToAddress("0x5000000000000000000000000000000000000005")
	wethAddr      = common.HexToAddress("0x6000000000000000000000000000000000000006")
	routerAddr    = common.HexToAddress("0x7000000000000000000000000000000000000007")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func usdc(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e6))
}

type sentTx struct {
	to    common.Address
	value *big.Int
	data  []byte
	hash  common.Hash
}

// fakeBackend simulates a chain by interpreting the calldata of sent
// transactions against in-memory balances. Receipts are available
// immediately after SendTransaction.
type fakeBackend struct {
	mu        sync.Mutex
	relayer   common.Address
	chainID   *big.Int
	gasPrice  *big.Int
	native    map[common.Address]*big.Int
	balances  map[common.Address]map[common.Address]*big.Int
	allowance map[string]*big.Int
	receipts  map[common.Hash]*types.Receipt
	txs       map[common.Hash]*types.Transaction
	pendingTx map[common.Hash]bool
	stalled   map[common.Hash]bool
	sent      []sentTx
	seq       int64

	sendErr         error           // next SendTransaction fails with this once
	revertSelectors map[string]bool // txs with these selectors mine with failed status
	stallSelectors  map[string]bool // txs with these selectors never get a receipt
	swapOut         func(amountIn *big.Int) *big.Int
	onSend          func()
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{
		relayer:         relayerAddr,
		chainID:         big.NewInt(1337),
		gasPrice:        big.NewInt(1_000_000_000),
		native:          make(map[common.Address]*big.Int),
		balances:        make(map[common.Address]map[common.Address]*big.Int),
		allowance:       make(map[string]*big.Int),
		receipts:        make(map[common.Hash]*types.Receipt),
		txs:             make(map[common.Hash]*types.Transaction),
		pendingTx:       make(map[common.Hash]bool),
		stalled:         make(map[common.Hash]bool),
		revertSelectors: make(map[string]bool),
		stallSelectors:  make(map[string]bool),
		swapOut:         func(in *big.Int) *big.Int { return new(big.Int).Set(in) },
	}
	b.native[relayerAddr] = eth(10)
	return b
}

func (b *fakeBackend) setNative(addr common.Address, v *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.native[addr] = new(big.Int).Set(v)
}

func (b *fakeBackend) setToken(token, holder common.Address, v *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[token] == nil {
		b.balances[token] = make(map[common.Address]*big.Int)
	}
	b.balances[token][holder] = new(big.Int).Set(v)
}

func (b *fakeBackend) setAllowance(token, owner, spender common.Address, v *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowance[allowKey(token, owner, spender)] = new(big.Int).Set(v)
}

func (b *fakeBackend) nativeOf(addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.nativeLocked(addr))
}

func (b *fakeBackend) tokenOf(token, holder common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.tokenLocked(token, holder))
}

func (b *fakeBackend) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func (b *fakeBackend) sentAt(i int) sentTx {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[i]
}

func allowKey(token, owner, spender common.Address) string {
	return token.Hex() + ":" + owner.Hex() + ":" + spender.Hex()
}

func (b *fakeBackend) nativeLocked(addr common.Address) *big.Int {
	if v, ok := b.native[addr]; ok {
		return v
	}
	return big.NewInt(0)
}

func (b *fakeBackend) tokenLocked(token, holder common.Address) *big.Int {
	if m, ok := b.balances[token]; ok {
		if v, ok := m[holder]; ok {
			return v
		}
	}
	return big.NewInt(0)
}

func (b *fakeBackend) allowanceLocked(token, owner, spender common.Address) *big.Int {
	if v, ok := b.allowance[allowKey(token, owner, spender)]; ok {
		return v
	}
	return big.NewInt(0)
}

// ChainBackend implementation

func (b *fakeBackend) RelayerAddress() common.Address { return b.relayer }
func (b *fakeBackend) ChainID() *big.Int              { return b.chainID }
func (b *fakeBackend) Close()                         {}

func (b *fakeBackend) NativeBalance(_ context.Context, addr common.Address) (*big.Int, error) {
	return b.nativeOf(addr), nil
}

func (b *fakeBackend) GasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *fakeBackend) ReadContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}
	switch hex.EncodeToString(data[:4]) {
	case "70a08231": // balanceOf(owner)
		owner := common.BytesToAddress(data[16:36])
		return common.LeftPadBytes(b.tokenLocked(to, owner).Bytes(), 32), nil
	case "dd62ed3e": // allowance(owner, spender)
		owner := common.BytesToAddress(data[16:36])
		spender := common.BytesToAddress(data[48:68])
		return common.LeftPadBytes(b.allowanceLocked(to, owner, spender).Bytes(), 32), nil
	}
	return nil, fmt.Errorf("unexpected read selector %x", data[:4])
}

func (b *fakeBackend) SendTransaction(_ context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if b.onSend != nil {
		b.onSend()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sendErr != nil {
		err := b.sendErr
		b.sendErr = nil
		return common.Hash{}, err
	}

	b.seq++
	hash := common.BigToHash(big.NewInt(b.seq))
	b.sent = append(b.sent, sentTx{
		to:    to,
		value: new(big.Int).Set(value),
		data:  append([]byte(nil), data...),
		hash:  hash,
	})

	sel := ""
	if len(data) >= 4 {
		sel = hex.EncodeToString(data[:4])
	}

	if b.stallSelectors[sel] {
		b.stalled[hash] = true
		return hash, nil
	}

	status := types.ReceiptStatusSuccessful
	if b.revertSelectors[sel] {
		status = types.ReceiptStatusFailed
	} else if err := b.applyLocked(to, value, data, sel); err != nil {
		status = types.ReceiptStatusFailed
	}

	b.receipts[hash] = &types.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: big.NewInt(b.seq),
		GasUsed:     21000,
	}
	return hash, nil
}

// applyLocked mutates balances the way the referenced contract would
func (b *fakeBackend) applyLocked(to common.Address, value *big.Int, data []byte, sel string) error {
	switch {
	case len(data) == 0:
		return b.moveNativeLocked(b.relayer, to, value)

	case sel == "23b872dd": // transferFrom(from, to, amount)
		from := common.BytesToAddress(data[16:36])
		dst := common.BytesToAddress(data[48:68])
		amt := new(big.Int).SetBytes(data[68:100])
		if err := b.moveTokenLocked(to, from, dst, amt); err != nil {
			return err
		}
		b.spendAllowanceLocked(to, from, b.relayer, amt)
		return nil

	case sel == "a9059cbb": // transfer(to, amount), sender is the relayer
		dst := common.BytesToAddress(data[16:36])
		amt := new(big.Int).SetBytes(data[36:68])
		return b.moveTokenLocked(to, b.relayer, dst, amt)

	case sel == "095ea7b3": // approve(spender, amount), owner is the relayer
		spender := common.BytesToAddress(data[16:36])
		amt := new(big.Int).SetBytes(data[36:68])
		b.allowance[allowKey(to, b.relayer, spender)] = amt
		return nil

	case sel == "d0e30db0": // deposit(), wraps the tx value
		if err := b.subNativeLocked(b.relayer, value); err != nil {
			return err
		}
		b.addTokenLocked(to, b.relayer, value)
		return nil

	case sel == "2e1a7d4d": // withdraw(wad)
		amt := new(big.Int).SetBytes(data[4:36])
		cur := b.tokenLocked(to, b.relayer)
		if cur.Cmp(amt) < 0 {
			return errors.New("wrapped balance too low")
		}
		if b.balances[to] == nil {
			b.balances[to] = make(map[common.Address]*big.Int)
		}
		b.balances[to][b.relayer] = new(big.Int).Sub(cur, amt)
		b.addNativeLocked(b.relayer, amt)
		return nil

	case sel == "04e45aaf": // exactInputSingle(params)
		tokenIn := common.BytesToAddress(data[16:36])
		tokenOut := common.BytesToAddress(data[48:68])
		recipient := common.BytesToAddress(data[112:132])
		amountIn := new(big.Int).SetBytes(data[132:164])
		minOut := new(big.Int).SetBytes(data[164:196])

		out := b.swapOut(amountIn)
		if out.Cmp(minOut) < 0 {
			return errors.New("too little received")
		}
		if err := b.moveTokenLocked(tokenIn, b.relayer, to, amountIn); err != nil {
			return err
		}
		b.addTokenLocked(tokenOut, recipient, out)
		return nil
	}
	return nil
}

func (b *fakeBackend) moveNativeLocked(from, to common.Address, v *big.Int) error {
	if err := b.subNativeLocked(from, v); err != nil {
		return err
	}
	b.addNativeLocked(to, v)
	return nil
}

func (b *fakeBackend) subNativeLocked(addr common.Address, v *big.Int) error {
	cur := b.nativeLocked(addr)
	if cur.Cmp(v) < 0 {
		return errors.New("native balance too low")
	}
	b.native[addr] = new(big.Int).Sub(cur, v)
	return nil
}

func (b *fakeBackend) addNativeLocked(addr common.Address, v *big.Int) {
	b.native[addr] = new(big.Int).Add(b.nativeLocked(addr), v)
}

func (b *fakeBackend) moveTokenLocked(token, from, to common.Address, v *big.Int) error {
	cur := b.tokenLocked(token, from)
	if cur.Cmp(v) < 0 {
		return errors.New("token balance too low")
	}
	if b.balances[token] == nil {
		b.balances[token] = make(map[common.Address]*big.Int)
	}
	b.balances[token][from] = new(big.Int).Sub(cur, v)
	b.addTokenLocked(token, to, v)
	return nil
}

func (b *fakeBackend) addTokenLocked(token, holder common.Address, v *big.Int) {
	if b.balances[token] == nil {
		b.balances[token] = make(map[common.Address]*big.Int)
	}
	b.balances[token][holder] = new(big.Int).Add(b.tokenLocked(token, holder), v)
}

// maxAllowance mirrors an unlimited on-chain approval
var maxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func (b *fakeBackend) spendAllowanceLocked(token, owner, spender common.Address, v *big.Int) {
	cur := b.allowanceLocked(token, owner, spender)
	if cur.Cmp(maxAllowance) >= 0 {
		return
	}
	left := new(big.Int).Sub(cur, v)
	if left.Sign() < 0 {
		left = big.NewInt(0)
	}
	b.allowance[allowKey(token, owner, spender)] = left
}

func (b *fakeBackend) WaitForReceipt(_ context.Context, h common.Hash, _ time.Duration) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stalled[h] {
		return nil, fmt.Errorf("timeout waiting for transaction %s", h.Hex())
	}
	r, ok := b.receipts[h]
	if !ok {
		return nil, fmt.Errorf("timeout waiting for transaction %s", h.Hex())
	}
	return r, nil
}

func (b *fakeBackend) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, ok := b.txs[h]
	if !ok {
		return nil, false, fmt.Errorf("not found")
	}
	return tx, b.pendingTx[h], nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.receipts[h]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return r, nil
}

// addMinedTx registers an externally mined transaction, as deposits are
func (b *fakeBackend) addMinedTx(tx *types.Transaction, status uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.txs[tx.Hash()] = tx
	b.receipts[tx.Hash()] = &types.Receipt{
		Status: status,
		TxHash: tx.Hash(),
	}
}

func (b *fakeBackend) addPendingTx(tx *types.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.txs[tx.Hash()] = tx
	b.pendingTx[tx.Hash()] = true
}
