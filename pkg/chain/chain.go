// Package chain is the execution substrate the betting contracts run on.
// It totally orders state-changing calls, custodies native value, and keeps
// an append-only log of contract events for off-chain observers.
//
// A transaction either completes against the current state or aborts with
// every balance change, contract mutation and log it produced rolled back.
package chain

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Contract is any value deployed on the chain. Contracts interact with the
// chain only through the *Ctx handed to their methods.
type Contract interface{}

// Initializer is implemented by contracts that run a constructor at deploy time.
type Initializer interface {
	Init(ctx *Ctx) error
}

// Payable is implemented by contracts that accept plain value transfers.
type Payable interface {
	Receive(ctx *Ctx) error
}

// Named is implemented by contracts that label their logs.
type Named interface {
	ContractName() string
}

// Option configures a Chain.
type Option func(*Chain)

// WithClock sets the source of block time.
func WithClock(clock func() time.Time) Option {
	return func(c *Chain) {
		c.clock = clock
	}
}

// Chain is a single-node ledger with serial transaction semantics.
type Chain struct {
	mu        sync.RWMutex
	clock     func() time.Time
	offset    time.Duration
	balances  map[common.Address]*big.Int
	contracts map[common.Address]Contract
	nonces    map[common.Address]uint64
	logs      []Log
	txCount   uint64

	// Delivery runs outside mu. Tickets handed out at commit keep it in
	// commit order.
	deliverMu   sync.Mutex
	deliverCond *sync.Cond
	nextTicket  uint64
	serving     uint64
	subsMu      sync.RWMutex
	subs      map[int]func(Log)
	subSeq    int
}

// New creates an empty chain.
func New(opts ...Option) *Chain {
	c := &Chain{
		clock:     time.Now,
		balances:  make(map[common.Address]*big.Int),
		contracts: make(map[common.Address]Contract),
		nonces:    make(map[common.Address]uint64),
		subs:      make(map[int]func(Log)),
	}
	c.deliverCond = sync.NewCond(&c.deliverMu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current block time.
func (c *Chain) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now()
}

func (c *Chain) now() time.Time {
	return c.clock().Add(c.offset).Truncate(time.Second)
}

// SetTime pins block time to t.
func (c *Chain) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = func() time.Time { return t }
	c.offset = 0
}

// AdvanceTime moves block time forward by d.
func (c *Chain) AdvanceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Fund credits addr with wei out of thin air (genesis allocation).
func (c *Chain) Fund(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(addr, wei)
}

// Balance returns the native balance of addr.
func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(big.Int).Set(c.balanceOf(addr))
}

// ContractAt returns the contract deployed at addr.
func (c *Chain) ContractAt(addr common.Address) (Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contract, ok := c.contracts[addr]
	return contract, ok
}

// Logs returns every committed log in order.
func (c *Chain) Logs() []Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	logs := make([]Log, len(c.logs))
	copy(logs, c.logs)
	return logs
}

// Subscribe registers fn to receive every log committed from now on.
// fn runs after the emitting transaction released the chain and must not
// submit transactions synchronously. The returned func unsubscribes.
func (c *Chain) Subscribe(fn func(Log)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subSeq++
	id := c.subSeq
	c.subs[id] = fn
	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

// Deploy registers contract at an address derived from the deployer and its
// deploy nonce, running the contract's Init as the deployer.
func (c *Chain) Deploy(deployer common.Address, contract Contract) (common.Address, *Receipt, error) {
	c.mu.Lock()
	if deployer == (common.Address{}) {
		c.mu.Unlock()
		return common.Address{}, nil, errZeroSender
	}
	nonce := c.nonces[deployer]
	addr := crypto.CreateAddress(deployer, nonce)
	c.nonces[deployer] = nonce + 1
	c.contracts[addr] = contract

	tx := c.begin(deployer, addr, new(big.Int), false)
	tx.OnRevert(func() {
		delete(c.contracts, addr)
		c.nonces[deployer] = nonce
	})

	var err error
	if init, ok := contract.(Initializer); ok {
		err = guard(func() error { return init.Init(tx) })
	}
	receipt, err := c.finish(tx, err)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, receipt, nil
}

// Transact executes fn as a state-changing call from `from` to `to`,
// attaching value. fn may be nil for a plain value transfer.
func (c *Chain) Transact(from, to common.Address, value *big.Int, fn func(ctx *Ctx) error) (*Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	c.mu.Lock()
	if from == (common.Address{}) {
		c.mu.Unlock()
		return nil, errZeroSender
	}

	ctx := c.begin(from, to, value, false)
	err := ctx.moveValue(from, to, value)
	if err == nil && fn != nil {
		err = guard(func() error { return fn(ctx) })
	}
	return c.finish(ctx, err)
}

// guard runs contract code, turning a panic into a revert so the
// transaction is rolled back and the write lock released.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Revert(nil, fmt.Sprintf("Execution panicked: %v", r))
		}
	}()
	return fn()
}

// Send transfers value between two accounts.
func (c *Chain) Send(from, to common.Address, value *big.Int) (*Receipt, error) {
	return c.Transact(from, to, value, func(ctx *Ctx) error {
		if contract, ok := ctx.Contract(to); ok {
			payable, ok := contract.(Payable)
			if !ok {
				return errTransferRejected
			}
			return payable.Receive(ctx)
		}
		return nil
	})
}

// Call executes fn as a read-only call from `from` against `to`.
func (c *Chain) Call(from, to common.Address, fn func(ctx *Ctx) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ctx := &Ctx{
		chain:    c,
		sender:   from,
		this:     to,
		origin:   from,
		value:    new(big.Int),
		readOnly: true,
		journal:  &journal{},
		time:     c.now(),
	}
	return fn(ctx)
}

func (c *Chain) begin(from, to common.Address, value *big.Int, readOnly bool) *Ctx {
	snapshot := make(map[common.Address]*big.Int, len(c.balances))
	for addr, bal := range c.balances {
		snapshot[addr] = new(big.Int).Set(bal)
	}
	return &Ctx{
		chain:    c,
		sender:   from,
		this:     to,
		origin:   from,
		value:    new(big.Int).Set(value),
		readOnly: readOnly,
		journal:  &journal{balances: snapshot},
		time:     c.now(),
		txHash:   c.nextTxHash(from, to, value),
	}
}

// finish commits or rolls back the transaction and releases the write lock.
func (c *Chain) finish(ctx *Ctx, err error) (*Receipt, error) {
	j := ctx.journal
	if err != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		c.balances = j.balances
		c.mu.Unlock()
		return nil, err
	}

	c.txCount++
	for i := range j.logs {
		j.logs[i].Index = uint64(len(c.logs))
		c.logs = append(c.logs, j.logs[i])
	}
	receipt := &Receipt{
		TxHash:    ctx.txHash,
		From:      ctx.origin,
		To:        ctx.this,
		Value:     new(big.Int).Set(ctx.value),
		Logs:      j.logs,
		BlockTime: ctx.time,
	}

	if len(j.logs) == 0 {
		c.mu.Unlock()
		return receipt, nil
	}
	ticket := c.nextTicket
	c.nextTicket++
	c.mu.Unlock()

	c.deliverInTurn(ticket, j.logs)
	return receipt, nil
}

// deliverInTurn waits for every earlier commit to finish delivering, then
// hands logs to subscribers. The chain is not locked meanwhile.
func (c *Chain) deliverInTurn(ticket uint64, logs []Log) {
	c.deliverMu.Lock()
	for c.serving != ticket {
		c.deliverCond.Wait()
	}
	c.deliverMu.Unlock()

	defer func() {
		c.deliverMu.Lock()
		c.serving++
		c.deliverCond.Broadcast()
		c.deliverMu.Unlock()
	}()
	c.deliver(logs)
}

func (c *Chain) deliver(logs []Log) {
	if len(logs) == 0 {
		return
	}
	c.subsMu.RLock()
	subs := make([]func(Log), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.RUnlock()

	for _, l := range logs {
		for _, fn := range subs {
			fn(l)
		}
	}
}

func (c *Chain) nextTxHash(from, to common.Address, value *big.Int) common.Hash {
	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, c.txCount)
	return crypto.Keccak256Hash(
		from.Bytes(),
		to.Bytes(),
		math.U256Bytes(new(big.Int).Set(value)),
		seq,
	)
}

func (c *Chain) balanceOf(addr common.Address) *big.Int {
	if bal, ok := c.balances[addr]; ok {
		return bal
	}
	return new(big.Int)
}

func (c *Chain) credit(addr common.Address, wei *big.Int) {
	c.balances[addr] = new(big.Int).Add(c.balanceOf(addr), wei)
}

func (c *Chain) debit(addr common.Address, wei *big.Int) bool {
	bal := c.balanceOf(addr)
	if bal.Cmp(wei) < 0 {
		return false
	}
	c.balances[addr] = new(big.Int).Sub(bal, wei)
	return true
}
