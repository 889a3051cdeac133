package chain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ctx is the execution context of one (possibly nested) contract call.
type Ctx struct {
	chain    *Chain
	sender   common.Address
	this     common.Address
	origin   common.Address
	value    *big.Int
	readOnly bool
	journal  *journal
	time     time.Time
	txHash   common.Hash
}

type journal struct {
	undo     []func()
	logs     []Log
	balances map[common.Address]*big.Int
}

// Sender is the immediate caller: an account, or the contract making a nested call.
func (c *Ctx) Sender() common.Address { return c.sender }

// Origin is the account that signed the transaction.
func (c *Ctx) Origin() common.Address { return c.origin }

// This is the address of the contract being executed.
func (c *Ctx) This() common.Address { return c.this }

// Value is the wei attached to this call.
func (c *Ctx) Value() *big.Int { return new(big.Int).Set(c.value) }

// Now is the block time of the transaction.
func (c *Ctx) Now() time.Time { return c.time }

// ReadOnly reports whether state changes are forbidden.
func (c *Ctx) ReadOnly() bool { return c.readOnly }

// OnRevert registers fn to undo a state change if the transaction aborts.
// Undo functions run in reverse registration order.
func (c *Ctx) OnRevert(fn func()) {
	c.journal.undo = append(c.journal.undo, fn)
}

// Mutate guards a state change: it fails in read-only calls and otherwise
// records undo for rollback.
func (c *Ctx) Mutate(undo func()) error {
	if c.readOnly {
		return errReadOnly
	}
	c.OnRevert(undo)
	return nil
}

// Emit appends a log attributed to the executing contract.
func (c *Ctx) Emit(name string, fields Fields) error {
	if c.readOnly {
		return errReadOnly
	}
	contractName := ""
	if contract, ok := c.chain.contracts[c.this]; ok {
		if named, ok := contract.(Named); ok {
			contractName = named.ContractName()
		}
	}
	c.journal.logs = append(c.journal.logs, Log{
		TxHash:    c.txHash,
		Address:   c.this,
		Contract:  contractName,
		Name:      name,
		Fields:    fields,
		BlockTime: c.time,
	})
	return nil
}

// Contract resolves the contract deployed at addr.
func (c *Ctx) Contract(addr common.Address) (Contract, bool) {
	contract, ok := c.chain.contracts[addr]
	return contract, ok
}

// BalanceOf returns the native balance of addr.
func (c *Ctx) BalanceOf(addr common.Address) *big.Int {
	return new(big.Int).Set(c.chain.balanceOf(addr))
}

// SelfBalance returns the native balance of the executing contract.
func (c *Ctx) SelfBalance() *big.Int {
	return c.BalanceOf(c.this)
}

// Call makes a nested call into the contract at `to`; the callee sees this
// contract as its sender. Nested calls share the transaction's journal.
func (c *Ctx) Call(to common.Address, fn func(ctx *Ctx) error) error {
	if _, ok := c.chain.contracts[to]; !ok {
		return errNotContract
	}
	return fn(c.sub(to, new(big.Int)))
}

// Transfer sends amount of the executing contract's native balance to `to`.
// A contract recipient must be Payable.
func (c *Ctx) Transfer(to common.Address, amount *big.Int) error {
	if c.readOnly {
		return errReadOnly
	}
	if to == (common.Address{}) {
		return errTransferToZero
	}
	if err := c.moveValue(c.this, to, amount); err != nil {
		return errTransferBalance
	}
	if contract, ok := c.chain.contracts[to]; ok {
		payable, ok := contract.(Payable)
		if !ok {
			return errTransferRejected
		}
		if err := payable.Receive(c.sub(to, amount)); err != nil {
			return Revert(ErrTransfer, "Transfer rejected by recipient: "+Reason(err))
		}
	}
	return nil
}

func (c *Ctx) sub(to common.Address, value *big.Int) *Ctx {
	return &Ctx{
		chain:    c.chain,
		sender:   c.this,
		this:     to,
		origin:   c.origin,
		value:    new(big.Int).Set(value),
		readOnly: c.readOnly,
		journal:  c.journal,
		time:     c.time,
		txHash:   c.txHash,
	}
}

func (c *Ctx) moveValue(from, to common.Address, value *big.Int) error {
	if value.Sign() == 0 {
		return nil
	}
	if value.Sign() < 0 || !c.chain.debit(from, value) {
		return errInsufficientFunds
	}
	c.chain.credit(to, value)
	return nil
}
