// Package token implements the DAI stablecoin ledger the betting engine and
// the yield pool hold funds on.
package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/eth"
	"github.com/phenomenon0/betchain/pkg/ownable"
)

// Token metadata.
const (
	Name     = "Dai Stablecoin"
	Symbol   = "DAI"
	Decimals = eth.EtherDecimals
)

// Log names.
const (
	LogTransfer = "Transfer"
	LogApproval = "Approval"
)

var (
	ErrTransferFromZero  = chain.Revert(chain.ErrTransfer, "ERC20: transfer from the zero address")
	ErrTransferToZero    = chain.Revert(chain.ErrTransfer, "ERC20: transfer to the zero address")
	ErrApproveToZero     = chain.Revert(chain.ErrConfiguration, "ERC20: approve to the zero address")
	ErrExceedsBalance    = chain.Revert(chain.ErrTransfer, "ERC20: transfer amount exceeds balance")
	ErrInsufficientAllow = chain.Revert(chain.ErrTransfer, "ERC20: insufficient allowance")
	ErrNegativeAmount    = chain.Revert(chain.ErrValue, "ERC20: negative amount")
)

// InitialSupply is minted to the deployer: 100 DAI.
func InitialSupply() *big.Int {
	return eth.MustParseEther("100")
}

// Token is an ERC20-style fungible ledger.
type Token struct {
	ownable.Ownable

	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// New creates the ledger. Deploying it mints the initial supply to the deployer.
func New() *Token {
	return &Token{
		supply:     new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *Token) ContractName() string { return Symbol }

// Init mints the initial supply to the deployer.
func (t *Token) Init(ctx *chain.Ctx) error {
	if err := t.Ownable.Init(ctx); err != nil {
		return err
	}
	return t.mint(ctx, ctx.Sender(), InitialSupply())
}

// TotalSupply returns the amount in circulation.
func (t *Token) TotalSupply() *big.Int {
	return new(big.Int).Set(t.supply)
}

// BalanceOf returns the balance of owner.
func (t *Token) BalanceOf(owner common.Address) *big.Int {
	if bal, ok := t.balances[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Allowance returns what spender may still move on behalf of owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if allowed, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(allowed)
	}
	return new(big.Int)
}

// Transfer moves amount from the sender to `to`.
func (t *Token) Transfer(ctx *chain.Ctx, to common.Address, amount *big.Int) error {
	return t.transfer(ctx, ctx.Sender(), to, amount)
}

// Approve sets the allowance of spender over the sender's balance.
func (t *Token) Approve(ctx *chain.Ctx, spender common.Address, amount *big.Int) error {
	return t.approve(ctx, ctx.Sender(), spender, amount)
}

// TransferFrom moves amount from `from` to `to`, spending the allowance the
// sender was granted by `from`.
func (t *Token) TransferFrom(ctx *chain.Ctx, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	spender := ctx.Sender()
	allowed := t.Allowance(from, spender)
	if allowed.Cmp(amount) < 0 {
		return ErrInsufficientAllow
	}
	if err := t.transfer(ctx, from, to, amount); err != nil {
		return err
	}
	return t.approve(ctx, from, spender, allowed.Sub(allowed, amount))
}

// Mint creates amount for `to`. Owner only.
func (t *Token) Mint(ctx *chain.Ctx, to common.Address, amount *big.Int) error {
	if err := t.OnlyOwner(ctx); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrTransferToZero
	}
	return t.mint(ctx, to, amount)
}

func (t *Token) mint(ctx *chain.Ctx, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	prevSupply := t.supply
	if err := t.journalBalance(ctx, to); err != nil {
		return err
	}
	ctx.OnRevert(func() { t.supply = prevSupply })

	t.supply = new(big.Int).Add(t.supply, amount)
	t.balances[to] = new(big.Int).Add(t.BalanceOf(to), amount)
	return ctx.Emit(LogTransfer, chain.Fields{
		"from":  common.Address{},
		"to":    to,
		"value": new(big.Int).Set(amount),
	})
}

func (t *Token) transfer(ctx *chain.Ctx, from, to common.Address, amount *big.Int) error {
	if from == (common.Address{}) {
		return ErrTransferFromZero
	}
	if to == (common.Address{}) {
		return ErrTransferToZero
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromBal := t.BalanceOf(from)
	if fromBal.Cmp(amount) < 0 {
		return ErrExceedsBalance
	}
	if err := t.journalBalance(ctx, from); err != nil {
		return err
	}
	if err := t.journalBalance(ctx, to); err != nil {
		return err
	}

	t.balances[from] = fromBal.Sub(fromBal, amount)
	t.balances[to] = new(big.Int).Add(t.BalanceOf(to), amount)
	return ctx.Emit(LogTransfer, chain.Fields{
		"from":  from,
		"to":    to,
		"value": new(big.Int).Set(amount),
	})
}

func (t *Token) approve(ctx *chain.Ctx, owner, spender common.Address, amount *big.Int) error {
	if owner == (common.Address{}) {
		return chain.Revert(chain.ErrConfiguration, "ERC20: approve from the zero address")
	}
	if spender == (common.Address{}) {
		return ErrApproveToZero
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	prev, had := t.allowances[owner][spender]
	if err := ctx.Mutate(func() {
		if had {
			t.allowances[owner][spender] = prev
		} else {
			delete(t.allowances[owner], spender)
		}
	}); err != nil {
		return err
	}

	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
	return ctx.Emit(LogApproval, chain.Fields{
		"owner":   owner,
		"spender": spender,
		"value":   new(big.Int).Set(amount),
	})
}

// journalBalance registers undo for the balance of addr.
func (t *Token) journalBalance(ctx *chain.Ctx, addr common.Address) error {
	prev, had := t.balances[addr]
	return ctx.Mutate(func() {
		if had {
			t.balances[addr] = prev
		} else {
			delete(t.balances, addr)
		}
	})
}
