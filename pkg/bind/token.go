package bind

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/defipool"
	"github.com/phenomenon0/betchain/pkg/token"
)

// Token is a handle on the deployed DAI ledger.
type Token struct {
	handle
	contract *token.Token
}

// NewToken binds the ledger at addr.
func NewToken(c *chain.Chain, addr common.Address) (*Token, error) {
	contract, err := resolve[*token.Token](c, addr, "DAI")
	if err != nil {
		return nil, err
	}
	return &Token{handle: handle{chain: c, address: addr}, contract: contract}, nil
}

// Transfer moves amount from the sender to `to`.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) (*chain.Receipt, error) {
	return t.transact(from, func(ctx *chain.Ctx) error {
		return t.contract.Transfer(ctx, to, amount)
	})
}

// Approve lets spender move amount of the sender's balance.
func (t *Token) Approve(from, spender common.Address, amount *big.Int) (*chain.Receipt, error) {
	return t.transact(from, func(ctx *chain.Ctx) error {
		return t.contract.Approve(ctx, spender, amount)
	})
}

// TransferFrom moves amount from owner to `to` on the sender's allowance.
func (t *Token) TransferFrom(from, owner, to common.Address, amount *big.Int) (*chain.Receipt, error) {
	return t.transact(from, func(ctx *chain.Ctx) error {
		return t.contract.TransferFrom(ctx, owner, to, amount)
	})
}

// Mint creates amount for `to`.
func (t *Token) Mint(from, to common.Address, amount *big.Int) (*chain.Receipt, error) {
	return t.transact(from, func(ctx *chain.Ctx) error {
		return t.contract.Mint(ctx, to, amount)
	})
}

// BalanceOf returns the DAI balance of owner.
func (t *Token) BalanceOf(owner common.Address) *big.Int {
	var bal *big.Int
	t.view(func() { bal = t.contract.BalanceOf(owner) })
	return bal
}

// Allowance returns what spender may move on behalf of owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	var allowed *big.Int
	t.view(func() { allowed = t.contract.Allowance(owner, spender) })
	return allowed
}

// TotalSupply returns the amount in circulation.
func (t *Token) TotalSupply() *big.Int {
	var supply *big.Int
	t.view(func() { supply = t.contract.TotalSupply() })
	return supply
}

// Pool is a handle on the deployed DefiPool.
type Pool struct {
	handle
	contract *defipool.Pool
}

// NewPool binds the pool at addr.
func NewPool(c *chain.Chain, addr common.Address) (*Pool, error) {
	contract, err := resolve[*defipool.Pool](c, addr, "DefiPool")
	if err != nil {
		return nil, err
	}
	return &Pool{handle: handle{chain: c, address: addr}, contract: contract}, nil
}

// Deposit pulls amount DAI from the sender, credited to beneficiary.
func (p *Pool) Deposit(from common.Address, amount *big.Int, beneficiary common.Address) (*chain.Receipt, error) {
	return p.transact(from, func(ctx *chain.Ctx) error {
		return p.contract.Deposit(ctx, amount, beneficiary)
	})
}

// Withdraw closes the sender's position and returns what was paid.
func (p *Pool) Withdraw(from common.Address) (*big.Int, *chain.Receipt, error) {
	var total *big.Int
	receipt, err := p.transact(from, func(ctx *chain.Ctx) error {
		var err error
		total, err = p.contract.Withdraw(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return total, receipt, nil
}

// PositionOf returns the deposit credited to owner.
func (p *Pool) PositionOf(owner common.Address) (defipool.Position, bool) {
	var (
		pos defipool.Position
		ok  bool
	)
	p.view(func() { pos, ok = p.contract.PositionOf(owner) })
	return pos, ok
}

// GetContractBalance returns the DAI balance of addr.
func (p *Pool) GetContractBalance(addr common.Address) (*big.Int, error) {
	var bal *big.Int
	err := p.call(func(ctx *chain.Ctx) error {
		var err error
		bal, err = p.contract.GetContractBalance(ctx, addr)
		return err
	})
	return bal, err
}
