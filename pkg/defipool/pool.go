// Package defipool implements a yield pool that custodies DAI deposits and
// pays simple interest on withdrawal.
package defipool

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/eth"
	"github.com/phenomenon0/betchain/pkg/ownable"
)

// Log names.
const (
	LogDeposited = "Deposited"
	LogWithdrawn = "Withdrawn"
)

// DefaultRateBps is the default annual interest rate: 5%.
const DefaultRateBps = 500

const (
	bpsDenominator = 10_000
	year           = 365 * 24 * time.Hour
)

var (
	ErrDepositTooSmall   = chain.Revert(chain.ErrValue, "Error, deposit must be >= 10 DAI")
	ErrZeroBeneficiary   = chain.Revert(chain.ErrConfiguration, "Address 0 is not allowed")
	ErrNoDeposit         = chain.Revert(chain.ErrNotFound, "No deposit to withdraw")
	ErrLedgerUnreachable = chain.Revert(chain.ErrConfiguration, "Ledger not reachable")
)

// MinimumDeposit is 10 DAI.
func MinimumDeposit() *big.Int {
	return eth.MustParseEther("10")
}

// Ledger is the token the pool custodies. *token.Token implements it.
type Ledger interface {
	BalanceOf(owner common.Address) *big.Int
	Transfer(ctx *chain.Ctx, to common.Address, amount *big.Int) error
	TransferFrom(ctx *chain.Ctx, from, to common.Address, amount *big.Int) error
}

// Position is the deposit of one beneficiary.
type Position struct {
	Principal *big.Int  `json:"principal"`
	Since     time.Time `json:"since"`
}

// Pool is the yield pool contract.
type Pool struct {
	ownable.Ownable

	dai       common.Address
	rateBps   int64
	positions map[common.Address]*Position
}

// New creates a pool holding DAI at dai, paying rateBps per year.
func New(dai common.Address, rateBps int64) *Pool {
	return &Pool{
		dai:       dai,
		rateBps:   rateBps,
		positions: make(map[common.Address]*Position),
	}
}

func (p *Pool) ContractName() string { return "DefiPool" }

// RateBps returns the annual interest rate in basis points.
func (p *Pool) RateBps() int64 {
	return p.rateBps
}

func (p *Pool) ledger(ctx *chain.Ctx) (Ledger, error) {
	contract, ok := ctx.Contract(p.dai)
	if !ok {
		return nil, ErrLedgerUnreachable
	}
	ledger, ok := contract.(Ledger)
	if !ok {
		return nil, ErrLedgerUnreachable
	}
	return ledger, nil
}

// Deposit pulls amount DAI from the sender and credits it to beneficiary.
// Interest accrued so far on an existing position is folded into principal.
func (p *Pool) Deposit(ctx *chain.Ctx, amount *big.Int, beneficiary common.Address) error {
	if amount == nil || amount.Cmp(MinimumDeposit()) < 0 {
		return ErrDepositTooSmall
	}
	if beneficiary == (common.Address{}) {
		return ErrZeroBeneficiary
	}
	ledger, err := p.ledger(ctx)
	if err != nil {
		return err
	}
	depositor := ctx.Sender()
	if err := ctx.Call(p.dai, func(inner *chain.Ctx) error {
		return ledger.TransferFrom(inner, depositor, ctx.This(), amount)
	}); err != nil {
		return err
	}

	prev, had := p.positions[beneficiary]
	if err := ctx.Mutate(func() {
		if had {
			p.positions[beneficiary] = prev
		} else {
			delete(p.positions, beneficiary)
		}
	}); err != nil {
		return err
	}
	principal := new(big.Int).Set(amount)
	if had {
		principal.Add(principal, p.accrued(prev, ctx.Now()))
	}
	p.positions[beneficiary] = &Position{Principal: principal, Since: ctx.Now()}

	return ctx.Emit(LogDeposited, chain.Fields{
		"depositor":   depositor,
		"beneficiary": beneficiary,
		"amount":      new(big.Int).Set(amount),
	})
}

// Withdraw pays the sender's principal plus interest and closes the
// position. It fails if the pool cannot cover the interest.
func (p *Pool) Withdraw(ctx *chain.Ctx) (*big.Int, error) {
	account := ctx.Sender()
	pos, ok := p.positions[account]
	if !ok {
		return nil, ErrNoDeposit
	}
	ledger, err := p.ledger(ctx)
	if err != nil {
		return nil, err
	}

	if err := ctx.Mutate(func() { p.positions[account] = pos }); err != nil {
		return nil, err
	}
	delete(p.positions, account)

	total := p.accrued(pos, ctx.Now())
	interest := new(big.Int).Sub(total, pos.Principal)
	if err := ctx.Call(p.dai, func(inner *chain.Ctx) error {
		return ledger.Transfer(inner, account, total)
	}); err != nil {
		return nil, err
	}

	if err := ctx.Emit(LogWithdrawn, chain.Fields{
		"account":   account,
		"principal": new(big.Int).Set(pos.Principal),
		"interest":  interest,
	}); err != nil {
		return nil, err
	}
	return total, nil
}

// PositionOf returns the deposit credited to owner.
func (p *Pool) PositionOf(owner common.Address) (Position, bool) {
	pos, ok := p.positions[owner]
	if !ok {
		return Position{}, false
	}
	return Position{Principal: new(big.Int).Set(pos.Principal), Since: pos.Since}, true
}

// GetContractBalance returns the DAI balance of addr.
func (p *Pool) GetContractBalance(ctx *chain.Ctx, addr common.Address) (*big.Int, error) {
	ledger, err := p.ledger(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.BalanceOf(addr), nil
}

// accrued is principal plus simple interest from pos.Since to now, floored.
func (p *Pool) accrued(pos *Position, now time.Time) *big.Int {
	total := new(big.Int).Set(pos.Principal)
	elapsed := now.Sub(pos.Since)
	if elapsed <= 0 || p.rateBps <= 0 {
		return total
	}
	interest := new(big.Int).Mul(pos.Principal, big.NewInt(p.rateBps))
	interest.Mul(interest, big.NewInt(int64(elapsed/time.Second)))
	interest.Div(interest, big.NewInt(bpsDenominator*int64(year/time.Second)))
	return total.Add(total, interest)
}
