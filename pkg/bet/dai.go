package bet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
)

func (b *Bet) ledger(ctx *chain.Ctx) (LedgerPort, error) {
	contract, ok := ctx.Contract(b.dai)
	if !ok {
		return nil, ErrLedgerUnreachable
	}
	ledger, ok := contract.(LedgerPort)
	if !ok {
		return nil, ErrLedgerUnreachable
	}
	return ledger, nil
}

// GetContractDAIBalance returns the DAI the engine holds.
func (b *Bet) GetContractDAIBalance(ctx *chain.Ctx) (*big.Int, error) {
	ledger, err := b.ledger(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.BalanceOf(ctx.This()), nil
}

// DepositDAI pulls amount DAI from the sender, who must have approved the
// engine beforehand.
func (b *Bet) DepositDAI(ctx *chain.Ctx, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidDepositSize
	}
	ledger, err := b.ledger(ctx)
	if err != nil {
		return err
	}
	from := ctx.Sender()
	return ctx.Call(b.dai, func(inner *chain.Ctx) error {
		return ledger.TransferFrom(inner, from, ctx.This(), amount)
	})
}

// ParkIdleDAI moves amount of the engine's DAI into a yield pool, credited
// to the engine. Owner only.
func (b *Bet) ParkIdleDAI(ctx *chain.Ctx, poolAddr common.Address, amount *big.Int) error {
	if err := b.OnlyOwner(ctx); err != nil {
		return err
	}
	if poolAddr == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidDepositSize
	}
	ledger, err := b.ledger(ctx)
	if err != nil {
		return err
	}
	contract, ok := ctx.Contract(poolAddr)
	if !ok {
		return ErrPoolUnreachable
	}
	yield, ok := contract.(YieldPool)
	if !ok {
		return ErrPoolUnreachable
	}

	if err := ctx.Call(b.dai, func(inner *chain.Ctx) error {
		return ledger.Approve(inner, poolAddr, amount)
	}); err != nil {
		return err
	}
	return ctx.Call(poolAddr, func(inner *chain.Ctx) error {
		return yield.Deposit(inner, amount, ctx.This())
	})
}
