package bind

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/bet"
	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/oracle"
)

// Bet is a handle on a deployed betting engine.
type Bet struct {
	handle
	contract *bet.Bet
}

// NewBet binds the engine at addr.
func NewBet(c *chain.Chain, addr common.Address) (*Bet, error) {
	contract, err := resolve[*bet.Bet](c, addr, "Bet")
	if err != nil {
		return nil, err
	}
	return &Bet{handle: handle{chain: c, address: addr}, contract: contract}, nil
}

// SetOracleAddress binds the registry the engine trusts.
func (b *Bet) SetOracleAddress(from, addr common.Address) (*chain.Receipt, error) {
	return b.transact(from, func(ctx *chain.Ctx) error {
		return b.contract.SetOracleAddress(ctx, addr)
	})
}

// PlaceBet stakes value wei on chosenWinner.
func (b *Bet) PlaceBet(from common.Address, id common.Hash, chosenWinner int, value *big.Int) (*chain.Receipt, error) {
	return b.chain.Transact(from, b.address, value, func(ctx *chain.Ctx) error {
		return b.contract.PlaceBet(ctx, id, chosenWinner)
	})
}

// CancelBet refunds the sender's bet on id.
func (b *Bet) CancelBet(from common.Address, id common.Hash) (*chain.Receipt, error) {
	return b.transact(from, func(ctx *chain.Ctx) error {
		return b.contract.CancelBet(ctx, id)
	})
}

// SettleBet settles the sender's bet on id and returns the payout.
func (b *Bet) SettleBet(from common.Address, id common.Hash) (*big.Int, *chain.Receipt, error) {
	var payout *big.Int
	receipt, err := b.transact(from, func(ctx *chain.Ctx) error {
		var err error
		payout, err = b.contract.SettleBet(ctx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return payout, receipt, nil
}

// SettleEvent settles every open bet on id.
func (b *Bet) SettleEvent(from common.Address, id common.Hash) (int, *chain.Receipt, error) {
	var settled int
	receipt, err := b.transact(from, func(ctx *chain.Ctx) error {
		var err error
		settled, err = b.contract.SettleEvent(ctx, id)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return settled, receipt, nil
}

// DepositDAI pulls amount DAI from the sender into the engine.
func (b *Bet) DepositDAI(from common.Address, amount *big.Int) (*chain.Receipt, error) {
	return b.transact(from, func(ctx *chain.Ctx) error {
		return b.contract.DepositDAI(ctx, amount)
	})
}

// ParkIdleDAI deposits amount of the engine's DAI into the pool.
func (b *Bet) ParkIdleDAI(from, pool common.Address, amount *big.Int) (*chain.Receipt, error) {
	return b.transact(from, func(ctx *chain.Ctx) error {
		return b.contract.ParkIdleDAI(ctx, pool, amount)
	})
}

// TransferOwnership hands the engine to newOwner.
func (b *Bet) TransferOwnership(from, newOwner common.Address) (*chain.Receipt, error) {
	return b.transact(from, func(ctx *chain.Ctx) error {
		return b.contract.TransferOwnership(ctx, newOwner)
	})
}

// RenounceOwnership disables the engine's owner-gated operations.
func (b *Bet) RenounceOwnership(from common.Address) (*chain.Receipt, error) {
	return b.transact(from, b.contract.RenounceOwnership)
}

// Owner returns the engine's administrator.
func (b *Bet) Owner() common.Address {
	var owner common.Address
	b.view(func() { owner = b.contract.Owner() })
	return owner
}

// Config returns the wager rules.
func (b *Bet) Config() bet.Config {
	var cfg bet.Config
	b.view(func() { cfg = b.contract.Config() })
	return cfg
}

// GetOracleAddress returns the bound registry.
func (b *Bet) GetOracleAddress() common.Address {
	var addr common.Address
	b.view(func() { addr = b.contract.GetOracleAddress() })
	return addr
}

// TestOracleConnection probes the bound registry.
func (b *Bet) TestOracleConnection() bool {
	var ok bool
	b.call(func(ctx *chain.Ctx) error {
		ok = b.contract.TestOracleConnection(ctx)
		return nil
	})
	return ok
}

// GetBettableEvents lists events open for betting, newest first.
func (b *Bet) GetBettableEvents() []common.Hash {
	ids := []common.Hash{}
	b.call(func(ctx *chain.Ctx) error {
		ids = b.contract.GetBettableEvents(ctx)
		return nil
	})
	return ids
}

// GetEvent reads an event through the bound registry.
func (b *Bet) GetEvent(id common.Hash) (oracle.SportEvent, error) {
	var event oracle.SportEvent
	err := b.call(func(ctx *chain.Ctx) error {
		var err error
		event, err = b.contract.GetEvent(ctx, id)
		return err
	})
	return event, err
}

// GetLatestEvent reads the latest event through the bound registry.
func (b *Bet) GetLatestEvent(onlyPending bool) (oracle.SportEvent, error) {
	var event oracle.SportEvent
	err := b.call(func(ctx *chain.Ctx) error {
		var err error
		event, err = b.contract.GetLatestEvent(ctx, onlyPending)
		return err
	})
	return event, err
}

// GetBetPayload returns player's open bet on id.
func (b *Bet) GetBetPayload(player common.Address, id common.Hash) (int, *big.Int, error) {
	var (
		chosen int
		amount *big.Int
	)
	err := b.callAs(player, func(ctx *chain.Ctx) error {
		var err error
		chosen, amount, err = b.contract.GetBetPayload(ctx, id)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return chosen, amount, nil
}

// GetBettedEvents lists the events player holds open bets on.
func (b *Bet) GetBettedEvents(player common.Address) []common.Hash {
	var ids []common.Hash
	b.callAs(player, func(ctx *chain.Ctx) error {
		ids = b.contract.GetBettedEvents(ctx)
		return nil
	})
	return ids
}

// GetEventWagers lists the open bets on id.
func (b *Bet) GetEventWagers(id common.Hash) []bet.Wager {
	var wagers []bet.Wager
	b.view(func() { wagers = b.contract.GetEventWagers(id) })
	return wagers
}

// EventsWithOpenBets lists events that still hold escrow.
func (b *Bet) EventsWithOpenBets() []common.Hash {
	var ids []common.Hash
	b.view(func() { ids = b.contract.EventsWithOpenBets() })
	return ids
}

// TotalEscrowed is the sum of all open stakes.
func (b *Bet) TotalEscrowed() *big.Int {
	var total *big.Int
	b.view(func() { total = b.contract.TotalEscrowed() })
	return total
}

// Balance is the engine's native balance.
func (b *Bet) Balance() *big.Int {
	return b.chain.Balance(b.address)
}

// GetContractDAIBalance returns the DAI the engine holds.
func (b *Bet) GetContractDAIBalance() (*big.Int, error) {
	var bal *big.Int
	err := b.call(func(ctx *chain.Ctx) error {
		var err error
		bal, err = b.contract.GetContractDAIBalance(ctx)
		return err
	})
	return bal, err
}
