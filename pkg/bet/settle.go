package bet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/oracle"
)

// pool is the frozen book of a decided event, taken when it is first
// settled. Losing stakes are forfeited at that point; winners are paid
// against these totals no matter in which order they settle.
type pool struct {
	winner      int
	winningPool *big.Int
	losingPool  *big.Int
	winnerCount int
}

// payout is what a winning stake receives from p. With nothing staked on
// the winner, winners get their stake back.
func (p *pool) payout(stake *big.Int, policy PayoutPolicy) *big.Int {
	total := new(big.Int).Set(stake)
	if p.losingPool.Sign() == 0 || p.winningPool.Sign() == 0 || p.winnerCount == 0 {
		return total
	}
	share := new(big.Int)
	switch policy {
	case EqualSplit:
		share.Div(p.losingPool, big.NewInt(int64(p.winnerCount)))
	default:
		share.Mul(stake, p.losingPool)
		share.Div(share, p.winningPool)
	}
	return total.Add(total, share)
}

// SettleBet settles the sender's bet on a final event and returns what was
// paid out. A draw refunds the stake; a decided event pays winners their
// stake plus their share of the losing pool and forfeits losing stakes.
func (b *Bet) SettleBet(ctx *chain.Ctx, id common.Hash) (*big.Int, error) {
	player := ctx.Sender()
	if _, ok := b.wager(id, player); !ok {
		return nil, ErrNoSuchBet
	}
	event, err := b.finalEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	if event.Outcome == oracle.Decided {
		p, err := b.decide(ctx, id, event.Winner)
		if err != nil {
			return nil, err
		}
		// A loser's bet is cleared by decide itself.
		if _, ok := b.wager(id, player); !ok {
			return new(big.Int), nil
		}
		return b.pay(ctx, id, player, p.payout(b.wagers[id][player].Amount, b.cfg.Payout))
	}
	return b.pay(ctx, id, player, b.wagers[id][player].Amount)
}

// SettleEvent settles every open bet on a final event and returns how many
// bets were cleared. Anyone may call it.
func (b *Bet) SettleEvent(ctx *chain.Ctx, id common.Hash) (int, error) {
	event, err := b.finalEvent(ctx, id)
	if err != nil {
		return 0, err
	}

	settled := 0
	var p *pool
	if event.Outcome == oracle.Decided {
		before := len(b.bettors[id])
		if p, err = b.decide(ctx, id, event.Winner); err != nil {
			return 0, err
		}
		settled += before - len(b.bettors[id])
	}

	for _, player := range cloneAddresses(b.bettors[id]) {
		amount := b.wagers[id][player].Amount
		if p != nil {
			amount = p.payout(amount, b.cfg.Payout)
		}
		if _, err := b.pay(ctx, id, player, amount); err != nil {
			return 0, err
		}
		settled++
	}
	return settled, nil
}

// finalEvent re-reads the event from the registry; the outcome seen at
// placement time is never trusted.
func (b *Bet) finalEvent(ctx *chain.Ctx, id common.Hash) (oracle.SportEvent, error) {
	event, err := b.lookupEvent(ctx, id)
	if err != nil {
		return oracle.SportEvent{}, err
	}
	if !event.Outcome.Terminal() {
		return oracle.SportEvent{}, ErrOutcomeNotFinal
	}
	return event, nil
}

// decide freezes the book of a decided event on first use and forfeits
// every losing bet.
func (b *Bet) decide(ctx *chain.Ctx, id common.Hash, winner int) (*pool, error) {
	if p, ok := b.pools[id]; ok {
		return p, nil
	}

	p := &pool{winner: winner, winningPool: new(big.Int), losingPool: new(big.Int)}
	var losers []common.Address
	for _, player := range b.bettors[id] {
		w := b.wagers[id][player]
		if w.ChosenWinner == winner {
			p.winningPool.Add(p.winningPool, w.Amount)
			p.winnerCount++
		} else {
			p.losingPool.Add(p.losingPool, w.Amount)
			losers = append(losers, player)
		}
	}

	if err := ctx.Mutate(func() { delete(b.pools, id) }); err != nil {
		return nil, err
	}
	b.pools[id] = p

	for _, player := range losers {
		if _, err := b.pay(ctx, id, player, new(big.Int)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// pay clears the bet of player on id, logs the settlement and sends amount.
func (b *Bet) pay(ctx *chain.Ctx, id common.Hash, player common.Address, amount *big.Int) (*big.Int, error) {
	if err := b.journal(ctx, id, player); err != nil {
		return nil, err
	}
	w := b.removeWager(id, player)

	if err := ctx.Emit(LogBetSettled, chain.Fields{
		"eventId":      id,
		"player":       player,
		"chosenWinner": w.ChosenWinner,
		"amount":       w.Amount,
		"payout":       amount,
	}); err != nil {
		return nil, err
	}
	if amount.Sign() > 0 {
		if err := ctx.Transfer(player, amount); err != nil {
			return nil, err
		}
	}
	return amount, nil
}
