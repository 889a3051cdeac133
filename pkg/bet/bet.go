// Package bet implements the betting engine: it escrows native-currency
// wagers on oracle events and settles them pari-mutuel once the oracle
// reports a final outcome.
package bet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/oracle"
	"github.com/phenomenon0/betchain/pkg/ownable"
)

// Log names.
const (
	LogOracleAddressSet = "OracleAddressSet"
	LogBetPlaced        = "BetPlaced"
	LogBetCancelled     = "BetCancelled"
	LogBetSettled       = "BetSettled"
)

var (
	ErrZeroAddress        = chain.Revert(chain.ErrConfiguration, "Address 0 is not allowed")
	ErrOracleUnset        = chain.Revert(chain.ErrConfiguration, "Oracle address not set")
	ErrOracleUnreachable  = chain.Revert(chain.ErrConfiguration, "Oracle not reachable")
	ErrLedgerUnreachable  = chain.Revert(chain.ErrConfiguration, "Ledger not reachable")
	ErrPoolUnreachable    = chain.Revert(chain.ErrConfiguration, "Pool not reachable")
	ErrEventNotFound      = chain.Revert(chain.ErrNotFound, "Event does not exist")
	ErrEventClosed        = chain.Revert(chain.ErrState, "Event not open for betting")
	ErrInvalidSelection   = chain.Revert(chain.ErrValue, "Chosen winner out of range")
	ErrBelowMinimum       = chain.Revert(chain.ErrValue, "Bet amount must be >= minimum bet")
	ErrDuplicateBet       = chain.Revert(chain.ErrState, "Bet already placed on this event")
	ErrNoSuchBet          = chain.Revert(chain.ErrNotFound, "No bet placed on this event")
	ErrOutcomeNotFinal    = chain.Revert(chain.ErrState, "Event outcome not final")
	ErrInvalidDepositSize = chain.Revert(chain.ErrValue, "Deposit amount must be positive")
)

// Wager is an open bet of one player on one event.
type Wager struct {
	EventID      common.Hash    `json:"event_id"`
	Player       common.Address `json:"player"`
	ChosenWinner int            `json:"chosen_winner"`
	Amount       *big.Int       `json:"amount"`
}

// Bet is the betting engine contract.
type Bet struct {
	ownable.Ownable

	cfg        Config
	dai        common.Address
	oracleAddr common.Address

	// wagers holds open bets by event, then player.
	wagers map[common.Hash]map[common.Address]*Wager
	// bettors and playerEvents keep placement order for listings.
	bettors      map[common.Hash][]common.Address
	playerEvents map[common.Address][]common.Hash
	// eventOrder lists every event that ever received a bet.
	eventOrder []common.Hash
	pools      map[common.Hash]*pool
	escrowed   *big.Int
}

// New creates an engine that holds DAI on the ledger at dai. A nil or
// non-positive MinimumBet takes the default.
func New(dai common.Address, cfg Config) *Bet {
	if cfg.MinimumBet == nil || cfg.MinimumBet.Sign() <= 0 {
		cfg.MinimumBet = DefaultConfig().MinimumBet
	}
	return &Bet{
		cfg:          cfg,
		dai:          dai,
		wagers:       make(map[common.Hash]map[common.Address]*Wager),
		bettors:      make(map[common.Hash][]common.Address),
		playerEvents: make(map[common.Address][]common.Hash),
		pools:        make(map[common.Hash]*pool),
		escrowed:     new(big.Int),
	}
}

func (b *Bet) ContractName() string { return "Bet" }

// Init runs at deployment.
func (b *Bet) Init(ctx *chain.Ctx) error {
	if b.dai == (common.Address{}) {
		return ErrZeroAddress
	}
	return b.Ownable.Init(ctx)
}

// Config returns the wager rules.
func (b *Bet) Config() Config {
	return Config{MinimumBet: new(big.Int).Set(b.cfg.MinimumBet), Payout: b.cfg.Payout}
}

// DAIAddress returns the ledger the engine holds DAI on.
func (b *Bet) DAIAddress() common.Address {
	return b.dai
}

// SetOracleAddress binds the registry the engine trusts. Owner only.
func (b *Bet) SetOracleAddress(ctx *chain.Ctx, addr common.Address) error {
	if err := b.OnlyOwner(ctx); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	prev := b.oracleAddr
	if err := ctx.Mutate(func() { b.oracleAddr = prev }); err != nil {
		return err
	}
	b.oracleAddr = addr
	return ctx.Emit(LogOracleAddressSet, chain.Fields{"oracleAddress": addr})
}

// GetOracleAddress returns the bound registry, or the zero address.
func (b *Bet) GetOracleAddress() common.Address {
	return b.oracleAddr
}

// TestOracleConnection probes the bound registry. Any failure to reach a
// working registry reports false.
func (b *Bet) TestOracleConnection(ctx *chain.Ctx) bool {
	_, err := b.oracle(ctx)
	return err == nil
}

// oracle resolves the binding and probes it. The probe runs on every call so
// a rebinding takes effect immediately.
func (b *Bet) oracle(ctx *chain.Ctx) (EventOracle, error) {
	if b.oracleAddr == (common.Address{}) {
		return nil, ErrOracleUnset
	}
	contract, ok := ctx.Contract(b.oracleAddr)
	if !ok {
		return nil, ErrOracleUnreachable
	}
	o, ok := contract.(EventOracle)
	if !ok {
		return nil, ErrOracleUnreachable
	}
	live := false
	if err := ctx.Call(b.oracleAddr, func(*chain.Ctx) error {
		live = o.TestConnection()
		return nil
	}); err != nil || !live {
		return nil, ErrOracleUnreachable
	}
	return o, nil
}

// lookupEvent reads an event from the bound registry.
func (b *Bet) lookupEvent(ctx *chain.Ctx, id common.Hash) (oracle.SportEvent, error) {
	o, err := b.oracle(ctx)
	if err != nil {
		return oracle.SportEvent{}, err
	}
	event, ok := o.Lookup(id)
	if !ok {
		return oracle.SportEvent{}, ErrEventNotFound
	}
	return event, nil
}

// GetBettableEvents lists events open for betting, newest first. It is
// empty when no working registry is bound.
func (b *Bet) GetBettableEvents(ctx *chain.Ctx) []common.Hash {
	o, err := b.oracle(ctx)
	if err != nil {
		return []common.Hash{}
	}
	var ids []common.Hash
	err = ctx.Call(b.oracleAddr, func(inner *chain.Ctx) error {
		ids = o.GetPendingEvents(inner)
		return nil
	})
	if err != nil || ids == nil {
		return []common.Hash{}
	}
	return ids
}

// GetEvent reads an event through the bound registry, with the same
// empty-record behavior for unknown ids.
func (b *Bet) GetEvent(ctx *chain.Ctx, id common.Hash) (oracle.SportEvent, error) {
	o, err := b.oracle(ctx)
	if err != nil {
		return oracle.SportEvent{}, err
	}
	return o.GetEvent(id), nil
}

// GetLatestEvent reads the latest event through the bound registry.
func (b *Bet) GetLatestEvent(ctx *chain.Ctx, onlyPending bool) (oracle.SportEvent, error) {
	o, err := b.oracle(ctx)
	if err != nil {
		return oracle.SportEvent{}, err
	}
	return o.GetLatestEvent(onlyPending), nil
}

// PlaceBet escrows the value attached to the call as the sender's stake on
// chosenWinner. One open bet per player and event.
func (b *Bet) PlaceBet(ctx *chain.Ctx, id common.Hash, chosenWinner int) error {
	player := ctx.Sender()
	amount := ctx.Value()

	event, err := b.lookupEvent(ctx, id)
	if err != nil {
		return err
	}
	if !event.OpenForBetting(ctx.Now().Unix()) {
		return ErrEventClosed
	}
	if chosenWinner < 0 || chosenWinner >= int(event.ParticipantCount) {
		return ErrInvalidSelection
	}
	if amount.Cmp(b.cfg.MinimumBet) < 0 {
		return ErrBelowMinimum
	}
	if _, ok := b.wager(id, player); ok {
		return ErrDuplicateBet
	}

	if err := b.journal(ctx, id, player); err != nil {
		return err
	}
	b.addWager(&Wager{EventID: id, Player: player, ChosenWinner: chosenWinner, Amount: amount})

	return ctx.Emit(LogBetPlaced, chain.Fields{
		"eventId":      id,
		"player":       player,
		"chosenWinner": chosenWinner,
		"amount":       amount,
	})
}

// CancelBet refunds the sender's open bet. Cancellation is refused once the
// event has closed, unless the registry can no longer vouch for the event,
// in which case the stake is returned rather than stranded.
func (b *Bet) CancelBet(ctx *chain.Ctx, id common.Hash) error {
	player := ctx.Sender()
	w, ok := b.wager(id, player)
	if !ok {
		return ErrNoSuchBet
	}
	if event, err := b.lookupEvent(ctx, id); err == nil && !event.OpenForBetting(ctx.Now().Unix()) {
		return ErrEventClosed
	}

	if err := b.journal(ctx, id, player); err != nil {
		return err
	}
	b.removeWager(id, player)

	if err := ctx.Emit(LogBetCancelled, chain.Fields{
		"eventId": id,
		"player":  player,
		"amount":  w.Amount,
	}); err != nil {
		return err
	}
	return ctx.Transfer(player, w.Amount)
}

// GetBetPayload returns the sender's open bet on id.
func (b *Bet) GetBetPayload(ctx *chain.Ctx, id common.Hash) (int, *big.Int, error) {
	w, ok := b.wager(id, ctx.Sender())
	if !ok {
		return 0, nil, ErrNoSuchBet
	}
	return w.ChosenWinner, new(big.Int).Set(w.Amount), nil
}

// GetBettedEvents lists the events the sender holds open bets on, in
// placement order.
func (b *Bet) GetBettedEvents(ctx *chain.Ctx) []common.Hash {
	return cloneHashes(b.playerEvents[ctx.Sender()])
}

// GetEventWagers lists the open bets on id in placement order.
func (b *Bet) GetEventWagers(id common.Hash) []Wager {
	wagers := make([]Wager, 0, len(b.bettors[id]))
	for _, player := range b.bettors[id] {
		w := b.wagers[id][player]
		wagers = append(wagers, Wager{
			EventID:      w.EventID,
			Player:       w.Player,
			ChosenWinner: w.ChosenWinner,
			Amount:       new(big.Int).Set(w.Amount),
		})
	}
	return wagers
}

// EventsWithOpenBets lists events that still hold escrow, in the order they
// first received a bet.
func (b *Bet) EventsWithOpenBets() []common.Hash {
	ids := make([]common.Hash, 0)
	for _, id := range b.eventOrder {
		if len(b.bettors[id]) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// TotalEscrowed is the sum of all open stakes.
func (b *Bet) TotalEscrowed() *big.Int {
	return new(big.Int).Set(b.escrowed)
}

func (b *Bet) wager(id common.Hash, player common.Address) (*Wager, bool) {
	w, ok := b.wagers[id][player]
	return w, ok
}

// journal records the current bookkeeping of (id, player) so that any change
// made to it afterwards in the same transaction is undone on revert.
func (b *Bet) journal(ctx *chain.Ctx, id common.Hash, player common.Address) error {
	prevWager, had := b.wagers[id][player]
	prevBettors, hadBettors := b.bettors[id]
	prevBettors = cloneAddresses(prevBettors)
	prevEvents := cloneHashes(b.playerEvents[player])
	prevOrder := len(b.eventOrder)
	prevEscrow := new(big.Int).Set(b.escrowed)

	return ctx.Mutate(func() {
		if had {
			if b.wagers[id] == nil {
				b.wagers[id] = make(map[common.Address]*Wager)
			}
			b.wagers[id][player] = prevWager
		} else if b.wagers[id] != nil {
			delete(b.wagers[id], player)
		}
		if hadBettors {
			b.bettors[id] = prevBettors
		} else {
			delete(b.bettors, id)
		}
		b.playerEvents[player] = prevEvents
		b.eventOrder = b.eventOrder[:prevOrder]
		b.escrowed = prevEscrow
	})
}

func (b *Bet) addWager(w *Wager) {
	if b.wagers[w.EventID] == nil {
		b.wagers[w.EventID] = make(map[common.Address]*Wager)
	}
	if _, seen := b.bettors[w.EventID]; !seen {
		b.eventOrder = append(b.eventOrder, w.EventID)
	}
	b.wagers[w.EventID][w.Player] = w
	b.bettors[w.EventID] = append(b.bettors[w.EventID], w.Player)
	b.playerEvents[w.Player] = append(b.playerEvents[w.Player], w.EventID)
	b.escrowed = new(big.Int).Add(b.escrowed, w.Amount)
}

func (b *Bet) removeWager(id common.Hash, player common.Address) *Wager {
	w := b.wagers[id][player]
	delete(b.wagers[id], player)
	b.bettors[id] = removeAddress(b.bettors[id], player)
	b.playerEvents[player] = removeHash(b.playerEvents[player], id)
	b.escrowed = new(big.Int).Sub(b.escrowed, w.Amount)
	return w
}

func cloneAddresses(s []common.Address) []common.Address {
	return append(make([]common.Address, 0, len(s)), s...)
}

func cloneHashes(s []common.Hash) []common.Hash {
	return append(make([]common.Hash, 0, len(s)), s...)
}

func removeAddress(s []common.Address, addr common.Address) []common.Address {
	out := make([]common.Address, 0, len(s))
	for _, a := range s {
		if a != addr {
			out = append(out, a)
		}
	}
	return out
}

func removeHash(s []common.Hash, id common.Hash) []common.Hash {
	out := make([]common.Hash, 0, len(s))
	for _, h := range s {
		if h != id {
			out = append(out, h)
		}
	}
	return out
}
