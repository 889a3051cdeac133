// Package oracle implements BetOracle, the registry of sport events and
// their outcomes that the betting engine trusts.
package oracle

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/ownable"
)

// Log names.
const (
	LogSportEventAdded = "SportEventAdded"
	LogOutcomeDeclared = "OutcomeDeclared"
)

var (
	ErrEventExists          = chain.Revert(chain.ErrState, "Event already exists")
	ErrEventNotFound        = chain.Revert(chain.ErrNotFound, "Event does not exist")
	ErrParticipantCount     = chain.Revert(chain.ErrValue, "Invalid participant count")
	ErrDuplicateParticipant = chain.Revert(chain.ErrValue, "Duplicate participant")
	ErrInvalidKind          = chain.Revert(chain.ErrValue, "Invalid sport kind")
	ErrInvalidTransition    = chain.Revert(chain.ErrState, "Invalid outcome transition")
	ErrWinnerOutOfRange     = chain.Revert(chain.ErrValue, "Winner index out of range")
)

// transitions lists the outcomes reachable from each state.
var transitions = map[EventOutcome][]EventOutcome{
	Pending:  {Underway, Draw, Decided},
	Underway: {Draw, Decided},
}

// BetOracle stores sport events keyed by their content-derived id.
type BetOracle struct {
	ownable.Ownable

	events map[common.Hash]*SportEvent
	order  []common.Hash
}

// New creates an empty registry. Deploy it to make the deployer its owner.
func New() *BetOracle {
	return &BetOracle{
		events: make(map[common.Hash]*SportEvent),
	}
}

func (o *BetOracle) ContractName() string { return "BetOracle" }

// AddSportEvent registers an event and returns its id. Owner only.
func (o *BetOracle) AddSportEvent(ctx *chain.Ctx, name, participants string, participantCount uint8, date int64, kind SportKind) (common.Hash, error) {
	if err := o.OnlyOwner(ctx); err != nil {
		return common.Hash{}, err
	}
	if !kind.Valid() {
		return common.Hash{}, ErrInvalidKind
	}
	if err := validateParticipants(participants, participantCount); err != nil {
		return common.Hash{}, err
	}

	id := EventID(name, participantCount, date, kind)
	if _, ok := o.events[id]; ok {
		return common.Hash{}, ErrEventExists
	}

	if err := ctx.Mutate(func() {
		delete(o.events, id)
		o.order = o.order[:len(o.order)-1]
	}); err != nil {
		return common.Hash{}, err
	}
	event := &SportEvent{
		ID:               id,
		Name:             name,
		Participants:     participants,
		ParticipantCount: participantCount,
		Date:             date,
		Kind:             kind,
		Outcome:          Pending,
		Winner:           NoWinner,
	}
	o.events[id] = event
	o.order = append(o.order, id)

	err := ctx.Emit(LogSportEventAdded, chain.Fields{
		"eventId":          id,
		"name":             name,
		"participants":     participants,
		"participantCount": participantCount,
		"date":             date,
		"kind":             kind,
		"outcome":          event.Outcome,
		"winner":           event.Winner,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return id, nil
}

// Lookup returns the event with the given id, if registered.
func (o *BetOracle) Lookup(id common.Hash) (SportEvent, bool) {
	event, ok := o.events[id]
	if !ok {
		return SportEvent{}, false
	}
	return *event, true
}

// GetEvent never fails: unknown ids yield an empty record with a Pending
// outcome and no winner. Use EventExists to tell the two apart.
func (o *BetOracle) GetEvent(id common.Hash) SportEvent {
	if event, ok := o.Lookup(id); ok {
		return event
	}
	return emptyEvent(id)
}

// EventExists reports whether id was ever registered.
func (o *BetOracle) EventExists(id common.Hash) bool {
	_, ok := o.events[id]
	return ok
}

// GetPendingEvents returns the ids of events still open for betting,
// newest first.
func (o *BetOracle) GetPendingEvents(ctx *chain.Ctx) []common.Hash {
	now := ctx.Now().Unix()
	ids := make([]common.Hash, 0)
	for i := len(o.order) - 1; i >= 0; i-- {
		if o.events[o.order[i]].OpenForBetting(now) {
			ids = append(ids, o.order[i])
		}
	}
	return ids
}

// GetAllSportEvents returns every id in registration order.
func (o *BetOracle) GetAllSportEvents() []common.Hash {
	ids := make([]common.Hash, len(o.order))
	copy(ids, o.order)
	return ids
}

// GetLatestEvent returns the most recently registered event, restricted to
// Pending outcomes when onlyPending is set. With no match it returns the
// empty record.
func (o *BetOracle) GetLatestEvent(onlyPending bool) SportEvent {
	for i := len(o.order) - 1; i >= 0; i-- {
		event := o.events[o.order[i]]
		if !onlyPending || event.Outcome == Pending {
			return *event
		}
	}
	return emptyEvent(common.Hash{})
}

// DeclareOutcome moves an event forward in its lifecycle. Owner only.
// Decided requires a winner index below the participant count; every
// other outcome requires NoWinner.
func (o *BetOracle) DeclareOutcome(ctx *chain.Ctx, id common.Hash, outcome EventOutcome, winner int) error {
	if err := o.OnlyOwner(ctx); err != nil {
		return err
	}
	event, ok := o.events[id]
	if !ok {
		return ErrEventNotFound
	}
	if !canTransition(event.Outcome, outcome) {
		return ErrInvalidTransition
	}
	if outcome == Decided {
		if winner < 0 || winner >= int(event.ParticipantCount) {
			return ErrWinnerOutOfRange
		}
	} else if winner != NoWinner {
		return ErrWinnerOutOfRange
	}

	prevOutcome, prevWinner := event.Outcome, event.Winner
	if err := ctx.Mutate(func() {
		event.Outcome, event.Winner = prevOutcome, prevWinner
	}); err != nil {
		return err
	}
	event.Outcome, event.Winner = outcome, winner

	return ctx.Emit(LogOutcomeDeclared, chain.Fields{
		"eventId": id,
		"outcome": outcome,
		"winner":  winner,
	})
}

// TestConnection is the liveness probe used by dependents.
func (o *BetOracle) TestConnection() bool {
	return true
}

// GetAddress returns the address the registry is deployed at.
func (o *BetOracle) GetAddress(ctx *chain.Ctx) common.Address {
	return ctx.This()
}

func canTransition(from, to EventOutcome) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
