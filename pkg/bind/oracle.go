package bind

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/oracle"
)

// Oracle is a handle on a deployed BetOracle.
type Oracle struct {
	handle
	contract *oracle.BetOracle
}

// NewOracle binds the BetOracle at addr.
func NewOracle(c *chain.Chain, addr common.Address) (*Oracle, error) {
	contract, err := resolve[*oracle.BetOracle](c, addr, "BetOracle")
	if err != nil {
		return nil, err
	}
	return &Oracle{handle: handle{chain: c, address: addr}, contract: contract}, nil
}

// AddSportEvent registers an event and returns its id.
func (o *Oracle) AddSportEvent(from common.Address, name, participants string, participantCount uint8, date int64, kind oracle.SportKind) (common.Hash, *chain.Receipt, error) {
	var id common.Hash
	receipt, err := o.transact(from, func(ctx *chain.Ctx) error {
		var err error
		id, err = o.contract.AddSportEvent(ctx, name, participants, participantCount, date, kind)
		return err
	})
	if err != nil {
		return common.Hash{}, nil, err
	}
	return id, receipt, nil
}

// DeclareOutcome moves an event forward in its lifecycle.
func (o *Oracle) DeclareOutcome(from common.Address, id common.Hash, outcome oracle.EventOutcome, winner int) (*chain.Receipt, error) {
	return o.transact(from, func(ctx *chain.Ctx) error {
		return o.contract.DeclareOutcome(ctx, id, outcome, winner)
	})
}

// TransferOwnership hands the registry to newOwner.
func (o *Oracle) TransferOwnership(from, newOwner common.Address) (*chain.Receipt, error) {
	return o.transact(from, func(ctx *chain.Ctx) error {
		return o.contract.TransferOwnership(ctx, newOwner)
	})
}

// RenounceOwnership disables the registry's owner-gated operations.
func (o *Oracle) RenounceOwnership(from common.Address) (*chain.Receipt, error) {
	return o.transact(from, o.contract.RenounceOwnership)
}

// Owner returns the registry's administrator.
func (o *Oracle) Owner() common.Address {
	var owner common.Address
	o.view(func() { owner = o.contract.Owner() })
	return owner
}

// GetEvent returns the event, or the empty record for unknown ids.
func (o *Oracle) GetEvent(id common.Hash) oracle.SportEvent {
	var event oracle.SportEvent
	o.view(func() { event = o.contract.GetEvent(id) })
	return event
}

// Lookup returns the event and whether it exists.
func (o *Oracle) Lookup(id common.Hash) (oracle.SportEvent, bool) {
	var (
		event oracle.SportEvent
		ok    bool
	)
	o.view(func() { event, ok = o.contract.Lookup(id) })
	return event, ok
}

// EventExists reports whether id is registered.
func (o *Oracle) EventExists(id common.Hash) bool {
	var ok bool
	o.view(func() { ok = o.contract.EventExists(id) })
	return ok
}

// GetPendingEvents lists events open for betting, newest first.
func (o *Oracle) GetPendingEvents() []common.Hash {
	var ids []common.Hash
	o.call(func(ctx *chain.Ctx) error {
		ids = o.contract.GetPendingEvents(ctx)
		return nil
	})
	return ids
}

// GetAllSportEvents lists every id in registration order.
func (o *Oracle) GetAllSportEvents() []common.Hash {
	var ids []common.Hash
	o.view(func() { ids = o.contract.GetAllSportEvents() })
	return ids
}

// GetLatestEvent returns the most recent event, optionally Pending only.
func (o *Oracle) GetLatestEvent(onlyPending bool) oracle.SportEvent {
	var event oracle.SportEvent
	o.view(func() { event = o.contract.GetLatestEvent(onlyPending) })
	return event
}

// TestConnection probes the registry.
func (o *Oracle) TestConnection() bool {
	var ok bool
	o.view(func() { ok = o.contract.TestConnection() })
	return ok
}
