// Package ownable is the single-owner admin gate shared by the contracts.
package ownable

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
)

// LogOwnershipTransferred is emitted on every change of principal.
const LogOwnershipTransferred = "OwnershipTransferred"

var (
	// ErrNotOwner rejects a caller that is not the current principal.
	ErrNotOwner = chain.Revert(chain.ErrAuthorization, "Ownable: caller is not the owner")
	// ErrZeroOwner rejects a transfer to the zero address; renouncing is explicit.
	ErrZeroOwner = chain.Revert(chain.ErrConfiguration, "Ownable: new owner is the zero address")
)

// Ownable stores the principal allowed through owner-gated operations.
// Once renounced the gate is disabled for good.
type Ownable struct {
	owner    common.Address
	disabled bool
}

// Init makes the deployer the owner.
func (o *Ownable) Init(ctx *chain.Ctx) error {
	return o.setOwner(ctx, ctx.Sender())
}

// Owner returns the current principal, or the zero address once renounced.
func (o *Ownable) Owner() common.Address {
	return o.owner
}

// Disabled reports whether ownership was renounced.
func (o *Ownable) Disabled() bool {
	return o.disabled
}

// OnlyOwner fails unless the caller is the principal.
func (o *Ownable) OnlyOwner(ctx *chain.Ctx) error {
	if o.disabled || ctx.Sender() != o.owner {
		return ErrNotOwner
	}
	return nil
}

// TransferOwnership hands the gate to newOwner.
func (o *Ownable) TransferOwnership(ctx *chain.Ctx, newOwner common.Address) error {
	if err := o.OnlyOwner(ctx); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroOwner
	}
	return o.setOwner(ctx, newOwner)
}

// RenounceOwnership disables every owner-gated operation. It cannot be undone.
func (o *Ownable) RenounceOwnership(ctx *chain.Ctx) error {
	if err := o.OnlyOwner(ctx); err != nil {
		return err
	}
	prevDisabled := o.disabled
	if err := o.setOwner(ctx, common.Address{}); err != nil {
		return err
	}
	o.disabled = true
	ctx.OnRevert(func() { o.disabled = prevDisabled })
	return nil
}

func (o *Ownable) setOwner(ctx *chain.Ctx, newOwner common.Address) error {
	prev := o.owner
	if err := ctx.Mutate(func() { o.owner = prev }); err != nil {
		return err
	}
	o.owner = newOwner
	return ctx.Emit(LogOwnershipTransferred, chain.Fields{
		"previousOwner": prev,
		"newOwner":      newOwner,
	})
}
