// Package bind provides typed handles over contracts deployed on a chain.
// Transactor methods take the sending account and return the receipt;
// caller methods run read-only against the current state.
package bind

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
)

// handle is the part shared by every binding.
type handle struct {
	chain   *chain.Chain
	address common.Address
}

// Address returns the contract address.
func (h handle) Address() common.Address {
	return h.address
}

// Chain returns the chain the contract is deployed on.
func (h handle) Chain() *chain.Chain {
	return h.chain
}

func (h handle) transact(from common.Address, fn func(ctx *chain.Ctx) error) (*chain.Receipt, error) {
	return h.chain.Transact(from, h.address, nil, fn)
}

// call runs fn read-only with an anonymous caller.
func (h handle) call(fn func(ctx *chain.Ctx) error) error {
	return h.chain.Call(common.Address{}, h.address, fn)
}

func (h handle) callAs(from common.Address, fn func(ctx *chain.Ctx) error) error {
	return h.chain.Call(from, h.address, fn)
}

// view runs fn read-only when it cannot fail.
func (h handle) view(fn func()) {
	h.call(func(*chain.Ctx) error {
		fn()
		return nil
	})
}

// resolve looks up the contract at addr and asserts its type.
func resolve[T any](c *chain.Chain, addr common.Address, kind string) (T, error) {
	var zero T
	contract, ok := c.ContractAt(addr)
	if !ok {
		return zero, fmt.Errorf("no contract at %s", addr.Hex())
	}
	typed, ok := contract.(T)
	if !ok {
		return zero, fmt.Errorf("contract at %s is not a %s", addr.Hex(), kind)
	}
	return typed, nil
}
