package bet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/oracle"
)

// EventOracle is what the engine reads from the registry it is bound to.
// *oracle.BetOracle implements it.
type EventOracle interface {
	TestConnection() bool
	Lookup(id common.Hash) (oracle.SportEvent, bool)
	GetEvent(id common.Hash) oracle.SportEvent
	GetLatestEvent(onlyPending bool) oracle.SportEvent
	GetPendingEvents(ctx *chain.Ctx) []common.Hash
}

// LedgerPort is the fungible-token ledger the engine holds DAI on.
// *token.Token implements it.
type LedgerPort interface {
	BalanceOf(owner common.Address) *big.Int
	TransferFrom(ctx *chain.Ctx, from, to common.Address, amount *big.Int) error
	Approve(ctx *chain.Ctx, spender common.Address, amount *big.Int) error
	Allowance(owner, spender common.Address) *big.Int
}

// YieldPool is where idle DAI is parked. *defipool.Pool implements it.
type YieldPool interface {
	Deposit(ctx *chain.Ctx, amount *big.Int, beneficiary common.Address) error
}
