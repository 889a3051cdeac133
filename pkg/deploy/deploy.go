// Package deploy puts the DAI ledger, the betting engine, the event oracle
// and the yield pool on a chain and wires the engine to the oracle.
package deploy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/bet"
	"github.com/phenomenon0/betchain/pkg/bind"
	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/defipool"
	"github.com/phenomenon0/betchain/pkg/oracle"
	"github.com/phenomenon0/betchain/pkg/token"
)

// Options tune the deployed contracts.
type Options struct {
	Bet         bet.Config
	PoolRateBps int64
}

// DefaultOptions returns the engine defaults and a 5% pool.
func DefaultOptions() Options {
	return Options{
		Bet:         bet.DefaultConfig(),
		PoolRateBps: defipool.DefaultRateBps,
	}
}

// Deployment holds the addresses and bindings of a full deployment.
type Deployment struct {
	Deployer common.Address

	DAI    *bind.Token
	Bet    *bind.Bet
	Oracle *bind.Oracle
	Pool   *bind.Pool
}

// Addresses maps contract names to addresses.
func (d *Deployment) Addresses() map[string]common.Address {
	return map[string]common.Address{
		"DAI":       d.DAI.Address(),
		"Bet":       d.Bet.Address(),
		"BetOracle": d.Oracle.Address(),
		"DefiPool":  d.Pool.Address(),
	}
}

// All deploys DAI, Bet, BetOracle and DefiPool in that order from deployer
// and binds the engine to the oracle.
func All(c *chain.Chain, deployer common.Address, opts Options) (*Deployment, error) {
	daiAddr, _, err := c.Deploy(deployer, token.New())
	if err != nil {
		return nil, fmt.Errorf("deploy DAI: %w", err)
	}
	betAddr, _, err := c.Deploy(deployer, bet.New(daiAddr, opts.Bet))
	if err != nil {
		return nil, fmt.Errorf("deploy Bet: %w", err)
	}
	oracleAddr, _, err := c.Deploy(deployer, oracle.New())
	if err != nil {
		return nil, fmt.Errorf("deploy BetOracle: %w", err)
	}
	poolAddr, _, err := c.Deploy(deployer, defipool.New(daiAddr, opts.PoolRateBps))
	if err != nil {
		return nil, fmt.Errorf("deploy DefiPool: %w", err)
	}

	d := &Deployment{Deployer: deployer}
	if d.DAI, err = bind.NewToken(c, daiAddr); err != nil {
		return nil, err
	}
	if d.Bet, err = bind.NewBet(c, betAddr); err != nil {
		return nil, err
	}
	if d.Oracle, err = bind.NewOracle(c, oracleAddr); err != nil {
		return nil, err
	}
	if d.Pool, err = bind.NewPool(c, poolAddr); err != nil {
		return nil, err
	}

	if _, err := d.Bet.SetOracleAddress(deployer, oracleAddr); err != nil {
		return nil, fmt.Errorf("set oracle address: %w", err)
	}
	return d, nil
}
