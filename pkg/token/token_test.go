package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/eth"
)

var (
	deployer = common.HexToAddress("0xd000000000000000000000000000000000000001")
	holder   = common.HexToAddress("0xd000000000000000000000000000000000000002")
	spender  = common.HexToAddress("0xd000000000000000000000000000000000000003")
)

func deployToken(t *testing.T) (*chain.Chain, common.Address, *Token) {
	t.Helper()
	c := chain.New()
	tok := New()
	addr, _, err := c.Deploy(deployer, tok)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	return c, addr, tok
}

func TestInitialSupply(t *testing.T) {
	_, _, tok := deployToken(t)

	want := eth.MustParseEther("100")
	if tok.TotalSupply().Cmp(want) != 0 {
		t.Errorf("Expected supply 100 DAI, got %s", tok.TotalSupply())
	}
	if tok.BalanceOf(deployer).Cmp(want) != 0 {
		t.Errorf("Expected deployer to hold the supply, got %s", tok.BalanceOf(deployer))
	}
	if tok.ContractName() != "DAI" || Name != "Dai Stablecoin" || Decimals != 18 {
		t.Error("Unexpected token metadata")
	}
}

func TestTransfer(t *testing.T) {
	c, addr, tok := deployToken(t)
	amount := eth.MustParseEther("10")

	receipt, err := c.Transact(deployer, addr, nil, func(ctx *chain.Ctx) error {
		return tok.Transfer(ctx, holder, amount)
	})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if l, ok := receipt.FindLog(LogTransfer); !ok || l.Fields["to"] != holder {
		t.Errorf("Unexpected Transfer log: %+v", l)
	}
	if tok.BalanceOf(holder).Cmp(amount) != 0 {
		t.Errorf("Expected holder balance 10, got %s", tok.BalanceOf(holder))
	}

	_, err = c.Transact(deployer, addr, nil, func(ctx *chain.Ctx) error {
		return tok.Transfer(ctx, common.Address{}, amount)
	})
	if err == nil || err.Error() != "ERC20: transfer to the zero address" {
		t.Errorf("Expected zero address rejection, got %v", err)
	}

	_, err = c.Transact(holder, addr, nil, func(ctx *chain.Ctx) error {
		return tok.Transfer(ctx, spender, eth.MustParseEther("11"))
	})
	if !errors.Is(err, chain.ErrTransfer) || err.Error() != "ERC20: transfer amount exceeds balance" {
		t.Errorf("Expected balance rejection, got %v", err)
	}
}

func TestApproveAndTransferFrom(t *testing.T) {
	c, addr, tok := deployToken(t)
	amount := eth.MustParseEther("1")

	// The deployer approves itself and spends its own allowance.
	if _, err := c.Transact(deployer, addr, nil, func(ctx *chain.Ctx) error {
		return tok.Approve(ctx, deployer, amount)
	}); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if tok.Allowance(deployer, deployer).Cmp(amount) != 0 {
		t.Errorf("Expected allowance 1, got %s", tok.Allowance(deployer, deployer))
	}

	if _, err := c.Transact(deployer, addr, nil, func(ctx *chain.Ctx) error {
		return tok.TransferFrom(ctx, deployer, holder, amount)
	}); err != nil {
		t.Fatalf("TransferFrom failed: %v", err)
	}
	if tok.Allowance(deployer, deployer).Sign() != 0 {
		t.Error("Allowance should be spent")
	}
	if tok.BalanceOf(holder).Cmp(amount) != 0 {
		t.Errorf("Expected holder balance 1, got %s", tok.BalanceOf(holder))
	}

	_, err := c.Transact(spender, addr, nil, func(ctx *chain.Ctx) error {
		return tok.TransferFrom(ctx, deployer, spender, amount)
	})
	if err == nil || err.Error() != "ERC20: insufficient allowance" {
		t.Errorf("Expected allowance rejection, got %v", err)
	}

	_, err = c.Transact(deployer, addr, nil, func(ctx *chain.Ctx) error {
		return tok.Approve(ctx, common.Address{}, amount)
	})
	if err == nil || err.Error() != "ERC20: approve to the zero address" {
		t.Errorf("Expected zero spender rejection, got %v", err)
	}
}

func TestTransferFromRevertKeepsAllowance(t *testing.T) {
	c, addr, tok := deployToken(t)
	allowance := eth.MustParseEther("500")

	c.Transact(holder, addr, nil, func(ctx *chain.Ctx) error {
		return tok.Approve(ctx, spender, allowance)
	})
	// holder has no DAI, so the transfer fails after the allowance check.
	_, err := c.Transact(spender, addr, nil, func(ctx *chain.Ctx) error {
		return tok.TransferFrom(ctx, holder, spender, big.NewInt(1))
	})
	if err == nil {
		t.Fatal("Expected transfer to fail")
	}
	if tok.Allowance(holder, spender).Cmp(allowance) != 0 {
		t.Errorf("Allowance should be untouched, got %s", tok.Allowance(holder, spender))
	}
}

func TestMint(t *testing.T) {
	c, addr, tok := deployToken(t)
	amount := eth.MustParseEther("5")

	_, err := c.Transact(holder, addr, nil, func(ctx *chain.Ctx) error {
		return tok.Mint(ctx, holder, amount)
	})
	if !errors.Is(err, chain.ErrAuthorization) {
		t.Errorf("Expected authorization error, got %v", err)
	}

	if _, err := c.Transact(deployer, addr, nil, func(ctx *chain.Ctx) error {
		return tok.Mint(ctx, holder, amount)
	}); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if tok.TotalSupply().Cmp(eth.MustParseEther("105")) != 0 {
		t.Errorf("Expected supply 105, got %s", tok.TotalSupply())
	}
}
