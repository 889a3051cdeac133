package defipool_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/bind"
	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/defipool"
	"github.com/phenomenon0/betchain/pkg/eth"
	"github.com/phenomenon0/betchain/pkg/token"
)

var (
	deployer = common.HexToAddress("0xe000000000000000000000000000000000000001")
	saver    = common.HexToAddress("0xe000000000000000000000000000000000000002")
)

func setup(t *testing.T, rateBps int64) (*chain.Chain, *bind.Token, *bind.Pool) {
	t.Helper()
	c := chain.New()
	c.SetTime(time.Unix(1_700_000_000, 0))
	daiAddr, _, err := c.Deploy(deployer, token.New())
	if err != nil {
		t.Fatalf("Deploy DAI failed: %v", err)
	}
	poolAddr, _, err := c.Deploy(deployer, defipool.New(daiAddr, rateBps))
	if err != nil {
		t.Fatalf("Deploy pool failed: %v", err)
	}
	dai, _ := bind.NewToken(c, daiAddr)
	pool, _ := bind.NewPool(c, poolAddr)
	return c, dai, pool
}

func TestDepositMinimum(t *testing.T) {
	_, dai, pool := setup(t, defipool.DefaultRateBps)
	dai.Approve(deployer, pool.Address(), eth.MustParseEther("100"))

	_, err := pool.Deposit(deployer, eth.MustParseEther("9.99"), deployer)
	if err == nil || err.Error() != "Error, deposit must be >= 10 DAI" {
		t.Errorf("Expected minimum deposit rejection, got %v", err)
	}

	if _, err := pool.Deposit(deployer, eth.MustParseEther("10"), saver); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	bal, err := pool.GetContractBalance(pool.Address())
	if err != nil || bal.Cmp(eth.MustParseEther("10")) != 0 {
		t.Errorf("Expected pool balance 10, got %v, %v", bal, err)
	}
	if pos, ok := pool.PositionOf(saver); !ok || pos.Principal.Cmp(eth.MustParseEther("10")) != 0 {
		t.Errorf("Expected saver position of 10, got %+v", pos)
	}
}

func TestDepositRequiresAllowance(t *testing.T) {
	_, _, pool := setup(t, defipool.DefaultRateBps)

	_, err := pool.Deposit(deployer, eth.MustParseEther("10"), deployer)
	if err == nil || err.Error() != "ERC20: insufficient allowance" {
		t.Errorf("Expected allowance rejection, got %v", err)
	}
}

func TestWithdrawWithInterest(t *testing.T) {
	c, dai, pool := setup(t, 1000)

	// Seed the pool so it can pay interest.
	dai.Transfer(deployer, pool.Address(), eth.MustParseEther("10"))
	dai.Transfer(deployer, saver, eth.MustParseEther("20"))
	dai.Approve(saver, pool.Address(), eth.MustParseEther("20"))
	if _, err := pool.Deposit(saver, eth.MustParseEther("20"), saver); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	c.AdvanceTime(365 * 24 * time.Hour)
	total, receipt, err := pool.Withdraw(saver)
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if total.Cmp(eth.MustParseEther("22")) != 0 {
		t.Errorf("Expected 20 + 10%% = 22, got %s", eth.FormatEther(total))
	}
	if _, ok := receipt.FindLog(defipool.LogWithdrawn); !ok {
		t.Error("Expected Withdrawn log")
	}
	if dai.BalanceOf(saver).Cmp(eth.MustParseEther("22")) != 0 {
		t.Errorf("Expected saver to hold 22, got %s", dai.BalanceOf(saver))
	}

	if _, _, err := pool.Withdraw(saver); err == nil {
		t.Error("Expected second withdraw to fail")
	}
}

func TestWithdrawShortfallReverts(t *testing.T) {
	c, dai, pool := setup(t, 1000)
	dai.Approve(deployer, pool.Address(), eth.MustParseEther("10"))
	pool.Deposit(deployer, eth.MustParseEther("10"), deployer)

	c.AdvanceTime(365 * 24 * time.Hour)
	if _, _, err := pool.Withdraw(deployer); err == nil {
		t.Fatal("Expected withdraw to fail without reserves for interest")
	}
	pos, ok := pool.PositionOf(deployer)
	if !ok || pos.Principal.Cmp(eth.MustParseEther("10")) != 0 {
		t.Error("Position should survive a failed withdraw")
	}
}
