package chain

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// vault is a minimal payable contract used to exercise the substrate.
type vault struct {
	deposits map[common.Address]*big.Int
	inits    int
}

func newVault() *vault {
	return &vault{deposits: make(map[common.Address]*big.Int)}
}

func (v *vault) ContractName() string { return "Vault" }

func (v *vault) Init(ctx *Ctx) error {
	v.inits++
	return nil
}

func (v *vault) Receive(ctx *Ctx) error {
	return v.deposit(ctx)
}

func (v *vault) deposit(ctx *Ctx) error {
	sender := ctx.Sender()
	prev, had := v.deposits[sender]
	if err := ctx.Mutate(func() {
		if had {
			v.deposits[sender] = prev
		} else {
			delete(v.deposits, sender)
		}
	}); err != nil {
		return err
	}
	total := new(big.Int).Set(ctx.Value())
	if had {
		total.Add(total, prev)
	}
	v.deposits[sender] = total
	return ctx.Emit("Deposited", Fields{"account": sender, "amount": ctx.Value()})
}

func (v *vault) withdraw(ctx *Ctx, to common.Address) error {
	sender := ctx.Sender()
	amount, ok := v.deposits[sender]
	if !ok {
		return Revert(ErrNotFound, "Nothing deposited")
	}
	if err := ctx.Mutate(func() { v.deposits[sender] = amount }); err != nil {
		return err
	}
	delete(v.deposits, sender)
	if err := ctx.Emit("Withdrawn", Fields{"account": sender, "amount": amount}); err != nil {
		return err
	}
	return ctx.Transfer(to, amount)
}

// sink is a deployed contract that does not accept value.
type sink struct{}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func setup(t *testing.T) (*Chain, common.Address, *vault) {
	t.Helper()
	c := New(WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))
	c.Fund(alice, big.NewInt(1000))
	c.Fund(bob, big.NewInt(1000))
	v := newVault()
	addr, _, err := c.Deploy(alice, v)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	return c, addr, v
}

func TestDeploy(t *testing.T) {
	c, addr, v := setup(t)

	if v.inits != 1 {
		t.Errorf("Expected Init to run once, ran %d times", v.inits)
	}
	if got, ok := c.ContractAt(addr); !ok || got != v {
		t.Error("Contract not registered at deployed address")
	}

	second, _, err := c.Deploy(alice, newVault())
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if second == addr {
		t.Error("Expected distinct addresses for consecutive deployments")
	}

	if _, _, err := c.Deploy(common.Address{}, newVault()); err == nil {
		t.Error("Expected deploy from zero address to fail")
	}
}

func TestTransactEscrowsValue(t *testing.T) {
	c, addr, v := setup(t)

	receipt, err := c.Transact(alice, addr, big.NewInt(300), v.deposit)
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	if c.Balance(alice).Int64() != 700 {
		t.Errorf("Expected sender balance 700, got %s", c.Balance(alice))
	}
	if c.Balance(addr).Int64() != 300 {
		t.Errorf("Expected contract balance 300, got %s", c.Balance(addr))
	}

	l, ok := receipt.FindLog("Deposited")
	if !ok {
		t.Fatal("Expected Deposited log in receipt")
	}
	if l.Contract != "Vault" || l.Address != addr {
		t.Errorf("Unexpected log attribution: %s at %s", l.Contract, l.Address.Hex())
	}
	if receipt.TxHash == (common.Hash{}) {
		t.Error("Expected a transaction hash")
	}
}

func TestTransactInsufficientFunds(t *testing.T) {
	c, addr, v := setup(t)

	_, err := c.Transact(alice, addr, big.NewInt(5000), v.deposit)
	if !errors.Is(err, ErrValue) {
		t.Fatalf("Expected value error, got %v", err)
	}
	if c.Balance(alice).Int64() != 1000 {
		t.Errorf("Balance should be untouched, got %s", c.Balance(alice))
	}
}

func TestRevertRollsBackEverything(t *testing.T) {
	c, addr, v := setup(t)

	if _, err := c.Transact(alice, addr, big.NewInt(100), v.deposit); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// Withdrawing to a contract that cannot receive value must undo the
	// bookkeeping that happened before the transfer.
	sinkAddr, _, err := c.Deploy(bob, &sink{})
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	logsBefore := len(c.Logs())

	_, err = c.Transact(alice, addr, nil, func(ctx *Ctx) error {
		return v.withdraw(ctx, sinkAddr)
	})
	if !errors.Is(err, ErrTransfer) {
		t.Fatalf("Expected transfer failure, got %v", err)
	}
	if Reason(err) != "Transfer rejected by recipient" {
		t.Errorf("Unexpected reason: %q", Reason(err))
	}

	if got := v.deposits[alice]; got == nil || got.Int64() != 100 {
		t.Errorf("Deposit record should be restored, got %v", got)
	}
	if c.Balance(addr).Int64() != 100 {
		t.Errorf("Contract balance should be restored, got %s", c.Balance(addr))
	}
	if len(c.Logs()) != logsBefore {
		t.Errorf("Expected no new logs, got %d", len(c.Logs())-logsBefore)
	}
}

func TestTransferToAccount(t *testing.T) {
	c, addr, v := setup(t)

	if _, err := c.Transact(alice, addr, big.NewInt(250), v.deposit); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := c.Transact(alice, addr, nil, func(ctx *Ctx) error {
		return v.withdraw(ctx, bob)
	}); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if c.Balance(bob).Int64() != 1250 {
		t.Errorf("Expected bob balance 1250, got %s", c.Balance(bob))
	}
	if c.Balance(addr).Sign() != 0 {
		t.Errorf("Expected empty contract, got %s", c.Balance(addr))
	}
}

func TestSendToPayable(t *testing.T) {
	c, addr, v := setup(t)

	if _, err := c.Send(bob, addr, big.NewInt(40)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if v.deposits[bob].Int64() != 40 {
		t.Errorf("Expected Receive to record 40, got %s", v.deposits[bob])
	}

	sinkAddr, _, _ := c.Deploy(bob, &sink{})
	if _, err := c.Send(bob, sinkAddr, big.NewInt(1)); !errors.Is(err, ErrTransfer) {
		t.Errorf("Expected transfer failure sending to non-payable, got %v", err)
	}
	if c.Balance(bob).Int64() != 960 {
		t.Errorf("Failed send should not move value, got %s", c.Balance(bob))
	}
}

func TestCallIsReadOnly(t *testing.T) {
	c, addr, v := setup(t)

	err := c.Call(alice, addr, v.deposit)
	if !errors.Is(err, ErrState) {
		t.Fatalf("Expected state error from read-only call, got %v", err)
	}

	var sender common.Address
	if err := c.Call(bob, addr, func(ctx *Ctx) error {
		sender = ctx.Sender()
		return nil
	}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if sender != bob {
		t.Errorf("Expected sender %s, got %s", bob.Hex(), sender.Hex())
	}
}

func TestNestedCallSender(t *testing.T) {
	c, addr, _ := setup(t)
	other, _, _ := c.Deploy(bob, newVault())

	var seen common.Address
	_, err := c.Transact(alice, addr, nil, func(ctx *Ctx) error {
		return ctx.Call(other, func(inner *Ctx) error {
			seen = inner.Sender()
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	if seen != addr {
		t.Errorf("Nested call should see calling contract as sender, got %s", seen.Hex())
	}

	_, err = c.Transact(alice, addr, nil, func(ctx *Ctx) error {
		return ctx.Call(bob, func(*Ctx) error { return nil })
	})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected configuration error calling an account, got %v", err)
	}
}

func TestSubscribeDeliversInOrder(t *testing.T) {
	c, addr, v := setup(t)

	var names []string
	unsubscribe := c.Subscribe(func(l Log) {
		names = append(names, l.Name)
	})

	c.Transact(alice, addr, big.NewInt(10), v.deposit)
	c.Transact(alice, addr, nil, func(ctx *Ctx) error { return v.withdraw(ctx, alice) })
	c.Transact(bob, addr, nil, func(ctx *Ctx) error { return v.withdraw(ctx, bob) }) // reverts

	if len(names) != 2 || names[0] != "Deposited" || names[1] != "Withdrawn" {
		t.Errorf("Unexpected delivered logs: %v", names)
	}

	unsubscribe()
	c.Transact(alice, addr, big.NewInt(10), v.deposit)
	if len(names) != 2 {
		t.Error("Expected no delivery after unsubscribe")
	}

	logs := c.Logs()
	for i, l := range logs {
		if l.Index != uint64(i) {
			t.Errorf("Log %d has index %d", i, l.Index)
		}
	}
}

// exploding panics in Init.
type exploding struct{}

func (exploding) Init(ctx *Ctx) error {
	return ctx.Emit("Boom", Fields{"value": new(big.Int).Div(big.NewInt(1), new(big.Int))})
}

func TestPanicRevertsAndReleasesChain(t *testing.T) {
	c, addr, v := setup(t)

	_, err := c.Transact(alice, addr, big.NewInt(100), func(ctx *Ctx) error {
		if err := v.deposit(ctx); err != nil {
			return err
		}
		new(big.Int).Div(big.NewInt(1), new(big.Int))
		return nil
	})
	if err == nil || !strings.Contains(Reason(err), "panicked") {
		t.Fatalf("Expected a panic revert, got %v", err)
	}
	if KindName(err) != "internal" {
		t.Errorf("Expected no error class, got %s", KindName(err))
	}

	done := make(chan *big.Int, 1)
	go func() { done <- c.Balance(alice) }()
	select {
	case bal := <-done:
		if bal.Int64() != 1000 {
			t.Errorf("Expected value returned to alice, got %s", bal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Chain still locked after a panicking transaction")
	}
	if len(v.deposits) != 0 || len(c.Logs()) != 0 {
		t.Error("Expected the panicking transaction to leave no state or logs")
	}

	if _, err := c.Transact(alice, addr, big.NewInt(10), v.deposit); err != nil {
		t.Errorf("Expected later transactions to succeed, got %v", err)
	}
}

func TestDeployPanicReverts(t *testing.T) {
	c := New()
	c.Fund(alice, big.NewInt(1))

	addr, _, err := c.Deploy(alice, exploding{})
	if err == nil {
		t.Fatal("Expected deploy to fail")
	}
	if _, ok := c.ContractAt(addr); ok {
		t.Error("Expected the failed deployment to be unregistered")
	}
	if _, _, err := c.Deploy(alice, newVault()); err != nil {
		t.Errorf("Expected a later deploy to succeed, got %v", err)
	}
}

func TestSlowSubscriberDoesNotBlockReads(t *testing.T) {
	c, addr, v := setup(t)

	release := make(chan struct{})
	entered := make(chan struct{}, 4)
	var mu sync.Mutex
	var names []string
	c.Subscribe(func(l Log) {
		entered <- struct{}{}
		<-release
		mu.Lock()
		names = append(names, l.Name)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Transact(alice, addr, big.NewInt(10), v.deposit)
	}()
	<-entered
	go func() {
		defer wg.Done()
		c.Transact(bob, addr, big.NewInt(20), v.deposit)
	}()

	done := make(chan struct{})
	go func() {
		for c.Balance(bob).Int64() != 980 {
			time.Sleep(time.Millisecond)
		}
		c.Balance(alice)
		c.Logs()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reads blocked behind a slow subscriber")
	}

	close(release)
	wg.Wait()
	if len(names) != 2 || names[0] != "Deposited" || names[1] != "Deposited" {
		t.Errorf("Unexpected delivered logs: %v", names)
	}
	logs := c.Logs()
	if len(logs) != 2 || logs[0].Fields["account"] != alice || logs[1].Fields["account"] != bob {
		t.Errorf("Unexpected commit order: %+v", logs)
	}
}

func TestClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := New()
	c.SetTime(start)
	c.AdvanceTime(48 * time.Hour)

	if want := start.Add(48 * time.Hour); !c.Now().Equal(want) {
		t.Errorf("Expected %v, got %v", want, c.Now())
	}
}

func TestKindName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{Revert(ErrAuthorization, "x"), "authorization"},
		{Revert(ErrNotFound, "x"), "not_found"},
		{Revert(ErrTransfer, "x"), "transfer"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := KindName(tt.err); got != tt.want {
			t.Errorf("KindName(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestKindByName(t *testing.T) {
	for _, kind := range []error{ErrAuthorization, ErrConfiguration, ErrNotFound, ErrState, ErrValue, ErrTransfer} {
		if got := KindByName(KindName(kind)); got != kind {
			t.Errorf("KindByName(%s) = %v, want %v", KindName(kind), got, kind)
		}
	}
	if KindByName("internal") != nil {
		t.Error("Expected nil for internal")
	}
}
