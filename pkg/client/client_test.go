package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/betchain/pkg/api"
	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/deploy"
	"github.com/phenomenon0/betchain/pkg/eth"
)

type fixture struct {
	chain *chain.Chain
	d     *deploy.Deployment
	url   string
	owner *Client
	alice *Client
	bob   *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	wallets, err := eth.DevWallets(3)
	if err != nil {
		t.Fatalf("DevWallets failed: %v", err)
	}
	c := chain.New()
	c.SetTime(time.Unix(1_700_000_000, 0))
	for _, w := range wallets {
		c.Fund(w.Address(), eth.MustParseEther("10"))
	}
	d, err := deploy.All(c, wallets[0].Address(), deploy.DefaultOptions())
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	server := httptest.NewServer(api.NewServer(api.DefaultConfig(), c, d, logger, nil).Routes())
	t.Cleanup(server.Close)

	newClient := func(addr common.Address) *Client {
		return NewClient(WithBaseURL(server.URL), WithAccount(addr), WithRateLimit(1000, 100))
	}
	return &fixture{
		chain: c,
		d:     d,
		url:   server.URL,
		owner: newClient(wallets[0].Address()),
		alice: newClient(wallets[1].Address()),
		bob:   newClient(wallets[2].Address()),
	}
}

func (f *fixture) addEvent(t *testing.T, name string) common.Hash {
	t.Helper()
	id, err := f.owner.AddEvent(context.Background(), api.AddEventRequest{
		Name:         name,
		Participants: []string{"Lakers", "Celtics"},
		Date:         f.chain.Now().Add(time.Hour).Unix(),
		Kind:         "basketball",
	})
	if err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	return id
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	health, err := f.alice.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Unexpected health: %v", health)
	}
}

func TestEventAndBetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.addEvent(t, "Finals Game 7")

	events, err := f.alice.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != id.Hex() || !events[0].Open {
		t.Fatalf("Unexpected events: %+v", events)
	}

	latest, err := f.alice.LatestEvent(ctx, true)
	if err != nil {
		t.Fatalf("LatestEvent failed: %v", err)
	}
	if latest.Name != "Finals Game 7" || latest.Outcome != "pending" {
		t.Errorf("Unexpected latest event: %+v", latest)
	}

	if _, err := f.alice.PlaceBet(ctx, id, 0, "1"); err != nil {
		t.Fatalf("alice PlaceBet failed: %v", err)
	}
	if _, err := f.bob.PlaceBet(ctx, id, 1, "1"); err != nil {
		t.Fatalf("bob PlaceBet failed: %v", err)
	}

	bet, err := f.alice.GetBet(ctx, id)
	if err != nil {
		t.Fatalf("GetBet failed: %v", err)
	}
	if bet.ChosenWinner != 0 || bet.Amount != "1" {
		t.Errorf("Unexpected bet: %+v", bet)
	}
	wagers, err := f.alice.EventWagers(ctx, id)
	if err != nil {
		t.Fatalf("EventWagers failed: %v", err)
	}
	if len(wagers) != 2 {
		t.Errorf("Expected 2 wagers, got %d", len(wagers))
	}

	if _, err := f.owner.DeclareOutcome(ctx, id, "decided", 0); err != nil {
		t.Fatalf("DeclareOutcome failed: %v", err)
	}
	settled, err := f.bob.SettleEvent(ctx, id)
	if err != nil {
		t.Fatalf("SettleEvent failed: %v", err)
	}
	if settled != 2 {
		t.Errorf("Expected 2 settlements, got %d", settled)
	}

	account, err := f.alice.GetAccount(ctx, f.alice.Account())
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.Balance != "11" || len(account.OpenBets) != 0 {
		t.Errorf("Unexpected alice account: %+v", account)
	}
	bets, err := f.bob.ListBets(ctx)
	if err != nil {
		t.Fatalf("ListBets failed: %v", err)
	}
	if len(bets) != 0 {
		t.Errorf("Expected bob to have no open bets, got %+v", bets)
	}
}

func TestCancelBet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.addEvent(t, "Preseason")

	if _, err := f.alice.PlaceBet(ctx, id, 1, "0.25"); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	refund, err := f.alice.CancelBet(ctx, id)
	if err != nil {
		t.Fatalf("CancelBet failed: %v", err)
	}
	if refund != "0.25" {
		t.Errorf("Expected refund 0.25, got %s", refund)
	}
}

func TestAPIErrorUnwrapsToChainKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.addEvent(t, "Semis")

	_, err := f.alice.AddEvent(ctx, api.AddEventRequest{
		Name:         "Rogue",
		Participants: []string{"A", "B"},
		Date:         f.chain.Now().Add(time.Hour).Unix(),
		Kind:         "rugby",
	})
	if !errors.Is(err, chain.ErrAuthorization) {
		t.Errorf("Expected authorization error, got %v", err)
	}

	_, err = f.alice.PlaceBet(ctx, id, 0, "0.01")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Kind != "value" {
		t.Errorf("Unexpected error: %+v", apiErr)
	}
	if apiErr.Message != "Bet amount must be >= minimum bet" {
		t.Errorf("Unexpected message: %s", apiErr.Message)
	}
	if !errors.Is(err, chain.ErrValue) {
		t.Error("Expected errors.Is(err, chain.ErrValue)")
	}

	_, err = f.alice.SettleBet(ctx, id)
	if !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}

	_, err = f.alice.GetEvent(ctx, common.HexToHash("0x01"))
	if !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("Expected not found for unknown event, got %v", err)
	}
}

func TestOracle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.alice.Oracle(ctx)
	if err != nil {
		t.Fatalf("Oracle failed: %v", err)
	}
	if status.Address != f.d.Oracle.Address().Hex() || !status.Connected {
		t.Errorf("Unexpected oracle status: %+v", status)
	}

	if _, err := f.alice.SetOracle(ctx, f.d.Oracle.Address()); !errors.Is(err, chain.ErrAuthorization) {
		t.Errorf("Expected authorization error, got %v", err)
	}
	if _, err := f.owner.SetOracle(ctx, f.d.Oracle.Address()); err != nil {
		t.Errorf("SetOracle failed: %v", err)
	}
}

func TestAccountHeader(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(api.AccountHeader)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"bets": []api.BetView{}})
	}))
	defer server.Close()

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	c := NewClient(WithBaseURL(server.URL), WithAccount(addr))
	if _, err := c.ListBets(context.Background()); err != nil {
		t.Fatalf("ListBets failed: %v", err)
	}
	if got != addr.Hex() {
		t.Errorf("Expected account header %s, got %s", addr.Hex(), got)
	}
}

func TestNonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(WithBaseURL(server.URL)).ListEvents(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusServiceUnavailable || apiErr.Message != "upstream down" {
		t.Errorf("Unexpected error: %+v", apiErr)
	}
	if errors.Unwrap(err) != nil {
		t.Error("Expected no chain kind for a plain error")
	}
}

func TestLedgerAndPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.alice.Account()

	if _, err := f.owner.TransferDAI(ctx, alice, "30"); err != nil {
		t.Fatalf("TransferDAI failed: %v", err)
	}
	if _, err := f.alice.ApproveDAI(ctx, f.d.Pool.Address(), "30"); err != nil {
		t.Fatalf("ApproveDAI failed: %v", err)
	}
	allowance, err := f.alice.Allowance(ctx, alice, f.d.Pool.Address())
	if err != nil || allowance != "30" {
		t.Fatalf("Expected allowance 30, got %q (%v)", allowance, err)
	}

	if _, err := f.alice.DepositPool(ctx, "9", common.Address{}); !errors.Is(err, chain.ErrValue) {
		t.Errorf("Expected value error below the minimum deposit, got %v", err)
	}
	if _, err := f.alice.DepositPool(ctx, "12", common.Address{}); err != nil {
		t.Fatalf("DepositPool failed: %v", err)
	}
	pos, err := f.alice.Position(ctx, alice)
	if err != nil {
		t.Fatalf("Position failed: %v", err)
	}
	if pos.Principal != "12" {
		t.Errorf("Expected principal 12, got %s", pos.Principal)
	}

	paid, err := f.alice.WithdrawPool(ctx)
	if err != nil {
		t.Fatalf("WithdrawPool failed: %v", err)
	}
	if paid != "12" {
		t.Errorf("Expected 12 paid, got %s", paid)
	}
	if _, err := f.alice.WithdrawPool(ctx); !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("Expected not found on second withdraw, got %v", err)
	}

	token, err := f.alice.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token.Address != f.d.DAI.Address().Hex() {
		t.Errorf("Unexpected token: %+v", token)
	}
}

func TestOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.bob.Owner(ctx, "oracle")
	if err != nil {
		t.Fatalf("Owner failed: %v", err)
	}
	if view.Owner != f.owner.Account().Hex() || view.Renounced {
		t.Errorf("Unexpected owner: %+v", view)
	}

	if _, err := f.bob.TransferOwnership(ctx, "oracle", f.bob.Account()); !errors.Is(err, chain.ErrAuthorization) {
		t.Errorf("Expected authorization error, got %v", err)
	}
	view, err = f.owner.TransferOwnership(ctx, "oracle", f.bob.Account())
	if err != nil {
		t.Fatalf("TransferOwnership failed: %v", err)
	}
	if view.Owner != f.bob.Account().Hex() {
		t.Errorf("Expected bob to own the oracle, got %+v", view)
	}

	view, err = f.bob.RenounceOwnership(ctx, "oracle")
	if err != nil {
		t.Fatalf("RenounceOwnership failed: %v", err)
	}
	if !view.Renounced {
		t.Errorf("Expected the oracle to be renounced, got %+v", view)
	}
	if _, err := f.bob.DeclareOutcome(ctx, common.Hash{1}, "draw", 0); !errors.Is(err, chain.ErrAuthorization) {
		t.Errorf("Expected authorization error after renounce, got %v", err)
	}

	var apiErr *APIError
	if _, err := f.owner.Owner(ctx, "pool"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("Expected 404 for an unowned contract, got %v", err)
	}
}
