package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/eth"
)

func TestObserveLog(t *testing.T) {
	bm := NewBetchainMetrics()

	bm.ObserveLog(chain.Log{Contract: "Bet", Name: "BetPlaced", Fields: chain.Fields{"amount": eth.MustParseEther("1")}})
	bm.ObserveLog(chain.Log{Contract: "Bet", Name: "BetPlaced", Fields: chain.Fields{"amount": eth.MustParseEther("2")}})
	bm.ObserveLog(chain.Log{Contract: "Bet", Name: "BetSettled", Fields: chain.Fields{
		"amount": eth.MustParseEther("1"),
		"payout": eth.MustParseEther("3"),
	}})
	bm.ObserveLog(chain.Log{Contract: "Bet", Name: "BetSettled", Fields: chain.Fields{
		"amount": eth.MustParseEther("2"),
		"payout": eth.MustParseEther("0"),
	}})

	if got := testutil.ToFloat64(bm.BetsPlaced.WithLabelValues()); got != 2 {
		t.Errorf("Expected 2 bets placed, got %v", got)
	}
	if got := testutil.ToFloat64(bm.BetsSettled.WithLabelValues("won")); got != 1 {
		t.Errorf("Expected 1 won, got %v", got)
	}
	if got := testutil.ToFloat64(bm.BetsSettled.WithLabelValues("lost")); got != 1 {
		t.Errorf("Expected 1 lost, got %v", got)
	}
	if got := testutil.ToFloat64(bm.PayoutVolume.WithLabelValues("settle")); got != 3 {
		t.Errorf("Expected payout volume 3, got %v", got)
	}
	if got := testutil.ToFloat64(bm.OpenBets.WithLabelValues()); got != 0 {
		t.Errorf("Expected 0 open bets, got %v", got)
	}
	if got := testutil.ToFloat64(bm.LogsTotal.WithLabelValues("Bet", "BetPlaced")); got != 2 {
		t.Errorf("Expected 2 BetPlaced logs, got %v", got)
	}
}

func TestRecordRevert(t *testing.T) {
	bm := NewBetchainMetrics()
	bm.RecordRevert("place_bet", chain.Revert(chain.ErrValue, "Bet amount must be >= minimum bet"))
	bm.RecordRevert("place_bet", errors.New("boom"))

	if got := testutil.ToFloat64(bm.RevertsTotal.WithLabelValues("place_bet", "value")); got != 1 {
		t.Errorf("Expected 1 value revert, got %v", got)
	}
	if got := testutil.ToFloat64(bm.RevertsTotal.WithLabelValues("place_bet", "internal")); got != 1 {
		t.Errorf("Expected 1 internal revert, got %v", got)
	}
}

func TestUpdateEscrow(t *testing.T) {
	bm := NewBetchainMetrics()
	bm.UpdateEscrow(eth.MustParseEther("0.25"))
	if got := testutil.ToFloat64(bm.Escrowed.WithLabelValues()); got != 0.25 {
		t.Errorf("Expected escrow 0.25, got %v", got)
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 201: "2xx", 404: "4xx", 409: "4xx", 502: "5xx"}
	for status, want := range tests {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %s, want %s", status, got, want)
		}
	}
}
