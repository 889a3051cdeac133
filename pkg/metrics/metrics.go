// Package metrics provides Prometheus metrics for betchain.
package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/eth"
)

// BetchainMetrics collects and exposes wagering Prometheus metrics.
type BetchainMetrics struct {
	registry *prometheus.Registry

	// Chain metrics
	LogsTotal    *prometheus.CounterVec
	RevertsTotal *prometheus.CounterVec

	// Registry metrics
	EventsRegistered *prometheus.CounterVec
	OutcomesDeclared *prometheus.CounterVec

	// Wager metrics
	BetsPlaced    *prometheus.CounterVec
	BetStake      *prometheus.HistogramVec
	BetsCancelled *prometheus.CounterVec
	BetsSettled   *prometheus.CounterVec
	PayoutVolume  *prometheus.CounterVec
	Escrowed      *prometheus.GaugeVec
	OpenBets      *prometheus.GaugeVec

	// Keeper metrics
	KeeperRuns        *prometheus.CounterVec
	KeeperDuration    *prometheus.HistogramVec
	KeeperSettlements *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Sink metrics
	SinkErrors *prometheus.CounterVec

	mu       sync.Mutex
	openBets int
}

// NewBetchainMetrics creates a new metrics collector on its own registry.
func NewBetchainMetrics() *BetchainMetrics {
	registry := prometheus.NewRegistry()

	bm := &BetchainMetrics{
		registry: registry,

		LogsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_logs_total",
				Help: "Total number of contract logs committed",
			},
			[]string{"contract", "name"},
		),
		RevertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_reverts_total",
				Help: "Total number of reverted transactions",
			},
			[]string{"operation", "kind"},
		),

		EventsRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_events_registered_total",
				Help: "Total number of sport events registered",
			},
			[]string{"kind"},
		),
		OutcomesDeclared: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_outcomes_declared_total",
				Help: "Total number of outcome declarations",
			},
			[]string{"outcome"},
		),

		BetsPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_bets_placed_total",
				Help: "Total number of bets placed",
			},
			[]string{},
		),
		BetStake: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betchain_bet_stake_ether",
				Help:    "Stake of placed bets in ether",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
			},
			[]string{},
		),
		BetsCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_bets_cancelled_total",
				Help: "Total number of bets cancelled",
			},
			[]string{},
		),
		BetsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_bets_settled_total",
				Help: "Total number of bets settled",
			},
			[]string{"result"},
		),
		PayoutVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_payout_ether_total",
				Help: "Total ether paid out by settlements and cancellations",
			},
			[]string{"reason"},
		),
		Escrowed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betchain_escrow_ether",
				Help: "Ether currently escrowed by the betting engine",
			},
			[]string{},
		),
		OpenBets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betchain_open_bets",
				Help: "Current number of open bets",
			},
			[]string{},
		),

		KeeperRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_keeper_runs_total",
				Help: "Total number of keeper passes",
			},
			[]string{"status"},
		),
		KeeperDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betchain_keeper_run_duration_seconds",
				Help:    "Keeper pass duration",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
			},
			[]string{},
		),
		KeeperSettlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_keeper_settlements_total",
				Help: "Events settled by the keeper",
			},
			[]string{"status"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betchain_http_request_duration_seconds",
				Help:    "API request latency",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"route"},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betchain_sink_errors_total",
				Help: "Total number of failed log deliveries to off-chain sinks",
			},
			[]string{"sink"},
		),
	}

	bm.registerAll()

	return bm
}

func (bm *BetchainMetrics) registerAll() {
	bm.registry.MustRegister(
		bm.LogsTotal,
		bm.RevertsTotal,
		bm.EventsRegistered,
		bm.OutcomesDeclared,
		bm.BetsPlaced,
		bm.BetStake,
		bm.BetsCancelled,
		bm.BetsSettled,
		bm.PayoutVolume,
		bm.Escrowed,
		bm.OpenBets,
		bm.KeeperRuns,
		bm.KeeperDuration,
		bm.KeeperSettlements,
		bm.HTTPRequests,
		bm.HTTPDuration,
		bm.SinkErrors,
	)
}

// Registry returns the prometheus registry.
func (bm *BetchainMetrics) Registry() *prometheus.Registry {
	return bm.registry
}

// --- Helper methods for recording metrics ---

// ObserveLog updates the wager metrics from a committed contract log.
// Subscribe it to the chain.
func (bm *BetchainMetrics) ObserveLog(l chain.Log) {
	bm.LogsTotal.WithLabelValues(l.Contract, l.Name).Inc()

	switch l.Name {
	case "SportEventAdded":
		bm.EventsRegistered.WithLabelValues(fieldString(l, "kind")).Inc()
	case "OutcomeDeclared":
		bm.OutcomesDeclared.WithLabelValues(fieldString(l, "outcome")).Inc()
	case "BetPlaced":
		bm.BetsPlaced.WithLabelValues().Inc()
		bm.BetStake.WithLabelValues().Observe(fieldEther(l, "amount"))
		bm.addOpenBets(1)
	case "BetCancelled":
		bm.BetsCancelled.WithLabelValues().Inc()
		bm.PayoutVolume.WithLabelValues("cancel").Add(fieldEther(l, "amount"))
		bm.addOpenBets(-1)
	case "BetSettled":
		stake, payout := fieldEther(l, "amount"), fieldEther(l, "payout")
		bm.BetsSettled.WithLabelValues(settleResult(stake, payout)).Inc()
		bm.PayoutVolume.WithLabelValues("settle").Add(payout)
		bm.addOpenBets(-1)
	}
}

// RecordRevert records a transaction that reverted.
func (bm *BetchainMetrics) RecordRevert(operation string, err error) {
	bm.RevertsTotal.WithLabelValues(operation, chain.KindName(err)).Inc()
}

// UpdateEscrow sets the escrow gauge from a wei amount.
func (bm *BetchainMetrics) UpdateEscrow(wei *big.Int) {
	bm.Escrowed.WithLabelValues().Set(DecimalToFloat64(eth.ToDecimal(wei, eth.EtherDecimals)))
}

// RecordKeeperRun records one keeper pass.
func (bm *BetchainMetrics) RecordKeeperRun(status string, durationSec float64) {
	bm.KeeperRuns.WithLabelValues(status).Inc()
	if durationSec > 0 {
		bm.KeeperDuration.WithLabelValues().Observe(durationSec)
	}
}

// RecordKeeperSettlement records the keeper settling (or failing to settle) an event.
func (bm *BetchainMetrics) RecordKeeperSettlement(status string) {
	bm.KeeperSettlements.WithLabelValues(status).Inc()
}

// RecordHTTP records one API request.
func (bm *BetchainMetrics) RecordHTTP(method, route string, status int, durationSec float64) {
	bm.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	bm.HTTPDuration.WithLabelValues(route).Observe(durationSec)
}

// RecordSinkError records a failed delivery to an off-chain sink.
func (bm *BetchainMetrics) RecordSinkError(sink string) {
	bm.SinkErrors.WithLabelValues(sink).Inc()
}

func (bm *BetchainMetrics) addOpenBets(delta int) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.openBets += delta
	if bm.openBets < 0 {
		bm.openBets = 0
	}
	bm.OpenBets.WithLabelValues().Set(float64(bm.openBets))
}

func settleResult(stake, payout float64) string {
	switch {
	case payout == 0:
		return "lost"
	case payout > stake:
		return "won"
	default:
		return "returned"
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func fieldString(l chain.Log, key string) string {
	if s, ok := l.Fields[key].(interface{ String() string }); ok {
		return s.String()
	}
	return "unknown"
}

func fieldEther(l chain.Log, key string) float64 {
	wei, ok := l.Fields[key].(*big.Int)
	if !ok {
		return 0
	}
	return DecimalToFloat64(eth.ToDecimal(wei, eth.EtherDecimals))
}

// --- Decimal helpers ---

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *BetchainMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *BetchainMetrics {
	once.Do(func() {
		defaultMetrics = NewBetchainMetrics()
	})
	return defaultMetrics
}
