// Package keeper settles wagers once the registry declares a final outcome.
package keeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/metrics"
	"github.com/phenomenon0/betchain/pkg/oracle"
)

// Engine is the slice of the Bet binding the keeper drives.
type Engine interface {
	EventsWithOpenBets() []common.Hash
	GetEvent(id common.Hash) (oracle.SportEvent, error)
	SettleEvent(from common.Address, id common.Hash) (int, *chain.Receipt, error)
}

// Config configures the keeper loop.
type Config struct {
	Account  common.Address
	Interval time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{Interval: 15 * time.Second}
}

// Settlement is the result of settling one event.
type Settlement struct {
	EventID   common.Hash   `json:"eventId"`
	Outcome   string        `json:"outcome"`
	Settled   int           `json:"settled"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Status is a snapshot of keeper state.
type Status struct {
	Running     bool      `json:"running"`
	Runs        int       `json:"runs"`
	Settlements int       `json:"settlements"`
	Failures    int       `json:"failures"`
	LastRun     time.Time `json:"lastRun"`
}

// Keeper polls the engine and settles every event whose outcome is final.
type Keeper struct {
	config  *Config
	engine  Engine
	logger  *logrus.Logger
	metrics *metrics.BetchainMetrics

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	runs        int
	settlements int
	failures    int
	lastRun     time.Time

	onSettled func(*Settlement)
	onError   func(error)
}

// New creates a keeper. A nil config uses DefaultConfig and nil metrics disables instrumentation.
func New(config *Config, engine Engine, logger *logrus.Logger, m *metrics.BetchainMetrics) *Keeper {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Keeper{
		config:  config,
		engine:  engine,
		logger:  logger,
		metrics: m,
	}
}

// OnSettled sets a callback for completed settlements.
func (k *Keeper) OnSettled(fn func(*Settlement)) {
	k.onSettled = fn
}

// OnError sets a callback for errors.
func (k *Keeper) OnError(fn func(error)) {
	k.onError = fn
}

// Start runs one pass immediately, then polls in the background until Stop or ctx is done.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return fmt.Errorf("keeper already running")
	}
	k.running = true
	k.stopCh = make(chan struct{})
	k.doneCh = make(chan struct{})
	k.mu.Unlock()

	k.logger.WithFields(logrus.Fields{
		"account":  k.config.Account.Hex(),
		"interval": k.config.Interval.String(),
	}).Info("keeper started")

	if err := k.RunOnce(ctx); err != nil {
		k.handleError(fmt.Errorf("initial pass failed: %w", err))
	}

	go k.loop(ctx)
	return nil
}

// Stop stops the polling loop and waits for it to exit.
func (k *Keeper) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	close(k.stopCh)
	k.running = false
	done := k.doneCh
	k.mu.Unlock()

	<-done
	k.logger.Info("keeper stopped")
}

// IsRunning returns true if the keeper is polling.
func (k *Keeper) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

// GetStatus returns keeper counters.
func (k *Keeper) GetStatus() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return Status{
		Running:     k.running,
		Runs:        k.runs,
		Settlements: k.settlements,
		Failures:    k.failures,
		LastRun:     k.lastRun,
	}
}

func (k *Keeper) loop(ctx context.Context) {
	defer close(k.doneCh)

	ticker := time.NewTicker(k.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.mu.Lock()
			k.running = false
			k.mu.Unlock()
			return
		case <-k.stopCh:
			return
		case <-ticker.C:
			if err := k.RunOnce(ctx); err != nil {
				k.handleError(err)
			}
		}
	}
}

// RunOnce settles every event that has open bets and a final outcome.
// A failure on one event does not stop the pass; the first error is returned.
func (k *Keeper) RunOnce(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in keeper pass: %v", r)
			k.logger.WithField("panic", r).Error("keeper pass panicked")
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		k.mu.Lock()
		k.runs++
		k.lastRun = start
		k.mu.Unlock()
		if k.metrics != nil {
			k.metrics.RecordKeeperRun(status, time.Since(start).Seconds())
		}
	}()

	var firstErr error
	for _, id := range k.engine.EventsWithOpenBets() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, settleErr := k.settle(id)
		if result == nil {
			continue
		}
		if settleErr != nil && firstErr == nil {
			firstErr = settleErr
		}
		if k.onSettled != nil && settleErr == nil {
			k.onSettled(result)
		}
	}
	return firstErr
}

// settle returns a nil result when the event is not final yet.
func (k *Keeper) settle(id common.Hash) (*Settlement, error) {
	log := k.logger.WithField("event_id", id.Hex())

	event, err := k.engine.GetEvent(id)
	if err != nil {
		k.recordFailure("lookup")
		log.WithError(err).Warn("failed to read event outcome")
		return &Settlement{EventID: id, Error: err.Error(), Timestamp: time.Now()}, fmt.Errorf("read event %s: %w", id.Hex(), err)
	}
	if !event.Outcome.Terminal() {
		return nil, nil
	}

	start := time.Now()
	settled, _, err := k.engine.SettleEvent(k.config.Account, id)
	result := &Settlement{
		EventID:   id,
		Outcome:   event.Outcome.String(),
		Settled:   settled,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	if err != nil {
		result.Error = err.Error()
		k.recordFailure("settle")
		if k.metrics != nil {
			k.metrics.RecordRevert("settle_event", err)
		}
		log.WithError(err).Warn("settlement failed")
		return result, fmt.Errorf("settle event %s: %w", id.Hex(), err)
	}

	k.mu.Lock()
	k.settlements += settled
	k.mu.Unlock()
	if k.metrics != nil {
		k.metrics.RecordKeeperSettlement("settled")
	}
	log.WithFields(logrus.Fields{
		"outcome": result.Outcome,
		"winner":  event.Winner,
		"bets":    settled,
	}).Info("event settled")
	return result, nil
}

func (k *Keeper) recordFailure(stage string) {
	k.mu.Lock()
	k.failures++
	k.mu.Unlock()
	if k.metrics != nil {
		k.metrics.RecordKeeperSettlement("failed_" + stage)
	}
}

func (k *Keeper) handleError(err error) {
	k.logger.WithError(err).Error("keeper error")
	if k.onError != nil {
		k.onError(err)
	}
}
