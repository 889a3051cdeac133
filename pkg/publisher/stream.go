// Package publisher mirrors chain logs onto Redis Streams.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/metrics"
)

const (
	// GlobalStream receives every log.
	GlobalStream = "betchain.logs"
	// DefaultMaxLen caps each stream, approximately.
	DefaultMaxLen = 10000

	defaultBufferSize = 1024
	publishTimeout    = 2 * time.Second
)

// StreamKey returns the per-contract stream for a log.
func StreamKey(contract string) string {
	if contract == "" {
		contract = "unknown"
	}
	return fmt.Sprintf("%s.%s", GlobalStream, contract)
}

// StreamAdder is the subset of the Redis client used for publishing.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamPublisher publishes chain logs to Redis streams from a background
// goroutine fed by a bounded queue.
type StreamPublisher struct {
	client  StreamAdder
	maxLen  int64
	logger  *logrus.Logger
	metrics *metrics.BetchainMetrics

	queue    chan chain.Log
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	published int
	dropped   int
	failed    int
}

// NewStreamPublisher creates a new stream publisher. bufferSize <= 0 uses the default.
func NewStreamPublisher(client StreamAdder, logger *logrus.Logger, m *metrics.BetchainMetrics, bufferSize int) *StreamPublisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &StreamPublisher{
		client:   client,
		maxLen:   DefaultMaxLen,
		logger:   logger,
		metrics:  m,
		queue:    make(chan chain.Log, bufferSize),
		stopChan: make(chan struct{}),
	}
}

// Start begins publishing queued logs.
func (p *StreamPublisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case l := <-p.queue:
				p.publish(ctx, l)
			case <-p.stopChan:
				p.drain(ctx)
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop publishes what is still queued and waits for the publisher to exit.
func (p *StreamPublisher) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

// Stats returns published, dropped and failed counts.
func (p *StreamPublisher) Stats() (published, dropped, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.dropped, p.failed
}

// PublishLog adds the log to its contract stream and to the global stream.
func (p *StreamPublisher) PublishLog(ctx context.Context, l chain.Log) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshaling log %d: %w", l.Index, err)
	}

	values := map[string]interface{}{
		"data":     string(data),
		"index":    strconv.FormatUint(l.Index, 10),
		"contract": l.Contract,
		"name":     l.Name,
		"tx_hash":  l.TxHash.Hex(),
	}
	for _, stream := range []string{StreamKey(l.Contract), GlobalStream} {
		err := p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: values,
		}).Err()
		if err != nil {
			return fmt.Errorf("xadd %s: %w", stream, err)
		}
	}
	return nil
}

// Handle is the chain subscription callback. It never blocks; logs arriving
// while the queue is full are dropped and counted.
func (p *StreamPublisher) Handle(l chain.Log) {
	select {
	case p.queue <- l:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.recordError()
		p.logger.WithFields(logrus.Fields{
			"index": l.Index,
			"name":  l.Name,
		}).Warn("stream publisher buffer full, dropping log")
	}
}

func (p *StreamPublisher) drain(ctx context.Context) {
	for {
		select {
		case l := <-p.queue:
			p.publish(ctx, l)
		default:
			return
		}
	}
}

// publish failures are logged, never returned, since the chain is the source of truth.
func (p *StreamPublisher) publish(ctx context.Context, l chain.Log) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.PublishLog(pubCtx, l); err != nil {
		p.mu.Lock()
		p.failed++
		p.mu.Unlock()
		p.recordError()
		p.logger.WithError(err).WithFields(logrus.Fields{
			"index": l.Index,
			"name":  l.Name,
		}).Warn("publish to stream failed")
		return
	}
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
}

func (p *StreamPublisher) recordError() {
	if p.metrics != nil {
		p.metrics.RecordSinkError("redis")
	}
}
