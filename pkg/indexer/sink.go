package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/betchain/pkg/chain"
	"github.com/phenomenon0/betchain/pkg/metrics"
)

const (
	defaultBufferSize = 1024
	writeTimeout      = 5 * time.Second
)

// LogWriter persists a single log.
type LogWriter interface {
	SaveLog(ctx context.Context, l chain.Log) error
}

// Sink buffers chain logs and writes them on a background goroutine,
// so chain subscribers never wait on the database.
type Sink struct {
	writer  LogWriter
	logger  *logrus.Logger
	metrics *metrics.BetchainMetrics

	queue    chan chain.Log
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	written int
	dropped int
	failed  int
}

// NewSink creates a sink. bufferSize <= 0 uses the default.
func NewSink(writer LogWriter, logger *logrus.Logger, m *metrics.BetchainMetrics, bufferSize int) *Sink {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sink{
		writer:   writer,
		logger:   logger,
		metrics:  m,
		queue:    make(chan chain.Log, bufferSize),
		stopChan: make(chan struct{}),
	}
}

// Handle enqueues a log. It is the chain subscription callback and never blocks;
// logs arriving while the buffer is full are dropped and counted.
func (s *Sink) Handle(l chain.Log) {
	select {
	case s.queue <- l:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.recordError()
		s.logger.WithFields(logrus.Fields{
			"index": l.Index,
			"name":  l.Name,
		}).Warn("indexer buffer full, dropping log")
	}
}

// Start begins writing queued logs.
func (s *Sink) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case l := <-s.queue:
				s.write(ctx, l)
			case <-s.stopChan:
				s.drain(ctx)
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop writes what is still queued and waits for the writer to exit.
func (s *Sink) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// Stats returns written, dropped and failed counts.
func (s *Sink) Stats() (written, dropped, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.dropped, s.failed
}

func (s *Sink) drain(ctx context.Context) {
	for {
		select {
		case l := <-s.queue:
			s.write(ctx, l)
		default:
			return
		}
	}
}

func (s *Sink) write(ctx context.Context, l chain.Log) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := s.writer.SaveLog(writeCtx, l); err != nil {
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
		s.recordError()
		s.logger.WithError(err).WithField("index", l.Index).Error("failed to index log")
		return
	}
	s.mu.Lock()
	s.written++
	s.mu.Unlock()
}

func (s *Sink) recordError() {
	if s.metrics != nil {
		s.metrics.RecordSinkError("indexer")
	}
}
