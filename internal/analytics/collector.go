package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/kafka"
)

// Sink receives batches of events.
type Sink interface {
	Publish(ctx context.Context, events []QueryEvent) error
}

// Collector buffers events and flushes them to every sink when a batch
// fills or the flush interval elapses. Track never blocks; events arriving
// while the buffer is full are dropped and counted.
type Collector struct {
	sinks         []Sink
	eventCh       chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	started       atomic.Bool
	logger        *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewCollector(bufferSize, batchSize int, flushInterval time.Duration, sinks ...Sink) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Collector{
		sinks:         sinks,
		eventCh:       make(chan QueryEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start runs the flush loop until Close is called or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	c.started.Store(true)
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"sinks", len(c.sinks),
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]QueryEvent, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		for _, s := range c.sinks {
			if err := s.Publish(ctx, batch); err != nil {
				c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
			}
		}
		batch = make([]QueryEvent, 0, c.batchSize)
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				flush(context.Background())
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			c.drain(&batch)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			cancel()
			return
		}
	}
}

func (c *Collector) drain(batch *[]QueryEvent) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, event)
		default:
			return
		}
	}
}

// Track enqueues event. It is safe to call after Close; the event is dropped.
func (c *Collector) Track(event QueryEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics buffer full, dropping events", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events, flushes what is buffered and waits for the
// flush loop to exit.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	if c.started.Load() {
		<-c.done
	}
}

// KafkaSink publishes events to a Kafka topic keyed by operation.
type KafkaSink struct {
	producer *kafka.Producer
}

func NewKafkaSink(producer *kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (k *KafkaSink) Publish(ctx context.Context, events []QueryEvent) error {
	batch := make([]kafka.Event, len(events))
	for i, e := range events {
		batch[i] = kafka.Event{Key: string(e.Operation), Value: e}
	}
	return k.producer.PublishBatch(ctx, batch)
}
