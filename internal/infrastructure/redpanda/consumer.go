package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ConsumerConfig holds configuration for the audit relay consumer.
type ConsumerConfig struct {
	Brokers             []string
	GroupID             string
	Topics              []string
	SessionTimeoutMS    int64
	HeartbeatIntervalMS int64
	FetchMaxBytes       int32
	// StartOffset is "earliest" or "latest".
	StartOffset string
}

// DefaultConsumerConfig returns defaults for the audit relay: the full
// advisor topic set, earliest offsets so a fresh relay backfills the trail.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:             []string{"localhost:9092"},
		GroupID:             "advisor-audit-relay",
		Topics:              []string{TopicAssessments, TopicAdvice, TopicRejections, TopicEscalations},
		SessionTimeoutMS:    30000,
		HeartbeatIntervalMS: 3000,
		FetchMaxBytes:       16 * 1024 * 1024,
		StartOffset:         "earliest",
	}
}

// EventHandler is called for each decoded audit event. A non-nil error
// leaves the offset uncommitted so the event is redelivered.
type EventHandler func(ctx context.Context, topic string, ev AuditEvent) error

// Consumer drains the audit topics and feeds events to a handler. Offsets
// commit only after the handler succeeds.
type Consumer struct {
	client  *kgo.Client
	config  ConsumerConfig
	logger  *zap.Logger
	tracer  trace.Tracer
	handler EventHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	eventsRead int64
	errorCount int64
	lastCommit time.Time
}

// NewConsumer creates an audit consumer.
func NewConsumer(cfg ConsumerConfig, handler EventHandler, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		return nil, errors.New("event handler is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.SessionTimeout(time.Duration(cfg.SessionTimeoutMS) * time.Millisecond),
		kgo.HeartbeatInterval(time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond),
		kgo.FetchMaxBytes(cfg.FetchMaxBytes),
		kgo.DisableAutoCommit(),
	}

	switch cfg.StartOffset {
	case "latest":
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	default:
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	opts = append(opts,
		kgo.OnPartitionsAssigned(func(ctx context.Context, client *kgo.Client, assigned map[string][]int32) {
			logger.Info("partitions assigned", zap.Any("partitions", assigned))
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, client *kgo.Client, revoked map[string][]int32) {
			logger.Info("partitions revoked", zap.Any("partitions", revoked))
		}),
	)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		client:  client,
		config:  cfg,
		logger:  logger,
		tracer:  otel.Tracer("audit-relay"),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins consuming in a background goroutine.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consumeLoop()
}

// Stop drains the loop and closes the client. Offsets are committed
// per record, so there is nothing pending to flush here.
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	c.client.Close()
	return nil
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		fetches := c.client.PollFetches(c.ctx)
		if fetches.IsClientClosed() {
			return
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				c.logger.Error("fetch error",
					zap.String("topic", err.Topic),
					zap.Int32("partition", err.Partition),
					zap.Error(err.Err))
				c.incrementErrors()
			}
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			c.processRecord(record)
		})
	}
}

func (c *Consumer) processRecord(record *kgo.Record) {
	ctx, span := c.tracer.Start(c.ctx, "relay_event",
		trace.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.Int64("offset", record.Offset),
		))
	defer span.End()

	if c.relay(ctx, span, record) {
		c.commit(ctx, record)
	}
}

// relay decodes and handles one record, reporting whether its offset may be
// committed. A handler failure holds the offset back so the record is
// redelivered; committing anything past it would lose the event.
func (c *Consumer) relay(ctx context.Context, span trace.Span, record *kgo.Record) bool {
	var ev AuditEvent
	if err := json.Unmarshal(record.Value, &ev); err != nil {
		// Undecodable records commit immediately; redelivery cannot fix them.
		c.logger.Error("malformed audit event, skipping",
			zap.String("topic", record.Topic),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		span.RecordError(err)
		c.incrementErrors()
		return true
	}

	if err := c.handler(ctx, record.Topic, ev); err != nil {
		c.logger.Error("audit handler failed",
			zap.String("topic", record.Topic),
			zap.String("event_type", ev.EventType),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		span.RecordError(err)
		c.incrementErrors()
		return false
	}

	c.mu.Lock()
	c.eventsRead++
	c.mu.Unlock()
	return true
}

// commit commits exactly this record's offset. Committing the client's
// uncommitted offsets instead would advance past records whose handler
// failed in the same poll.
func (c *Consumer) commit(ctx context.Context, record *kgo.Record) {
	if err := c.client.CommitRecords(ctx, record); err != nil {
		c.logger.Error("failed to commit offset",
			zap.String("topic", record.Topic),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		return
	}
	c.mu.Lock()
	c.lastCommit = time.Now()
	c.mu.Unlock()
}

// Stats reports relay counters.
func (c *Consumer) Stats() ConsumerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConsumerStats{
		EventsRead: c.eventsRead,
		ErrorCount: c.errorCount,
		LastCommit: c.lastCommit,
	}
}

// ConsumerStats holds relay counters.
type ConsumerStats struct {
	EventsRead int64
	ErrorCount int64
	LastCommit time.Time
}

func (c *Consumer) incrementErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
}
