// Package redpanda is the clinical audit trail transport. Assessment and
// advice events stream onto Kafka-compatible topics via franz-go; publishing
// is fire-and-forget so a broker outage never delays an advisory response.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinovate/bpadvisor/internal/observability/metrics"
)

// PublisherConfig holds configuration for the audit publisher.
type PublisherConfig struct {
	Brokers []string
	// LingerMS batches events for this long before a send.
	LingerMS int64
	// MaxBufferedRecords caps in-flight events while the broker is away.
	MaxBufferedRecords int
	Compression        string
	MaxRetries         int
	RetryBackoffMS     int64
}

// DefaultPublisherConfig returns defaults tuned for low-volume audit
// streams: modest buffering, durable acks, lz4 on the wire.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Brokers:            []string{"localhost:9092"},
		LingerMS:           100,
		MaxBufferedRecords: 10_000,
		Compression:        "lz4",
		MaxRetries:         3,
		RetryBackoffMS:     250,
	}
}

// Publisher streams audit events to the advisor topics.
type Publisher struct {
	client  *kgo.Client
	config  PublisherConfig
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics

	mu        sync.RWMutex
	published int64
	dropped   int64
	lastFlush time.Time
}

// NewPublisher creates an audit publisher. The metrics argument may be nil.
func NewPublisher(cfg PublisherConfig, m *metrics.Metrics, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Duration(cfg.RetryBackoffMS) * time.Millisecond * time.Duration(attempt+1)
		}),
	}

	switch cfg.Compression {
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Publisher{
		client:    client,
		config:    cfg,
		logger:    logger,
		tracer:    otel.Tracer("audit-publisher"),
		metrics:   m,
		lastFlush: time.Now(),
	}, nil
}

// Publish emits an event to the topic without waiting for the broker.
// Keyed on patient id so one patient's trail stays ordered per partition.
// Errors surface only in logs and counters; callers never block on them.
func (p *Publisher) Publish(ctx context.Context, topic string, ev AuditEvent) {
	ctx, span := p.tracer.Start(ctx, "audit_publish",
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("event_type", ev.EventType),
		))
	defer span.End()

	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("audit event marshal failed",
			zap.String("event_type", ev.EventType), zap.Error(err))
		return
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.PatientID),
		Value: value,
	}
	injectTraceHeaders(ctx, record)

	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.mu.Lock()
			p.dropped++
			p.mu.Unlock()
			p.logger.Warn("audit event not delivered",
				zap.String("topic", topic),
				zap.String("event_type", ev.EventType),
				zap.Error(err))
			return
		}
		p.mu.Lock()
		p.published++
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.AuditEventsEmitted.Inc()
		}
		p.logger.Debug("audit event published",
			zap.String("topic", r.Topic),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset))
	})
}

// Flush blocks until buffered events are on the broker.
func (p *Publisher) Flush(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	p.mu.Lock()
	p.lastFlush = time.Now()
	p.mu.Unlock()
	return nil
}

// Close flushes with a bounded deadline and closes the client.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("error flushing on close", zap.Error(err))
	}
	p.client.Close()
	return nil
}

// Stats reports publisher delivery counters.
func (p *Publisher) Stats() PublisherStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PublisherStats{
		Published: p.published,
		Dropped:   p.dropped,
		LastFlush: p.lastFlush,
	}
}

// PublisherStats holds delivery counters.
type PublisherStats struct {
	Published int64
	Dropped   int64
	LastFlush time.Time
}

// injectTraceHeaders adds W3C trace context to record headers.
func injectTraceHeaders(ctx context.Context, record *kgo.Record) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	sc := span.SpanContext()
	record.Headers = append(record.Headers,
		kgo.RecordHeader{Key: "traceparent", Value: []byte(fmt.Sprintf("00-%s-%s-%02x",
			sc.TraceID().String(),
			sc.SpanID().String(),
			sc.TraceFlags()))},
	)
}
