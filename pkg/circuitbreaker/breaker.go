// Package circuitbreaker guards calls to external services, primarily the
// language-generation backend. Wraps sony/gobreaker with tracing and logging
// so the synthesizer's fallback branch stays ordinary control flow.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State mirrors the underlying breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds breaker tuning.
type Config struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears counts while closed.
	Interval time.Duration
	// Timeout before an open breaker probes again.
	Timeout time.Duration
	// FailureThreshold consecutive failures trip the breaker below MinRequests.
	FailureThreshold uint32
	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig returns defaults tuned for a language-model backend: trip
// fast and probe again quickly, since a rejected call only costs a templated
// answer rather than a failed request.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      2,
		Interval:         60 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		FailureRatio:     0.5,
		MinRequests:      6,
	}
}

// Breaker wraps gobreaker with observability.
type Breaker struct {
	cb         *gobreaker.CircuitBreaker
	name       string
	logger     *zap.Logger
	tracer     trace.Tracer
	calls      metric.Int64Counter
	rejections metric.Int64Counter

	mu    sync.RWMutex
	state State
}

// New creates a breaker.
func New(cfg Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := otel.Meter("circuit-breaker")
	calls, _ := meter.Int64Counter("circuitbreaker.calls",
		metric.WithDescription("Calls attempted through the breaker"))
	rejections, _ := meter.Int64Counter("circuitbreaker.rejections",
		metric.WithDescription("Calls rejected by an open breaker"))

	b := &Breaker{
		name:       cfg.Name,
		logger:     logger,
		tracer:     otel.Tracer("circuit-breaker"),
		calls:      calls,
		rejections: rejections,
		state:      StateClosed,
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.onStateChange(from, to)
		},
	})

	return b
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func() (string, error)) (string, error) {
	_, span := b.tracer.Start(ctx, "circuit_breaker_execute",
		trace.WithAttributes(
			attribute.String("breaker", b.name),
			attribute.String("state", string(b.State())),
		))
	defer span.End()

	b.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", b.name)))

	result, err := b.cb.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		span.RecordError(err)
		if Rejected(err) {
			span.SetAttributes(attribute.Bool("circuit_open", true))
			b.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", b.name)))
		}
		return "", err
	}
	return result.(string), nil
}

// Rejected reports whether the error came from an open breaker rather than
// the wrapped call itself.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Breaker) onStateChange(from, to gobreaker.State) {
	b.mu.Lock()
	b.state = mapState(to)
	b.mu.Unlock()

	b.logger.Warn("circuit breaker state changed",
		zap.String("breaker", b.name),
		zap.String("from", string(mapState(from))),
		zap.String("to", string(mapState(to))))
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
