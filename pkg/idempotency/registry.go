// Package idempotency suppresses duplicate reading submissions. Home
// monitors and flaky mobile clients retry uploads; a deterministic key of
// Hash(PatientID+Systolic+Diastolic+Timestamp) lets the API accept the
// retry without double-counting the reading.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds registry configuration.
type Config struct {
	// TTL is how long a key blocks resubmission.
	TTL time.Duration
	// CleanupInterval is how often expired keys are purged.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults: a day of dedup cover, hourly
// purges.
func DefaultConfig() Config {
	return Config{
		TTL:             24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
	}
}

// Registry records seen submission keys in Postgres so dedup survives
// restarts and is shared across API replicas.
type Registry struct {
	pool   *pgxpool.Pool
	config Config
	logger *zap.Logger
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates a registry over an open pool.
func NewRegistry(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		pool:   pool,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("idempotency"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// GenerateKey builds a deterministic submission key. The timestamp is
// truncated to the minute so clock drift between retries does not defeat
// the dedup.
func GenerateKey(patientID string, systolic, diastolic float64, takenAt time.Time) string {
	parts := []string{
		patientID,
		fmt.Sprintf("%.1f", systolic),
		fmt.Sprintf("%.1f", diastolic),
		takenAt.UTC().Truncate(time.Minute).Format(time.RFC3339),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// execer is the slice of pgxpool.Pool the key claim needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Register claims a key. It returns true when this submission is the first
// with that key inside the TTL window.
func (r *Registry) Register(ctx context.Context, key string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "idempotency_register",
		trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	first, err := claim(ctx, r.pool, key, time.Now().Add(r.config.TTL))
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	span.SetAttributes(attribute.Bool("duplicate", !first))
	return first, nil
}

// claim inserts the key, reclaiming an expired row the cleanup loop has not
// purged yet; an expired key must not block a legitimate resubmission. Only
// a live conflicting row leaves zero rows affected.
func claim(ctx context.Context, db execer, key string, expiresAt time.Time) (bool, error) {
	query := `
		INSERT INTO submission_keys (submission_key, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (submission_key) DO UPDATE
		SET expires_at = EXCLUDED.expires_at
		WHERE submission_keys.expires_at < NOW()
	`
	tag, err := db.Exec(ctx, query, key, expiresAt)
	if err != nil {
		return false, fmt.Errorf("register key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// StartCleanup launches the background purge loop.
func (r *Registry) StartCleanup() {
	go r.cleanupLoop()
	r.logger.Info("idempotency cleanup started",
		zap.Duration("interval", r.config.CleanupInterval))
}

// Stop halts the purge loop.
func (r *Registry) Stop() {
	r.cancel()
	<-r.done
}

func (r *Registry) cleanupLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if err := r.cleanup(r.ctx); err != nil {
				r.logger.Error("idempotency cleanup failed", zap.Error(err))
			}
		}
	}
}

func (r *Registry) cleanup(ctx context.Context) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM submission_keys WHERE expires_at < NOW()`)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		r.logger.Info("idempotency cleanup completed",
			zap.Int64("deleted", result.RowsAffected()))
	}
	return nil
}
