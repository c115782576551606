// Package postgres persists patient profiles, blood-pressure readings, and
// the archived audit trail.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinovate/bpadvisor/internal/domain/patient"
)

// ErrNotFound is returned when a patient id has no row.
var ErrNotFound = errors.New("postgres: not found")

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id              TEXT PRIMARY KEY,
	age             INT NOT NULL,
	sex             TEXT NOT NULL DEFAULT '',
	height_cm       DOUBLE PRECISION NOT NULL DEFAULT 0,
	weight_kg       DOUBLE PRECISION NOT NULL DEFAULT 0,
	conditions      JSONB NOT NULL DEFAULT '{}',
	active_classes  JSONB NOT NULL DEFAULT '{}',
	contraindicated JSONB NOT NULL DEFAULT '{}',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS readings (
	id         BIGSERIAL PRIMARY KEY,
	patient_id TEXT NOT NULL REFERENCES patients(id),
	systolic   DOUBLE PRECISION NOT NULL,
	diastolic  DOUBLE PRECISION NOT NULL,
	heart_rate INT NOT NULL DEFAULT 0,
	taken_at   TIMESTAMPTZ NOT NULL,
	location   TEXT NOT NULL DEFAULT '',
	notes      TEXT NOT NULL DEFAULT '',
	synthetic  BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS readings_patient_taken
	ON readings (patient_id, taken_at DESC);

CREATE TABLE IF NOT EXISTS submission_keys (
	submission_key TEXT PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_archive (
	event_id    TEXT PRIMARY KEY,
	topic       TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	patient_id  TEXT NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	rule_set    TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	payload     JSONB,
	archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS audit_archive_patient
	ON audit_archive (patient_id, occurred_at DESC);
`

// NewPool opens a pgx pool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Store wraps the pool with the advisor's persistence operations.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewStore creates a store over an open pool.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("postgres-store"),
	}
}

// EnsureSchema creates the advisor tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPatient inserts or refreshes a patient profile.
func (s *Store) UpsertPatient(ctx context.Context, p patient.Profile) error {
	ctx, span := s.tracer.Start(ctx, "upsert_patient",
		trace.WithAttributes(attribute.String("patient_id", p.ID)))
	defer span.End()

	conditions, err := json.Marshal(p.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	active, err := json.Marshal(p.ActiveClasses)
	if err != nil {
		return fmt.Errorf("marshal active classes: %w", err)
	}
	contra, err := json.Marshal(p.Contraindicated)
	if err != nil {
		return fmt.Errorf("marshal contraindications: %w", err)
	}

	query := `
		INSERT INTO patients (id, age, sex, height_cm, weight_kg, conditions, active_classes, contraindicated, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			age = EXCLUDED.age,
			sex = EXCLUDED.sex,
			height_cm = EXCLUDED.height_cm,
			weight_kg = EXCLUDED.weight_kg,
			conditions = EXCLUDED.conditions,
			active_classes = EXCLUDED.active_classes,
			contraindicated = EXCLUDED.contraindicated,
			updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query,
		p.ID, p.Age, p.Sex, p.HeightCM, p.WeightKG, conditions, active, contra); err != nil {
		span.RecordError(err)
		return fmt.Errorf("upsert patient: %w", err)
	}
	return nil
}

// GetPatient loads a profile by id. Returns ErrNotFound for unknown ids.
func (s *Store) GetPatient(ctx context.Context, id string) (patient.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "get_patient",
		trace.WithAttributes(attribute.String("patient_id", id)))
	defer span.End()

	query := `
		SELECT id, age, sex, height_cm, weight_kg, conditions, active_classes, contraindicated
		FROM patients WHERE id = $1
	`

	var p patient.Profile
	var conditions, active, contra []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Age, &p.Sex, &p.HeightCM, &p.WeightKG, &conditions, &active, &contra)
	if errors.Is(err, pgx.ErrNoRows) {
		return patient.Profile{}, fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	if err != nil {
		span.RecordError(err)
		return patient.Profile{}, fmt.Errorf("get patient: %w", err)
	}

	if err := json.Unmarshal(conditions, &p.Conditions); err != nil {
		return patient.Profile{}, fmt.Errorf("decode conditions: %w", err)
	}
	if err := json.Unmarshal(active, &p.ActiveClasses); err != nil {
		return patient.Profile{}, fmt.Errorf("decode active classes: %w", err)
	}
	if err := json.Unmarshal(contra, &p.Contraindicated); err != nil {
		return patient.Profile{}, fmt.Errorf("decode contraindications: %w", err)
	}
	return p, nil
}

// ListPatientIDs returns every patient id, oldest profile first.
func (s *Store) ListPatientIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM patients ORDER BY updated_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan patient id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertReading stores one reading for a patient.
func (s *Store) InsertReading(ctx context.Context, patientID string, r patient.Reading) error {
	ctx, span := s.tracer.Start(ctx, "insert_reading",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	query := `
		INSERT INTO readings (patient_id, systolic, diastolic, heart_rate, taken_at, location, notes, synthetic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.pool.Exec(ctx, query,
		patientID, r.Systolic, r.Diastolic, r.HeartRate, r.TakenAt, r.Location, r.Notes, r.Synthetic); err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// Readings loads up to limit most recent readings, returned oldest first so
// the history feeds trend analysis directly. limit <= 0 loads everything.
func (s *Store) Readings(ctx context.Context, patientID string, limit int) (patient.History, error) {
	ctx, span := s.tracer.Start(ctx, "load_readings",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	query := `
		SELECT systolic, diastolic, heart_rate, taken_at, location, notes, synthetic
		FROM readings WHERE patient_id = $1
		ORDER BY taken_at DESC
	`
	args := []any{patientID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load readings: %w", err)
	}
	defer rows.Close()

	var h patient.History
	for rows.Next() {
		var r patient.Reading
		if err := rows.Scan(&r.Systolic, &r.Diastolic, &r.HeartRate, &r.TakenAt, &r.Location, &r.Notes, &r.Synthetic); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		h = append(h, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Flip newest-first to chronological.
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	return h, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
