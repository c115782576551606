package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/clinovate/bpadvisor/internal/infrastructure/redpanda"
)

// ArchiveEvent writes one audit event into the durable archive. Replays are
// harmless: the event id is the primary key and conflicts are ignored, which
// is what makes at-least-once delivery from the relay safe.
func (s *Store) ArchiveEvent(ctx context.Context, topic string, ev redpanda.AuditEvent) error {
	ctx, span := s.tracer.Start(ctx, "archive_event")
	span.SetAttributes(
		attribute.String("topic", topic),
		attribute.String("event_type", ev.EventType),
	)
	defer span.End()

	query := `
		INSERT INTO audit_archive (event_id, topic, event_type, patient_id, session_id, rule_set, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}
	if _, err := s.pool.Exec(ctx, query,
		ev.EventID, topic, ev.EventType, ev.PatientID, ev.SessionID, ev.RuleSet, ev.OccurredAt, payload); err != nil {
		span.RecordError(err)
		return fmt.Errorf("archive event: %w", err)
	}
	return nil
}

// ArchivedEvent is one row of the audit archive.
type ArchivedEvent struct {
	EventID    string    `json:"event_id"`
	Topic      string    `json:"topic"`
	EventType  string    `json:"event_type"`
	PatientID  string    `json:"patient_id"`
	SessionID  string    `json:"session_id,omitempty"`
	RuleSet    string    `json:"rule_set,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    []byte    `json:"payload,omitempty"`
}

// PatientTrail returns a patient's archived events, newest first.
func (s *Store) PatientTrail(ctx context.Context, patientID string, limit int) ([]ArchivedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, topic, event_type, patient_id, session_id, rule_set, occurred_at, payload
		FROM audit_archive
		WHERE patient_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("load trail: %w", err)
	}
	defer rows.Close()

	var out []ArchivedEvent
	for rows.Next() {
		var ev ArchivedEvent
		if err := rows.Scan(&ev.EventID, &ev.Topic, &ev.EventType, &ev.PatientID,
			&ev.SessionID, &ev.RuleSet, &ev.OccurredAt, &ev.Payload); err != nil {
			return nil, fmt.Errorf("scan trail row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
