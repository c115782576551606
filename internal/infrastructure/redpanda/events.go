package redpanda

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit event types published to the advisor topics.
const (
	EventAssessmentProduced = "assessment.produced"
	EventAdviceDelivered    = "advice.delivered"
	EventReadingRejected    = "reading.rejected"
	EventEscalationRaised   = "escalation.raised"
)

// AuditEvent is the envelope for every record on the audit topics. Payload
// carries the event-specific body; the envelope fields are what the relay
// indexes on.
type AuditEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	PatientID  string          `json:"patient_id"`
	SessionID  string          `json:"session_id,omitempty"`
	RuleSet    string          `json:"rule_set,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewAuditEvent builds an envelope with a fresh id and marshalled payload.
func NewAuditEvent(eventType, patientID string, payload any) (AuditEvent, error) {
	ev := AuditEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		PatientID:  patientID,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return AuditEvent{}, err
		}
		ev.Payload = raw
	}
	return ev, nil
}

// AssessmentPayload is the body of an assessment.produced event.
type AssessmentPayload struct {
	Systolic   float64  `json:"systolic"`
	Diastolic  float64  `json:"diastolic"`
	Grade      string   `json:"grade"`
	Tier       string   `json:"tier"`
	Factors    []string `json:"factors,omitempty"`
	TrendLabel string   `json:"trend_label,omitempty"`
	Escalated  bool     `json:"escalated"`
}

// AdvicePayload is the body of an advice.delivered event.
type AdvicePayload struct {
	Degraded      bool     `json:"degraded"`
	NeedsReview   bool     `json:"needs_review"`
	Recommended   []string `json:"recommended,omitempty"`
	TextSizeBytes int      `json:"text_size_bytes"`
}

// RejectionPayload is the body of a reading.rejected event.
type RejectionPayload struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
	Reason    string  `json:"reason"`
}
