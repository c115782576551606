package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinovate/bpadvisor/internal/advice"
	"github.com/clinovate/bpadvisor/internal/api/middleware"
	"github.com/clinovate/bpadvisor/internal/domain/assessment"
	"github.com/clinovate/bpadvisor/internal/domain/patient"
	"github.com/clinovate/bpadvisor/internal/infrastructure/postgres"
	"github.com/clinovate/bpadvisor/internal/infrastructure/redpanda"
	"github.com/clinovate/bpadvisor/internal/observability/metrics"
	"github.com/clinovate/bpadvisor/pkg/idempotency"
)

// historyWindow caps how many readings are loaded per assessment.
const historyWindow = 50

// AuditPublisher is the audit side of the patient endpoints. Events are
// fire-and-forget; implementations must not block the request path.
type AuditPublisher interface {
	Publish(ctx context.Context, topic string, ev redpanda.AuditEvent)
}

// PatientHandler serves patient profiles, reading ingestion, and one-shot
// advice requests.
type PatientHandler struct {
	store     *postgres.Store
	synth     *advice.Synthesizer
	publisher AuditPublisher
	dedup     *idempotency.Registry
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewPatientHandler creates the handler. publisher, dedup, and m may be nil.
func NewPatientHandler(store *postgres.Store, synth *advice.Synthesizer, publisher AuditPublisher, dedup *idempotency.Registry, m *metrics.Metrics, logger *zap.Logger) *PatientHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientHandler{
		store:     store,
		synth:     synth,
		publisher: publisher,
		dedup:     dedup,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("patient-handler"),
	}
}

// Routes returns the patient subtree.
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Upsert)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/readings", h.ListReadings)
	r.Post("/{id}/readings", h.IngestReading)
	r.Post("/{id}/advice", h.Advise)
	r.Get("/{id}/trail", h.Trail)
	return r
}

// Upsert handles POST /patients.
func (h *PatientHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "upsert_patient")
	defer span.End()

	var p patient.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.ID == "" {
		respondError(w, http.StatusBadRequest, "patient id is required")
		return
	}
	if p.Age <= 0 {
		respondError(w, http.StatusBadRequest, "age must be positive")
		return
	}
	span.SetAttributes(attribute.String("patient_id", p.ID))

	if err := h.store.UpsertPatient(ctx, p); err != nil {
		h.logger.Error("upsert failed", zap.String("patient_id", p.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to save patient")
		return
	}

	h.logger.Info("patient saved",
		zap.String("patient_id", p.ID),
		zap.String("request_id", middleware.GetRequestID(ctx)))
	respondJSON(w, http.StatusOK, map[string]string{"id": p.ID})
}

// Get handles GET /patients/{id}.
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	p, err := h.store.GetPatient(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "patient not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load patient")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListReadings handles GET /patients/{id}/readings.
func (h *PatientHandler) ListReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	hist, err := h.store.Readings(ctx, id, historyWindow)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	respondJSON(w, http.StatusOK, hist)
}

// ReadingRequest is the body for POST /patients/{id}/readings. QuickDefault
// records a synthetic 120/80 when the patient has no cuff at hand.
type ReadingRequest struct {
	Systolic     float64    `json:"systolic"`
	Diastolic    float64    `json:"diastolic"`
	HeartRate    int        `json:"heart_rate,omitempty"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
	Location     string     `json:"location,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	QuickDefault bool       `json:"quick_default,omitempty"`
}

// ReadingResponse reports the classification of an accepted reading.
type ReadingResponse struct {
	Grade     string    `json:"grade"`
	Synthetic bool      `json:"synthetic"`
	TakenAt   time.Time `json:"taken_at"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// IngestReading handles POST /patients/{id}/readings. Invalid readings are
// rejected with 422 and leave no trace in the history.
func (h *PatientHandler) IngestReading(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ingest_reading")
	defer span.End()

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("patient_id", id))

	if _, err := h.store.GetPatient(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "patient not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load patient")
		return
	}

	var req ReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	takenAt := time.Now().UTC()
	if req.TakenAt != nil {
		takenAt = req.TakenAt.UTC()
	}

	var reading patient.Reading
	if req.QuickDefault {
		reading = patient.QuickDefault(takenAt)
	} else {
		reading = patient.Reading{
			Systolic:  req.Systolic,
			Diastolic: req.Diastolic,
			HeartRate: req.HeartRate,
			TakenAt:   takenAt,
			Location:  req.Location,
			Notes:     req.Notes,
		}
	}

	grade, err := assessment.Classify(reading)
	var verr *patient.ValidationError
	if errors.As(err, &verr) {
		if h.metrics != nil {
			h.metrics.ReadingsRejected.Inc()
		}
		h.publishRejection(ctx, id, reading, verr.Reason)
		respondError(w, http.StatusUnprocessableEntity, verr.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "classification failed")
		return
	}

	// Retried uploads of the same measurement are acknowledged, not
	// re-recorded.
	if h.dedup != nil && !reading.Synthetic {
		key := idempotency.GenerateKey(id, reading.Systolic, reading.Diastolic, reading.TakenAt)
		first, err := h.dedup.Register(ctx, key)
		if err != nil {
			h.logger.Warn("dedup check failed, accepting reading", zap.Error(err))
		} else if !first {
			respondJSON(w, http.StatusOK, ReadingResponse{
				Grade:     grade.String(),
				Synthetic: reading.Synthetic,
				TakenAt:   reading.TakenAt,
				Duplicate: true,
			})
			return
		}
	}

	if err := h.store.InsertReading(ctx, id, reading); err != nil {
		h.logger.Error("insert reading failed", zap.String("patient_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to save reading")
		return
	}

	respondJSON(w, http.StatusCreated, ReadingResponse{
		Grade:     grade.String(),
		Synthetic: reading.Synthetic,
		TakenAt:   reading.TakenAt,
	})
}

// AdviceRequest is the body for POST /patients/{id}/advice.
type AdviceRequest struct {
	Question string `json:"question,omitempty"`
}

// Advise handles POST /patients/{id}/advice: the full pipeline over the
// stored history, with audit events on the way out.
func (h *PatientHandler) Advise(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "advise")
	defer span.End()

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("patient_id", id))

	p, err := h.store.GetPatient(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "patient not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load patient")
		return
	}

	hist, err := h.store.Readings(ctx, id, historyWindow)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	if len(hist) == 0 {
		respondError(w, http.StatusConflict, "no readings on file; submit a reading first")
		return
	}

	var req AdviceRequest
	if r.Body != nil {
		// Body is optional for a plain advice request.
		json.NewDecoder(r.Body).Decode(&req)
	}

	resp, err := h.synth.Advise(ctx, p, hist, req.Question, nil)
	var verr *patient.ValidationError
	if errors.As(err, &verr) {
		respondError(w, http.StatusUnprocessableEntity, verr.Error())
		return
	}
	if err != nil {
		h.logger.Error("advice pipeline failed", zap.String("patient_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "advice pipeline failed")
		return
	}

	h.publishAssessment(ctx, id, resp)
	respondJSON(w, http.StatusOK, resp)
}

// Trail handles GET /patients/{id}/trail.
func (h *PatientHandler) Trail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	trail, err := h.store.PatientTrail(ctx, id, 100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load audit trail")
		return
	}
	respondJSON(w, http.StatusOK, trail)
}

func (h *PatientHandler) publishRejection(ctx context.Context, patientID string, r patient.Reading, reason string) {
	if h.publisher == nil {
		return
	}
	ev, err := redpanda.NewAuditEvent(redpanda.EventReadingRejected, patientID, redpanda.RejectionPayload{
		Systolic:  r.Systolic,
		Diastolic: r.Diastolic,
		Reason:    reason,
	})
	if err != nil {
		h.logger.Warn("rejection event build failed", zap.Error(err))
		return
	}
	h.publisher.Publish(ctx, redpanda.TopicRejections, ev)
}

func (h *PatientHandler) publishAssessment(ctx context.Context, patientID string, resp *advice.Response) {
	if h.publisher == nil {
		return
	}
	ev, err := redpanda.NewAuditEvent(redpanda.EventAssessmentProduced, patientID, redpanda.AssessmentPayload{
		Systolic:   resp.Reading.Systolic,
		Diastolic:  resp.Reading.Diastolic,
		Grade:      resp.Risk.Grade.String(),
		Tier:       string(resp.Risk.Tier),
		Factors:    resp.Risk.Factors,
		TrendLabel: string(resp.Risk.Trend),
		Escalated:  resp.Escalate,
	})
	if err == nil {
		ev.RuleSet = resp.Risk.RuleSet
		h.publisher.Publish(ctx, redpanda.TopicAssessments, ev)
		if resp.Escalate {
			h.publisher.Publish(ctx, redpanda.TopicEscalations, ev)
		}
	}

	ev, err = redpanda.NewAuditEvent(redpanda.EventAdviceDelivered, patientID, redpanda.AdvicePayload{
		Degraded:      resp.Degraded,
		NeedsReview:   resp.NeedsReview,
		Recommended:   resp.Medication.Recommended,
		TextSizeBytes: len(resp.Text),
	})
	if err == nil {
		ev.RuleSet = resp.Risk.RuleSet
		h.publisher.Publish(ctx, redpanda.TopicAdvice, ev)
	}
}
