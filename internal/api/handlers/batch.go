package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinovate/bpadvisor/internal/advice"
	"github.com/clinovate/bpadvisor/internal/infrastructure/postgres"
	"github.com/clinovate/bpadvisor/internal/infrastructure/redpanda"
	"github.com/clinovate/bpadvisor/internal/observability/metrics"
	"github.com/clinovate/bpadvisor/pkg/workerpool"
)

// BatchHandler re-runs the assessment pipeline across a patient cohort,
// typically after a rule-set revision.
type BatchHandler struct {
	store     *postgres.Store
	synth     *advice.Synthesizer
	publisher AuditPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewBatchHandler creates the handler.
func NewBatchHandler(store *postgres.Store, synth *advice.Synthesizer, publisher AuditPublisher, m *metrics.Metrics, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{
		store:     store,
		synth:     synth,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("batch-handler"),
	}
}

// Routes returns the batch subtree.
func (h *BatchHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/batch", h.Reassess)
	return r
}

// ReassessRequest is the body for POST /assessments/batch. Empty PatientIDs
// re-assesses everyone on file.
type ReassessRequest struct {
	PatientIDs []string `json:"patient_ids,omitempty"`
	Workers    int      `json:"workers,omitempty"`
}

// patientResult is the per-patient entry of the batch response.
type patientResult struct {
	PatientID string `json:"patient_id"`
	Grade     string `json:"grade,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Escalated bool   `json:"escalated,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReassessResponse is the batch response body.
type ReassessResponse struct {
	Summary workerpool.Summary `json:"summary"`
	Results []patientResult    `json:"results"`
}

// Reassess handles POST /assessments/batch.
func (h *BatchHandler) Reassess(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "batch_reassess")
	defer span.End()

	var req ReassessRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	ids := req.PatientIDs
	if len(ids) == 0 {
		all, err := h.store.ListPatientIDs(ctx)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list patients")
			return
		}
		ids = all
	}
	span.SetAttributes(attribute.Int("cohort_size", len(ids)))

	if len(ids) == 0 {
		respondJSON(w, http.StatusOK, ReassessResponse{Results: []patientResult{}})
		return
	}

	jobs := make([]workerpool.Job, len(ids))
	for i, id := range ids {
		jobs[i] = workerpool.Job{ID: id}
	}

	outcomes := workerpool.Run(ctx, req.Workers, jobs, func(ctx context.Context, job workerpool.Job) (any, error) {
		return h.reassessOne(ctx, job.ID)
	}, h.logger)

	results := batchResults(outcomes)

	summary := workerpool.Summarize(outcomes)
	h.logger.Info("cohort re-assessment finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))

	respondJSON(w, http.StatusOK, ReassessResponse{Summary: summary, Results: results})
}

// batchResults maps worker outcomes to response entries. A patient without
// readings yields a nil response with no error; that nil arrives typed
// through the any boxing, so the skip check must not rely on a bare nil case.
func batchResults(outcomes []workerpool.Outcome) []patientResult {
	results := make([]patientResult, len(outcomes))
	for i, o := range outcomes {
		pr := patientResult{PatientID: o.JobID}
		if resp, ok := o.Data.(*advice.Response); ok && resp != nil {
			pr.Grade = resp.Risk.Grade.String()
			pr.Tier = string(resp.Risk.Tier)
			pr.Escalated = resp.Escalate
		} else if o.Err == nil {
			pr.Skipped = true
		}
		if o.Err != nil {
			pr.Error = o.Err.Error()
		}
		results[i] = pr
	}
	return results
}

// reassessOne runs the pipeline for one patient. Patients without readings
// are skipped rather than failed.
func (h *BatchHandler) reassessOne(ctx context.Context, id string) (*advice.Response, error) {
	p, err := h.store.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	hist, err := h.store.Readings(ctx, id, historyWindow)
	if err != nil {
		return nil, err
	}
	if len(hist) == 0 {
		return nil, nil
	}

	resp, err := h.synth.Advise(ctx, p, hist, "", nil)
	if err != nil {
		return nil, err
	}
	if h.publisher != nil && resp.Escalate {
		ev, evErr := redpanda.NewAuditEvent(redpanda.EventEscalationRaised, id, redpanda.AssessmentPayload{
			Systolic:  resp.Reading.Systolic,
			Diastolic: resp.Reading.Diastolic,
			Grade:     resp.Risk.Grade.String(),
			Tier:      string(resp.Risk.Tier),
			Escalated: true,
		})
		if evErr == nil {
			ev.RuleSet = resp.Risk.RuleSet
			h.publisher.Publish(ctx, redpanda.TopicEscalations, ev)
		}
	}
	return resp, nil
}
