// Package advice orchestrates classification, trend analysis, risk
// stratification and medication recommendation into a single response, then
// asks the generation backend for prose elaboration. Backend failure only
// degrades the prose; the structured result is never altered by it.
package advice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinovate/bpadvisor/internal/domain/assessment"
	"github.com/clinovate/bpadvisor/internal/domain/medication"
	"github.com/clinovate/bpadvisor/internal/domain/patient"
	"github.com/clinovate/bpadvisor/internal/generation"
	"github.com/clinovate/bpadvisor/internal/knowledge"
	"github.com/clinovate/bpadvisor/internal/observability/metrics"
	"github.com/clinovate/bpadvisor/pkg/circuitbreaker"
)

// EscalationDirective precedes all other content whenever a crisis is
// detected. It is fixed text, never generated.
const EscalationDirective = "URGENT: this reading is in the hypertensive crisis range. " +
	"Seek emergency medical care now; do not wait for a repeat measurement or further advice."

const systemPrompt = "You are a clinical assistant elaborating a structured hypertension " +
	"assessment into clear patient-facing prose. Never contradict the structured findings, " +
	"never invent measurements, and remind the patient that this does not replace a clinician."

// Response is the composite result returned to the caller.
type Response struct {
	Reading         patient.Reading           `json:"reading"`
	Risk            assessment.RiskAssessment `json:"risk"`
	Medication      medication.Recommendation `json:"medication"`
	NeedsReview     bool                      `json:"needs_review"`
	Lifestyle       []LifestyleItem           `json:"lifestyle"`
	Monitoring      MonitoringPlan            `json:"monitoring"`
	TargetSystolic  int                       `json:"target_systolic"`
	TargetDiastolic int                       `json:"target_diastolic"`
	TenYearRiskPct  int                       `json:"ten_year_risk_pct"`
	Escalate        bool                      `json:"escalate"`
	Text            string                    `json:"text"`
	// Degraded is set when the prose came from the template fallback.
	Degraded bool `json:"degraded"`
}

// Config holds synthesizer settings.
type Config struct {
	// RuleSet pins the threshold and contraindication rules in use.
	RuleSet string
	Trend   assessment.TrendConfig
	// BackendTimeout bounds the generation call.
	BackendTimeout time.Duration
}

// DefaultConfig returns standard settings for the current rule set.
func DefaultConfig() Config {
	return Config{
		RuleSet:        "acc-aha-2017.v1",
		Trend:          assessment.DefaultTrendConfig(),
		BackendTimeout: 20 * time.Second,
	}
}

// Synthesizer runs the advisory pipeline.
type Synthesizer struct {
	cfg     Config
	ix      *knowledge.Index
	backend generation.Backend
	breaker *circuitbreaker.Breaker
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// New creates a synthesizer. The knowledge index and rule-set version are
// startup requirements; missing either is a configuration error.
func New(cfg Config, ix *knowledge.Index, backend generation.Backend, breaker *circuitbreaker.Breaker, m *metrics.Metrics, logger *zap.Logger) (*Synthesizer, error) {
	if cfg.RuleSet == "" {
		return nil, fmt.Errorf("advice: rule-set version is required")
	}
	if ix == nil || ix.Len() == 0 {
		return nil, fmt.Errorf("advice: knowledge index is empty")
	}
	if backend == nil {
		return nil, fmt.Errorf("advice: generation backend is required")
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = DefaultConfig().BackendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		cfg:     cfg,
		ix:      ix,
		backend: backend,
		breaker: breaker,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("advice-synthesizer"),
		now:     time.Now,
	}, nil
}

// RuleSet returns the pinned rule-set version.
func (s *Synthesizer) RuleSet() string { return s.cfg.RuleSet }

// Advise produces the composite advisory response for a profile and reading
// history. The history needs at least one reading; an invalid latest reading
// is rejected with the validation error, never coerced. turns carries prior
// conversation context for the backend, question an optional free-text ask.
func (s *Synthesizer) Advise(ctx context.Context, p patient.Profile, h patient.History, question string, turns []generation.Turn) (*Response, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "advise",
		trace.WithAttributes(attribute.String("patient_id", p.ID)))
	defer span.End()

	latest, ok := h.Latest()
	if !ok {
		return nil, fmt.Errorf("advice: at least one reading is required")
	}

	grade, err := assessment.Classify(latest)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	trend := assessment.AnalyzeTrend(h, s.cfg.Trend)

	risk, err := assessment.Stratify(grade, trend, p, s.cfg.RuleSet, s.now())
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Reading:        latest,
		Risk:           risk,
		Escalate:       risk.Escalate,
		Lifestyle:      lifestyleChecklist(s.ix, p),
		Monitoring:     monitoringPlan(grade, p),
		TenYearRiskPct: assessment.TenYearRisk(p, latest),
	}
	resp.TargetSystolic, resp.TargetDiastolic = assessment.TargetBP(p)

	rec, err := medication.Recommend(risk.Tier, p, s.ix, s.cfg.RuleSet)
	resp.Medication = rec
	if err != nil {
		// Crisis escalation must still reach the caller even when no safe
		// class remains; the failure becomes a review flag.
		if !errors.Is(err, medication.ErrNoSafeRecommendation) {
			s.logger.Error("medication recommendation failed",
				zap.String("patient_id", p.ID), zap.Error(err))
		}
		resp.NeedsReview = true
	}

	resp.Text = s.compose(ctx, p, resp, question, turns)

	if s.metrics != nil {
		s.metrics.AdviceRequests.Inc()
		s.metrics.ProcessingDuration.Observe(s.now().Sub(start).Seconds())
		if resp.Escalate {
			s.metrics.CrisisEscalations.Inc()
		}
		if resp.Degraded {
			s.metrics.BackendFallbacks.Inc()
		}
	}

	s.logger.Info("advice synthesized",
		zap.String("patient_id", p.ID),
		zap.String("grade", risk.Grade.String()),
		zap.String("tier", string(risk.Tier)),
		zap.Bool("escalate", resp.Escalate),
		zap.Bool("degraded", resp.Degraded))

	return resp, nil
}

// compose obtains prose from the backend, falling back to the deterministic
// template, and prepends the urgent-care directive when escalation is set.
func (s *Synthesizer) compose(ctx context.Context, p patient.Profile, resp *Response, question string, turns []generation.Turn) string {
	prose, err := s.elaborate(ctx, p, resp, question, turns)
	if err != nil {
		s.logger.Warn("generation backend unavailable, using template",
			zap.String("patient_id", p.ID),
			zap.Bool("circuit_open", circuitbreaker.Rejected(err)),
			zap.Error(err))
		prose = renderTemplate(resp)
		resp.Degraded = true
	}

	if resp.Escalate {
		prose = EscalationDirective + "\n\n" + prose
		if doc, ok := s.ix.Get("emergency-crisis"); ok {
			prose += "\n\n" + doc.Body
		}
	}
	return prose
}

func (s *Synthesizer) elaborate(ctx context.Context, p patient.Profile, resp *Response, question string, turns []generation.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	req := generation.Request{
		System: systemPrompt,
		Prompt: buildPrompt(p, resp, question),
		Turns:  turns,
	}

	if s.breaker != nil {
		return s.breaker.Execute(ctx, func() (string, error) {
			return s.backend.Generate(ctx, req)
		})
	}
	return s.backend.Generate(ctx, req)
}

// buildPrompt renders the structured draft for the backend. The draft is a
// contract: the model elaborates it, it does not get to change it.
func buildPrompt(p patient.Profile, resp *Response, question string) string {
	draft, _ := json.MarshalIndent(struct {
		Age            int                       `json:"age"`
		Sex            patient.Sex               `json:"sex"`
		Reading        string                    `json:"reading"`
		Grade          string                    `json:"grade"`
		Tier           assessment.Tier           `json:"risk_tier"`
		Factors        []string                  `json:"factors"`
		Trend          assessment.TrendLabel     `json:"trend"`
		Target         string                    `json:"target"`
		TenYearRiskPct int                       `json:"ten_year_risk_pct"`
		Medication     medication.Recommendation `json:"medication"`
		NeedsReview    bool                      `json:"needs_review"`
		Lifestyle      []LifestyleItem           `json:"lifestyle"`
		Monitoring     MonitoringPlan            `json:"monitoring"`
	}{
		Age:            p.Age,
		Sex:            p.Sex,
		Reading:        fmt.Sprintf("%.0f/%.0f mmHg", resp.Reading.Systolic, resp.Reading.Diastolic),
		Grade:          resp.Risk.Grade.String(),
		Tier:           resp.Risk.Tier,
		Factors:        resp.Risk.Factors,
		Trend:          resp.Risk.Trend,
		Target:         fmt.Sprintf("below %d/%d mmHg", resp.TargetSystolic, resp.TargetDiastolic),
		TenYearRiskPct: resp.TenYearRiskPct,
		Medication:     resp.Medication,
		NeedsReview:    resp.NeedsReview,
		Lifestyle:      resp.Lifestyle,
		Monitoring:     resp.Monitoring,
	}, "", "  ")

	var b strings.Builder
	b.WriteString("Elaborate the following assessment into patient-facing guidance.\n\n")
	b.Write(draft)
	if question != "" {
		b.WriteString("\n\nThe patient also asks: ")
		b.WriteString(question)
	}
	return b.String()
}
