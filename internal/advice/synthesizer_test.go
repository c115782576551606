package advice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clinovate/bpadvisor/internal/domain/assessment"
	"github.com/clinovate/bpadvisor/internal/domain/medication"
	"github.com/clinovate/bpadvisor/internal/domain/patient"
	"github.com/clinovate/bpadvisor/internal/generation"
	"github.com/clinovate/bpadvisor/internal/knowledge"
)

func testSynth(t *testing.T, backend generation.Backend) *Synthesizer {
	t.Helper()
	ix, err := knowledge.NewIndex(knowledge.DefaultCorpus())
	if err != nil {
		t.Fatalf("building index: %v", err)
	}
	s, err := New(DefaultConfig(), ix, backend, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func historyOf(readings ...patient.Reading) patient.History {
	return patient.History(readings)
}

func reading(sys, dia float64, daysAgo int) patient.Reading {
	return patient.Reading{
		Systolic:  sys,
		Diastolic: dia,
		TakenAt:   time.Now().AddDate(0, 0, -daysAgo),
	}
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	ix, err := knowledge.NewIndex(knowledge.DefaultCorpus())
	if err != nil {
		t.Fatalf("building index: %v", err)
	}
	backend := generation.Static{Text: "ok"}

	if _, err := New(Config{}, ix, backend, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing rule-set version")
	}
	if _, err := New(DefaultConfig(), nil, backend, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil index")
	}
	if _, err := New(DefaultConfig(), ix, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil backend")
	}
}

func TestAdviseUsesBackendProse(t *testing.T) {
	s := testSynth(t, generation.Static{Text: "elaborated guidance"})

	p := patient.Profile{ID: "p-1", Age: 52, Sex: patient.SexFemale}
	resp, err := s.Advise(context.Background(), p, historyOf(reading(152, 96, 0)), "", nil)
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}

	if resp.Degraded {
		t.Error("response marked degraded with a healthy backend")
	}
	if resp.Text != "elaborated guidance" {
		t.Errorf("Text = %q, want backend prose", resp.Text)
	}
	if resp.Risk.Grade != assessment.GradeStage2 {
		t.Errorf("Grade = %v, want stage-2", resp.Risk.Grade)
	}
	if resp.Risk.Tier != assessment.TierModerate {
		t.Errorf("Tier = %v, want moderate", resp.Risk.Tier)
	}
	if resp.TargetSystolic != 140 || resp.TargetDiastolic != 90 {
		t.Errorf("target = %d/%d, want 140/90", resp.TargetSystolic, resp.TargetDiastolic)
	}
	if !resp.Medication.NeedsMedication {
		t.Error("moderate tier should indicate medication")
	}
}

func TestAdviseFallsBackToTemplate(t *testing.T) {
	s := testSynth(t, generation.Static{Err: errors.New("backend down")})

	p := patient.Profile{ID: "p-2", Age: 48}
	resp, err := s.Advise(context.Background(), p, historyOf(reading(145, 92, 0)), "", nil)
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}

	if !resp.Degraded {
		t.Error("expected degraded response when backend fails")
	}
	if resp.Text == "" {
		t.Error("template fallback produced empty text")
	}
	if !strings.Contains(resp.Text, "145/92 mmHg") {
		t.Errorf("fallback text missing the reading: %q", resp.Text)
	}
	// Backend failure only degrades the prose.
	if resp.Risk.Tier != assessment.TierModerate {
		t.Errorf("Tier = %v, want moderate despite backend failure", resp.Risk.Tier)
	}
	if len(resp.Lifestyle) == 0 {
		t.Error("lifestyle checklist empty in degraded response")
	}
	if resp.Monitoring.InitialFollowUp == "" {
		t.Error("monitoring plan empty in degraded response")
	}
}

func TestAdvisePrefixesEscalationDirective(t *testing.T) {
	for _, tc := range []struct {
		name    string
		backend generation.Backend
	}{
		{"backend healthy", generation.Static{Text: "prose"}},
		{"backend failing", generation.Static{Err: errors.New("unavailable")}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := testSynth(t, tc.backend)

			p := patient.Profile{ID: "p-3", Age: 60}
			resp, err := s.Advise(context.Background(), p, historyOf(reading(185, 110, 0)), "", nil)
			if err != nil {
				t.Fatalf("Advise: %v", err)
			}

			if !resp.Escalate {
				t.Fatal("crisis reading did not escalate")
			}
			if !strings.HasPrefix(resp.Text, EscalationDirective) {
				t.Errorf("text does not begin with the escalation directive: %q", resp.Text)
			}
			if !strings.Contains(resp.Text, "Watch for severe headache") {
				t.Error("escalated response missing the crisis-handling guidance")
			}
		})
	}
}

func TestAdviseRejectsInvalidLatestReading(t *testing.T) {
	s := testSynth(t, generation.Static{Text: "prose"})

	p := patient.Profile{ID: "p-4", Age: 40}
	_, err := s.Advise(context.Background(), p, historyOf(reading(90, 120, 0)), "", nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *patient.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *patient.ValidationError", err)
	}
}

func TestAdviseRequiresHistory(t *testing.T) {
	s := testSynth(t, generation.Static{Text: "prose"})

	if _, err := s.Advise(context.Background(), patient.Profile{ID: "p-5"}, nil, "", nil); err == nil {
		t.Fatal("expected error for empty history")
	}
}

func TestAdviseFlagsReviewWhenNoSafeClass(t *testing.T) {
	s := testSynth(t, generation.Static{Err: errors.New("offline")})

	// Moderate tier offers ACE inhibitors and thiazides only; block both.
	p := patient.Profile{
		ID:  "p-6",
		Age: 50,
		Contraindicated: map[string]bool{
			medication.ClassACEInhibitor: true,
		},
		ActiveClasses: map[string]bool{
			medication.ClassThiazide: true,
		},
	}
	resp, err := s.Advise(context.Background(), p, historyOf(reading(150, 95, 0)), "", nil)
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}

	if !resp.NeedsReview {
		t.Error("expected needs-review flag when every candidate class is excluded")
	}
	if len(resp.Medication.Recommended) != 0 {
		t.Errorf("Recommended = %v, want none", resp.Medication.Recommended)
	}
	if len(resp.Medication.Excluded) != 2 {
		t.Errorf("Excluded has %d entries, want 2", len(resp.Medication.Excluded))
	}
	if !strings.Contains(resp.Text, "clinician review is required") {
		t.Errorf("fallback text missing the review notice: %q", resp.Text)
	}
}

func TestAdviseHonorsCancelledContext(t *testing.T) {
	s := testSynth(t, generation.Static{Text: "prose"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := patient.Profile{ID: "p-7", Age: 45}
	resp, err := s.Advise(ctx, p, historyOf(reading(130, 85, 0)), "", nil)
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	// The structured pipeline is synchronous; only the backend sees the
	// cancellation, so the prose comes from the template.
	if !resp.Degraded {
		t.Error("expected template fallback under a cancelled context")
	}
}

func TestRenderTemplateIsDeterministic(t *testing.T) {
	s := testSynth(t, generation.Static{Err: errors.New("down")})

	p := patient.Profile{
		ID:         "p-8",
		Age:        68,
		Sex:        patient.SexMale,
		HeightCM:   172,
		WeightKG:   88,
		Conditions: map[string]bool{patient.ConditionDiabetes: true},
	}
	h := historyOf(reading(162, 98, 0), reading(150, 94, 7), reading(142, 90, 14))

	first, err := s.Advise(context.Background(), p, h, "", nil)
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, err := s.Advise(context.Background(), p, h, "", nil)
		if err != nil {
			t.Fatalf("Advise run %d: %v", i, err)
		}
		if next.Text != first.Text {
			t.Fatalf("template text diverged on run %d:\nfirst: %q\n next: %q", i, first.Text, next.Text)
		}
	}
}

func TestLifestyleChecklistProfileItems(t *testing.T) {
	ix, err := knowledge.NewIndex(knowledge.DefaultCorpus())
	if err != nil {
		t.Fatalf("building index: %v", err)
	}

	base := patient.Profile{ID: "p-9", Age: 50}
	baseline := lifestyleChecklist(ix, base)
	if len(baseline) == 0 {
		t.Fatal("expected corpus-derived lifestyle items")
	}

	smoker := base
	smoker.Conditions = map[string]bool{patient.ConditionSmoking: true}
	withSmoking := lifestyleChecklist(ix, smoker)
	if len(withSmoking) != len(baseline)+1 {
		t.Errorf("smoking added %d items, want 1", len(withSmoking)-len(baseline))
	}
	found := false
	for _, item := range withSmoking {
		if item.Category == "Smoking cessation" && item.Priority == "critical" {
			found = true
		}
	}
	if !found {
		t.Error("missing critical smoking-cessation item")
	}

	heavy := base
	heavy.HeightCM = 170
	heavy.WeightKG = 85 // BMI 29.4
	withWeight := lifestyleChecklist(ix, heavy)
	found = false
	for _, item := range withWeight {
		if item.Category == "Weight management" {
			found = true
			if !strings.Contains(item.Recommendation, "29.4") {
				t.Errorf("weight item does not cite the current BMI: %q", item.Recommendation)
			}
		}
	}
	if !found {
		t.Error("missing weight-management item for BMI over 24")
	}
}

func TestMonitoringPlanCadence(t *testing.T) {
	p := patient.Profile{Age: 50}

	stage2 := monitoringPlan(assessment.GradeStage2, p)
	if stage2.InitialFollowUp != "review within 1-2 weeks" {
		t.Errorf("stage-2 follow-up = %q", stage2.InitialFollowUp)
	}
	if !strings.Contains(stage2.MeasurementFrequency, "daily") {
		t.Errorf("stage-2 cadence should be daily, got %q", stage2.MeasurementFrequency)
	}

	normal := monitoringPlan(assessment.GradeNormal, p)
	if normal.InitialFollowUp != "review within 1-3 months" {
		t.Errorf("normal follow-up = %q", normal.InitialFollowUp)
	}

	diabetic := patient.Profile{Age: 50, Conditions: map[string]bool{
		patient.ConditionDiabetes: true,
	}}
	plan := monitoringPlan(assessment.GradeStage1, diabetic)
	found := false
	for _, lab := range plan.LabWork {
		if strings.Contains(lab, "HbA1c") {
			found = true
		}
	}
	if !found {
		t.Errorf("diabetic lab work missing HbA1c: %v", plan.LabWork)
	}
}
