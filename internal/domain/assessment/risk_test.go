package assessment

import (
	"strings"
	"testing"
	"time"

	"github.com/clinovate/bpadvisor/internal/domain/patient"
)

const testRuleSet = "acc-aha-2017.v1"

var now = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func TestStratifyTiers(t *testing.T) {
	tests := []struct {
		name     string
		grade    Grade
		trend    Trend
		profile  patient.Profile
		wantTier Tier
	}{
		{
			"crisis overrides everything",
			GradeCrisis, Trend{Label: TrendImproving},
			patient.Profile{Age: 30},
			TierCrisis,
		},
		{
			"stage-2 with comorbidity",
			GradeStage2, Trend{Label: TrendStable},
			patient.Profile{Age: 50, Conditions: map[string]bool{patient.ConditionDiabetes: true}},
			TierHigh,
		},
		{
			"stage-2 with worsening trend",
			GradeStage2, Trend{Label: TrendWorsening},
			patient.Profile{Age: 50},
			TierHigh,
		},
		{
			"plain stage-2",
			GradeStage2, Trend{Label: TrendStable},
			patient.Profile{Age: 50},
			TierModerate,
		},
		{
			"stage-1 with comorbidity",
			GradeStage1, Trend{Label: TrendStable},
			patient.Profile{Age: 50, Conditions: map[string]bool{patient.ConditionKidneyDisease: true}},
			TierModerate,
		},
		{
			"stage-1 without comorbidity",
			GradeStage1, Trend{Label: TrendStable},
			patient.Profile{Age: 50},
			TierLow,
		},
		{
			"elevated at high-risk age",
			GradeElevated, Trend{Label: TrendStable},
			patient.Profile{Age: 70},
			TierModerate,
		},
		{
			"elevated below high-risk age",
			GradeElevated, Trend{Label: TrendStable},
			patient.Profile{Age: 40},
			TierLow,
		},
		{
			"normal elderly",
			GradeNormal, Trend{Label: TrendStable},
			patient.Profile{Age: 70},
			TierLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Stratify(tt.grade, tt.trend, tt.profile, testRuleSet, now)
			if err != nil {
				t.Fatalf("Stratify() error: %v", err)
			}
			if a.Tier != tt.wantTier {
				t.Fatalf("Stratify() tier = %v, want %v", a.Tier, tt.wantTier)
			}
			if len(a.Factors) == 0 {
				t.Fatal("Stratify() produced no factors")
			}
			if a.RuleSet != testRuleSet {
				t.Fatalf("RuleSet = %q, want %q", a.RuleSet, testRuleSet)
			}
		})
	}
}

func TestStratifyRequiresRuleSet(t *testing.T) {
	if _, err := Stratify(GradeNormal, Trend{}, patient.Profile{Age: 40}, "", now); err == nil {
		t.Fatal("Stratify() accepted an empty rule-set version")
	}
}

func TestStratifyEscalatesOnlyOnCrisis(t *testing.T) {
	a, err := Stratify(GradeCrisis, Trend{Label: TrendStable}, patient.Profile{Age: 40}, testRuleSet, now)
	if err != nil {
		t.Fatalf("Stratify() error: %v", err)
	}
	if !a.Escalate {
		t.Fatal("crisis assessment not escalated")
	}

	a, _ = Stratify(GradeStage2, Trend{Label: TrendWorsening},
		patient.Profile{Age: 80, Conditions: map[string]bool{patient.ConditionHeartDisease: true}}, testRuleSet, now)
	if a.Escalate {
		t.Fatal("non-crisis assessment escalated")
	}
}

func TestStratifyFactorOrdering(t *testing.T) {
	p := patient.Profile{
		Age: 50,
		Conditions: map[string]bool{
			patient.ConditionDiabetes:      true,
			patient.ConditionKidneyDisease: true,
		},
	}
	a, err := Stratify(GradeStage2, Trend{Label: TrendWorsening, GapDetected: true}, p, testRuleSet, now)
	if err != nil {
		t.Fatalf("Stratify() error: %v", err)
	}

	// The deciding rule's reason comes first, then the contextual factors in
	// their fixed order.
	if !strings.Contains(a.Factors[0], "stage-2") {
		t.Fatalf("first factor = %q, want deciding rule reason", a.Factors[0])
	}
	var sawTrend, sawGap, sawDiabetes, sawKidney bool
	for _, f := range a.Factors[1:] {
		switch {
		case strings.Contains(f, "trending worse"):
			sawTrend = true
		case strings.Contains(f, "monitoring gap"):
			sawGap = true
		case strings.Contains(f, patient.ConditionDiabetes):
			sawDiabetes = true
			if !sawTrend || !sawGap {
				t.Fatal("comorbidity factor listed before trend and gap factors")
			}
		case strings.Contains(f, patient.ConditionKidneyDisease):
			sawKidney = true
			if !sawDiabetes {
				t.Fatal("kidney factor listed before diabetes factor")
			}
		}
	}
	if !sawTrend || !sawGap || !sawDiabetes || !sawKidney {
		t.Fatalf("missing contextual factors: %v", a.Factors)
	}
}

func TestStratifyDeterministic(t *testing.T) {
	p := patient.Profile{Age: 68, Conditions: map[string]bool{patient.ConditionDiabetes: true}}
	first, err := Stratify(GradeStage2, Trend{Label: TrendWorsening}, p, testRuleSet, now)
	if err != nil {
		t.Fatalf("Stratify() error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := Stratify(GradeStage2, Trend{Label: TrendWorsening}, p, testRuleSet, now)
		if again.Tier != first.Tier || len(again.Factors) != len(first.Factors) {
			t.Fatalf("run %d diverged: %v vs %v", i, again, first)
		}
		for j := range again.Factors {
			if again.Factors[j] != first.Factors[j] {
				t.Fatalf("factor order diverged at %d: %q vs %q", j, again.Factors[j], first.Factors[j])
			}
		}
	}
}

func TestTargetBP(t *testing.T) {
	tests := []struct {
		name    string
		p       patient.Profile
		wantSys int
		wantDia int
	}{
		{"diabetes tightens target", patient.Profile{Age: 50, Conditions: map[string]bool{patient.ConditionDiabetes: true}}, 130, 80},
		{"heart disease tightens target", patient.Profile{Age: 50, Conditions: map[string]bool{patient.ConditionHeartDisease: true}}, 130, 80},
		{"elderly relaxed target", patient.Profile{Age: 70}, 150, 90},
		{"default target", patient.Profile{Age: 45}, 140, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys, dia := TargetBP(tt.p)
			if sys != tt.wantSys || dia != tt.wantDia {
				t.Fatalf("TargetBP() = %d/%d, want %d/%d", sys, dia, tt.wantSys, tt.wantDia)
			}
		})
	}
}

func TestTenYearRisk(t *testing.T) {
	young := patient.Profile{Age: 30}
	if got := TenYearRisk(young, patient.Reading{Systolic: 118, Diastolic: 76}); got != 5 {
		t.Fatalf("baseline risk = %d, want 5", got)
	}

	loaded := patient.Profile{
		Age: 70,
		Sex: patient.SexMale,
		Conditions: map[string]bool{
			patient.ConditionSmoking:       true,
			patient.ConditionDiabetes:      true,
			patient.ConditionHeartDisease:  true,
			patient.ConditionKidneyDisease: true,
			patient.ConditionStrokeHistory: true,
			patient.ConditionFamilyHistory: true,
		},
		HeightCM: 170,
		WeightKG: 95,
	}
	if got := TenYearRisk(loaded, patient.Reading{Systolic: 190, Diastolic: 110}); got != 80 {
		t.Fatalf("loaded risk = %d, want cap of 80", got)
	}
}
