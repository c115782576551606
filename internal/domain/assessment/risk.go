package assessment

import (
	"fmt"
	"time"

	"github.com/clinovate/bpadvisor/internal/domain/patient"
)

// Tier is the aggregated clinical risk level.
type Tier string

const (
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
	TierCrisis   Tier = "crisis"
)

// HighRiskAge is the age at or above which an elevated grade raises the tier.
const HighRiskAge = 65

// RiskAssessment is the derived risk picture for one request. It is never
// mutated; recompute when inputs change.
type RiskAssessment struct {
	Tier Tier `json:"tier"`
	// Factors lists human-readable reasons in the order the rules fired,
	// so the assessment is auditable.
	Factors    []string   `json:"factors"`
	Trend      TrendLabel `json:"trend"`
	Grade      Grade      `json:"grade"`
	Escalate   bool       `json:"escalate"`
	ComputedAt time.Time  `json:"computed_at"`
	RuleSet    string     `json:"rule_set"`
}

// riskRule is one layer of the ordered rule set. Rules are evaluated
// top-down and the first match fixes the tier; later rules cannot override
// an earlier one.
type riskRule struct {
	match  func(Grade, Trend, patient.Profile) bool
	tier   Tier
	reason func(Grade, Trend, patient.Profile) string
}

var riskRules = []riskRule{
	{
		// Crisis always wins, regardless of trend or profile.
		match: func(g Grade, _ Trend, _ patient.Profile) bool { return g == GradeCrisis },
		tier:  TierCrisis,
		reason: func(g Grade, _ Trend, _ patient.Profile) string {
			return "hypertensive crisis reading, immediate care required"
		},
	},
	{
		match: func(g Grade, t Trend, p patient.Profile) bool {
			return g == GradeStage2 && (p.Comorbid() || t.Label == TrendWorsening)
		},
		tier: TierHigh,
		reason: func(_ Grade, t Trend, p patient.Profile) string {
			if p.Comorbid() {
				return "stage-2 hypertension with comorbidity"
			}
			return "stage-2 hypertension with worsening trend"
		},
	},
	{
		match: func(g Grade, _ Trend, _ patient.Profile) bool { return g == GradeStage2 },
		tier:  TierModerate,
		reason: func(_ Grade, _ Trend, _ patient.Profile) string {
			return "stage-2 hypertension"
		},
	},
	{
		match: func(g Grade, _ Trend, p patient.Profile) bool {
			return g == GradeStage1 && p.Comorbid()
		},
		tier: TierModerate,
		reason: func(_ Grade, _ Trend, _ patient.Profile) string {
			return "stage-1 hypertension with comorbidity"
		},
	},
	{
		match: func(g Grade, _ Trend, p patient.Profile) bool {
			return p.Age >= HighRiskAge && g >= GradeElevated
		},
		tier: TierModerate,
		reason: func(_ Grade, _ Trend, p patient.Profile) string {
			return fmt.Sprintf("elevated reading at age %d", p.Age)
		},
	},
}

// Stratify applies the ordered rule set to the latest grade, the trend and
// the profile. ruleSet pins the rule version used so historical assessments
// stay reproducible; it must be non-empty.
func Stratify(g Grade, t Trend, p patient.Profile, ruleSet string, now time.Time) (RiskAssessment, error) {
	if ruleSet == "" {
		return RiskAssessment{}, fmt.Errorf("risk stratifier: rule-set version is required")
	}

	a := RiskAssessment{
		Tier:       TierLow,
		Trend:      t.Label,
		Grade:      g,
		ComputedAt: now.UTC(),
		RuleSet:    ruleSet,
	}

	matched := false
	for _, rule := range riskRules {
		if rule.match(g, t, p) {
			a.Tier = rule.tier
			a.Factors = append(a.Factors, rule.reason(g, t, p))
			matched = true
			break
		}
	}
	if !matched {
		a.Factors = append(a.Factors, "no elevated risk rule matched")
	}

	// Contextual factors after the deciding rule, still ordered.
	if t.Label == TrendWorsening && a.Tier != TierCrisis {
		a.Factors = append(a.Factors, "readings trending worse over recent history")
	}
	if t.GapDetected {
		a.Factors = append(a.Factors, "monitoring gap detected in reading history")
	}
	for _, c := range []string{
		patient.ConditionDiabetes,
		patient.ConditionKidneyDisease,
		patient.ConditionHeartDisease,
		patient.ConditionStrokeHistory,
	} {
		if p.HasCondition(c) {
			a.Factors = append(a.Factors, "comorbidity on record: "+c)
		}
	}

	a.Escalate = a.Tier == TierCrisis
	return a, nil
}

// TargetBP returns the blood-pressure target for the profile.
func TargetBP(p patient.Profile) (systolic, diastolic int) {
	switch {
	case p.HasCondition(patient.ConditionDiabetes) || p.HasCondition(patient.ConditionKidneyDisease):
		return 130, 80
	case p.HasCondition(patient.ConditionHeartDisease):
		return 130, 80
	case p.Age >= HighRiskAge:
		return 150, 90
	default:
		return 140, 90
	}
}

// TenYearRisk estimates the ten-year cardiovascular risk percentage with a
// simple additive score, capped at 80.
func TenYearRisk(p patient.Profile, latest patient.Reading) int {
	risk := 5

	switch {
	case p.Age >= 65:
		risk += 15
	case p.Age >= 55:
		risk += 10
	case p.Age >= 45:
		risk += 5
	}

	switch {
	case latest.Systolic >= 180:
		risk += 20
	case latest.Systolic >= 160:
		risk += 15
	case latest.Systolic >= 140:
		risk += 10
	}

	for _, c := range []string{
		patient.ConditionSmoking,
		patient.ConditionDiabetes,
		patient.ConditionFamilyHistory,
		patient.ConditionHeartDisease,
		patient.ConditionKidneyDisease,
		patient.ConditionStrokeHistory,
	} {
		if p.HasCondition(c) {
			risk += 5
		}
	}

	if p.Sex == patient.SexMale {
		risk += 5
	}
	if bmi := p.BMI(); bmi >= 28 {
		risk += 5
	}

	if risk > 80 {
		risk = 80
	}
	return risk
}
