package advice

import (
	"fmt"

	"github.com/clinovate/bpadvisor/internal/domain/assessment"
	"github.com/clinovate/bpadvisor/internal/domain/patient"
	"github.com/clinovate/bpadvisor/internal/knowledge"
)

// LifestyleItem is one entry of the lifestyle-advice checklist.
type LifestyleItem struct {
	Category       string `json:"category"`
	Recommendation string `json:"recommendation"`
	Priority       string `json:"priority"`
	Evidence       string `json:"evidence"`
}

// MonitoringPlan describes measurement cadence and follow-up intervals.
type MonitoringPlan struct {
	MeasurementFrequency string   `json:"measurement_frequency"`
	InitialFollowUp      string   `json:"initial_follow_up"`
	StableFollowUp       string   `json:"stable_follow_up"`
	LabWork              []string `json:"lab_work,omitempty"`
}

// lifestyleChecklist builds the checklist from the corpus lifestyle
// documents, then appends profile-specific items.
func lifestyleChecklist(ix *knowledge.Index, p patient.Profile) []LifestyleItem {
	var items []LifestyleItem
	for _, doc := range ix.ByCategory(knowledge.CategoryLifestyle) {
		priority := "high"
		evidence := "A"
		if doc.ID == "life-sleep-stress" {
			priority = "medium"
			evidence = "B"
		}
		items = append(items, LifestyleItem{
			Category:       doc.Title,
			Recommendation: firstLine(doc.Body),
			Priority:       priority,
			Evidence:       evidence,
		})
	}

	if p.HasCondition(patient.ConditionSmoking) {
		items = append(items, LifestyleItem{
			Category:       "Smoking cessation",
			Recommendation: "Stop smoking entirely; cessation support is strongly advised",
			Priority:       "critical",
			Evidence:       "A",
		})
	}
	if p.HasCondition(patient.ConditionDiabetes) {
		items = append(items, LifestyleItem{
			Category:       "Glycemic control",
			Recommendation: "Keep HbA1c under 7% in coordination with diabetes care",
			Priority:       "high",
			Evidence:       "A",
		})
	}
	if bmi := p.BMI(); bmi >= 24 {
		items = append(items, LifestyleItem{
			Category:       "Weight management",
			Recommendation: fmt.Sprintf("Reduce BMI toward the 18.5-23.9 range (currently %.1f)", bmi),
			Priority:       "high",
			Evidence:       "A",
		})
	}
	return items
}

// monitoringPlan keys cadence on the grade; severer grades are followed up
// sooner. Lab work extends for renal and diabetic patients.
func monitoringPlan(g assessment.Grade, p patient.Profile) MonitoringPlan {
	plan := MonitoringPlan{
		MeasurementFrequency: "2-3 home measurements per week with a written log",
		LabWork:              []string{"complete blood count", "metabolic panel", "urinalysis", "ECG"},
	}

	switch {
	case g >= assessment.GradeStage2:
		plan.InitialFollowUp = "review within 1-2 weeks"
		plan.StableFollowUp = "every 1-2 months once controlled"
		plan.MeasurementFrequency = "daily home measurements until controlled"
	case g == assessment.GradeStage1:
		plan.InitialFollowUp = "review within 2-4 weeks"
		plan.StableFollowUp = "every 2-3 months once controlled"
	default:
		plan.InitialFollowUp = "review within 1-3 months"
		plan.StableFollowUp = "every 3-6 months"
	}

	if p.HasCondition(patient.ConditionDiabetes) {
		plan.LabWork = append(plan.LabWork, "HbA1c every 3 months", "annual retinal exam")
	}
	if p.HasCondition(patient.ConditionKidneyDisease) {
		plan.LabWork = append(plan.LabWork, "renal function every 3-6 months", "urine protein")
	}
	return plan
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
