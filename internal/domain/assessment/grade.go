// Package assessment implements blood-pressure grading, trend analysis and
// risk stratification. All computations are pure; a new assessment supersedes
// the prior one rather than mutating it.
package assessment

import "github.com/clinovate/bpadvisor/internal/domain/patient"

// Grade is the categorical severity of a single reading, ordered by severity.
type Grade int

const (
	GradeNormal Grade = iota
	GradeElevated
	GradeStage1
	GradeStage2
	GradeCrisis
)

var gradeNames = map[Grade]string{
	GradeNormal:   "normal",
	GradeElevated: "elevated",
	GradeStage1:   "stage-1",
	GradeStage2:   "stage-2",
	GradeCrisis:   "crisis",
}

func (g Grade) String() string {
	if s, ok := gradeNames[g]; ok {
		return s
	}
	return "unknown"
}

// MarshalText lets grades serialize as their clinical names.
func (g Grade) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// Classify maps a reading to a grade. Systolic and diastolic are graded
// independently against the guideline thresholds and the higher-severity
// sub-grade wins: either number being elevated elevates the overall grade.
// Boundary values resolve upward (exactly 140 systolic is stage-2).
// Readings that fail validation are rejected, never clamped.
func Classify(r patient.Reading) (Grade, error) {
	if err := r.Validate(); err != nil {
		return GradeNormal, err
	}

	g := systolicGrade(r.Systolic)
	if d := diastolicGrade(r.Diastolic); d > g {
		g = d
	}
	return g, nil
}

func systolicGrade(v float64) Grade {
	switch {
	case v >= 180:
		return GradeCrisis
	case v >= 140:
		return GradeStage2
	case v >= 130:
		return GradeStage1
	case v >= 120:
		return GradeElevated
	default:
		return GradeNormal
	}
}

func diastolicGrade(v float64) Grade {
	switch {
	case v >= 120:
		return GradeCrisis
	case v >= 90:
		return GradeStage2
	case v >= 80:
		return GradeStage1
	default:
		return GradeNormal
	}
}
