// Package patient defines the patient profile and blood-pressure reading types
// consumed by the advisory engine. Profiles are owned by the external record
// store and passed in by value; the engine never mutates them.
package patient

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Condition codes recognized by the risk rules.
const (
	ConditionDiabetes      = "diabetes"
	ConditionKidneyDisease = "kidney-disease"
	ConditionHeartDisease  = "heart-disease"
	ConditionStrokeHistory = "stroke-history"
	ConditionSmoking       = "smoking"
	ConditionFamilyHistory = "family-history"
)

// Sex is the administrative sex recorded on the profile.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// Profile is a point-in-time snapshot of a patient record.
type Profile struct {
	ID              string          `json:"id"`
	Age             int             `json:"age"`
	Sex             Sex             `json:"sex"`
	HeightCM        float64         `json:"height_cm,omitempty"`
	WeightKG        float64         `json:"weight_kg,omitempty"`
	Conditions      map[string]bool `json:"conditions,omitempty"`
	ActiveClasses   map[string]bool `json:"active_classes,omitempty"`
	Contraindicated map[string]bool `json:"contraindicated,omitempty"`
}

// HasCondition reports whether a condition code is present on the profile.
func (p Profile) HasCondition(code string) bool {
	return p.Conditions[code]
}

// Comorbid reports whether the profile carries any condition that tightens
// blood-pressure targets (diabetes, renal disease, prior cardiovascular event).
func (p Profile) Comorbid() bool {
	return p.HasCondition(ConditionDiabetes) ||
		p.HasCondition(ConditionKidneyDisease) ||
		p.HasCondition(ConditionHeartDisease) ||
		p.HasCondition(ConditionStrokeHistory)
}

// BMI returns the body mass index, or 0 when height or weight is missing.
func (p Profile) BMI() float64 {
	if p.HeightCM <= 0 || p.WeightKG <= 0 {
		return 0
	}
	m := p.HeightCM / 100
	return math.Round(p.WeightKG/(m*m)*10) / 10
}

// Reading is a single blood-pressure measurement. Immutable once created.
type Reading struct {
	Systolic  float64   `json:"systolic"`
	Diastolic float64   `json:"diastolic"`
	HeartRate int       `json:"heart_rate,omitempty"`
	TakenAt   time.Time `json:"taken_at"`
	Location  string    `json:"location,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	// Synthetic marks quick-default submissions (a canned 120/80) so trend
	// analysis can tell them apart from real measurements.
	Synthetic bool `json:"synthetic,omitempty"`
}

// maxPlausibleMMHg bounds readings; values above it are treated as sensor or
// entry errors rather than physiology.
const maxPlausibleMMHg = 300

// ValidationError reports a physiologically impossible reading. The caller
// decides whether to discard or flag it; nothing downstream ever clamps.
type ValidationError struct {
	Systolic  float64
	Diastolic float64
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid reading %.0f/%.0f mmHg: %s", e.Systolic, e.Diastolic, e.Reason)
}

// Validate checks a reading against the plausibility rules.
func (r Reading) Validate() error {
	switch {
	case r.Systolic <= 0 || r.Diastolic <= 0:
		return &ValidationError{r.Systolic, r.Diastolic, "pressures must be positive"}
	case r.Systolic > maxPlausibleMMHg || r.Diastolic > maxPlausibleMMHg:
		return &ValidationError{r.Systolic, r.Diastolic, "pressure exceeds plausible range"}
	case r.Diastolic >= r.Systolic:
		return &ValidationError{r.Systolic, r.Diastolic, "diastolic must be below systolic"}
	}
	return nil
}

// History is an ordered sequence of readings for one patient.
type History []Reading

// Sorted returns a copy ordered by timestamp ascending. Insertion order does
// not imply chronological order, so callers must sort before trend analysis.
func (h History) Sorted() History {
	out := make(History, len(h))
	copy(out, h)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TakenAt.Before(out[j].TakenAt)
	})
	return out
}

// Measured returns the sorted history with synthetic readings removed.
func (h History) Measured() History {
	out := make(History, 0, len(h))
	for _, r := range h.Sorted() {
		if !r.Synthetic {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the most recent reading and true, or false for an empty history.
func (h History) Latest() (Reading, bool) {
	if len(h) == 0 {
		return Reading{}, false
	}
	s := h.Sorted()
	return s[len(s)-1], true
}

// QuickDefault builds the synthetic 120/80 convenience reading.
func QuickDefault(at time.Time) Reading {
	return Reading{Systolic: 120, Diastolic: 80, TakenAt: at, Synthetic: true}
}
