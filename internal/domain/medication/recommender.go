// Package medication selects candidate antihypertensive drug classes under
// contraindication constraints. Recommendation is a pure function of the risk
// tier, the profile, the rule-set version and the contraindication facts:
// no hidden state, no randomness.
package medication

import (
	"errors"
	"fmt"
	"sort"

	"github.com/clinovate/bpadvisor/internal/domain/assessment"
	"github.com/clinovate/bpadvisor/internal/domain/patient"
	"github.com/clinovate/bpadvisor/internal/knowledge"
)

// Drug class codes. These match the med-* document ids in the knowledge corpus.
const (
	ClassACEInhibitor = "ace-inhibitor"
	ClassARB          = "arb"
	ClassCCB          = "calcium-channel-blocker"
	ClassThiazide     = "thiazide-diuretic"
	ClassBetaBlocker  = "beta-blocker"
)

// ErrNoSafeRecommendation signals that contraindications exhausted every
// candidate class. It must surface to the caller for human review; an empty
// result is never returned silently.
var ErrNoSafeRecommendation = errors.New("medication: no safe drug class remains after exclusions")

// Exclusion records a removed candidate and why.
type Exclusion struct {
	Class  string `json:"class"`
	Reason string `json:"reason"`
}

// Recommendation is the deterministic output of the recommender.
type Recommendation struct {
	NeedsMedication bool        `json:"needs_medication"`
	Recommended     []string    `json:"recommended"`
	Excluded        []Exclusion `json:"excluded"`
	RuleSet         string      `json:"rule_set"`
}

// tierCandidates maps a risk tier to its candidate classes.
var tierCandidates = map[assessment.Tier][]string{
	assessment.TierModerate: {ClassACEInhibitor, ClassThiazide},
	assessment.TierHigh:     {ClassACEInhibitor, ClassARB, ClassCCB, ClassThiazide},
	assessment.TierCrisis:   {ClassACEInhibitor, ClassARB, ClassCCB, ClassThiazide, ClassBetaBlocker},
}

// Recommend builds the medication recommendation for a tier and profile. The
// knowledge index supplies exclusion reasons. ruleSet pins the rule version
// and must be non-empty.
func Recommend(tier assessment.Tier, p patient.Profile, ix *knowledge.Index, ruleSet string) (Recommendation, error) {
	if ruleSet == "" {
		return Recommendation{}, fmt.Errorf("medication recommender: rule-set version is required")
	}

	rec := Recommendation{RuleSet: ruleSet}

	candidates, ok := tierCandidates[tier]
	if !ok {
		// Low tier: lifestyle management only, re-check in three months.
		return rec, nil
	}
	rec.NeedsMedication = true

	for _, class := range candidates {
		switch {
		case p.Contraindicated[class]:
			rec.Excluded = append(rec.Excluded, Exclusion{
				Class:  class,
				Reason: ix.ContraindicationFact(class),
			})
		case p.ActiveClasses[class]:
			rec.Excluded = append(rec.Excluded, Exclusion{
				Class:  class,
				Reason: "already on active therapy in this class",
			})
		default:
			rec.Recommended = append(rec.Recommended, class)
		}
	}

	if len(rec.Recommended) == 0 {
		return rec, fmt.Errorf("tier %s for patient %s: %w", tier, p.ID, ErrNoSafeRecommendation)
	}

	sort.Strings(rec.Recommended)
	orderByPreference(rec.Recommended, p)
	return rec, nil
}

// orderByPreference moves profile-preferred classes to the front while
// keeping the remainder in sorted order. Diabetic or renal patients prefer
// ACE inhibitors and ARBs, coronary patients beta blockers, and older
// patients calcium channel blockers.
func orderByPreference(classes []string, p patient.Profile) {
	rank := func(class string) int {
		switch {
		case (p.HasCondition(patient.ConditionDiabetes) || p.HasCondition(patient.ConditionKidneyDisease)) &&
			(class == ClassACEInhibitor || class == ClassARB):
			return 0
		case p.HasCondition(patient.ConditionHeartDisease) && class == ClassBetaBlocker:
			return 0
		case p.Age >= 60 && class == ClassCCB:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(classes, func(i, j int) bool { return rank(classes[i]) < rank(classes[j]) })
}
