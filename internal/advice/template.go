package advice

import (
	"fmt"
	"strings"
)

// renderTemplate concatenates the structured fields into readable sentences.
// It is the deterministic fallback when the generation backend is
// unavailable; the structured portion of the response never depends on it.
func renderTemplate(resp *Response) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Your latest reading of %.0f/%.0f mmHg is classified as %s.",
		resp.Reading.Systolic, resp.Reading.Diastolic, gradeLabel(resp.Risk.Grade.String()))
	fmt.Fprintf(&b, " Overall cardiovascular risk is %s.", string(resp.Risk.Tier))

	if len(resp.Risk.Factors) > 0 {
		fmt.Fprintf(&b, " Contributing factors: %s.", strings.Join(resp.Risk.Factors, "; "))
	}

	switch resp.Risk.Trend {
	case "worsening":
		b.WriteString(" Recent readings show a worsening trend.")
	case "improving":
		b.WriteString(" Recent readings show an improving trend.")
	case "stable":
		b.WriteString(" Recent readings are stable.")
	}

	fmt.Fprintf(&b, " The blood-pressure target for your profile is below %d/%d mmHg.",
		resp.TargetSystolic, resp.TargetDiastolic)

	switch {
	case resp.NeedsReview:
		b.WriteString(" No drug class could be recommended safely given the recorded" +
			" contraindications and current therapy; clinician review is required.")
	case resp.Medication.NeedsMedication:
		fmt.Fprintf(&b, " Candidate medication classes: %s.",
			strings.Join(resp.Medication.Recommended, ", "))
	default:
		b.WriteString(" Medication is not indicated at this time; lifestyle" +
			" management with re-assessment in three months is advised.")
	}

	for _, ex := range resp.Medication.Excluded {
		fmt.Fprintf(&b, " %s was excluded: %s.", ex.Class, ex.Reason)
	}

	if len(resp.Lifestyle) > 0 {
		b.WriteString(" Key lifestyle measures:")
		for i, item := range resp.Lifestyle {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, " %s.", item.Recommendation)
		}
	}

	fmt.Fprintf(&b, " Monitoring: %s; %s.",
		resp.Monitoring.MeasurementFrequency, resp.Monitoring.InitialFollowUp)

	return b.String()
}

func gradeLabel(g string) string {
	switch g {
	case "stage-1":
		return "stage-1 hypertension"
	case "stage-2":
		return "stage-2 hypertension"
	case "crisis":
		return "a hypertensive crisis"
	default:
		return g
	}
}
