package assessment

import (
	"errors"
	"testing"
	"time"

	"github.com/clinovate/bpadvisor/internal/domain/patient"
)

func reading(sys, dia float64) patient.Reading {
	return patient.Reading{Systolic: sys, Diastolic: dia, TakenAt: time.Now()}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		sys  float64
		dia  float64
		want Grade
	}{
		{"optimal", 110, 70, GradeNormal},
		{"systolic boundary into elevated", 120, 75, GradeElevated},
		{"elevated upper edge", 129, 79, GradeElevated},
		{"diastolic alone drives stage-1", 118, 80, GradeStage1},
		{"both stage-1", 135, 85, GradeStage1},
		{"stage-1 upper edge", 139, 89, GradeStage1},
		{"systolic boundary into stage-2", 140, 85, GradeStage2},
		{"diastolic drives stage-2 past systolic stage-1", 135, 90, GradeStage2},
		{"systolic crisis boundary", 180, 100, GradeCrisis},
		{"diastolic crisis boundary", 160, 120, GradeCrisis},
		{"both crisis", 200, 130, GradeCrisis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(reading(tt.sys, tt.dia))
			if err != nil {
				t.Fatalf("Classify(%v/%v) error: %v", tt.sys, tt.dia, err)
			}
			if got != tt.want {
				t.Fatalf("Classify(%v/%v) = %v, want %v", tt.sys, tt.dia, got, tt.want)
			}
		})
	}
}

func TestClassifyRejectsInvalid(t *testing.T) {
	_, err := Classify(reading(110, 115))
	var verr *patient.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Classify(110/115) error = %v, want *patient.ValidationError", err)
	}

	if _, err := Classify(reading(0, 50)); err == nil {
		t.Fatal("Classify(0/50) accepted a non-positive reading")
	}
}

func TestGradeString(t *testing.T) {
	if GradeStage2.String() != "stage-2" {
		t.Fatalf("GradeStage2.String() = %q", GradeStage2.String())
	}
	if Grade(42).String() != "unknown" {
		t.Fatalf("out-of-range grade String() = %q", Grade(42).String())
	}
}
