package statistics

import (
	"testing"

	"github.com/phc/phc/internal/domain/program"
)

func htVisit(month, systolic, diastolic int) program.Visit {
	return program.Visit{
		Disease:   program.DiseaseHT,
		Month:     month,
		Systolic:  systolic,
		Diastolic: diastolic,
	}
}

func dmVisit(month int, examType program.DMExamType, result float64) program.Visit {
	return program.Visit{
		Disease: program.DiseaseDM,
		Month:   month,
		DMType:  examType,
		Result:  result,
	}
}

func TestIsStandard(t *testing.T) {
	streak := []program.Visit{
		htVisit(3, 120, 80),
		htVisit(4, 120, 80),
		htVisit(5, 120, 80),
		htVisit(6, 120, 80),
		htVisit(7, 120, 80),
	}

	tests := []struct {
		name      string
		visits    []program.Visit
		asOfMonth int
		want      bool
	}{
		{"empty history", nil, 6, false},
		{"single visit in its own month", []program.Visit{htVisit(3, 120, 80)}, 3, true},
		{"unbroken streak through current month", streak, 7, true},
		{"streak but no visit this month", streak, 8, false},
		{"gap inside streak", []program.Visit{
			htVisit(3, 120, 80), htVisit(5, 120, 80),
		}, 5, false},
		{"first visit after asOf month", []program.Visit{htVisit(9, 120, 80)}, 6, false},
		{"repeat visits in one month collapse", []program.Visit{
			htVisit(3, 120, 80), htVisit(3, 150, 95), htVisit(4, 120, 80),
		}, 4, true},
		{"streak from january", []program.Visit{
			htVisit(1, 120, 80), htVisit(2, 120, 80), htVisit(3, 120, 80),
		}, 3, true},
		{"asOf month out of range", streak, 13, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStandard(tt.visits, tt.asOfMonth); got != tt.want {
				t.Errorf("IsStandard() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsControlled_HT(t *testing.T) {
	tests := []struct {
		name   string
		visits []program.Visit
		want   bool
	}{
		{"empty history", nil, false},
		{"three readings in band", []program.Visit{
			htVisit(1, 130, 80), htVisit(2, 120, 75), htVisit(3, 110, 70),
		}, true},
		{"only two readings in band", []program.Visit{
			htVisit(1, 130, 80), htVisit(2, 120, 75),
		}, false},
		{"high readings do not count", []program.Visit{
			htVisit(1, 150, 95), htVisit(2, 160, 100), htVisit(3, 145, 92),
		}, false},
		{"band boundaries inclusive", []program.Visit{
			htVisit(1, 90, 60), htVisit(2, 139, 89), htVisit(3, 90, 89),
		}, true},
		{"systolic in band but diastolic out", []program.Visit{
			htVisit(1, 120, 95), htVisit(2, 120, 95), htVisit(3, 120, 95),
		}, false},
		{"mixed readings reach three in band", []program.Visit{
			htVisit(1, 150, 95), htVisit(2, 120, 80), htVisit(3, 120, 80),
			htVisit(4, 160, 100), htVisit(5, 120, 80),
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsControlled(program.DiseaseHT, tt.visits); got != tt.want {
				t.Errorf("IsControlled(ht) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsControlled_DM(t *testing.T) {
	tests := []struct {
		name   string
		visits []program.Visit
		want   bool
	}{
		{"empty history", nil, false},
		{"single hba1c below threshold", []program.Visit{
			dmVisit(1, program.DMExamHbA1c, 6.5),
		}, true},
		{"hba1c at threshold is not controlled", []program.Visit{
			dmVisit(1, program.DMExamHbA1c, 7.0),
		}, false},
		{"three fasting glucose below threshold", []program.Visit{
			dmVisit(1, program.DMExamGDP, 110),
			dmVisit(2, program.DMExamGDP, 120),
			dmVisit(3, program.DMExamGDP, 100),
		}, true},
		{"two fasting glucose below threshold", []program.Visit{
			dmVisit(1, program.DMExamGDP, 110),
			dmVisit(2, program.DMExamGDP, 120),
		}, false},
		{"three post-prandial below threshold", []program.Visit{
			dmVisit(1, program.DMExamGD2JPP, 180),
			dmVisit(2, program.DMExamGD2JPP, 150),
			dmVisit(3, program.DMExamGD2JPP, 199),
		}, true},
		{"random glucose never counts", []program.Visit{
			dmVisit(1, program.DMExamGDSP, 100),
			dmVisit(2, program.DMExamGDSP, 100),
			dmVisit(3, program.DMExamGDSP, 100),
		}, false},
		{"fasting and post-prandial do not combine", []program.Visit{
			dmVisit(1, program.DMExamGDP, 110),
			dmVisit(2, program.DMExamGDP, 120),
			dmVisit(3, program.DMExamGD2JPP, 180),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsControlled(program.DiseaseDM, tt.visits); got != tt.want {
				t.Errorf("IsControlled(dm) = %v, want %v", got, tt.want)
			}
		})
	}
}
