package statistics

import "github.com/phc/phc/internal/domain/program"

// Clinical thresholds for controlled status. The HT band is the canonical
// 90-139 / 60-89 range; a reading inside the band on both values counts as
// a controlled reading.
const (
	controlledSystolicMin  = 90
	controlledSystolicMax  = 139
	controlledDiastolicMin = 60
	controlledDiastolicMax = 89

	controlledHbA1cBelow  = 7.0
	controlledGDPBelow    = 126.0
	controlledGD2JPPBelow = 200.0

	// minControlledReadings is the repeat-reading requirement for every
	// criterion except a single HbA1c result.
	minControlledReadings = 3
)

// IsStandard reports whether a patient is "standard" for a disease as of a
// month: an unbroken monthly visit streak from the patient's first visit of
// the year through asOfMonth inclusive. visits must be the patient's
// examinations of one disease within one calendar year; an empty history is
// not standard.
func IsStandard(visits []program.Visit, asOfMonth int) bool {
	if len(visits) == 0 || asOfMonth < 1 || asOfMonth > 12 {
		return false
	}

	var seen [13]bool
	first := 13
	for _, v := range visits {
		if v.Month < 1 || v.Month > 12 {
			continue
		}
		seen[v.Month] = true
		if v.Month < first {
			first = v.Month
		}
	}
	if first > asOfMonth {
		return false
	}

	for m := first; m <= asOfMonth; m++ {
		if !seen[m] {
			return false
		}
	}
	return true
}

// IsControlled reports whether the patient's condition is clinically
// controlled over the given examination history. An empty history is not
// controlled; the decision never errors, since missing data is a valid
// input.
func IsControlled(disease program.DiseaseType, visits []program.Visit) bool {
	if disease == program.DiseaseDM {
		return isControlledDM(visits)
	}
	return isControlledHT(visits)
}

func isControlledHT(visits []program.Visit) bool {
	inBand := 0
	for _, v := range visits {
		if v.Systolic >= controlledSystolicMin && v.Systolic <= controlledSystolicMax &&
			v.Diastolic >= controlledDiastolicMin && v.Diastolic <= controlledDiastolicMax {
			inBand++
			if inBand >= minControlledReadings {
				return true
			}
		}
	}
	return false
}

// isControlledDM applies the three DM criteria. A single HbA1c below
// threshold is sufficient on its own; fasting and post-prandial glucose need
// repeated below-threshold results. Random glucose (gdsp) never contributes.
func isControlledDM(visits []program.Visit) bool {
	gdp, gd2jpp := 0, 0
	for _, v := range visits {
		switch v.DMType {
		case program.DMExamHbA1c:
			if v.Result < controlledHbA1cBelow {
				return true
			}
		case program.DMExamGDP:
			if v.Result < controlledGDPBelow {
				gdp++
			}
		case program.DMExamGD2JPP:
			if v.Result < controlledGD2JPPBelow {
				gd2jpp++
			}
		}
	}
	return gdp >= minControlledReadings || gd2jpp >= minControlledReadings
}
