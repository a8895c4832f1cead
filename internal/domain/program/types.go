// Package program holds the shared vocabulary of the chronic-disease
// tracking programs: the two disease types, the DM laboratory examination
// types, patient gender, and the disease-agnostic Visit view that the
// statistics subsystem consumes.
package program

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DiseaseType identifies one of the two tracked programs.
type DiseaseType string

const (
	DiseaseHT DiseaseType = "ht" // hypertension
	DiseaseDM DiseaseType = "dm" // diabetes mellitus
)

// Diseases lists all tracked disease types.
var Diseases = []DiseaseType{DiseaseHT, DiseaseDM}

// Valid reports whether d is a known disease type.
func (d DiseaseType) Valid() bool {
	return d == DiseaseHT || d == DiseaseDM
}

// ParseDisease normalizes a user-supplied disease identifier.
func ParseDisease(s string) (DiseaseType, error) {
	d := DiseaseType(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown disease type: %q", s)
	}
	return d, nil
}

// DMExamType identifies the laboratory result carried by a DM examination.
type DMExamType string

const (
	DMExamHbA1c  DMExamType = "hba1c"  // glycated hemoglobin
	DMExamGDP    DMExamType = "gdp"    // fasting glucose
	DMExamGD2JPP DMExamType = "gd2jpp" // 2-hour post-prandial glucose
	DMExamGDSP   DMExamType = "gdsp"   // random glucose
)

// Valid reports whether t is a known DM examination type.
func (t DMExamType) Valid() bool {
	switch t {
	case DMExamHbA1c, DMExamGDP, DMExamGD2JPP, DMExamGDSP:
		return true
	}
	return false
}

// Gender is the patient gender as recorded by the registry.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// NormalizeGender maps free-form registry input onto the canonical values.
// Anything unrecognized becomes GenderUnknown.
func NormalizeGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "l", "laki-laki":
		return GenderMale
	case "female", "f", "p", "perempuan":
		return GenderFemale
	}
	return GenderUnknown
}

// Visit is the disease-agnostic view of a single examination, the unit the
// classifiers and the monthly cache maintainer operate on. The Disease field
// tags which clinical payload is populated: Systolic/Diastolic for HT,
// DMType/Result for DM.
type Visit struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	ClinicID  uuid.UUID
	Disease   DiseaseType
	Date      time.Time
	Year      int
	Month     int

	// HT payload
	Systolic  int
	Diastolic int

	// DM payload
	DMType DMExamType
	Result float64
}
