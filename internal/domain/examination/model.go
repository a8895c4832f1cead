package examination

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/program"
)

// Physiological bounds accepted by data entry. Readings outside these are
// rejected as entry errors, not stored.
const (
	minSystolic  = 40
	maxSystolic  = 300
	minDiastolic = 20
	maxDiastolic = 200
)

// HTExamination maps to the ht_examination table: one blood-pressure reading
// per visit. ExamYear and ExamMonth are denormalized from ExamDate for
// bucket queries and always derived, never client-supplied.
type HTExamination struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	ClinicID  uuid.UUID `db:"clinic_id" json:"clinic_id"`
	ExamDate  time.Time `db:"examination_date" json:"examination_date"`
	Systolic  int       `db:"systolic" json:"systolic"`
	Diastolic int       `db:"diastolic" json:"diastolic"`
	ExamYear  int       `db:"year" json:"year"`
	ExamMonth int       `db:"month" json:"month"`
	Archived  bool      `db:"is_archived" json:"is_archived"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Validate checks the reading against entry rules. now anchors the
// not-in-the-future check.
func (e *HTExamination) Validate(now time.Time) error {
	if e.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if e.ClinicID == uuid.Nil {
		return fmt.Errorf("clinic_id is required")
	}
	if e.ExamDate.IsZero() {
		return fmt.Errorf("examination_date is required")
	}
	if e.ExamDate.After(now) {
		return fmt.Errorf("examination_date must not be in the future")
	}
	if e.Systolic < minSystolic || e.Systolic > maxSystolic {
		return fmt.Errorf("systolic must be between %d and %d, got %d", minSystolic, maxSystolic, e.Systolic)
	}
	if e.Diastolic < minDiastolic || e.Diastolic > maxDiastolic {
		return fmt.Errorf("diastolic must be between %d and %d, got %d", minDiastolic, maxDiastolic, e.Diastolic)
	}
	return nil
}

// DeriveBucket fills the denormalized year and month from the examination
// date.
func (e *HTExamination) DeriveBucket() {
	e.ExamYear = e.ExamDate.Year()
	e.ExamMonth = int(e.ExamDate.Month())
}

// Visit returns the disease-agnostic view consumed by the statistics
// subsystem.
func (e *HTExamination) Visit() program.Visit {
	return program.Visit{
		ID:        e.ID,
		PatientID: e.PatientID,
		ClinicID:  e.ClinicID,
		Disease:   program.DiseaseHT,
		Date:      e.ExamDate,
		Year:      e.ExamYear,
		Month:     e.ExamMonth,
		Systolic:  e.Systolic,
		Diastolic: e.Diastolic,
	}
}

// DMExamination maps to the dm_examination table: one laboratory result per
// visit, tagged with the result type.
type DMExamination struct {
	ID        uuid.UUID          `db:"id" json:"id"`
	PatientID uuid.UUID          `db:"patient_id" json:"patient_id"`
	ClinicID  uuid.UUID          `db:"clinic_id" json:"clinic_id"`
	ExamDate  time.Time          `db:"examination_date" json:"examination_date"`
	ExamType  program.DMExamType `db:"examination_type" json:"examination_type"`
	Result    float64            `db:"result" json:"result"`
	ExamYear  int                `db:"year" json:"year"`
	ExamMonth int                `db:"month" json:"month"`
	Archived  bool               `db:"is_archived" json:"is_archived"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

// Validate checks the laboratory result against entry rules.
func (e *DMExamination) Validate(now time.Time) error {
	if e.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if e.ClinicID == uuid.Nil {
		return fmt.Errorf("clinic_id is required")
	}
	if e.ExamDate.IsZero() {
		return fmt.Errorf("examination_date is required")
	}
	if e.ExamDate.After(now) {
		return fmt.Errorf("examination_date must not be in the future")
	}
	if !e.ExamType.Valid() {
		return fmt.Errorf("unknown examination_type: %q", e.ExamType)
	}
	if e.Result <= 0 {
		return fmt.Errorf("result must be positive, got %v", e.Result)
	}
	return nil
}

// DeriveBucket fills the denormalized year and month from the examination
// date.
func (e *DMExamination) DeriveBucket() {
	e.ExamYear = e.ExamDate.Year()
	e.ExamMonth = int(e.ExamDate.Month())
}

// Visit returns the disease-agnostic view consumed by the statistics
// subsystem.
func (e *DMExamination) Visit() program.Visit {
	return program.Visit{
		ID:        e.ID,
		PatientID: e.PatientID,
		ClinicID:  e.ClinicID,
		Disease:   program.DiseaseDM,
		Date:      e.ExamDate,
		Year:      e.ExamYear,
		Month:     e.ExamMonth,
		DMType:    e.ExamType,
		Result:    e.Result,
	}
}
