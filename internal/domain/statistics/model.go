package statistics

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/program"
)

// Bucket is the aggregation key of the monthly cache.
type Bucket struct {
	ClinicID uuid.UUID
	Disease  program.DiseaseType
	Year     int
	Month    int
}

func (b Bucket) String() string {
	return fmt.Sprintf("%s/%s/%d-%02d", b.ClinicID, b.Disease, b.Year, b.Month)
}

// Validate rejects malformed bucket keys before they reach a query.
func (b Bucket) Validate() error {
	if b.ClinicID == uuid.Nil {
		return fmt.Errorf("clinic_id is required")
	}
	if !b.Disease.Valid() {
		return fmt.Errorf("unknown disease type: %q", b.Disease)
	}
	if b.Year < 1900 || b.Year > 3000 {
		return fmt.Errorf("implausible year: %d", b.Year)
	}
	if b.Month < 1 || b.Month > 12 {
		return fmt.Errorf("month must be between 1 and 12, got %d", b.Month)
	}
	return nil
}

// MonthlyEntry maps to the monthly_statistics_cache table. Counts are
// distinct patients with at least one examination in the bucket, not
// examination counts.
type MonthlyEntry struct {
	ID                 uuid.UUID           `db:"id" json:"id"`
	ClinicID           uuid.UUID           `db:"clinic_id" json:"clinic_id"`
	Disease            program.DiseaseType `db:"disease_type" json:"disease_type"`
	Year               int                 `db:"year" json:"year"`
	Month              int                 `db:"month" json:"month"`
	MaleCount          int                 `db:"male_count" json:"male_count"`
	FemaleCount        int                 `db:"female_count" json:"female_count"`
	TotalCount         int                 `db:"total_count" json:"total_count"`
	StandardCount      int                 `db:"standard_count" json:"standard_count"`
	NonStandardCount   int                 `db:"non_standard_count" json:"non_standard_count"`
	StandardPercentage float64             `db:"standard_percentage" json:"standard_percentage"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// Bucket returns the entry's aggregation key.
func (e *MonthlyEntry) Bucket() Bucket {
	return Bucket{ClinicID: e.ClinicID, Disease: e.Disease, Year: e.Year, Month: e.Month}
}

// AddPatient counts one more distinct patient into the bucket and refreshes
// the derived percentage. Gender is two-valued in the cache: anything not
// recorded as male is tallied as female so total = male + female holds for
// every entry.
func (e *MonthlyEntry) AddPatient(gender program.Gender, standard bool) {
	if gender == program.GenderMale {
		e.MaleCount++
	} else {
		e.FemaleCount++
	}
	e.TotalCount++
	if standard {
		e.StandardCount++
	} else {
		e.NonStandardCount++
	}
	e.RecomputePercentage()
}

// RecomputePercentage refreshes standard_percentage from the counters,
// guarding the empty bucket.
func (e *MonthlyEntry) RecomputePercentage() {
	if e.TotalCount == 0 {
		e.StandardPercentage = 0
		return
	}
	e.StandardPercentage = round2(float64(e.StandardCount) / float64(e.TotalCount) * 100)
}

// CheckTotals verifies the cache invariants:
// total = male + female and total = standard + non-standard.
func (e *MonthlyEntry) CheckTotals() error {
	if e.TotalCount != e.MaleCount+e.FemaleCount {
		return fmt.Errorf("bucket %s: total %d != male %d + female %d",
			e.Bucket(), e.TotalCount, e.MaleCount, e.FemaleCount)
	}
	if e.TotalCount != e.StandardCount+e.NonStandardCount {
		return fmt.Errorf("bucket %s: total %d != standard %d + non-standard %d",
			e.Bucket(), e.TotalCount, e.StandardCount, e.NonStandardCount)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// YearlyTarget maps to the yearly_target table: the planned patient count a
// clinic is expected to serve for a disease in a year. Read-only input for
// percentage-of-target reporting.
type YearlyTarget struct {
	ClinicID    uuid.UUID           `db:"clinic_id" json:"clinic_id"`
	Disease     program.DiseaseType `db:"disease_type" json:"disease_type"`
	Year        int                 `db:"year" json:"year"`
	TargetCount int                 `db:"target_count" json:"target_count"`
}

// YearlyReport is the dashboard view for one clinic, disease, and year:
// every monthly cache entry plus target coverage computed on read.
type YearlyReport struct {
	ClinicID         uuid.UUID           `json:"clinic_id"`
	Disease          program.DiseaseType `json:"disease_type"`
	Year             int                 `json:"year"`
	Months           []*MonthlyEntry     `json:"months"`
	DistinctPatients int                 `json:"distinct_patients"`
	TargetCount      int                 `json:"target_count"`
	TargetPercentage float64             `json:"target_percentage"`
}

// ControlledReport is the on-read clinical control summary. Controlled
// status is never cached; it is recomputed from the examination log on each
// request.
type ControlledReport struct {
	ClinicID      uuid.UUID           `json:"clinic_id"`
	Disease       program.DiseaseType `json:"disease_type"`
	Year          int                 `json:"year"`
	Controlled    int                 `json:"controlled"`
	NotControlled int                 `json:"not_controlled"`
	Total         int                 `json:"total"`
}
