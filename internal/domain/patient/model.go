package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/program"
)

// Patient maps to the patient table. HTYears and DMYears are the derived
// per-disease sets of years in which the patient has at least one
// examination; they are maintained transactionally alongside the
// examination log, never recomputed on read.
type Patient struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	ClinicID  uuid.UUID      `db:"clinic_id" json:"clinic_id"`
	Name      string         `db:"name" json:"name"`
	NIK       *string        `db:"nik" json:"nik,omitempty"`
	Gender    program.Gender `db:"gender" json:"gender"`
	BirthDate *time.Time     `db:"birth_date" json:"birth_date,omitempty"`
	HTYears   []int          `db:"ht_years" json:"ht_years"`
	DMYears   []int          `db:"dm_years" json:"dm_years"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Years returns the year set for the given disease.
func (p *Patient) Years(disease program.DiseaseType) []int {
	if disease == program.DiseaseDM {
		return p.DMYears
	}
	return p.HTYears
}

// HasYear reports whether the patient has an examination year recorded for
// the disease.
func (p *Patient) HasYear(disease program.DiseaseType, year int) bool {
	for _, y := range p.Years(disease) {
		if y == year {
			return true
		}
	}
	return false
}
