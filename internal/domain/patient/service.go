package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/program"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return fmt.Errorf("patient name is required")
	}
	if p.ClinicID == uuid.Nil {
		return fmt.Errorf("clinic_id is required")
	}
	p.Gender = program.NormalizeGender(string(p.Gender))
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByClinic(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListByClinic(ctx, clinicID, limit, offset)
}

// Gender looks up the patient's recorded gender for statistics aggregation.
func (s *Service) Gender(ctx context.Context, id uuid.UUID) (program.Gender, error) {
	return s.repo.Gender(ctx, id)
}

// AddYear records that the patient has at least one examination of the
// disease in the given year. Idempotent.
func (s *Service) AddYear(ctx context.Context, id uuid.UUID, disease program.DiseaseType, year int) error {
	if !disease.Valid() {
		return fmt.Errorf("unknown disease type: %q", disease)
	}
	return s.repo.AddYear(ctx, id, disease, year)
}

// RemoveYear drops the year from the patient's set. Callers invoke it only
// after confirming no examination of the disease remains for that year.
func (s *Service) RemoveYear(ctx context.Context, id uuid.UUID, disease program.DiseaseType, year int) error {
	if !disease.Valid() {
		return fmt.Errorf("unknown disease type: %q", disease)
	}
	return s.repo.RemoveYear(ctx, id, disease, year)
}
