package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/program"
)

// Repository defines the persistence interface for patients, including the
// idempotent year-set operations consumed by the examination use cases.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListByClinic(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]*Patient, int, error)
	Gender(ctx context.Context, id uuid.UUID) (program.Gender, error)
	AddYear(ctx context.Context, id uuid.UUID, disease program.DiseaseType, year int) error
	RemoveYear(ctx context.Context, id uuid.UUID, disease program.DiseaseType, year int) error
}
