package examination

import (
	"context"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/program"
)

// Repository defines the persistence interface for the examination log.
// Writes are create and delete only; a clinical correction is a
// delete-and-recreate, never an update in place.
type Repository interface {
	CreateHT(ctx context.Context, e *HTExamination) error
	GetHT(ctx context.Context, id uuid.UUID) (*HTExamination, error)
	DeleteHT(ctx context.Context, id uuid.UUID) error

	CreateDM(ctx context.Context, e *DMExamination) error
	GetDM(ctx context.Context, id uuid.UUID) (*DMExamination, error)
	DeleteDM(ctx context.Context, id uuid.UUID) error

	// ListByClinic returns the disease's visits for a clinic, newest first.
	ListByClinic(ctx context.Context, disease program.DiseaseType, clinicID uuid.UUID, limit, offset int) ([]program.Visit, int, error)

	// CountByPatientYear counts the patient's remaining examinations of the
	// disease in a year; the year-set maintenance uses it after a delete.
	CountByPatientYear(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) (int, error)
}
