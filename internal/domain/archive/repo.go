package archive

import (
	"context"

	"github.com/phc/phc/internal/domain/program"
)

// Repository flips the archival flag on a year's examinations. It returns
// the number of rows changed so the batch can report per-disease counts.
type Repository interface {
	SetArchived(ctx context.Context, disease program.DiseaseType, year int, archived bool) (int64, error)
}
