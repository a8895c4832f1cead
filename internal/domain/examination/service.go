package examination

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/domain/program"
	"github.com/phc/phc/internal/platform/db"
)

// StatsMaintainer receives examination lifecycle events inside the same
// transaction as the log write, keeping the monthly cache consistent with
// the source of truth.
type StatsMaintainer interface {
	OnExaminationCreated(ctx context.Context, v program.Visit) error
	OnExaminationDeleted(ctx context.Context, v program.Visit) error
}

// YearTracker maintains the patient's per-disease set of examination years.
type YearTracker interface {
	AddYear(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) error
	RemoveYear(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) error
}

// TxRunner executes a function inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the examination create and delete use cases. Each write
// runs in one transaction covering the log row, the patient year set, and
// the monthly cache update, retried a bounded number of times on transient
// lock conflicts.
type Service struct {
	repo    Repository
	years   YearTracker
	stats   StatsMaintainer
	tx      TxRunner
	retries int
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, years YearTracker, stats StatsMaintainer, tx TxRunner, retries int, log zerolog.Logger) *Service {
	if retries < 1 {
		retries = 1
	}
	return &Service{
		repo:    repo,
		years:   years,
		stats:   stats,
		tx:      tx,
		retries: retries,
		log:     log,
		now:     time.Now,
	}
}

// CreateHT records a hypertension examination and propagates the write to
// the patient year set and the monthly statistics cache.
func (s *Service) CreateHT(ctx context.Context, e *HTExamination) error {
	if err := e.Validate(s.now()); err != nil {
		return err
	}
	e.DeriveBucket()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	return db.WithRetry(ctx, s.retries, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.repo.CreateHT(ctx, e); err != nil {
				return err
			}
			if err := s.years.AddYear(ctx, e.PatientID, program.DiseaseHT, e.ExamYear); err != nil {
				return err
			}
			return s.stats.OnExaminationCreated(ctx, e.Visit())
		})
	})
}

// CreateDM records a diabetes examination and propagates the write to the
// patient year set and the monthly statistics cache.
func (s *Service) CreateDM(ctx context.Context, e *DMExamination) error {
	if err := e.Validate(s.now()); err != nil {
		return err
	}
	e.DeriveBucket()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	return db.WithRetry(ctx, s.retries, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.repo.CreateDM(ctx, e); err != nil {
				return err
			}
			if err := s.years.AddYear(ctx, e.PatientID, program.DiseaseDM, e.ExamYear); err != nil {
				return err
			}
			return s.stats.OnExaminationCreated(ctx, e.Visit())
		})
	})
}

// DeleteHT removes a hypertension examination. The year set entry is dropped
// when this was the patient's last examination of the year, and the cache is
// corrected inside the same transaction.
func (s *Service) DeleteHT(ctx context.Context, id uuid.UUID) error {
	return db.WithRetry(ctx, s.retries, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			e, err := s.repo.GetHT(ctx, id)
			if err != nil {
				return err
			}
			if err := s.repo.DeleteHT(ctx, id); err != nil {
				return err
			}
			if err := s.dropYearIfLast(ctx, e.PatientID, program.DiseaseHT, e.ExamYear); err != nil {
				return err
			}
			return s.stats.OnExaminationDeleted(ctx, e.Visit())
		})
	})
}

// DeleteDM removes a diabetes examination, mirroring DeleteHT.
func (s *Service) DeleteDM(ctx context.Context, id uuid.UUID) error {
	return db.WithRetry(ctx, s.retries, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			e, err := s.repo.GetDM(ctx, id)
			if err != nil {
				return err
			}
			if err := s.repo.DeleteDM(ctx, id); err != nil {
				return err
			}
			if err := s.dropYearIfLast(ctx, e.PatientID, program.DiseaseDM, e.ExamYear); err != nil {
				return err
			}
			return s.stats.OnExaminationDeleted(ctx, e.Visit())
		})
	})
}

func (s *Service) dropYearIfLast(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) error {
	remaining, err := s.repo.CountByPatientYear(ctx, patientID, disease, year)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return s.years.RemoveYear(ctx, patientID, disease, year)
}

func (s *Service) GetHT(ctx context.Context, id uuid.UUID) (*HTExamination, error) {
	return s.repo.GetHT(ctx, id)
}

func (s *Service) GetDM(ctx context.Context, id uuid.UUID) (*DMExamination, error) {
	return s.repo.GetDM(ctx, id)
}

func (s *Service) ListByClinic(ctx context.Context, disease program.DiseaseType, clinicID uuid.UUID, limit, offset int) ([]program.Visit, int, error) {
	return s.repo.ListByClinic(ctx, disease, clinicID, limit, offset)
}
