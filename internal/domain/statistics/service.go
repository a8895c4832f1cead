package statistics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/domain/program"
)

// Service maintains the monthly statistics cache against the examination
// log: incrementally on each examination lifecycle event, and wholesale via
// the rebuild paths. Both paths classify patients with the same functions,
// so a rebuild reproduces exactly the counts the incremental path would
// have accumulated.
type Service struct {
	cache    CacheRepository
	exams    ExaminationSource
	patients GenderSource
	targets  TargetRepository
	tx       TxRunner
	log      zerolog.Logger
}

func NewService(cache CacheRepository, exams ExaminationSource, patients GenderSource, targets TargetRepository, tx TxRunner, log zerolog.Logger) *Service {
	return &Service{
		cache:    cache,
		exams:    exams,
		patients: patients,
		targets:  targets,
		tx:       tx,
		log:      log,
	}
}

// OnExaminationCreated folds a freshly inserted examination into the
// monthly cache. It must run inside the same transaction as the insert; the
// bucket row lock taken by GetForUpdate serializes concurrent updates for
// the same bucket, and the shared scope lock excludes a concurrent rebuild.
//
// Only the patient's first examination of the month moves the counters:
// repeat visits within a month must not double-count the patient.
func (s *Service) OnExaminationCreated(ctx context.Context, v program.Visit) error {
	b := Bucket{ClinicID: v.ClinicID, Disease: v.Disease, Year: v.Year, Month: v.Month}
	if err := b.Validate(); err != nil {
		return err
	}

	if err := s.cache.LockScopeShared(ctx, v.Disease); err != nil {
		return err
	}

	// The row lock comes before the first-visit check: a competing insert
	// for the same patient and month serializes here, and the count after
	// the lock wait sees its committed row.
	entry, err := s.cache.GetForUpdate(ctx, b)
	if err != nil {
		return err
	}

	prior, err := s.exams.CountPriorInBucket(ctx, v.PatientID, b, v.ID)
	if err != nil {
		return err
	}
	if prior > 0 {
		return nil
	}

	gender, err := s.patients.Gender(ctx, v.PatientID)
	if err != nil {
		return err
	}

	visits, err := s.exams.FindByPatientYear(ctx, v.PatientID, v.Disease, v.Year)
	if err != nil {
		return err
	}

	entry.AddPatient(gender, IsStandard(visits, v.Month))
	if err := s.cache.Save(ctx, entry); err != nil {
		return err
	}

	s.log.Debug().
		Str("bucket", b.String()).
		Int("total", entry.TotalCount).
		Msg("cache incremented")
	return nil
}

// OnExaminationDeleted corrects the cache after a deletion, inside the
// deleting transaction. A removed visit can break a streak for every later
// month of the year, so the affected clinic's buckets from the deleted
// month through December are recomputed from the log rather than
// decremented in place.
func (s *Service) OnExaminationDeleted(ctx context.Context, v program.Visit) error {
	b := Bucket{ClinicID: v.ClinicID, Disease: v.Disease, Year: v.Year, Month: v.Month}
	if err := b.Validate(); err != nil {
		return err
	}

	if err := s.cache.LockScopeShared(ctx, v.Disease); err != nil {
		return err
	}

	for m := v.Month; m <= 12; m++ {
		b.Month = m
		// Lock the bucket row before reading the log: the shared scope
		// lock does not exclude a concurrent increment, and an increment
		// committing between the read and the upsert would be overwritten.
		if _, err := s.cache.GetForUpdate(ctx, b); err != nil {
			return fmt.Errorf("lock bucket %s: %w", b, err)
		}
		if err := s.rebuildBucket(ctx, b); err != nil {
			return fmt.Errorf("recompute bucket %s after delete: %w", b, err)
		}
	}
	return nil
}

// RebuildAll recomputes the whole cache for both diseases.
func (s *Service) RebuildAll(ctx context.Context) error {
	for _, d := range program.Diseases {
		if err := s.RebuildForDisease(ctx, d, nil); err != nil {
			return err
		}
	}
	return nil
}

// RebuildForDisease recomputes the cache for one disease, optionally
// narrowed to a year. The exclusive scope lock holds off incremental
// updates for the duration; each bucket is recomputed in its own
// transaction, so an interrupted rebuild leaves at most one bucket window
// to heal by re-invoking the same scope.
func (s *Service) RebuildForDisease(ctx context.Context, disease program.DiseaseType, year *int) error {
	if !disease.Valid() {
		return fmt.Errorf("unknown disease type: %q", disease)
	}

	release, err := s.cache.LockScopeExclusive(ctx, disease)
	if err != nil {
		return err
	}
	defer release()

	if err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.cache.DeleteScope(ctx, disease, year)
	}); err != nil {
		return fmt.Errorf("clear cache scope %s: %w", disease, err)
	}

	buckets, err := s.exams.ListBuckets(ctx, disease, year)
	if err != nil {
		return err
	}

	for _, b := range buckets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rebuild interrupted at bucket %s: %w", b, err)
		}
		if err := s.tx.WithTx(ctx, func(ctx context.Context) error {
			return s.rebuildBucket(ctx, b)
		}); err != nil {
			return fmt.Errorf("rebuild bucket %s: %w", b, err)
		}
	}

	s.log.Info().
		Str("disease", string(disease)).
		Int("buckets", len(buckets)).
		Msg("cache rebuilt")
	return nil
}

// rebuildBucket recomputes one cache entry from the examination log. The
// caller supplies the transaction.
func (s *Service) rebuildBucket(ctx context.Context, b Bucket) error {
	visits, err := s.exams.FindByBucket(ctx, b)
	if err != nil {
		return err
	}
	if len(visits) == 0 {
		return s.cache.DeleteBucket(ctx, b)
	}

	seen := make(map[uuid.UUID]bool)
	var patientIDs []uuid.UUID
	for _, v := range visits {
		if !seen[v.PatientID] {
			seen[v.PatientID] = true
			patientIDs = append(patientIDs, v.PatientID)
		}
	}
	sort.Slice(patientIDs, func(i, j int) bool {
		return patientIDs[i].String() < patientIDs[j].String()
	})

	entry := &MonthlyEntry{
		ClinicID: b.ClinicID,
		Disease:  b.Disease,
		Year:     b.Year,
		Month:    b.Month,
	}
	for _, pid := range patientIDs {
		gender, err := s.patients.Gender(ctx, pid)
		if err != nil {
			return err
		}
		yearVisits, err := s.exams.FindByPatientYear(ctx, pid, b.Disease, b.Year)
		if err != nil {
			return err
		}
		entry.AddPatient(gender, IsStandard(yearVisits, b.Month))
	}

	return s.cache.Upsert(ctx, entry)
}

// MonthlyStats returns the cache entry for a bucket. A bucket that has
// never seen an examination yields a zero-valued entry, not an error.
func (s *Service) MonthlyStats(ctx context.Context, b Bucket) (*MonthlyEntry, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	entry, err := s.cache.Get(ctx, b)
	if errors.Is(err, program.ErrNotFound) {
		return &MonthlyEntry{
			ClinicID: b.ClinicID,
			Disease:  b.Disease,
			Year:     b.Year,
			Month:    b.Month,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// YearlyReport assembles the populated monthly entries with the
// percentage-of-target coverage for a clinic's year. A missing target row
// reports zero coverage.
func (s *Service) YearlyReport(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) (*YearlyReport, error) {
	if !disease.Valid() {
		return nil, fmt.Errorf("unknown disease type: %q", disease)
	}

	entries, err := s.cache.ListYear(ctx, clinicID, disease, year)
	if err != nil {
		return nil, err
	}

	distinct, err := s.exams.CountDistinctPatients(ctx, clinicID, disease, year)
	if err != nil {
		return nil, err
	}

	report := &YearlyReport{
		ClinicID:         clinicID,
		Disease:          disease,
		Year:             year,
		Months:           entries,
		DistinctPatients: distinct,
	}

	target, err := s.targets.Get(ctx, clinicID, disease, year)
	if err != nil && !errors.Is(err, program.ErrNotFound) {
		return nil, err
	}
	if target != nil && target.TargetCount > 0 {
		report.TargetCount = target.TargetCount
		report.TargetPercentage = round2(float64(distinct) / float64(target.TargetCount) * 100)
	}
	return report, nil
}

// ControlledReport computes the clinical control summary for a clinic's
// year directly from the examination log.
func (s *Service) ControlledReport(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) (*ControlledReport, error) {
	if !disease.Valid() {
		return nil, fmt.Errorf("unknown disease type: %q", disease)
	}

	visits, err := s.exams.FindByClinicYear(ctx, clinicID, disease, year)
	if err != nil {
		return nil, err
	}

	byPatient := make(map[uuid.UUID][]program.Visit)
	for _, v := range visits {
		byPatient[v.PatientID] = append(byPatient[v.PatientID], v)
	}

	report := &ControlledReport{ClinicID: clinicID, Disease: disease, Year: year}
	for _, history := range byPatient {
		if IsControlled(disease, history) {
			report.Controlled++
		} else {
			report.NotControlled++
		}
		report.Total++
	}
	return report, nil
}
