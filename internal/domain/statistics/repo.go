package statistics

import (
	"context"

	"github.com/google/uuid"

	"github.com/phc/phc/internal/domain/program"
)

// CacheRepository defines the persistence interface for the monthly
// statistics cache.
type CacheRepository interface {
	// GetForUpdate fetches the bucket's entry under a row lock, creating a
	// zeroed entry first if the bucket has never been written. Must be
	// called inside a transaction; the lock serializes concurrent
	// increments for the same bucket.
	GetForUpdate(ctx context.Context, b Bucket) (*MonthlyEntry, error)

	// Save persists the counters of an entry previously fetched by
	// GetForUpdate.
	Save(ctx context.Context, e *MonthlyEntry) error

	// Get returns the bucket's entry, or program.ErrNotFound when the
	// bucket has no examinations yet.
	Get(ctx context.Context, b Bucket) (*MonthlyEntry, error)

	// ListYear returns all populated entries for a clinic, disease, and
	// year ordered by month.
	ListYear(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) ([]*MonthlyEntry, error)

	// Upsert replaces the bucket's entry wholesale (rebuild path).
	Upsert(ctx context.Context, e *MonthlyEntry) error

	// DeleteBucket removes a single entry; rebuilds use it when a bucket
	// has no examinations left.
	DeleteBucket(ctx context.Context, b Bucket) error

	// DeleteScope removes every entry for a disease, optionally narrowed to
	// one year. nil year means all years.
	DeleteScope(ctx context.Context, disease program.DiseaseType, year *int) error

	// LockScopeShared takes a transaction-scoped shared advisory lock on
	// the disease scope. Incremental updates call it inside their
	// transaction so they exclude a concurrent rebuild but not each other;
	// bucket row locks serialize increments per bucket.
	LockScopeShared(ctx context.Context, disease program.DiseaseType) error

	// LockScopeExclusive takes the session-level exclusive advisory lock on
	// the disease scope for the duration of a rebuild and returns its
	// release function.
	LockScopeExclusive(ctx context.Context, disease program.DiseaseType) (release func(), err error)
}

// ExaminationSource is the read-side of the examination log consumed by the
// classifiers and the rebuild path.
type ExaminationSource interface {
	// FindByPatientYear returns the patient's examinations of a disease in
	// a year. Archived examinations are included: archival is a storage
	// flag, not a classification filter.
	FindByPatientYear(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) ([]program.Visit, error)

	// FindByBucket returns every examination in an aggregation bucket.
	FindByBucket(ctx context.Context, b Bucket) ([]program.Visit, error)

	// FindByClinicYear returns every examination of a disease for a clinic
	// in a year, for on-read control-status reporting.
	FindByClinicYear(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) ([]program.Visit, error)

	// CountPriorInBucket counts the patient's examinations in a bucket,
	// excluding the given examination id. The incremental path runs after
	// its insert, so excluding the fresh row answers "was this the first
	// visit of the month".
	CountPriorInBucket(ctx context.Context, patientID uuid.UUID, b Bucket, excludeID uuid.UUID) (int, error)

	// ListBuckets enumerates the distinct populated buckets of a disease,
	// optionally narrowed to one year.
	ListBuckets(ctx context.Context, disease program.DiseaseType, year *int) ([]Bucket, error)

	// CountDistinctPatients counts distinct patients with any examination
	// of the disease for the clinic in the year.
	CountDistinctPatients(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) (int, error)
}

// GenderSource resolves a patient's recorded gender.
type GenderSource interface {
	Gender(ctx context.Context, patientID uuid.UUID) (program.Gender, error)
}

// TargetRepository reads yearly target counts. The core never writes them.
type TargetRepository interface {
	Get(ctx context.Context, clinicID uuid.UUID, disease program.DiseaseType, year int) (*YearlyTarget, error)
}

// TxRunner executes a function inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
