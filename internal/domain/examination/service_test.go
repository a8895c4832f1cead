package examination

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/domain/program"
)

type memRepo struct {
	ht map[uuid.UUID]*HTExamination
	dm map[uuid.UUID]*DMExamination

	// failCreates makes the next N creates fail with failErr.
	failCreates int
	failErr     error
}

func newMemRepo() *memRepo {
	return &memRepo{
		ht: make(map[uuid.UUID]*HTExamination),
		dm: make(map[uuid.UUID]*DMExamination),
	}
}

func (r *memRepo) CreateHT(ctx context.Context, e *HTExamination) error {
	if r.failCreates > 0 {
		r.failCreates--
		return r.failErr
	}
	cp := *e
	r.ht[cp.ID] = &cp
	return nil
}

func (r *memRepo) GetHT(ctx context.Context, id uuid.UUID) (*HTExamination, error) {
	if e, ok := r.ht[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, program.ErrNotFound
}

func (r *memRepo) DeleteHT(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.ht[id]; !ok {
		return program.ErrNotFound
	}
	delete(r.ht, id)
	return nil
}

func (r *memRepo) CreateDM(ctx context.Context, e *DMExamination) error {
	if r.failCreates > 0 {
		r.failCreates--
		return r.failErr
	}
	cp := *e
	r.dm[cp.ID] = &cp
	return nil
}

func (r *memRepo) GetDM(ctx context.Context, id uuid.UUID) (*DMExamination, error) {
	if e, ok := r.dm[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, program.ErrNotFound
}

func (r *memRepo) DeleteDM(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.dm[id]; !ok {
		return program.ErrNotFound
	}
	delete(r.dm, id)
	return nil
}

func (r *memRepo) ListByClinic(ctx context.Context, disease program.DiseaseType, clinicID uuid.UUID, limit, offset int) ([]program.Visit, int, error) {
	return nil, 0, nil
}

func (r *memRepo) CountByPatientYear(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) (int, error) {
	n := 0
	switch disease {
	case program.DiseaseHT:
		for _, e := range r.ht {
			if e.PatientID == patientID && e.ExamYear == year {
				n++
			}
		}
	case program.DiseaseDM:
		for _, e := range r.dm {
			if e.PatientID == patientID && e.ExamYear == year {
				n++
			}
		}
	}
	return n, nil
}

type yearCall struct {
	patientID uuid.UUID
	disease   program.DiseaseType
	year      int
}

type recordingYears struct {
	added   []yearCall
	removed []yearCall
}

func (r *recordingYears) AddYear(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) error {
	r.added = append(r.added, yearCall{patientID, disease, year})
	return nil
}

func (r *recordingYears) RemoveYear(ctx context.Context, patientID uuid.UUID, disease program.DiseaseType, year int) error {
	r.removed = append(r.removed, yearCall{patientID, disease, year})
	return nil
}

type recordingStats struct {
	created []program.Visit
	deleted []program.Visit
	err     error
}

func (r *recordingStats) OnExaminationCreated(ctx context.Context, v program.Visit) error {
	if r.err != nil {
		return r.err
	}
	r.created = append(r.created, v)
	return nil
}

func (r *recordingStats) OnExaminationDeleted(ctx context.Context, v program.Visit) error {
	if r.err != nil {
		return r.err
	}
	r.deleted = append(r.deleted, v)
	return nil
}

type nopTx struct{}

func (nopTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type examFixture struct {
	svc   *Service
	repo  *memRepo
	years *recordingYears
	stats *recordingStats
}

func newExamFixture(retries int) *examFixture {
	repo := newMemRepo()
	years := &recordingYears{}
	stats := &recordingStats{}
	svc := NewService(repo, years, stats, nopTx{}, retries, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return &examFixture{svc: svc, repo: repo, years: years, stats: stats}
}

func TestCreateHT_WiresYearSetAndCache(t *testing.T) {
	f := newExamFixture(1)
	e := validHT()

	if err := f.svc.CreateHT(context.Background(), e); err != nil {
		t.Fatalf("CreateHT: %v", err)
	}

	if e.ID == uuid.Nil {
		t.Error("expected an id to be assigned")
	}
	if e.ExamYear != 2025 || e.ExamMonth != 3 {
		t.Errorf("bucket not derived: %d-%d", e.ExamYear, e.ExamMonth)
	}
	if len(f.repo.ht) != 1 {
		t.Errorf("stored %d rows, want 1", len(f.repo.ht))
	}
	if len(f.years.added) != 1 || f.years.added[0] != (yearCall{e.PatientID, program.DiseaseHT, 2025}) {
		t.Errorf("year set calls = %+v", f.years.added)
	}
	if len(f.stats.created) != 1 || f.stats.created[0].ID != e.ID {
		t.Errorf("cache maintainer calls = %+v", f.stats.created)
	}
}

func TestCreateHT_RejectsInvalidReading(t *testing.T) {
	f := newExamFixture(1)
	e := validHT()
	e.Systolic = 500

	if err := f.svc.CreateHT(context.Background(), e); err == nil {
		t.Fatal("expected validation error")
	}
	if len(f.repo.ht) != 0 || len(f.years.added) != 0 || len(f.stats.created) != 0 {
		t.Error("invalid reading must not reach the repository or collaborators")
	}
}

func TestCreateDM_WiresYearSetAndCache(t *testing.T) {
	f := newExamFixture(1)
	e := validDM()

	if err := f.svc.CreateDM(context.Background(), e); err != nil {
		t.Fatalf("CreateDM: %v", err)
	}

	if len(f.years.added) != 1 || f.years.added[0].disease != program.DiseaseDM {
		t.Errorf("year set calls = %+v", f.years.added)
	}
	if len(f.stats.created) != 1 || f.stats.created[0].DMType != program.DMExamGDP {
		t.Errorf("cache maintainer calls = %+v", f.stats.created)
	}
}

func TestCreateHT_RetriesTransientLockError(t *testing.T) {
	f := newExamFixture(3)
	f.repo.failCreates = 2
	f.repo.failErr = &pgconn.PgError{Code: "40001"}

	if err := f.svc.CreateHT(context.Background(), validHT()); err != nil {
		t.Fatalf("expected retries to absorb serialization failures, got %v", err)
	}
	if len(f.repo.ht) != 1 {
		t.Errorf("stored %d rows, want 1", len(f.repo.ht))
	}
}

func TestCreateHT_ExhaustsRetries(t *testing.T) {
	f := newExamFixture(2)
	f.repo.failCreates = 5
	f.repo.failErr = &pgconn.PgError{Code: "40001"}

	if err := f.svc.CreateHT(context.Background(), validHT()); err == nil {
		t.Fatal("expected failure after retries are exhausted")
	}
}

func TestCreateHT_DoesNotRetryPermanentError(t *testing.T) {
	f := newExamFixture(3)
	f.repo.failCreates = 5
	f.repo.failErr = program.ErrConflict

	err := f.svc.CreateHT(context.Background(), validHT())
	if !errors.Is(err, program.ErrConflict) {
		t.Fatalf("expected conflict to surface unchanged, got %v", err)
	}
	// One attempt consumed, none retried.
	if f.repo.failCreates != 4 {
		t.Errorf("create attempted %d times, want 1", 5-f.repo.failCreates)
	}
}

func TestDeleteHT_LastOfYearDropsYearSet(t *testing.T) {
	f := newExamFixture(1)
	e := validHT()
	if err := f.svc.CreateHT(context.Background(), e); err != nil {
		t.Fatalf("CreateHT: %v", err)
	}

	if err := f.svc.DeleteHT(context.Background(), e.ID); err != nil {
		t.Fatalf("DeleteHT: %v", err)
	}

	if len(f.repo.ht) != 0 {
		t.Errorf("row not deleted")
	}
	if len(f.years.removed) != 1 || f.years.removed[0] != (yearCall{e.PatientID, program.DiseaseHT, 2025}) {
		t.Errorf("year set removals = %+v", f.years.removed)
	}
	if len(f.stats.deleted) != 1 || f.stats.deleted[0].ID != e.ID {
		t.Errorf("cache maintainer deletions = %+v", f.stats.deleted)
	}
}

func TestDeleteHT_KeepsYearWhileOthersRemain(t *testing.T) {
	f := newExamFixture(1)
	patient := uuid.New()
	clinic := uuid.New()

	first := validHT()
	first.PatientID, first.ClinicID = patient, clinic
	second := validHT()
	second.PatientID, second.ClinicID = patient, clinic
	second.ExamDate = time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	for _, e := range []*HTExamination{first, second} {
		if err := f.svc.CreateHT(context.Background(), e); err != nil {
			t.Fatalf("CreateHT: %v", err)
		}
	}

	if err := f.svc.DeleteHT(context.Background(), first.ID); err != nil {
		t.Fatalf("DeleteHT: %v", err)
	}
	if len(f.years.removed) != 0 {
		t.Errorf("year must be kept while an examination of the year remains: %+v", f.years.removed)
	}
}

func TestDeleteHT_NotFound(t *testing.T) {
	f := newExamFixture(1)
	err := f.svc.DeleteHT(context.Background(), uuid.New())
	if !errors.Is(err, program.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteDM_LastOfYearDropsYearSet(t *testing.T) {
	f := newExamFixture(1)
	e := validDM()
	if err := f.svc.CreateDM(context.Background(), e); err != nil {
		t.Fatalf("CreateDM: %v", err)
	}

	if err := f.svc.DeleteDM(context.Background(), e.ID); err != nil {
		t.Fatalf("DeleteDM: %v", err)
	}
	if len(f.years.removed) != 1 || f.years.removed[0].disease != program.DiseaseDM {
		t.Errorf("year set removals = %+v", f.years.removed)
	}
}
