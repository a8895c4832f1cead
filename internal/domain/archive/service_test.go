package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/domain/program"
)

type memArchiveRepo struct {
	// counts[disease][year] is the number of rows the flip would touch.
	counts map[program.DiseaseType]map[int]int64

	failOn program.DiseaseType
	err    error
}

func newMemArchiveRepo() *memArchiveRepo {
	return &memArchiveRepo{counts: map[program.DiseaseType]map[int]int64{
		program.DiseaseHT: {},
		program.DiseaseDM: {},
	}}
}

func (r *memArchiveRepo) SetArchived(ctx context.Context, disease program.DiseaseType, year int, archived bool) (int64, error) {
	if r.err != nil && disease == r.failOn {
		return 0, r.err
	}
	n := r.counts[disease][year]
	// Flipping consumes the pending rows; the reverse flip restores them.
	r.counts[disease][year] = 0
	return n, nil
}

type txRecorder struct {
	calls      int
	rolledBack bool
}

func (t *txRecorder) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	if err := fn(ctx); err != nil {
		t.rolledBack = true
		return err
	}
	return nil
}

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, 6, 15, 12, 0, 0, 0, time.UTC)
	}
}

func TestArchivePriorYear(t *testing.T) {
	repo := newMemArchiveRepo()
	repo.counts[program.DiseaseHT][2024] = 120
	repo.counts[program.DiseaseDM][2024] = 45
	tx := &txRecorder{}

	svc := NewService(repo, tx, zerolog.Nop())
	svc.now = fixedClock(2025)

	res := svc.ArchivePriorYear(context.Background())
	if res.Err() != nil {
		t.Fatalf("unexpected error: %v", res.Err())
	}
	if res.Year != 2024 || res.ArchivedHT != 120 || res.ArchivedDM != 45 {
		t.Errorf("result = %+v, want year 2024 with 120/45", res)
	}
	if tx.calls != 1 {
		t.Errorf("both diseases must flip in one transaction, got %d", tx.calls)
	}
}

func TestArchivePriorYear_AbsorbsFailure(t *testing.T) {
	repo := newMemArchiveRepo()
	repo.counts[program.DiseaseHT][2024] = 120
	repo.failOn = program.DiseaseDM
	repo.err = errors.New("disk full")
	tx := &txRecorder{}

	svc := NewService(repo, tx, zerolog.Nop())
	svc.now = fixedClock(2025)

	res := svc.ArchivePriorYear(context.Background())
	if res.Err() == nil {
		t.Fatal("expected failure to be recorded")
	}
	if res.Error == "" {
		t.Error("Error field must carry the cause for the scheduler log")
	}
	if res.ArchivedHT != 0 || res.ArchivedDM != 0 {
		t.Errorf("failed invocation must report zero counts, got %d/%d", res.ArchivedHT, res.ArchivedDM)
	}
	if !tx.rolledBack {
		t.Error("a failure on either disease must roll back the whole batch")
	}
}

func TestArchiveYear_RejectsOpenYears(t *testing.T) {
	svc := NewService(newMemArchiveRepo(), &txRecorder{}, zerolog.Nop())
	svc.now = fixedClock(2025)

	for _, year := range []int{2025, 2026} {
		if _, err := svc.ArchiveYear(context.Background(), year); err == nil {
			t.Errorf("expected year %d to be rejected", year)
		}
	}

	if _, err := svc.ArchiveYear(context.Background(), 2024); err != nil {
		t.Errorf("closed year rejected: %v", err)
	}
}

func TestUnarchiveYear(t *testing.T) {
	repo := newMemArchiveRepo()
	repo.counts[program.DiseaseHT][2023] = 10
	repo.counts[program.DiseaseDM][2023] = 5

	svc := NewService(repo, &txRecorder{}, zerolog.Nop())
	svc.now = fixedClock(2025)

	res, err := svc.UnarchiveYear(context.Background(), 2023)
	if err != nil {
		t.Fatalf("UnarchiveYear: %v", err)
	}
	if res.ArchivedHT != 10 || res.ArchivedDM != 5 {
		t.Errorf("result = %+v, want 10/5", res)
	}
}
