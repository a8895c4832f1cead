package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/phc/phc/internal/domain/program"
)

// TxRunner executes a function inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Result reports one archival invocation. On failure the counts are zero
// and Error carries the cause; the scheduler logs it instead of crashing.
type Result struct {
	Year       int    `json:"year"`
	ArchivedHT int64  `json:"archived_ht"`
	ArchivedDM int64  `json:"archived_dm"`
	Error      string `json:"error,omitempty"`

	err error
}

// Err returns the underlying error of a failed invocation, nil otherwise.
func (r Result) Err() error { return r.err }

// Service runs the yearly archival batch: flipping is_archived on a closed
// year's examinations for both diseases inside one transaction. Archival is
// a storage lifecycle flag only; it never deletes data and never touches
// the statistics cache.
type Service struct {
	repo Repository
	tx   TxRunner
	log  zerolog.Logger
	now  func() time.Time
}

func NewService(repo Repository, tx TxRunner, log zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, log: log, now: time.Now}
}

// ArchivePriorYear archives last year's examinations. Designed for
// unattended invocation: any failure is folded into the Result rather than
// returned, with counts reset to zero.
func (s *Service) ArchivePriorYear(ctx context.Context) Result {
	year := s.now().Year() - 1
	res, err := s.run(ctx, year, true)
	if err != nil {
		s.log.Error().Err(err).Int("year", year).Msg("archival failed")
		return Result{Year: year, Error: err.Error(), err: err}
	}

	s.log.Info().
		Int("year", year).
		Int64("archived_ht", res.ArchivedHT).
		Int64("archived_dm", res.ArchivedDM).
		Msg("prior year archived")
	return res
}

// ArchiveYear archives the given year's examinations. The current and any
// future year are rejected: only fully-closed years may be archived.
func (s *Service) ArchiveYear(ctx context.Context, year int) (Result, error) {
	if year >= s.now().Year() {
		return Result{Year: year}, fmt.Errorf("cannot archive year %d: only years before %d are closed", year, s.now().Year())
	}
	return s.run(ctx, year, true)
}

// UnarchiveYear reverses an archival.
func (s *Service) UnarchiveYear(ctx context.Context, year int) (Result, error) {
	return s.run(ctx, year, false)
}

// run flips the flag for both diseases inside a single transaction: a
// failure on either side rolls back the whole invocation, so no final
// state has one disease archived without the other.
func (s *Service) run(ctx context.Context, year int, archived bool) (Result, error) {
	res := Result{Year: year}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		ht, err := s.repo.SetArchived(ctx, program.DiseaseHT, year, archived)
		if err != nil {
			return err
		}
		dm, err := s.repo.SetArchived(ctx, program.DiseaseDM, year, archived)
		if err != nil {
			return err
		}
		res.ArchivedHT = ht
		res.ArchivedDM = dm
		return nil
	})
	if err != nil {
		return Result{Year: year, Error: err.Error(), err: err}, err
	}
	return res, nil
}
