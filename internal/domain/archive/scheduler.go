package archive

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler fires the archival batch once per day at a fixed local hour.
type Scheduler struct {
	svc  *Service
	log  zerolog.Logger
	hour int
	now  func() time.Time
}

func NewScheduler(svc *Service, hour int, log zerolog.Logger) *Scheduler {
	return &Scheduler{svc: svc, log: log, hour: hour, now: time.Now}
}

// Start runs the daily loop until ctx is cancelled. Each firing invokes
// ArchivePriorYear, which absorbs its own errors; a failed run is retried
// at the next day's firing.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		for {
			next := s.nextRun(s.now())
			timer := time.NewTimer(next.Sub(s.now()))

			select {
			case <-ctx.Done():
				timer.Stop()
				s.log.Info().Msg("archival scheduler stopped")
				return
			case <-timer.C:
				res := s.svc.ArchivePriorYear(ctx)
				if res.Err() != nil {
					s.log.Warn().Int("year", res.Year).Msg("daily archival run failed; will retry tomorrow")
				}
			}
		}
	}()
	s.log.Info().Int("hour", s.hour).Msg("archival scheduler started")
}

// nextRun returns the next occurrence of the configured hour strictly
// after t.
func (s *Scheduler) nextRun(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
