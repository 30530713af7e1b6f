package debrid

import (
	"context"
	"fmt"

	"github.com/dylanmazurek/resolvarr/internal/config"
	"github.com/dylanmazurek/resolvarr/internal/utils"
	"github.com/go-co-op/gocron/v2"
)

// StartWorker schedules the availability sweep that prunes stale uncached
// entries. The interval accepts a duration ("15m") or a cron expression.
func (s *Service) StartWorker(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil for StartWorker")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	interval := config.Get().Availability.SweepInterval
	jd, err := utils.ConvertToJobDef(interval)
	if err != nil {
		return fmt.Errorf("invalid sweep interval %q: %w", interval, err)
	}

	if _, err := scheduler.NewJob(jd, gocron.NewTask(func() {
		if err := s.store.Sweep(); err != nil {
			s.logger.Error().Err(err).Msg("availability sweep failed")
		}
	}), gocron.WithContext(ctx)); err != nil {
		return fmt.Errorf("creating sweep job: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.logger.Trace().Msgf("availability sweep scheduled for every %s", interval)
	return nil
}

// Stop shuts the sweep scheduler down.
func (s *Service) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}
