package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"realtor_scraper/config"
	"realtor_scraper/scraper"
)

// Harvester is the run the scheduler fires. *scraper.Orchestrator implements it.
type Harvester interface {
	HarvestAll(ctx context.Context) error
}

type Scheduler struct {
	cfg       config.SchedulerConfig
	harvester Harvester
	cron      *cron.Cron
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func New(cfg config.SchedulerConfig, harvester Harvester) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		harvester: harvester,
		cron:      cron.New(),
		stopCh:    make(chan struct{}),
	}
}

// Start registers the configured schedule. Cron takes precedence over the
// interval; with neither set nothing is scheduled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Cron != "" {
		log.Info().Str("cron", s.cfg.Cron).Msg("Starting scheduler")
		_, err := s.cron.AddFunc(s.cfg.Cron, func() { s.TriggerNow(ctx) })
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Interval > 0 {
		log.Info().Dur("interval", s.cfg.Interval).Msg("Starting scheduler")
		s.ticker = time.NewTicker(s.cfg.Interval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.TriggerNow(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Warn().Msg("No schedule configured, set SCRAPE_CRON or SCRAPE_INTERVAL")
	}

	return nil
}

// TriggerNow runs one harvest. A tick that lands while a run is still going
// is skipped.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	err := s.harvester.HarvestAll(ctx)
	switch {
	case errors.Is(err, scraper.ErrRunInProgress):
		log.Warn().Msg("Previous run still in progress, skipping tick")
	case err != nil:
		log.Error().Err(err).Msg("Scheduled run error")
	default:
		log.Info().Msg("Scheduled run complete")
	}
	return err
}

// Stop halts the schedule and waits for a running interval loop to exit.
// A cron job already in flight is awaited too.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.wg.Wait()
	})
}
