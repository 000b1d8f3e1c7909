package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/aquasense/water-telemetry/internal/telemetry"
)

// Scheduler drives the pipeline: one tick per interval, ticks never overlap.
type Scheduler struct {
	scheduler *gocron.Scheduler
	pipeline  *telemetry.Pipeline
	interval  time.Duration
}

// New creates a Scheduler ticking the pipeline at the given interval.
func New(interval time.Duration, pipeline *telemetry.Pipeline) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		pipeline:  pipeline,
		interval:  interval,
	}
}

// Start schedules the periodic tick and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	// SingletonMode keeps a slow tick from overlapping the next one; the
	// store relies on a single writer.
	_, err := s.scheduler.Every(interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		result := s.pipeline.Tick(ctx)
		if result.Status != telemetry.StatusOK {
			log.Printf("scheduler: tick finished with status %s", result.Status)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future ticks.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
