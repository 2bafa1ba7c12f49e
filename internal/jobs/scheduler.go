// Package jobs runs Warden's background work: the reconciliation tick and
// the periodic autosave flush.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps a gocron scheduler pinned to UTC. Jobs run in singleton
// mode so a slow run is never overlapped by the next trigger of the same
// job; ticks for one job are strictly sequential.
type Scheduler struct {
	inner gocron.Scheduler
}

// NewScheduler creates a stopped scheduler; call Start after registering
// jobs.
func NewScheduler() (*Scheduler, error) {
	inner, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{inner: inner}, nil
}

// AddInterval registers fn to run every interval.
func (s *Scheduler) AddInterval(name string, interval time.Duration, fn func(context.Context) error) error {
	_, err := s.inner.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { runJob(name, fn) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}
	log.Printf("⏰ [SCHEDULER] Registered job %q every %v", name, interval)
	return nil
}

// AddCron registers fn on a cron expression (standard five-field form,
// validated upstream by config).
func (s *Scheduler) AddCron(name, expr string, fn func(context.Context) error) error {
	_, err := s.inner.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() { runJob(name, fn) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}
	log.Printf("⏰ [SCHEDULER] Registered job %q on schedule %q", name, expr)
	return nil
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.inner.Start()
	log.Println("🚀 [SCHEDULER] Started")
}

// Stop shuts the scheduler down and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	if err := s.inner.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	log.Println("🛑 [SCHEDULER] Stopped")
	return nil
}

func runJob(name string, fn func(context.Context) error) {
	if err := fn(context.Background()); err != nil {
		log.Printf("❌ [SCHEDULER] Job %q failed: %v", name, err)
	}
}
