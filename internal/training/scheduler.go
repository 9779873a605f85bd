package training

import (
	"context"
	"log"
	"time"
)

// Scheduler runs system-wide training analysis on a fixed cadence.
// Manual runs through the engine remain available alongside it.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler driving the given engine.
func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{engine: engine, interval: interval}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go func() {
		log.Printf("[TrainingScheduler] Starting, interval %s", s.interval)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.ctx.Done():
				log.Println("[TrainingScheduler] Stopped")
				return
			}
		}
	}()
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Minute)
	defer cancel()

	report, err := s.engine.RunSystem(ctx)
	if err != nil {
		log.Printf("[TrainingScheduler] Run failed: %v", err)
		return
	}
	log.Printf("[TrainingScheduler] Run complete: %d domains, %d advanced, %d rolled back, %d held, %d errors",
		report.Domains, report.Advanced, report.RolledBack, report.Held, len(report.Errors))
}
