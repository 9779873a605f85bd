package bounce

import (
	"context"
	"log"
	"time"
)

// Poller drives the collector on a fixed cadence.
type Poller struct {
	collector *Collector
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewPoller creates a poller for the collector.
func NewPoller(collector *Collector, interval time.Duration) *Poller {
	return &Poller{collector: collector, interval: interval}
}

// Start begins the polling loop.
func (p *Poller) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())
	go func() {
		log.Printf("[BouncePoller] Starting, interval %s", p.interval)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.tick()
			case <-p.ctx.Done():
				log.Println("[BouncePoller] Stopped")
				return
			}
		}
	}()
}

// Stop halts the polling loop.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) tick() {
	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Minute)
	defer cancel()

	report, err := p.collector.RunOnce(ctx)
	if err != nil {
		log.Printf("[BouncePoller] Poll failed: %v", err)
		return
	}
	log.Printf("[BouncePoller] Poll complete: %d due, %d suppressed, %d errors",
		report.Due, report.Suppressed, report.Errors)
}
