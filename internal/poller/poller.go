// Package poller runs a task immediately and then on a fixed interval until
// stopped. A tick that arrives while the previous run is still in flight is
// skipped, so runs never overlap and results are applied in start order.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bus-tracker/internal/logging"
)

type Task func(ctx context.Context) error

// Metrics receives run outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	PollObserve(name string, d time.Duration, err error)
	PollSkippedInc(name string)
}

type Poller struct {
	name     string
	interval time.Duration
	task     Task
	metrics  Metrics
	logger   *slog.Logger

	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(name string, interval time.Duration, task Task, m Metrics, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Poller{
		name:     name,
		interval: interval,
		task:     task,
		metrics:  m,
		logger:   logger.With(slog.String("component", "poller"), slog.String("task", name)),
	}
}

// Start launches the loop. Calling Start on a running poller is a no-op.
func (p *Poller) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(logging.WithLogger(parent, p.logger))
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// immediate run on start
		p.trigger(ctx)
		if p.interval <= 0 {
			return
		}
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.trigger(ctx)
			}
		}
	}()
}

// Stop cancels the timer and any in-flight run, and waits for both.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// InFlight reports whether a run is currently executing.
func (p *Poller) InFlight() bool { return p.inFlight.Load() }

// trigger starts one run unless another is still executing. It reports
// whether a run was started.
func (p *Poller) trigger(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Warn("previous run still in flight, skipping tick")
		if p.metrics != nil {
			p.metrics.PollSkippedInc(p.name)
		}
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		start := time.Now()
		err := p.task(ctx)
		if p.metrics != nil {
			p.metrics.PollObserve(p.name, time.Since(start), err)
		}
		if err != nil && ctx.Err() == nil {
			logging.LogError(p.logger, "poll run failed", err)
		}
	}()
	return true
}
