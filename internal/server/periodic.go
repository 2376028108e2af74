package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PeriodicService calls a task every interval until stopped, then once more
// so work done since the last tick is not lost. Task errors are logged and
// do not stop the service.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     func(context.Context) error
	logger   *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPeriodicService creates a PeriodicService.
//
// Precondition: interval must be positive; task must be non-nil.
func NewPeriodicService(name string, interval time.Duration, task func(context.Context) error, logger *zap.Logger) *PeriodicService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PeriodicService{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.With(zap.String("task", name)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start runs the ticker loop and blocks until Stop is called.
func (p *PeriodicService) Start() error {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			p.run(context.Background())
			return nil
		case <-ticker.C:
			p.run(p.ctx)
		}
	}
}

// Stop ends the loop and waits for the final run to finish.
//
// Precondition: Start has been or will be called.
// Postcondition: Safe to call more than once.
func (p *PeriodicService) Stop() {
	p.stopOnce.Do(p.cancel)
	<-p.done
}

func (p *PeriodicService) run(ctx context.Context) {
	start := time.Now()
	if err := p.task(ctx); err != nil {
		p.logger.Warn("periodic task failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	p.logger.Debug("periodic task ran", zap.Duration("elapsed", time.Since(start)))
}
