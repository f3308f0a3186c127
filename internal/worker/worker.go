// Package worker runs the bot's timers: membership refresh, periodic
// snapshots and the daily leaderboard broadcast. Timers reach shared
// ticket and leaderboard state only through the serializer.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a task repeated on a fixed interval.
type Job struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Pool runs jobs until their context ends.
type Pool struct {
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates an empty pool.
func NewPool(logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{logger: logger.Named("worker")}
}

// Go starts job in its own goroutine.
func (p *Pool) Go(ctx context.Context, job Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx, job)
	}()
}

// Wait blocks until every job has stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, job Job) {
	log := p.logger.With(zap.String("job", job.Name))
	if job.Interval <= 0 {
		log.Warn("job disabled; non-positive interval")
		return
	}
	if job.RunAtStart {
		p.runOnce(ctx, job, log)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	log.Info("job scheduled", zap.Duration("interval", job.Interval))
	for {
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return
		case <-ticker.C:
			p.runOnce(ctx, job, log)
		}
	}
}

func (p *Pool) runOnce(ctx context.Context, job Job, log *zap.Logger) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Warn("job run failed", zap.Error(err))
		return
	}
	log.Debug("job run finished", zap.Duration("took", time.Since(start)))
}
