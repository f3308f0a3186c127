// Package serializer funnels every ticket mutation through a single
// writer per shard. Work submitted under the same key runs in submission
// order on one goroutine; work under different keys may run in parallel.
// Global work excludes all shard work while it runs.
package serializer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("serializer closed")

// ErrQueueFull is returned when a shard queue stays full for the whole
// enqueue wait.
var ErrQueueFull = errors.New("serializer queue full")

// Task is a unit of serialized work. Tasks must not submit to the
// serializer and wait on the result, and must not call Global.
type Task func(ctx context.Context) error

type job struct {
	ctx  context.Context
	key  string
	fn   Task
	done chan error
}

// Serializer owns the shard goroutines.
type Serializer struct {
	shards []chan job
	logger *zap.Logger

	// gate: shard jobs hold it shared, Global holds it exclusively.
	gate sync.RWMutex

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts shardCount shard goroutines with the given queue depth each.
func New(shardCount, queueDepth int, logger *zap.Logger) *Serializer {
	if shardCount <= 0 {
		shardCount = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Serializer{
		shards: make([]chan job, shardCount),
		logger: logger,
	}
	for i := range s.shards {
		s.shards[i] = make(chan job, queueDepth)
		s.wg.Add(1)
		go s.runShard(s.shards[i])
	}
	return s
}

// Submit enqueues fn under key and returns once it is queued. The
// returned channel yields the task result exactly once.
func (s *Serializer) Submit(ctx context.Context, key string, fn Task) (<-chan error, error) {
	j := job{ctx: ctx, key: key, fn: fn, done: make(chan error, 1)}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	select {
	case s.shards[s.shardFor(key)] <- j:
		return j.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitWithin is Submit with a bound on how long it waits for queue
// space. ctx is still handed to fn unchanged, so a detached context can be
// used for the work itself.
func (s *Serializer) SubmitWithin(ctx context.Context, key string, fn Task, wait time.Duration) (<-chan error, error) {
	j := job{ctx: ctx, key: key, fn: fn, done: make(chan error, 1)}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	shard := s.shards[s.shardFor(key)]
	select {
	case shard <- j:
		return j.done, nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case shard <- j:
		return j.done, nil
	case <-timer.C:
		return nil, ErrQueueFull
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do submits fn under key and waits for it to finish.
func (s *Serializer) Do(ctx context.Context, key string, fn Task) error {
	done, err := s.Submit(ctx, key, fn)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Global runs fn while no shard task is running.
func (s *Serializer) Global(ctx context.Context, fn Task) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.call(ctx, "global", fn)
}

// Close stops accepting work, finishes everything already queued and
// waits for the shard goroutines to exit.
func (s *Serializer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, ch := range s.shards {
		close(ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Serializer) runShard(ch chan job) {
	defer s.wg.Done()
	for j := range ch {
		s.gate.RLock()
		err := s.call(j.ctx, j.key, j.fn)
		s.gate.RUnlock()
		j.done <- err
	}
}

func (s *Serializer) call(ctx context.Context, key string, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("serialized task panicked",
				zap.String("key", key),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("task %s panicked: %v", key, r)
		}
	}()
	return fn(ctx)
}

func (s *Serializer) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.shards)))
}
