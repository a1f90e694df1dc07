// Package topology keeps a fixed-size pool of worker processes alive. Each
// worker runs its own HTTP listener and admission gate; the supervisor only
// reacts to exits by starting exactly one replacement.
package topology

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker is one running member of the pool.
type Worker interface {
	PID() int
	// Wait blocks until the worker exits.
	Wait() error
	// Stop asks the worker to shut down gracefully.
	Stop() error
	Kill() error
}

// Spawner starts a worker for a pool slot.
type Spawner interface {
	Spawn(ctx context.Context, slot int) (Worker, error)
}

type exitEvent struct {
	slot   int
	worker Worker // nil when a spawn attempt failed
	err    error
}

// Supervisor runs Size workers and replaces every one that exits. There is no
// crash-loop detection: a worker that dies immediately is restarted immediately.
type Supervisor struct {
	spawner Spawner
	size    int
	logger  *zap.Logger

	// SpawnRetry delays a new attempt after Spawn itself failed.
	SpawnRetry time.Duration
	// StopGrace is how long shutdown waits before killing workers.
	StopGrace time.Duration

	mu      sync.Mutex
	workers map[int]Worker
	spawned int
}

func NewSupervisor(spawner Spawner, size int, logger *zap.Logger) *Supervisor {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		spawner:    spawner,
		size:       size,
		logger:     logger,
		SpawnRetry: time.Second,
		StopGrace:  10 * time.Second,
		workers:    make(map[int]Worker, size),
	}
}

// Run blocks until ctx is done and every worker has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	exits := make(chan exitEvent)
	for slot := 0; slot < s.size; slot++ {
		s.start(ctx, slot, exits)
	}

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(exits)
		case ev := <-exits:
			if ev.worker != nil {
				s.remove(ev.slot, ev.worker)
				s.logger.Warn("worker exited, restarting",
					zap.Int("slot", ev.slot),
					zap.Int("worker_pid", ev.worker.PID()),
					zap.Error(ev.err),
				)
			}
			if ctx.Err() == nil {
				s.start(ctx, ev.slot, exits)
			}
		}
	}
}

// Size is the configured pool size.
func (s *Supervisor) Size() int {
	return s.size
}

// Live returns the pids of the running workers.
func (s *Supervisor) Live() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pids := make([]int, 0, len(s.workers))
	for _, w := range s.workers {
		pids = append(pids, w.PID())
	}
	return pids
}

// Spawned counts successful spawns since Run started, replacements included.
func (s *Supervisor) Spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawned
}

func (s *Supervisor) start(ctx context.Context, slot int, exits chan<- exitEvent) {
	w, err := s.spawner.Spawn(ctx, slot)
	if err != nil {
		s.logger.Error("spawn worker failed", zap.Int("slot", slot), zap.Error(err))
		go func() {
			t := time.NewTimer(s.SpawnRetry)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
				select {
				case exits <- exitEvent{slot: slot, err: err}:
				case <-ctx.Done():
				}
			}
		}()
		return
	}

	s.mu.Lock()
	s.workers[slot] = w
	s.spawned++
	s.mu.Unlock()
	s.logger.Info("worker started", zap.Int("slot", slot), zap.Int("worker_pid", w.PID()))

	go func() {
		err := w.Wait()
		exits <- exitEvent{slot: slot, worker: w, err: err}
	}()
}

func (s *Supervisor) remove(slot int, w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers[slot] == w {
		delete(s.workers, slot)
	}
}

func (s *Supervisor) shutdown(exits <-chan exitEvent) error {
	s.mu.Lock()
	remaining := make(map[Worker]struct{}, len(s.workers))
	for _, w := range s.workers {
		remaining[w] = struct{}{}
		if err := w.Stop(); err != nil {
			s.logger.Warn("stop worker failed", zap.Int("worker_pid", w.PID()), zap.Error(err))
		}
	}
	s.mu.Unlock()

	grace := time.NewTimer(s.StopGrace)
	defer grace.Stop()
	for len(remaining) > 0 {
		select {
		case ev := <-exits:
			if ev.worker != nil {
				delete(remaining, ev.worker)
				s.remove(ev.slot, ev.worker)
			}
		case <-grace.C:
			for w := range remaining {
				s.logger.Warn("killing worker after grace period", zap.Int("worker_pid", w.PID()))
				_ = w.Kill()
			}
			grace.Reset(s.StopGrace)
		}
	}
	return nil
}
