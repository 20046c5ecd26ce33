package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker defines the interface for background workers
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Reporter is implemented by workers that track delivery progress
type Reporter interface {
	DeliveredCount() int
	LastError() error
}

// Status is a point-in-time view of one registered worker
type Status struct {
	Name      string
	Running   bool
	Delivered int
	LastError string
}

// WorkerManager owns the background delivery workers. Workers start
// together with the container and stop before the dispatcher closes.
type WorkerManager struct {
	workers []Worker
	logger  *zap.Logger

	mu        sync.RWMutex
	isRunning bool
	started   []Worker
	cancel    context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{
		workers: make([]Worker, 0),
		logger:  logger,
	}
}

// Register adds a worker to be managed
func (m *WorkerManager) Register(worker Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers = append(m.workers, worker)
	m.logger.Info("Worker registered",
		zap.String("worker_name", worker.Name()),
		zap.Int("total_workers", len(m.workers)))
}

// StartAll starts every registered worker. If one fails, the workers
// already started are stopped again and the error is returned, so events
// are never left without a relay while the container reports ready.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	started := make([]Worker, 0, len(m.workers))

	for _, worker := range m.workers {
		if err := worker.Start(runCtx); err != nil {
			m.logger.Error("Failed to start worker",
				zap.String("worker_name", worker.Name()),
				zap.Error(err))
			cancel()
			if stopErr := stopWorkers(started, m.logger); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
			return fmt.Errorf("start %s: %w", worker.Name(), err)
		}
		started = append(started, worker)
		m.logger.Info("Worker started", zap.String("worker_name", worker.Name()))
	}

	m.started = started
	m.cancel = cancel
	m.isRunning = true
	return nil
}

// StopAll cancels the workers' context and waits for each to finish its
// in-flight relay pass
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		m.logger.Warn("Workers not running, nothing to stop")
		return nil
	}
	m.isRunning = false
	started, cancel := m.started, m.cancel
	m.started, m.cancel = nil, nil
	m.mu.Unlock()

	m.logger.Info("Stopping all workers", zap.Int("count", len(started)))
	cancel()

	if err := stopWorkers(started, m.logger); err != nil {
		return err
	}

	m.logger.Info("All workers stopped successfully")
	return nil
}

// Status reports every registered worker, with delivery counters for
// workers that track them
func (m *WorkerManager) Status() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.workers))
	for _, w := range m.workers {
		s := Status{Name: w.Name(), Running: m.isRunning}
		if r, ok := w.(Reporter); ok {
			s.Delivered = r.DeliveredCount()
			if err := r.LastError(); err != nil {
				s.LastError = err.Error()
			}
		}
		out = append(out, s)
	}
	return out
}

// GetWorkerCount returns the number of registered workers
func (m *WorkerManager) GetWorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// IsRunning returns whether workers are running
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// stopWorkers stops in reverse start order
func stopWorkers(workers []Worker, logger *zap.Logger) error {
	var errs []error
	for i := len(workers) - 1; i >= 0; i-- {
		w := workers[i]
		if err := w.Stop(); err != nil {
			logger.Error("Failed to stop worker", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", w.Name(), err))
			continue
		}
		logger.Info("Worker stopped", zap.String("worker_name", w.Name()))
	}
	return errors.Join(errs...)
}
