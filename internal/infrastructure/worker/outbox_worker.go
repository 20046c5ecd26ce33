package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Relayer delivers one batch of pending outbox events
type Relayer interface {
	RunOnce(ctx context.Context) (int, error)
}

// OutboxWorkerConfig holds configuration for the outbox worker
type OutboxWorkerConfig struct {
	PollInterval time.Duration
	PassTimeout  time.Duration
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() OutboxWorkerConfig {
	return OutboxWorkerConfig{
		PollInterval: 5 * time.Second,
		PassTimeout:  30 * time.Second,
	}
}

// OutboxWorker periodically redelivers events left in the outbox
type OutboxWorker struct {
	config OutboxWorkerConfig
	relay  Relayer
	logger *zap.Logger

	mu             sync.RWMutex
	cancel         context.CancelFunc
	done           chan struct{}
	isRunning      bool
	deliveredCount int
	lastError      error
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(config OutboxWorkerConfig, relay Relayer, logger *zap.Logger) *OutboxWorker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultOutboxWorkerConfig().PollInterval
	}
	if config.PassTimeout <= 0 {
		config.PassTimeout = DefaultOutboxWorkerConfig().PassTimeout
	}
	return &OutboxWorker{
		config: config,
		relay:  relay,
		logger: logger,
	}
}

// Start begins the relay loop
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("OutboxWorker started", zap.Duration("poll_interval", w.config.PollInterval))

	go w.pollLoop(loopCtx, w.done)

	return nil
}

// Stop terminates the loop and waits for an in-flight pass to finish
func (w *OutboxWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	delivered := w.deliveredCount
	w.mu.RUnlock()
	w.logger.Info("OutboxWorker stopped", zap.Int("delivered_count", delivered))

	return nil
}

// Name returns the worker name for identification
func (w *OutboxWorker) Name() string {
	return "OutboxWorker"
}

// DeliveredCount returns the number of events the worker has relayed
func (w *OutboxWorker) DeliveredCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.deliveredCount
}

// LastError returns the error of the most recent pass, nil once a pass succeeds
func (w *OutboxWorker) LastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError
}

func (w *OutboxWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Outbox poll loop context cancelled")
			return

		case <-ticker.C:
			w.runPass(ctx)
		}
	}
}

func (w *OutboxWorker) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, w.config.PassTimeout)
	defer cancel()

	delivered, err := w.relay.RunOnce(passCtx)

	w.mu.Lock()
	w.deliveredCount += delivered
	w.lastError = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Outbox relay pass failed", zap.Error(err))
	}
}
