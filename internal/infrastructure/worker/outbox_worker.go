package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"go.uber.org/zap"
)

// OutboxWorkerConfig holds configuration for the outbox relay
type OutboxWorkerConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	MaxAttempts     int
	DispatchTimeout time.Duration
	// SingleAttempt names handlers that run at most once per event.
	// Their failure is recorded and never retried.
	SingleAttempt []string
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() OutboxWorkerConfig {
	return OutboxWorkerConfig{
		PollInterval:    5 * time.Second,
		BatchSize:       20,
		MaxAttempts:     5,
		DispatchTimeout: 30 * time.Second,
	}
}

// OutboxStats is a point-in-time view of relay progress
type OutboxStats struct {
	IsRunning bool      `json:"is_running"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// OutboxWorker relays committed outbox rows to the dispatcher one handler
// at a time. Each handler is settled independently, so a handler that
// succeeded is never re-run when another one fails. Retryable handlers are
// attempted until the row reaches MaxAttempts and is parked as FAILED.
type OutboxWorker struct {
	config        OutboxWorkerConfig
	singleAttempt map[string]bool
	outbox     port.OutboxRepository
	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger

	wake chan struct{}
	// serializes batches between the poll loop and RunOnce callers
	runMu sync.Mutex

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	sent      int
	failed    int
	lastRun   time.Time
	lastError error
}

// NewOutboxWorker creates a new outbox relay
func NewOutboxWorker(
	config OutboxWorkerConfig,
	outbox port.OutboxRepository,
	d dispatcher.Dispatcher,
	logger *zap.Logger,
) *OutboxWorker {
	defaults := DefaultOutboxWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = defaults.DispatchTimeout
	}

	singleAttempt := make(map[string]bool, len(config.SingleAttempt))
	for _, name := range config.SingleAttempt {
		singleAttempt[name] = true
	}

	return &OutboxWorker{
		config:        config,
		singleAttempt: singleAttempt,
		outbox:     outbox,
		dispatcher: d,
		logger:     logger,
		wake:       make(chan struct{}, 1),
	}
}

// Start begins the polling loop
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("OutboxWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("max_attempts", w.config.MaxAttempts))

	go w.pollLoop(runCtx)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch to finish
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

	stats := w.Stats()
	w.logger.Info("OutboxWorker stopped", zap.Int("sent", stats.Sent), zap.Int("failed", stats.Failed))
	return nil
}

// Name returns the worker name for identification
func (w *OutboxWorker) Name() string {
	return "OutboxWorker"
}

// Wake asks the loop to run a batch now. It never blocks.
func (w *OutboxWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Stats returns relay counters
func (w *OutboxWorker) Stats() OutboxStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	stats := OutboxStats{
		IsRunning: w.isRunning,
		Sent:      w.sent,
		Failed:    w.failed,
		LastRun:   w.lastRun,
	}
	if w.lastError != nil {
		stats.LastError = w.lastError.Error()
	}
	return stats
}

func (w *OutboxWorker) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Drain rows left over from a previous run
	w.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}
		w.runLogged(ctx)
	}
}

func (w *OutboxWorker) runLogged(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("Outbox batch failed", zap.Error(err))
	}
}

// RunOnce delivers one batch of pending rows and returns how many were sent
func (w *OutboxWorker) RunOnce(ctx context.Context) (int, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	rows, err := w.outbox.GetPending(ctx, w.config.BatchSize)
	if err != nil {
		w.recordRun(0, 0, err)
		return 0, fmt.Errorf("get pending events: %w", err)
	}

	sent, failed := 0, 0
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}

		sinkErr, err := w.deliver(ctx, row)
		if err != nil {
			w.recordRun(sent, failed, err)
			return sent, err
		}
		if sinkErr == nil {
			if err := w.outbox.MarkSent(ctx, row.ID); err != nil {
				w.recordRun(sent, failed, err)
				return sent, err
			}
			sent++
			w.logger.Info("Outbox event delivered",
				zap.Int64("outbox_id", row.ID),
				zap.String("event_id", row.EventID),
				zap.String("request_id", row.RequestID))
			continue
		}

		failed++
		final := row.Attempts+1 >= w.config.MaxAttempts
		w.logger.Error("Outbox event delivery failed",
			zap.Int64("outbox_id", row.ID),
			zap.String("request_id", row.RequestID),
			zap.Int("attempt", row.Attempts+1),
			zap.Bool("final", final),
			zap.Error(sinkErr))
		if err := w.outbox.RecordFailure(ctx, row.ID, sinkErr.Error(), final); err != nil {
			w.recordRun(sent, failed, err)
			return sent, err
		}
	}

	w.recordRun(sent, failed, nil)
	return sent, nil
}

// deliver runs every handler not yet settled for the row. sinkErr joins the
// failures of retryable handlers; err reports a store failure.
func (w *OutboxWorker) deliver(ctx context.Context, row *entity.OutboxEvent) (sinkErr error, err error) {
	evt, decodeErr := event.Decode(row.Payload)
	if decodeErr != nil {
		return decodeErr, nil
	}

	settled, err := w.outbox.ListDeliveries(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(settled))
	for _, d := range settled {
		done[d.Handler] = true
	}

	var errs []error
	for _, h := range w.dispatcher.ListHandlers(evt.Type) {
		if done[h.Name] {
			continue
		}

		dispatchCtx, cancel := context.WithTimeout(ctx, w.config.DispatchTimeout)
		handlerErr := w.dispatcher.DispatchTo(dispatchCtx, evt, h.Name)
		cancel()

		delivery := &entity.OutboxDelivery{OutboxID: row.ID, Handler: h.Name, Status: entity.OutboxStatusSent}
		switch {
		case errors.Is(handlerErr, dispatcher.ErrHandlerNotFound):
			continue
		case handlerErr == nil:
		case w.singleAttempt[h.Name]:
			delivery.Status = entity.OutboxStatusFailed
			delivery.Error = handlerErr.Error()
			w.logger.Error("Outbox handler failed, not retrying",
				zap.Int64("outbox_id", row.ID),
				zap.String("handler", h.Name),
				zap.Error(handlerErr))
		default:
			errs = append(errs, handlerErr)
			continue
		}

		if err := w.outbox.RecordDelivery(ctx, delivery); err != nil {
			return nil, err
		}
	}
	return errors.Join(errs...), nil
}

func (w *OutboxWorker) recordRun(sent, failed int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent += sent
	w.failed += failed
	w.lastRun = time.Now()
	w.lastError = err
}
