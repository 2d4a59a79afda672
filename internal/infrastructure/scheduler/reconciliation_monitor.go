// Package scheduler runs the periodic background jobs of the API process.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidConfig is returned when the monitor interval is not positive
var ErrInvalidConfig = errors.New("invalid scheduler configuration")

// PendingCounter reports how many settlements still await reconciliation
type PendingCounter interface {
	PendingCount(ctx context.Context) (int64, error)
}

// PendingRecorder receives the backlog size, typically a metrics sink
type PendingRecorder interface {
	RecordUnreconciledPending(ctx context.Context, count int64)
}

// MonitorConfig holds reconciliation monitor settings
type MonitorConfig struct {
	Interval     time.Duration
	QueryTimeout time.Duration
}

// DefaultMonitorConfig returns default monitor settings
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:     5 * time.Minute,
		QueryTimeout: 10 * time.Second,
	}
}

// ReconciliationMonitor periodically counts unreconciled settlements, warns
// while any are pending and reports the count.
type ReconciliationMonitor struct {
	config   MonitorConfig
	counter  PendingCounter
	recorder PendingRecorder
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	last      int64
}

// NewReconciliationMonitor creates a monitor. recorder may be nil.
func NewReconciliationMonitor(config MonitorConfig, counter PendingCounter, recorder PendingRecorder, logger *zap.Logger) (*ReconciliationMonitor, error) {
	if config.Interval <= 0 {
		return nil, ErrInvalidConfig
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultMonitorConfig().QueryTimeout
	}
	return &ReconciliationMonitor{
		config:   config,
		counter:  counter,
		recorder: recorder,
		logger:   logger.Named("reconciliation_monitor"),
	}, nil
}

// Start runs one check immediately, then one per interval
func (m *ReconciliationMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		return nil
	}
	m.isRunning = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)

	m.logger.Info("Reconciliation monitor started", zap.Duration("interval", m.config.Interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight check, or for ctx
func (m *ReconciliationMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Reconciliation monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *ReconciliationMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	_, _ = m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = m.Check(ctx)
		}
	}
}

// Check counts pending settlements once and reports the result
func (m *ReconciliationMonitor) Check(ctx context.Context) (int64, error) {
	qctx, cancel := context.WithTimeout(ctx, m.config.QueryTimeout)
	defer cancel()

	count, err := m.counter.PendingCount(qctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("Failed to count unreconciled settlements", zap.Error(err))
		}
		return 0, err
	}

	if m.recorder != nil {
		m.recorder.RecordUnreconciledPending(ctx, count)
	}

	m.mu.Lock()
	previous := m.last
	m.last = count
	m.mu.Unlock()

	switch {
	case count > 0:
		m.logger.Warn("Unreconciled settlements pending",
			zap.Int64("pending", count),
			zap.Int64("previous", previous),
		)
	case previous > 0:
		m.logger.Info("Reconciliation backlog cleared")
	}
	return count, nil
}
