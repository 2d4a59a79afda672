package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// TransferOutcome labels how a transfer ended
type TransferOutcome string

const (
	TransferOutcomeDone     TransferOutcome = "done"
	TransferOutcomeRejected TransferOutcome = "rejected"
	TransferOutcomeFailed   TransferOutcome = "failed"
)

// TransferMetrics records deposit/withdrawal activity and the reconciliation backlog.
type TransferMetrics struct {
	logger *zap.Logger

	transferTotal       *Counter
	transferAmountTotal *Counter
	transferDuration    *Histogram
	aggregatorCalls     *Counter
	unreconciledPending *Gauge
}

// TransferMetricsConfig holds configuration for transfer metrics.
type TransferMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewTransferMetrics creates a new TransferMetrics instance.
func NewTransferMetrics(cfg TransferMetricsConfig) (*TransferMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	in := NewInstruments(cfg.Meter)
	tm := &TransferMetrics{
		logger: logger,
		transferTotal: in.Counter("gamehub_transfer_total",
			"Total number of deposit and withdrawal requests by outcome", "{transfers}"),
		transferAmountTotal: in.Counter("gamehub_transfer_amount_total",
			"Total amount moved by completed transfers, in cents", "{cents}"),
		transferDuration: in.Histogram("gamehub_transfer_duration_seconds",
			"Transfer duration from validation to the final state", "s", TransferDurationBuckets...),
		aggregatorCalls: in.Counter("gamehub_aggregator_calls_total",
			"Calls to the external settlement aggregator", "{calls}"),
		unreconciledPending: in.Gauge("gamehub_unreconciled_settlements",
			"Settlements accepted by the aggregator but not committed locally", "{settlements}"),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return tm, nil
}

// RecordTransfer records the end of one transfer. category is empty for
// completed transfers.
func (tm *TransferMetrics) RecordTransfer(ctx context.Context, direction string, outcome TransferOutcome, category string, amount decimal.Decimal, elapsed time.Duration) {
	if tm == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrDirection.String(direction),
		AttrOutcome.String(string(outcome)),
	}
	if category != "" {
		attrs = append(attrs, AttrCategory.String(category))
	}
	tm.transferTotal.Inc(ctx, attrs...)
	tm.transferDuration.RecordDuration(ctx, elapsed, attrs...)

	if outcome == TransferOutcomeDone {
		cents := amount.Mul(decimal.NewFromInt(100)).IntPart()
		tm.transferAmountTotal.Add(ctx, cents, AttrDirection.String(direction))
	}
}

// RecordAggregatorCall counts one aggregator request and whether it succeeded.
func (tm *TransferMetrics) RecordAggregatorCall(ctx context.Context, operation string, ok bool) {
	if tm == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	tm.aggregatorCalls.Inc(ctx, AttrAggregatorOp.String(operation), AttrOutcome.String(outcome))
}

// RecordUnreconciledPending records the current reconciliation backlog.
func (tm *TransferMetrics) RecordUnreconciledPending(ctx context.Context, count int64) {
	if tm == nil {
		return
	}
	tm.unreconciledPending.Record(ctx, count)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewTransferMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
