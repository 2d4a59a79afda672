package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gamehub/backend/internal/infrastructure/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type queryStartKey struct{}

// DBPlugin is a GORM plugin recording query count, latency and slow
// statements. Slow statements also get an event on the active span.
type DBPlugin struct {
	slowThreshold time.Duration
	logger        *zap.Logger

	queryTotal    *Counter
	queryDuration *Histogram
	slowTotal     *Counter
}

// NewDBPlugin creates the query metrics plugin
func NewDBPlugin(meter metric.Meter, slowThreshold time.Duration, logger *zap.Logger) (*DBPlugin, error) {
	in := NewInstruments(meter)
	p := &DBPlugin{
		slowThreshold: slowThreshold,
		logger:        logger,
		queryTotal:    in.Counter("db_query_total", "Database queries by operation", "{query}"),
		queryDuration: in.Histogram("db_query_duration_seconds", "Database query latency", "s", DBDurationBuckets...),
		slowTotal:     in.Counter("db_slow_query_total", "Queries slower than the configured threshold", "{query}"),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *DBPlugin) Name() string { return "gamehub:db_metrics" }

// Initialize registers before/after callbacks for every processor
func (p *DBPlugin) Initialize(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context == nil {
			tx.Statement.Context = context.Background()
		}
		tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
	}

	cb := db.Callback()
	steps := []struct {
		name   string
		before func(string) error
		after  func(string) error
	}{
		{"create",
			func(n string) error { return cb.Create().Before("gorm:create").Register(n, before) },
			func(n string) error { return cb.Create().After("gorm:create").Register(n, p.after("INSERT")) }},
		{"query",
			func(n string) error { return cb.Query().Before("gorm:query").Register(n, before) },
			func(n string) error { return cb.Query().After("gorm:query").Register(n, p.after("SELECT")) }},
		{"update",
			func(n string) error { return cb.Update().Before("gorm:update").Register(n, before) },
			func(n string) error { return cb.Update().After("gorm:update").Register(n, p.after("UPDATE")) }},
		{"delete",
			func(n string) error { return cb.Delete().Before("gorm:delete").Register(n, before) },
			func(n string) error { return cb.Delete().After("gorm:delete").Register(n, p.after("DELETE")) }},
		{"row",
			func(n string) error { return cb.Row().Before("gorm:row").Register(n, before) },
			func(n string) error { return cb.Row().After("gorm:row").Register(n, p.after("")) }},
		{"raw",
			func(n string) error { return cb.Raw().Before("gorm:raw").Register(n, before) },
			func(n string) error { return cb.Raw().After("gorm:raw").Register(n, p.after("")) }},
	}
	for _, s := range steps {
		if err := s.before("db_metrics:before_" + s.name); err != nil {
			return err
		}
		if err := s.after("db_metrics:after_" + s.name); err != nil {
			return err
		}
	}
	return nil
}

// after returns the recording callback. An empty operation is detected from
// the SQL text.
func (p *DBPlugin) after(operation string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		ctx := tx.Statement.Context
		if ctx == nil {
			return
		}
		start, ok := ctx.Value(queryStartKey{}).(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)

		op := operation
		if op == "" {
			op = detectOperation(tx.Statement.SQL.String())
		}
		attrs := []attribute.KeyValue{
			AttrDBOperation.String(op),
			AttrDBTable.String(tx.Statement.Table),
			AttrOutcome.String(outcomeOf(tx.Error)),
		}
		p.queryTotal.Inc(ctx, attrs...)
		p.queryDuration.RecordDuration(ctx, elapsed, attrs...)

		if p.slowThreshold > 0 && elapsed > p.slowThreshold {
			p.slowTotal.Inc(ctx, attrs[:2]...)
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.AddEvent("slow_query", trace.WithAttributes(
					attribute.Int64("db.duration_ms", elapsed.Milliseconds()),
					attribute.Int64("db.threshold_ms", p.slowThreshold.Milliseconds()),
				))
			}
		}
	}
}

func outcomeOf(err error) string {
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "error"
	}
	return "success"
}

func detectOperation(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}

// RegisterPoolMetrics reports sql.DB pool usage through an observable gauge
func RegisterPoolMetrics(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	gauge, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sqlDB.Stats()
		o.ObserveInt64(gauge, int64(s.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(gauge, int64(s.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(gauge, int64(s.MaxOpenConnections), metric.WithAttributes(AttrDBState.String("max")))
		return nil
	}, gauge)
	return err
}

// InstrumentDB installs otelgorm tracing when enabled, then query and pool
// metrics on the given meter.
func InstrumentDB(db *gorm.DB, cfg config.TelemetryConfig, meter metric.Meter, logger *zap.Logger) error {
	if cfg.DBTraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName("postgresql")}
		if !cfg.DBLogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	plugin, err := NewDBPlugin(meter, cfg.DBSlowQueryThresh, logger)
	if err != nil {
		return err
	}
	if err := db.Use(plugin); err != nil {
		return err
	}
	if err := RegisterPoolMetrics(db, meter); err != nil {
		return err
	}

	logger.Info("Database instrumentation enabled",
		zap.Bool("tracing", cfg.DBTraceEnabled),
		zap.Duration("slow_query_threshold", cfg.DBSlowQueryThresh),
	)
	return nil
}
