package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds gorm tracing configuration
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include bound variables; never in production
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DefaultDBTracingConfig returns tracing off, variables hidden and a 200ms
// slow query threshold.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

type queryStartKey struct{}

// RegisterDBTracing installs otelgorm and a callback that tags spans with
// rows affected, table, errors and a slow query flag.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { annotateQuerySpan(tx, cfg.SlowQueryThresh) }
	if err := registerAround(db, "otel_timing", before, after); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

func annotateQuerySpan(tx *gorm.DB, slow time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.RecordError(tx.Error)
		span.SetStatus(codes.Error, tx.Error.Error())
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > slow {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}

// registerAround registers before and after around every gorm processor
func registerAround(db *gorm.DB, prefix string, before, after func(*gorm.DB)) error {
	cb := db.Callback()
	steps := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register(prefix+":before_create", before) },
		func() error { return cb.Query().Before("gorm:query").Register(prefix+":before_query", before) },
		func() error { return cb.Update().Before("gorm:update").Register(prefix+":before_update", before) },
		func() error { return cb.Delete().Before("gorm:delete").Register(prefix+":before_delete", before) },
		func() error { return cb.Row().Before("gorm:row").Register(prefix+":before_row", before) },
		func() error { return cb.Raw().Before("gorm:raw").Register(prefix+":before_raw", before) },
		func() error { return cb.Create().After("gorm:create").Register(prefix+":after_create", after) },
		func() error { return cb.Query().After("gorm:query").Register(prefix+":after_query", after) },
		func() error { return cb.Update().After("gorm:update").Register(prefix+":after_update", after) },
		func() error { return cb.Delete().After("gorm:delete").Register(prefix+":after_delete", after) },
		func() error { return cb.Row().After("gorm:row").Register(prefix+":after_row", after) },
		func() error { return cb.Raw().After("gorm:raw").Register(prefix+":after_raw", after) },
	}
	for _, register := range steps {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}
