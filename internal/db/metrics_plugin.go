package db

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/collabforge/core/internal/metrics"
)

// metricsPlugin is a gorm.Plugin that observes DBQueryDuration and
// DBErrorsTotal for every query/create/update/delete, following the
// before/after-callback registration shape the example pack's
// zfogg-sidechain/backend/internal/telemetry.GORMTracingPlugin uses for
// OpenTelemetry spans, adapted onto this module's Prometheus collectors
// instead of a tracer.
type metricsPlugin struct{}

func (metricsPlugin) Name() string { return "collabforge:metrics" }

func (p metricsPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("collabforge:before_query", p.before); err != nil {
		return err
	}
	if err := db.Callback().Create().Before("gorm:create").Register("collabforge:before_create", p.before); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("collabforge:before_update", p.before); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("collabforge:before_delete", p.before); err != nil {
		return err
	}

	if err := db.Callback().Query().After("gorm:query").Register("collabforge:after_query", p.after("query")); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register("collabforge:after_create", p.after("create")); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("collabforge:after_update", p.after("update")); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("collabforge:after_delete", p.after("delete")); err != nil {
		return err
	}
	return nil
}

func (metricsPlugin) before(db *gorm.DB) {
	db.InstanceSet("collabforge:started_at", time.Now())
}

func (metricsPlugin) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if startedAt, ok := db.InstanceGet("collabforge:started_at"); ok {
			if started, ok := startedAt.(time.Time); ok {
				metrics.Get().DBQueryDuration.WithLabelValues(operationLabel(db, op)).Observe(time.Since(started).Seconds())
			}
		}
		if db.Error != nil {
			metrics.Get().DBErrorsTotal.WithLabelValues(operationLabel(db, op)).Inc()
		}
	}
}

func operationLabel(db *gorm.DB, op string) string {
	table := db.Statement.Table
	if table == "" {
		return op
	}
	return strings.ToLower(op) + ":" + table
}
