package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sophia_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sophia_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// MessagesSent counts messages created per channel kind and priority.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sophia_messages_sent_total",
		Help: "Total number of messages sent",
	}, []string{"channel_kind", "priority"})

	// NotificationsDispatched counts notification rows created per kind.
	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sophia_notifications_dispatched_total",
		Help: "Total number of notifications dispatched",
	}, []string{"kind"})

	// EscalationsTotal counts ownership escalations and returns.
	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sophia_escalations_total",
		Help: "Total number of conversation ownership transitions",
	}, []string{"transition"})

	// SLABreachesTotal counts detected SLA breaches.
	SLABreachesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sophia_sla_breaches_total",
		Help: "Total number of conversation SLA breaches detected",
	})
)

const gormStartKey = "observability:start"

// RegisterGormMetrics hooks the query latency histogram into every GORM
// operation of the given connection.
func RegisterGormMetrics(db *gorm.DB) error {
	before := func(d *gorm.DB) {
		d.Set(gormStartKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(d *gorm.DB) {
			v, ok := d.Get(gormStartKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := d.Statement.Table
			if table == "" {
				table = "raw"
			}
			DatabaseQueryLatency.WithLabelValues(operation, table).
				Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("observability:before_create", before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("observability:after_create", after("create")); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("observability:before_query", before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("observability:after_query", after("query")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("observability:before_update", before); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("observability:after_update", after("update")); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("observability:before_delete", before); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("observability:after_delete", after("delete")); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("observability:before_row", before); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("observability:after_row", after("row")); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("observability:before_raw", before); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("observability:after_raw", after("raw"))
}
