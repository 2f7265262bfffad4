package telemetry

import (
	"database/sql"

	"github.com/XSAM/otelsql"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens an instrumented Postgres connection. The role distinguishes
// the primary from read replicas in traces.
func OpenDB(driverName, dsn, role string) (*sql.DB, error) {
	return otelsql.Open(driverName, dsn,
		otelsql.WithAttributes(
			semconv.DBSystemPostgreSQL,
			attribute.String("db.role", role),
		),
	)
}

// InstrumentRedis attaches tracing and metrics to a Redis client.
func InstrumentRedis(rdb *redis.Client) error {
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		return err
	}
	return redisotel.InstrumentMetrics(rdb)
}
