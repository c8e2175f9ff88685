package telemetry

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InstrumentDatabase wraps a database connection with OpenTelemetry instrumentation
func InstrumentDatabase(driverName, dataSourceName string) (*sql.DB, error) {
	// Open database with instrumentation
	db, err := otelsql.Open(driverName, dataSourceName,
		otelsql.WithAttributes(
			semconv.DBSystemPostgreSQL,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open instrumented database: %w", err)
	}

	// Register database stats metrics
	err = otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(
			semconv.DBSystemPostgreSQL,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register database stats: %w", err)
	}

	return db, nil
}

// InstrumentRedisClient instruments a Redis client with OpenTelemetry
// tracing (no metrics hook is added), tagging spans with which component owns the
// client (cache.RedisService, the notification Redis client, the
// dedup guard) and its logical DB index, since a single process opens
// more than one Redis connection for different purposes.
func InstrumentRedisClient(client *redis.Client, component string, dbIndex int) error {
	client.AddHook(redisotel.NewTracingHook(
		redisotel.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("sentinel.component", component),
			attribute.Int("db.redis.database_index", dbIndex),
		),
	))
	return nil
}
