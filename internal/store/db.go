// Package store holds the Postgres repositories backing every entity
// in the data model: companies, source profiles, crawl schedules and
// runs, news items, pricing snapshots, change events, notification
// channels/subscriptions/events/deliveries, and digest preferences.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/arrowhq/sentinel/internal/telemetry"
)

// DB wraps *sql.DB with the teacher's connection/transaction conventions.
type DB struct {
	*sql.DB
}

// NewConnection opens a plain (non-instrumented) Postgres connection.
func NewConnection(dsn string) (*DB, error) {
	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "database_connection",
	})

	logger.Info("Establishing database connection")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.WithError(err).Error("Failed to open database connection")
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("Failed to ping database")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established successfully")
	return &DB{db}, nil
}

// NewInstrumentedConnection opens a Postgres connection instrumented
// with OpenTelemetry trace and DB-stats metrics.
func NewInstrumentedConnection(dsn string) (*DB, error) {
	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":       "instrumented_database_connection",
		"instrumentation": "opentelemetry",
	})

	logger.Info("Establishing instrumented database connection")

	db, err := telemetry.InstrumentDatabase("postgres", dsn)
	if err != nil {
		logger.WithError(err).Error("Failed to open instrumented database connection")
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("Failed to ping instrumented database")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Instrumented database connection established successfully")
	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Ping implements obs.Pinger.
func (db *DB) Ping() error {
	return db.DB.Ping()
}

// WithTransaction runs fn inside a transaction, committing on success
// and rolling back on error or panic (re-panicking after rollback).
func (db *DB) WithTransaction(fn func(*sql.Tx) error) (err error) {
	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "database_transaction",
	})

	tx, err := db.Begin()
	if err != nil {
		logger.WithError(err).Error("Failed to begin transaction")
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			logger.WithField("panic", p).Error("Transaction panicked, rolling back")
			tx.Rollback()
			panic(p)
		} else if err != nil {
			logger.WithError(err).Warn("Transaction failed, rolling back")
			tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				logger.WithError(err).Error("Failed to commit transaction")
			} else {
				logger.Debug("Transaction committed successfully")
			}
		}
	}()

	return fn(tx)
}
