package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidmoltin/procurement-workflows/pkg/config"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
)

// PostgresDB wraps the connection pool with a circuit breaker
type PostgresDB struct {
	Pool           *pgxpool.Pool
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *logger.Logger
}

// NewPostgresDB creates a new PostgreSQL connection pool with retry logic
func NewPostgresDB(ctx context.Context, cfg *config.Config, log *logger.Logger) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.HealthCheckPeriod = time.Minute

	// NUMERIC columns scan straight into decimal.Decimal
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	// Retry backoff schedule: 1s, 2s, 5s, 10s
	backoff := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
	}

	for attempt := 0; attempt < len(backoff); attempt++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = pool.Ping(pingCtx)
			cancel()

			if err == nil {
				log.Info("PostgreSQL connection established",
					logger.String("host", cfg.Database.Host),
					logger.Int("port", cfg.Database.Port),
					logger.String("database", cfg.Database.Database),
					logger.Int("attempt", attempt+1),
				)

				return &PostgresDB{
					Pool:           pool,
					circuitBreaker: initCircuitBreaker(log),
					logger:         log,
				}, nil
			}
			pool.Close()
		}

		log.Warnf("Database connection attempt %d/%d failed: %v", attempt+1, len(backoff), err)
		if attempt < len(backoff)-1 {
			log.Infof("Retrying in %v...", backoff[attempt])
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff[attempt]):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", len(backoff), err)
}

// initCircuitBreaker creates and configures a circuit breaker for database operations
func initCircuitBreaker(log *logger.Logger) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "database",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := counts.Requests >= 3 && failureRatio >= 0.6

			if shouldTrip {
				log.Errorf(
					"Circuit breaker tripping: requests=%d, failures=%d, ratio=%.2f",
					counts.Requests,
					counts.TotalFailures,
					failureRatio,
				)
			}

			return shouldTrip
		},
		// Query-level outcomes are not infrastructure failures
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, pgx.ErrNoRows) {
				return true
			}
			var pgErr *pgconn.PgError
			return errors.As(err, &pgErr)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("Circuit breaker state changed: %s -> %s", from.String(), to.String())
		},
	}

	return gobreaker.NewCircuitBreaker(settings)
}

// Close closes the pool
func (p *PostgresDB) Close() {
	p.Pool.Close()
}

// HealthCheck pings the database, bypassing the circuit breaker
func (p *PostgresDB) HealthCheck(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

// Exec executes a statement with circuit breaker protection
func (p *PostgresDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	result, err := p.circuitBreaker.Execute(func() (interface{}, error) {
		return p.Pool.Exec(ctx, sql, args...)
	})
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return result.(pgconn.CommandTag), nil
}

// Query executes a query with circuit breaker protection
func (p *PostgresDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	result, err := p.circuitBreaker.Execute(func() (interface{}, error) {
		return p.Pool.Query(ctx, sql, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(pgx.Rows), nil
}

// QueryRow executes a single-row query. Errors surface on Scan, so the
// breaker only rejects it while open.
func (p *PostgresDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if p.IsCircuitBreakerOpen() {
		return errRow{gobreaker.ErrOpenState}
	}
	return p.Pool.QueryRow(ctx, sql, args...)
}

// Begin starts a transaction with circuit breaker protection
func (p *PostgresDB) Begin(ctx context.Context) (pgx.Tx, error) {
	result, err := p.circuitBreaker.Execute(func() (interface{}, error) {
		return p.Pool.Begin(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(pgx.Tx), nil
}

// CircuitBreakerState returns the current state of the circuit breaker
func (p *PostgresDB) CircuitBreakerState() gobreaker.State {
	return p.circuitBreaker.State()
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (p *PostgresDB) IsCircuitBreakerOpen() bool {
	return p.circuitBreaker.State() == gobreaker.StateOpen
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }
