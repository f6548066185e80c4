// Package postgres implements store.Store on PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/store"
)

const (
	defaultConnectInterval = 2 * time.Second

	uniqueViolation = "23505"
)

type Options struct {
	MaxOpenConns int
	// ConnectAttempts is how often Open pings before giving up. Values below
	// one mean a single attempt.
	ConnectAttempts int
	ConnectInterval time.Duration
}

type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and pings until the database accepts connections or
// the attempts run out.
func Open(ctx context.Context, dsn string, options Options, logger *logrus.Logger) (*Store, error) {
	if options.ConnectAttempts < 1 {
		options.ConnectAttempts = 1
	}
	if options.ConnectInterval <= 0 {
		options.ConnectInterval = defaultConnectInterval
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(options.MaxOpenConns)
	db.SetMaxIdleConns(options.MaxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, logger: logger}
	if err := s.waitForDB(ctx, options.ConnectAttempts, options.ConnectInterval); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) waitForDB(ctx context.Context, attempts int, interval time.Duration) error {
	var err error
	for i := 1; ; i++ {
		if err = s.db.PingContext(ctx); err == nil {
			s.logger.Info("Database connection established")
			return nil
		}
		if i >= attempts {
			break
		}
		s.logger.WithError(err).WithField("attempt", i).Info("Waiting for database...")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("database not reachable after %d attempts: %w", attempts, err)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// notFound maps sql.ErrNoRows to sentinel and wraps anything else.
func notFound(err error, sentinel error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", op, err)
}

// uniqueOr maps a unique violation to sentinel and wraps anything else.
func uniqueOr(err error, sentinel error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return sentinel
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireRow(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel
	}
	return nil
}
