package analytics

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/medterm/backend/pkg/logger"
)

// ErrReconnectFailed is returned once the reconnect-retry policy has exhausted
// its attempts against a database that stays unreachable.
var ErrReconnectFailed = errors.New("failed to reconnect to the database")

const (
	reconnectAttempts = 3
	operationTimeout  = 30 * time.Second
)

// reconnectDelay is a var so tests can shorten the fixed wait.
var reconnectDelay = 5 * time.Second

type errorKind int

const (
	kindConnectivity errorKind = iota // stale connection, network drop, server restart
	kindDatabase                      // constraint violation and friends; never retried
	kindUnexpected
)

// run executes one store operation under the reconnect-retry policy: a
// connectivity failure waits a fixed delay, rebuilds the connection pool and
// retries up to reconnectAttempts total attempts; any other database error
// propagates immediately; anything unclassified is logged and propagates.
func (s *Store) run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	var lastErr error
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
		err := fn(s.handle(opCtx))
		cancel()
		if err == nil {
			if attempt > 1 {
				logger.Info("database operation recovered after reconnect",
					zap.String("operation", op),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		switch classify(err) {
		case kindConnectivity:
			lastErr = err
			logger.Warn("database connectivity failure",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", reconnectAttempts),
				zap.Error(err),
			)
			if attempt == reconnectAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
			if rerr := s.reconnect(); rerr != nil {
				logger.Warn("reconnect attempt failed",
					zap.String("operation", op),
					zap.Error(rerr),
				)
				lastErr = rerr
			}
		case kindDatabase:
			return err
		default:
			logger.Error("unexpected error during database operation",
				zap.String("operation", op),
				zap.Error(err),
			)
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectFailed, reconnectAttempts, lastErr)
}

func classify(err error) errorKind {
	switch {
	case isConnectivityError(err):
		return kindConnectivity
	case isDatabaseError(err):
		return kindDatabase
	default:
		return kindUnexpected
	}
}

func isConnectivityError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08xxx: connection exception; 57Pxx: server shutdown; 53300: too
		// many connections.
		return strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "57P") ||
			pgErr.Code == "53300"
	}
	return false
}

func isDatabaseError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, gorm.ErrForeignKeyViolated) ||
		errors.Is(err, gorm.ErrCheckConstraintViolated) ||
		errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, gorm.ErrInvalidData) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
