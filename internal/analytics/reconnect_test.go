package analytics

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

func shortenReconnectDelay(t *testing.T) {
	t.Helper()
	prev := reconnectDelay
	reconnectDelay = time.Millisecond
	t.Cleanup(func() { reconnectDelay = prev })
}

func TestRunRetriesConnectivityErrors(t *testing.T) {
	shortenReconnectDelay(t)
	s := newTestStore(t)

	calls := 0
	err := s.run(context.Background(), "test_op", func(db *gorm.DB) error {
		calls++
		if calls < 3 {
			return driver.ErrBadConn
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	shortenReconnectDelay(t)
	s := newTestStore(t)

	calls := 0
	err := s.run(context.Background(), "test_op", func(db *gorm.DB) error {
		calls++
		return driver.ErrBadConn
	})
	if !errors.Is(err, ErrReconnectFailed) {
		t.Fatalf("expected ErrReconnectFailed, got %v", err)
	}
	if calls != reconnectAttempts {
		t.Fatalf("expected %d attempts, got %d", reconnectAttempts, calls)
	}
}

func TestRunDoesNotRetryIntegrityErrors(t *testing.T) {
	shortenReconnectDelay(t)
	s := newTestStore(t)

	calls := 0
	err := s.run(context.Background(), "test_op", func(db *gorm.DB) error {
		calls++
		return gorm.ErrDuplicatedKey
	})
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected the integrity error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("integrity errors must not be retried, got %d attempts", calls)
	}
}

func TestRunDoesNotRetryUnexpectedErrors(t *testing.T) {
	shortenReconnectDelay(t)
	s := newTestStore(t)

	sentinel := errors.New("boom")
	calls := 0
	err := s.run(context.Background(), "test_op", func(db *gorm.DB) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the unexpected error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("unexpected errors must not be retried, got %d attempts", calls)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errorKind
	}{
		{"bad conn", driver.ErrBadConn, kindConnectivity},
		{"duplicate key", gorm.ErrDuplicatedKey, kindDatabase},
		{"foreign key", gorm.ErrForeignKeyViolated, kindDatabase},
		{"unknown", errors.New("boom"), kindUnexpected},
	}
	for _, tc := range cases {
		if got := classify(tc.err); got != tc.want {
			t.Errorf("%s: classify() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
