package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", &pq.Error{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("wrapped: %w", &pq.Error{Code: "40P01"}), true},
		{"lock timeout", &pq.Error{Code: "55P03"}, true},
		{"connection", &pq.Error{Code: "08006"}, true},
		{"unique", &pq.Error{Code: "23505"}, false},
		{"bad conn", driver.ErrBadConn, true},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"other", errors.New("syntax error"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: scan_events.client_event_id (2067)")))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(nil))

	assert.True(t, IsConstraintViolation(&pq.Error{Code: "23503"}))
	assert.True(t, IsConstraintViolation(errors.New("constraint failed: CHECK constraint failed: count >= 0 (275)")))
	assert.False(t, IsConstraintViolation(&pq.Error{Code: "40001"}))
}
