package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("cache: key not found")
	// ErrUnavailable matches any error caused by the backend being unreachable
	// after retries.
	ErrUnavailable = errors.New("cache: backend unavailable")
	// ErrCircuitOpen is returned without contacting the backend while the
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("cache: circuit breaker open")
	// ErrInvalidArgument is returned for empty keys and negative or zero TTLs
	// where a positive one is required.
	ErrInvalidArgument = errors.New("cache: invalid argument")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cache: client closed")
)

// Error describes a failed cache operation. Keys are deliberately not part of
// the error since they may embed session identifiers.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnavailable) true for transient causes.
func (e *Error) Is(target error) bool {
	return target == ErrUnavailable && IsTransient(e.Err)
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return err
	}
	if errors.Is(err, redis.ErrClosed) {
		err = ErrClosed
	}
	return &Error{Op: op, Err: err}
}

// transientReplies are Redis error reply prefixes that describe a temporary
// server condition rather than a problem with the command.
var transientReplies = []string{"LOADING", "READONLY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN", "BUSY"}

// IsTransient reports whether err is worth retrying: network failures,
// timeouts, connection resets and temporary server states. Missing keys,
// command errors and caller cancellation are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, redis.Nil),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrClosed),
		errors.Is(err, redis.ErrClosed),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrCircuitOpen),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		for _, prefix := range transientReplies {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
	}

	return false
}
