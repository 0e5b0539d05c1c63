package database

import (
	"strings"
	"time"
)

const (
	retryAttempts = 3
	retryBackoff  = 200 * time.Millisecond
)

// WithRetry runs fn, retrying a bounded number of times on transient store
// errors. Non-transient errors propagate immediately.
func WithRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		time.Sleep(retryBackoff * time.Duration(attempt+1))
	}
	return err
}

// IsPermissionDenied reports whether err is an authorization-class store
// failure (the write user lacks the required grant). Callers log these once
// and continue in a degraded mode rather than failing the operation.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "42501") || // insufficient_privilege
		strings.Contains(msg, "must be owner")
}

// IsTransient reports whether err looks like a temporary store failure worth
// retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"deadlock detected",
		"database is locked",
		"too many connections",
		"i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
