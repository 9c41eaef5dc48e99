package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorKind buckets a failure so callers can decide whether to retry,
// fall back to a relay, or record the device as offline.
type ErrorKind string

const (
	// KindUnreachable means the probe got no response at all.
	KindUnreachable ErrorKind = "unreachable"
	// KindAuthFailed means the handshake completed but the credential
	// was rejected. Never triggers relay fallback.
	KindAuthFailed ErrorKind = "auth_failed"
	// KindTimeout means the operation exceeded its budget.
	KindTimeout ErrorKind = "timeout"
	// KindRefused means the connection was actively rejected.
	KindRefused ErrorKind = "refused"
	// KindCacheCorrupt means the durable cache file was unreadable.
	KindCacheCorrupt ErrorKind = "cache_corrupt"
	// KindRelayUnavailable means the relay gateway itself was unreachable
	// after the direct plan had already failed.
	KindRelayUnavailable ErrorKind = "relay_unavailable"
	// KindInternal covers everything that is not a network outcome.
	KindInternal ErrorKind = "internal"
)

// Error is a failure annotated with its kind and the address it concerns.
type Error struct {
	Kind    ErrorKind
	Address string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Address, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Address, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and address.
func NewError(kind ErrorKind, address string, err error) *Error {
	return &Error{Kind: kind, Address: address, Err: err}
}

// KindOf extracts the ErrorKind from err, classifying raw network errors
// when err is not already a *Error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return classifyNetError(err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a failure of this kind may succeed over an
// alternate plan. Credential rejection is final regardless of route.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindUnreachable, KindRefused:
		return true
	}
	return false
}

// classifyNetError maps transport-level errors onto the taxonomy.
func classifyNetError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "auth"):
		return KindAuthFailed
	case strings.Contains(msg, "connection refused"):
		return KindRefused
	case strings.Contains(msg, "no route to host"),
		strings.Contains(msg, "network is unreachable"):
		return KindUnreachable
	}
	return KindInternal
}
