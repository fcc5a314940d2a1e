package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies an agent failure so callers can branch on the
// classification instead of swallowing errors.
type FailureKind string

// Failure classifications.
const (
	// FailureTransient marks a single failed step that is safe to retry
	// against the same session (step timeout, stale element reference).
	FailureTransient FailureKind = "transient"
	// FailureFatal marks the session itself as unusable; only a restart
	// helps.
	FailureFatal FailureKind = "fatal"
	// FailureAuthChallenge marks a logged-out or checkpoint state detected
	// after navigation or recovery.
	FailureAuthChallenge FailureKind = "auth_challenge"
	// FailureRenderTimeout marks expected content that never appeared. It is
	// treated as a soft end of page or a per-record skip, never as fatal.
	FailureRenderTimeout FailureKind = "render_timeout"
)

// AgentError tags a failure raised by an agent operation with its
// classification and the operation that produced it.
type AgentError struct {
	Kind FailureKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *AgentError) Unwrap() error { return e.Err }

// NewAgentError wraps err with a classification.
func NewAgentError(kind FailureKind, op string, err error) *AgentError {
	return &AgentError{Kind: kind, Op: op, Err: err}
}

// ErrAuthChallenge is a sentinel for a detected sign-in or checkpoint page.
var ErrAuthChallenge = errors.New("auth challenge detected")

// Markers in error text that indicate the browser session is gone. These
// cover chromedp's websocket transport as well as process-level failures.
var fatalMarkers = []string{
	"invalid session",
	"session deleted",
	"target closed",
	"target crashed",
	"websocket: close",
	"websocket: bad handshake",
	"connection refused",
	"connection reset",
	"broken pipe",
	"chrome not reachable",
	"browser has been closed",
	"context canceled while waiting for target",
	"use of closed network connection",
}

// Classify maps an error from an agent operation onto the failure taxonomy.
// Unknown errors default to transient so a single flaky step does not tear
// down a healthy session.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureTransient
	}
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Kind
	}
	if errors.Is(err, ErrAuthChallenge) {
		return FailureAuthChallenge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureRenderTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return FailureFatal
		}
	}
	return FailureTransient
}

// IsFatal reports whether err means the session must be restarted.
func IsFatal(err error) bool {
	return Classify(err) == FailureFatal
}
