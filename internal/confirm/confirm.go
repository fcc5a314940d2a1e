// Package confirm implements the blocking operator-confirmation gate used at
// manual intervention points: initial sign-in and recovered auth challenges.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Gate blocks crawl progress until an operator confirms. Confirmations are
// delivered only to a currently blocked waiter; there is no stored credit,
// so a stray confirmation before any suspension is a no-op.
type Gate struct {
	ch     chan struct{}
	logger *zap.Logger
}

// NewGate builds a Gate.
func NewGate(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{ch: make(chan struct{}), logger: logger}
}

// Wait blocks until Confirm is called or ctx ends.
func (g *Gate) Wait(ctx context.Context, reason string) error {
	g.logger.Warn("crawl suspended, waiting for operator confirmation",
		zap.String("reason", reason),
	)
	select {
	case <-ctx.Done():
		return fmt.Errorf("confirmation wait: %w", ctx.Err())
	case <-g.ch:
		g.logger.Info("operator confirmed, resuming")
		return nil
	}
}

// Confirm releases one blocked waiter, if any.
func (g *Gate) Confirm() {
	select {
	case g.ch <- struct{}{}:
	default:
	}
}

// FeedLines forwards one confirmation per line read from r until r ends or
// ctx is canceled. Wiring os.Stdin here gives the press-enter-to-continue
// flow for interactive runs.
func FeedLines(ctx context.Context, r io.Reader, g *Gate) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		g.Confirm()
	}
}
