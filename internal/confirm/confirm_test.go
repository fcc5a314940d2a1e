package confirm

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitReleasedByConfirm(t *testing.T) {
	gate := NewGate(nil)

	done := make(chan error, 1)
	go func() {
		done <- gate.Wait(context.Background(), "sign in")
	}()

	// Give the waiter time to block, then release it.
	require.Eventually(t, func() bool {
		gate.Confirm()
		select {
		case err := <-done:
			require.NoError(t, err)
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	gate := NewGate(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gate.Wait(ctx, "sign in")
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfirmWithoutWaiterIsNoOp(t *testing.T) {
	gate := NewGate(nil)
	gate.Confirm()
	gate.Confirm()

	// A later wait must still block; stray confirmations carry no credit.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := gate.Wait(ctx, "sign in")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFeedLinesConfirmsPerLine(t *testing.T) {
	gate := NewGate(nil)

	done := make(chan error, 1)
	go func() {
		done <- gate.Wait(context.Background(), "sign in")
	}()

	r, w := io.Pipe()
	defer w.Close()
	go FeedLines(context.Background(), r, gate)

	// Keep feeding lines until the waiter observes one; an early line can
	// arrive before the waiter blocks and is deliberately dropped.
	require.Eventually(t, func() bool {
		_, _ = w.Write([]byte("\n"))
		select {
		case err := <-done:
			require.NoError(t, err)
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
