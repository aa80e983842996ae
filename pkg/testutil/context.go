package testutil

import (
	"context"
	"testing"
	"time"
)

const defaultTestTimeout = 30 * time.Second

// ContextWithTimeout is cancelled after timeout or when the test ends,
// whichever comes first. It never outlives the go test -timeout deadline.
func ContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	if deadline, ok := t.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

func Context(t *testing.T) context.Context {
	t.Helper()
	return ContextWithTimeout(t, defaultTestTimeout)
}
