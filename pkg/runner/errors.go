package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// PartialRunError reports a run that finished with at least one failed
// host. The run itself completed: every host either converged or was
// isolated by its own failure, so the report is still usable.
type PartialRunError struct {
	// RunID is the identifier of the run that partially failed.
	RunID string

	// FailedHosts lists the hosts that ended the run in a failed state.
	FailedHosts []string
}

// Error implements the error interface.
func (e *PartialRunError) Error() string {
	hosts := append([]string(nil), e.FailedHosts...)
	sort.Strings(hosts)
	return fmt.Sprintf("run %s finished with failures on %d host(s): %s",
		e.RunID, len(hosts), strings.Join(hosts, ", "))
}

// retryable reports whether an execution error is worth retrying.
// Transport channel errors mark themselves temporary; deterministic
// module failures and exhausted deadlines are not retried.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// backoff calculates exponential backoff with jitter for the given
// attempt number.
func backoff(attempt int) time.Duration {
	base := 1 * time.Second
	delay := base * time.Duration(math.Pow(2, float64(attempt)))

	// Cap at 30 seconds
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}

	// Add jitter (up to +25%)
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	return delay + jitter
}
