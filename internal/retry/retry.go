// Package retry executes operations under bounded retries with exponential
// backoff, jitter, and pluggable retryability rules. One classification and
// one delay formula serve every call site; the dispatch path is the primary
// consumer.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Attempt records one try of the supervised operation.
type Attempt struct {
	Number int           `json:"number"`
	Delay  time.Duration `json:"delay"`
	Err    error         `json:"-"`
	At     time.Time     `json:"at"`
}

// ExhaustedError reports that every allowed attempt failed. It carries the
// full attempt history and the last underlying error.
type ExhaustedError struct {
	ID       string
	Attempts []Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts (%s): %v", len(e.Attempts), e.ID, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// HTTPStatus implements the envelope status mapping.
func (e *ExhaustedError) HTTPStatus() int { return 500 }

// upstreamStatus matches typed errors that carry the backend's own HTTP
// status, before any envelope mapping.
type upstreamStatus interface {
	UpstreamStatus() int
}

// statusInMessage extracts the first standalone 3-digit HTTP status from an
// error message.
var statusInMessage = regexp.MustCompile(`\b([1-5]\d{2})\b`)

// Service supervises retried operations. It holds no mutable state, so one
// instance serves any number of concurrent dispatches.
type Service struct {
	opts Options
	log  *slog.Logger
}

// NewService validates the options and builds a Service.
func NewService(opts Options, log *slog.Logger) (*Service, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{opts: opts, log: log}, nil
}

// Options returns the service's effective options.
func (s *Service) Options() Options { return s.opts }

// Do runs op until it succeeds, a non-retryable error occurs, the context is
// done, or attempts/elapsed time are exhausted. The attempt history is
// returned in every case.
func Do[T any](ctx context.Context, s *Service, id string, op func(context.Context) (T, error)) (T, []Attempt, error) {
	var zero T
	var attempts []Attempt
	start := time.Now()

	for n := 1; ; n++ {
		result, err := op(ctx)
		if err == nil {
			return result, attempts, nil
		}

		delay := s.Delay(n)
		attempts = append(attempts, Attempt{
			Number: n,
			Delay:  delay,
			Err:    err,
			At:     time.Now(),
		})

		if !s.IsRetryable(err) {
			s.log.Debug("retry: non-retryable error, aborting",
				"id", id, "attempt", n, "error", err)
			return zero, attempts, err
		}
		if n >= s.opts.MaxAttempts {
			return zero, attempts, &ExhaustedError{ID: id, Attempts: attempts, Last: err}
		}
		if s.opts.MaxElapsed > 0 && time.Since(start)+delay > s.opts.MaxElapsed {
			s.log.Warn("retry: elapsed budget exceeded",
				"id", id, "attempt", n, "elapsed", time.Since(start))
			return zero, attempts, &ExhaustedError{ID: id, Attempts: attempts, Last: err}
		}

		s.log.Debug("retry: attempt failed, backing off",
			"id", id, "attempt", n, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return zero, attempts, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Delay computes the wait after attempt n (1-indexed):
// baseDelay × backoffFactor^(n−1), capped at maxDelay, then jittered.
func (s *Service) Delay(n int) time.Duration {
	base := float64(s.opts.BaseDelay) * math.Pow(s.opts.BackoffFactor, float64(n-1))
	if max := float64(s.opts.MaxDelay); s.opts.MaxDelay > 0 && base > max {
		base = max
	}

	if !s.opts.Jitter {
		return time.Duration(base)
	}

	var jittered float64
	if n == 1 {
		// First retry spreads out bursts: uniform in [0.5×base, 1.0×base].
		jittered = base * (0.5 + 0.5*rand.Float64())
	} else {
		jittered = base * (0.9 + 0.2*rand.Float64())
	}
	if jittered < 0 {
		jittered = 0
	}
	if max := float64(s.opts.MaxDelay); s.opts.MaxDelay > 0 && jittered > max {
		jittered = max
	}
	return time.Duration(jittered)
}

// IsRetryable classifies an error: retryable error-name substrings, an HTTP
// status carried by the error or embedded in its message, then network and
// timeout heuristics. Anything unrecognized is not retried.
func (s *Service) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	for _, name := range s.opts.RetryableErrors {
		if strings.Contains(strings.ToLower(msg), strings.ToLower(name)) {
			return true
		}
	}

	var us upstreamStatus
	if errors.As(err, &us) {
		return s.statusRetryable(us.UpstreamStatus())
	}
	if m := statusInMessage.FindStringSubmatch(msg); m != nil {
		status, _ := strconv.Atoi(m[1])
		return s.statusRetryable(status)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

func (s *Service) statusRetryable(status int) bool {
	for _, rs := range s.opts.RetryableStatuses {
		if rs == status {
			return true
		}
	}
	return false
}
