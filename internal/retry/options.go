package retry

import (
	"fmt"
	"time"
)

// Options is the canonical retry configuration. Construct it directly or
// normalize a Config carrying legacy field names.
type Options struct {
	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int

	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// Jitter randomizes computed delays: the first retry delay uniformly in
	// [0.5×base, 1.0×base], later delays within ±10% of the exponential
	// value, re-clamped to [0, MaxDelay].
	Jitter bool

	// MaxElapsed bounds the cumulative time spent across all attempts and
	// waits. Zero means no elapsed bound.
	MaxElapsed time.Duration

	// RetryableErrors are substrings matched against error messages.
	RetryableErrors []string

	// RetryableStatuses is the set of HTTP statuses worth retrying.
	RetryableStatuses []int
}

// DefaultOptions returns the standard dispatch retry policy.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:   3,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
		Jitter:        true,
		MaxElapsed:    30 * time.Second,
		RetryableErrors: []string{
			"TIMEOUT",
			"NETWORK_ERROR",
			"ECONNRESET",
			"ECONNREFUSED",
			"ETIMEDOUT",
			"EAI_AGAIN",
			"connection reset",
			"unexpected EOF",
		},
		RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
	}
}

// Validate fails fast on configuration that would make the loop misbehave.
func (o Options) Validate() error {
	if o.MaxAttempts <= 0 {
		return fmt.Errorf("retry: maxAttempts must be positive, got %d", o.MaxAttempts)
	}
	if o.BackoffFactor <= 0 {
		return fmt.Errorf("retry: backoffFactor must be positive, got %g", o.BackoffFactor)
	}
	if o.BaseDelay < 0 {
		return fmt.Errorf("retry: baseDelay must not be negative, got %s", o.BaseDelay)
	}
	if o.MaxDelay < 0 {
		return fmt.Errorf("retry: maxDelay must not be negative, got %s", o.MaxDelay)
	}
	if o.MaxElapsed < 0 {
		return fmt.Errorf("retry: maxElapsed must not be negative, got %s", o.MaxElapsed)
	}
	return nil
}

// Config accepts both historical field-name sets for the same knobs:
// maxRetries/baseDelayMs/exponentialBase and maxAttempts/baseDelay/
// backoffFactor. Normalize resolves them once at the boundary; nothing past
// it ever sees an alias.
type Config struct {
	MaxRetries  *int `json:"maxRetries" mapstructure:"maxRetries"`
	MaxAttempts *int `json:"maxAttempts" mapstructure:"maxAttempts"`

	// Delays are milliseconds in both spellings.
	BaseDelayMs *int `json:"baseDelayMs" mapstructure:"baseDelayMs"`
	BaseDelay   *int `json:"baseDelay" mapstructure:"baseDelay"`
	MaxDelayMs  *int `json:"maxDelayMs" mapstructure:"maxDelayMs"`
	MaxDelay    *int `json:"maxDelay" mapstructure:"maxDelay"`

	ExponentialBase *float64 `json:"exponentialBase" mapstructure:"exponentialBase"`
	BackoffFactor   *float64 `json:"backoffFactor" mapstructure:"backoffFactor"`

	Jitter       *bool `json:"jitter" mapstructure:"jitter"`
	MaxElapsedMs *int  `json:"maxElapsedMs" mapstructure:"maxElapsedMs"`

	RetryableErrors   []string `json:"retryableErrors" mapstructure:"retryableErrors"`
	RetryableStatuses []int    `json:"retryableStatuses" mapstructure:"retryableStatuses"`
}

// Normalize resolves the alias pairs into canonical Options and validates
// the result. The canonical spelling wins when both are set; maxAttempts is
// maxRetries + 1.
func (c Config) Normalize() (Options, error) {
	o := DefaultOptions()

	switch {
	case c.MaxAttempts != nil:
		o.MaxAttempts = *c.MaxAttempts
	case c.MaxRetries != nil:
		o.MaxAttempts = *c.MaxRetries + 1
	}

	switch {
	case c.BaseDelay != nil:
		o.BaseDelay = time.Duration(*c.BaseDelay) * time.Millisecond
	case c.BaseDelayMs != nil:
		o.BaseDelay = time.Duration(*c.BaseDelayMs) * time.Millisecond
	}

	switch {
	case c.MaxDelay != nil:
		o.MaxDelay = time.Duration(*c.MaxDelay) * time.Millisecond
	case c.MaxDelayMs != nil:
		o.MaxDelay = time.Duration(*c.MaxDelayMs) * time.Millisecond
	}

	switch {
	case c.BackoffFactor != nil:
		o.BackoffFactor = *c.BackoffFactor
	case c.ExponentialBase != nil:
		o.BackoffFactor = *c.ExponentialBase
	}

	if c.Jitter != nil {
		o.Jitter = *c.Jitter
	}
	if c.MaxElapsedMs != nil {
		o.MaxElapsed = time.Duration(*c.MaxElapsedMs) * time.Millisecond
	}
	if len(c.RetryableErrors) > 0 {
		o.RetryableErrors = c.RetryableErrors
	}
	if len(c.RetryableStatuses) > 0 {
		o.RetryableStatuses = c.RetryableStatuses
	}

	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}
