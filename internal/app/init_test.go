package app

import (
	"testing"
	"time"

	"github.com/briefwire/ai-gateway/internal/config"
)

func retryCfg(mutate func(*config.RetryConfig)) *config.Config {
	cfg := &config.Config{}
	cfg.Retry.Jitter = true
	if mutate != nil {
		mutate(&cfg.Retry)
	}
	return cfg
}

func TestRetryOptions(t *testing.T) {
	t.Run("empty config yields defaults", func(t *testing.T) {
		opts, err := retryOptions(retryCfg(nil))
		if err != nil {
			t.Fatalf("retryOptions: %v", err)
		}
		if opts.MaxAttempts != 3 || opts.BaseDelay != 200*time.Millisecond {
			t.Errorf("opts = %+v", opts)
		}
	})

	t.Run("legacy maxRetries maps to attempts", func(t *testing.T) {
		opts, err := retryOptions(retryCfg(func(rc *config.RetryConfig) {
			rc.MaxRetries = 4
		}))
		if err != nil {
			t.Fatalf("retryOptions: %v", err)
		}
		if opts.MaxAttempts != 5 {
			t.Errorf("MaxAttempts = %d, want 5", opts.MaxAttempts)
		}
	})

	t.Run("negative attempts abort startup", func(t *testing.T) {
		if _, err := retryOptions(retryCfg(func(rc *config.RetryConfig) {
			rc.MaxAttempts = -1
		})); err == nil {
			t.Fatal("expected error for negative attempts")
		}
	})

	t.Run("bad factor aborts startup", func(t *testing.T) {
		if _, err := retryOptions(retryCfg(func(rc *config.RetryConfig) {
			rc.BackoffFactor = -2
		})); err == nil {
			t.Fatal("expected error for negative factor")
		}
	})

	t.Run("negative elapsed bound aborts startup", func(t *testing.T) {
		if _, err := retryOptions(retryCfg(func(rc *config.RetryConfig) {
			rc.MaxElapsed = -time.Second
		})); err == nil {
			t.Fatal("expected error for negative elapsed bound")
		}
	})
}
