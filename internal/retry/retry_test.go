package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	s, err := NewService(opts, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func fastOptions() Options {
	o := DefaultOptions()
	o.BaseDelay = time.Millisecond
	o.MaxDelay = 5 * time.Millisecond
	o.Jitter = false
	return o
}

func TestNewServiceValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero attempts", func(o *Options) { o.MaxAttempts = 0 }},
		{"negative attempts", func(o *Options) { o.MaxAttempts = -1 }},
		{"zero backoff factor", func(o *Options) { o.BackoffFactor = 0 }},
		{"negative base delay", func(o *Options) { o.BaseDelay = -time.Second }},
		{"negative max delay", func(o *Options) { o.MaxDelay = -time.Second }},
		{"negative max elapsed", func(o *Options) { o.MaxElapsed = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			if _, err := NewService(o, nil); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDelayFormula(t *testing.T) {
	o := DefaultOptions()
	o.BaseDelay = 100 * time.Millisecond
	o.MaxDelay = 2 * time.Second
	o.BackoffFactor = 2
	o.Jitter = false
	s := newTestService(t, o)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1600 * time.Millisecond},
		{6, 2 * time.Second}, // capped
		{10, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	o := DefaultOptions()
	o.BaseDelay = 100 * time.Millisecond
	o.MaxDelay = 10 * time.Second
	o.BackoffFactor = 2
	o.Jitter = true
	s := newTestService(t, o)

	// First retry spreads into [0.5, 1.0]×base.
	for range 200 {
		d := s.Delay(1)
		if d < 50*time.Millisecond || d > 100*time.Millisecond {
			t.Fatalf("Delay(1) = %s outside [50ms, 100ms]", d)
		}
	}

	// Later retries stay within ±10% of the exponential value.
	for range 200 {
		d := s.Delay(3) // base 400ms
		if d < 360*time.Millisecond || d > 440*time.Millisecond {
			t.Fatalf("Delay(3) = %s outside [360ms, 440ms]", d)
		}
	}
}

// Delay must be callable from any number of dispatches at once; run with
// -race to catch shared jitter state.
func TestDelayConcurrent(t *testing.T) {
	s := newTestService(t, DefaultOptions())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				if d := s.Delay(i%5 + 1); d < 0 {
					t.Errorf("Delay returned %s", d)
				}
			}
		}()
	}
	wg.Wait()
}

func TestIsRetryable(t *testing.T) {
	s := newTestService(t, DefaultOptions())

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout name", errors.New("TIMEOUT waiting for upstream"), true},
		{"econnreset lowercased", errors.New("read tcp: econnreset"), true},
		{"503 in message", errors.New("upstream returned 503"), true},
		{"429 in message", errors.New("status 429 too many requests"), true},
		{"404 in message", errors.New("upstream returned 404"), false},
		{"400 in message", errors.New("bad request: 400"), false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"plain error", errors.New("something else went wrong"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// statusErr carries an explicit backend status, like a provider error does.
type statusErr struct{ status int }

func (e *statusErr) Error() string       { return fmt.Sprintf("backend failed (%d mapped)", 502) }
func (e *statusErr) UpstreamStatus() int { return e.status }

func TestIsRetryableUpstreamStatusWinsOverMessage(t *testing.T) {
	s := newTestService(t, DefaultOptions())

	// The carried status is 404 even though the message mentions 502; the
	// typed status must decide.
	if s.IsRetryable(&statusErr{status: 404}) {
		t.Error("carried 404 classified retryable")
	}
	if !s.IsRetryable(&statusErr{status: 503}) {
		t.Error("carried 503 classified non-retryable")
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	s := newTestService(t, fastOptions())

	got, attempts, err := Do(context.Background(), s, "req-1", func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q", got)
	}
	if len(attempts) != 0 {
		t.Errorf("attempts = %d, want 0", len(attempts))
	}
}

func TestDoRecoversAfterFailures(t *testing.T) {
	s := newTestService(t, fastOptions())

	calls := 0
	got, attempts, err := Do(context.Background(), s, "req-2", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("upstream returned 503")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %d", got)
	}
	if len(attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(attempts))
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	o := fastOptions()
	o.MaxAttempts = 3
	s := newTestService(t, o)

	calls := 0
	_, attempts, err := Do(context.Background(), s, "req-3", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("upstream returned 502")
	})

	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
	if len(attempts) != 3 {
		t.Errorf("attempts recorded = %d, want 3", len(attempts))
	}

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if ex.ID != "req-3" {
		t.Errorf("ExhaustedError.ID = %q", ex.ID)
	}
	if ex.HTTPStatus() != 500 {
		t.Errorf("HTTPStatus() = %d", ex.HTTPStatus())
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	s := newTestService(t, fastOptions())

	calls := 0
	_, attempts, err := Do(context.Background(), s, "req-4", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("upstream returned 400")
	})

	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
	if len(attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(attempts))
	}
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		t.Error("non-retryable failure wrapped in ExhaustedError")
	}
}

func TestDoHonorsContextCancel(t *testing.T) {
	o := fastOptions()
	o.BaseDelay = 200 * time.Millisecond
	s := newTestService(t, o)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := Do(ctx, s, "req-5", func(context.Context) (int, error) {
		return 0, errors.New("upstream returned 503")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestConfigNormalize(t *testing.T) {
	iptr := func(v int) *int { return &v }
	fptr := func(v float64) *float64 { return &v }
	bptr := func(v bool) *bool { return &v }

	t.Run("legacy aliases", func(t *testing.T) {
		o, err := Config{
			MaxRetries:      iptr(4),
			BaseDelayMs:     iptr(250),
			MaxDelayMs:      iptr(4000),
			ExponentialBase: fptr(3),
		}.Normalize()
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if o.MaxAttempts != 5 {
			t.Errorf("MaxAttempts = %d, want maxRetries+1 = 5", o.MaxAttempts)
		}
		if o.BaseDelay != 250*time.Millisecond {
			t.Errorf("BaseDelay = %s", o.BaseDelay)
		}
		if o.MaxDelay != 4*time.Second {
			t.Errorf("MaxDelay = %s", o.MaxDelay)
		}
		if o.BackoffFactor != 3 {
			t.Errorf("BackoffFactor = %g", o.BackoffFactor)
		}
	})

	t.Run("canonical spelling wins over alias", func(t *testing.T) {
		o, err := Config{
			MaxAttempts:   iptr(2),
			MaxRetries:    iptr(9),
			BaseDelay:     iptr(100),
			BaseDelayMs:   iptr(999),
			BackoffFactor: fptr(1.5),
		}.Normalize()
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if o.MaxAttempts != 2 {
			t.Errorf("MaxAttempts = %d, want 2", o.MaxAttempts)
		}
		if o.BaseDelay != 100*time.Millisecond {
			t.Errorf("BaseDelay = %s, want 100ms", o.BaseDelay)
		}
		if o.BackoffFactor != 1.5 {
			t.Errorf("BackoffFactor = %g", o.BackoffFactor)
		}
	})

	t.Run("empty config yields defaults", func(t *testing.T) {
		o, err := Config{}.Normalize()
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		d := DefaultOptions()
		if o.MaxAttempts != d.MaxAttempts || o.BaseDelay != d.BaseDelay || o.BackoffFactor != d.BackoffFactor {
			t.Errorf("Normalize() = %+v, want defaults", o)
		}
	})

	t.Run("jitter override", func(t *testing.T) {
		o, err := Config{Jitter: bptr(false)}.Normalize()
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if o.Jitter {
			t.Error("Jitter = true, want false")
		}
	})

	t.Run("invalid normalized config fails", func(t *testing.T) {
		if _, err := (Config{MaxAttempts: iptr(0)}).Normalize(); err == nil {
			t.Fatal("expected validation error")
		}
	})
}
