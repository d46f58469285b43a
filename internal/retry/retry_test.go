package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobagent/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// counter returns an operation that calls fn with the 1-based attempt number.
func counter(calls *int, fn func(attempt int) error) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		return fn(*calls)
	}
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	var calls int
	p := New(2, 10*time.Millisecond, discardLogger())

	err := p.Do(context.Background(), "page 1", counter(&calls, func(int) error { return nil }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesOn5xx_SucceedsOnSecondAttempt(t *testing.T) {
	var calls int
	p := New(2, 10*time.Millisecond, discardLogger())

	err := p.Do(context.Background(), "page 1", counter(&calls, func(attempt int) error {
		if attempt == 1 {
			return &model.HTTPError{StatusCode: 503, Err: errors.New("service unavailable")}
		}
		return nil
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDo_RetriesDecodeFailures(t *testing.T) {
	var calls int
	p := New(2, 10*time.Millisecond, discardLogger())

	err := p.Do(context.Background(), "page 1", counter(&calls, func(attempt int) error {
		if attempt < 3 {
			return errors.New("decoding response: unexpected EOF")
		}
		return nil
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_DoesNotRetryOn4xx(t *testing.T) {
	var calls int
	p := New(2, 10*time.Millisecond, discardLogger())

	err := p.Do(context.Background(), "page 1", counter(&calls, func(int) error {
		return &model.HTTPError{StatusCode: 404, Err: errors.New("not found")}
	}))
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 404 {
		t.Fatalf("expected HTTPError with status 404, got %v", err)
	}
	var transient *model.TransientFetchError
	if errors.As(err, &transient) {
		t.Fatal("a 404 should not be reported as transient")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", calls)
	}
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	var calls, hooked int
	p := New(2, 10*time.Millisecond, discardLogger())
	p.OnRetry = func(string, int, error) { hooked++ }

	err := p.Do(context.Background(), "page 2", counter(&calls, func(int) error {
		return &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}))

	var transient *model.TransientFetchError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientFetchError, got %v", err)
	}
	if transient.Attempts != 3 || transient.Op != "page 2" {
		t.Fatalf("unexpected transient error: %+v", transient)
	}
	// 1 initial + 2 retries = 3
	if calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", calls)
	}
	if hooked != 2 {
		t.Fatalf("expected OnRetry twice, got %d", hooked)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	var calls int
	ctx, cancel := context.WithCancel(context.Background())
	// Cancel immediately so the backoff sleep is interrupted.
	cancel()

	p := New(2, time.Second, discardLogger())
	err := p.Do(ctx, "page 1", counter(&calls, func(int) error {
		return &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	p := New(5, time.Second, discardLogger())

	tests := []struct {
		name     string
		attempt  int
		err      error
		min, max time.Duration
	}{
		{"first retry", 1, errors.New("x"), 700 * time.Millisecond, 1300 * time.Millisecond},
		{"third retry doubles twice", 3, errors.New("x"), 2800 * time.Millisecond, 5200 * time.Millisecond},
		{"capped", 10, errors.New("x"), 11200 * time.Millisecond, 20800 * time.Millisecond},
		{"retry-after wins", 1, &model.HTTPError{StatusCode: 429, RetryAfter: 30 * time.Second}, 30 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.backoffDelay(tt.attempt, tt.err)
			if got < tt.min || got > tt.max {
				t.Errorf("backoffDelay(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.min, tt.max)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"429", &model.HTTPError{StatusCode: 429}, true},
		{"502", &model.HTTPError{StatusCode: 502}, true},
		{"400", &model.HTTPError{StatusCode: 400}, false},
		{"network", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
