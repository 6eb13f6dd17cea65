package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()
	if cfg.BaseDelay != time.Second {
		t.Fatalf("unexpected base delay: %v", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Fatalf("unexpected max delay: %v", cfg.MaxDelay)
	}
	if cfg.MaxAttempts != 5 {
		t.Fatalf("unexpected max attempts: %d", cfg.MaxAttempts)
	}
}

func TestBackoffConfig_DelayFor(t *testing.T) {
	cfg := DefaultBackoffConfig()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 1 * time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 5, want: 32 * time.Second},
		{attempt: 6, want: 60 * time.Second},  // 64s укладывается в потолок
		{attempt: 20, want: 60 * time.Second}, // далеко за потолком
		{attempt: 64, want: 60 * time.Second}, // защита от переполнения сдвига
		{attempt: -1, want: 1 * time.Second},
	}

	for _, tt := range tests {
		if got := cfg.DelayFor(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestRetry_SucceedsMidway(t *testing.T) {
	cfg := BackoffConfig{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 5}

	calls := 0
	err := Retry(context.Background(), nil, "test-op", cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	cfg := BackoffConfig{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 3}

	calls := 0
	wantErr := errors.New("permanent")
	err := Retry(context.Background(), nil, "test-op", cfg, func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	cfg := BackoffConfig{BaseDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 5}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, nil, "test-op", cfg, func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cancellation during the first backoff, got %d calls", calls)
	}
}
