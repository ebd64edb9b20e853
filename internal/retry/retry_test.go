package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agentworker/internal/classify"
)

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Config{}, nil, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil || got != 42 || calls != 1 {
		t.Fatalf("got=%d err=%v calls=%d", got, err, calls)
	}
}

func TestDo_NonRetryablePropagatesImmediately(t *testing.T) {
	calls := 0
	wantErr := errors.New("unauthorized")
	_, err := Do(context.Background(), Config{}, nil, func() (int, error) {
		calls++
		return 0, wantErr
	})
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected original error, got %v", err)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	cfg := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	got, err := Do(context.Background(), cfg, nil, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("rate limit exceeded")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" || calls != 3 {
		t.Fatalf("got=%q err=%v calls=%d", got, err, calls)
	}
}

func TestDo_ExhaustsRetriesAndReturnsCause(t *testing.T) {
	calls := 0
	cfg := Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	_, err := Do(context.Background(), cfg, nil, func() (int, error) {
		calls++
		return 0, errors.New("server error")
	})
	if calls != 3 { // initial + 2 retries
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestDo_CustomClassifier(t *testing.T) {
	calls := 0
	always := func(error) *classify.ClassifiedError {
		return &classify.ClassifiedError{Class: classify.ClassTransient, Retryable: true}
	}
	cfg := Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	_, err := Do(context.Background(), cfg, always, func() (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	if calls != 2 || err == nil {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, cfg, nil, func() (int, error) {
		calls++
		return 0, errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
