package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"
)

func TestExecutePassesThroughResult(t *testing.T) {
	cb := New(DefaultConfig("test"))
	result, err := cb.Execute(context.Background(), func() (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %v", result)
	}
}

func TestExecuteWrapsUnderlyingError(t *testing.T) {
	cb := New(DefaultConfig("test"))
	sentinel := errors.New("upstream unavailable")
	_, err := cb.Execute(context.Background(), func() (any, error) {
		return nil, sentinel
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel error, got %v", err)
	}
}

func TestExecuteAbortsOnCancelledContext(t *testing.T) {
	cb := New(DefaultConfig("test"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := cb.Execute(ctx, func() (any, error) {
		called = true
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if called {
		t.Fatal("expected fn not to be called when context already cancelled")
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("flaky")
	cfg.MaxFailures = 3
	cb := New(cfg)

	failing := func() (any, error) { return nil, errors.New("boom") }
	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(context.Background(), failing)
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected breaker open after consecutive failures, got %v", cb.State())
	}

	_, err := cb.Execute(context.Background(), func() (any, error) { return "ok", nil })
	if err == nil {
		t.Fatal("expected open breaker to reject the request")
	}
}

func TestNameReturnsConfiguredName(t *testing.T) {
	cb := New(DefaultConfig("bars_loader"))
	if cb.Name() != "bars_loader" {
		t.Fatalf("expected bars_loader, got %s", cb.Name())
	}
}
