package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 3,
		FailureRatio:     0.5,
		MinRequests:      6,
	}
}

func TestExecutePassesThrough(t *testing.T) {
	b := New(testConfig(), nil)

	got, err := b.Execute(context.Background(), func() (string, error) {
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want hello", got)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestExecuteReturnsCallError(t *testing.T) {
	b := New(testConfig(), nil)
	boom := errors.New("backend error")

	_, err := b.Execute(context.Background(), func() (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the call error", err)
	}
	if Rejected(err) {
		t.Error("a call failure must not report as a breaker rejection")
	}
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b := New(testConfig(), nil)
	boom := errors.New("down")

	for i := 0; i < 3; i++ {
		if _, err := b.Execute(context.Background(), func() (string, error) {
			return "", boom
		}); !errors.Is(err, boom) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %v after threshold failures, want open", b.State())
	}

	called := false
	_, err := b.Execute(context.Background(), func() (string, error) {
		called = true
		return "should not run", nil
	})
	if err == nil {
		t.Fatal("expected rejection from an open breaker")
	}
	if !Rejected(err) {
		t.Errorf("Rejected(%v) = false, want true", err)
	}
	if called {
		t.Error("open breaker still invoked the call")
	}
}

func TestHalfOpenProbeRecovers(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond
	b := New(cfg, nil)

	for i := 0; i < 3; i++ {
		b.Execute(context.Background(), func() (string, error) {
			return "", errors.New("down")
		})
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	got, err := b.Execute(context.Background(), func() (string, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if got != "recovered" {
		t.Errorf("got %q", got)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v after successful probe, want closed", b.State())
	}
}
