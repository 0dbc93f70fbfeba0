package gate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGate_OpenReleasesWaiters(t *testing.T) {
	g := New("ready")
	done := make(chan error, 2)

	for range 2 {
		go func() {
			done <- g.Wait(context.Background())
		}()
	}

	select {
	case <-done:
		t.Fatal("Wait returned before Open")
	case <-time.After(20 * time.Millisecond):
	}

	g.Open()

	for range 2 {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Wait() error = %v, want nil", err)
			}
		case <-time.After(time.Second):
			t.Fatal("waiter not released")
		}
	}
}

func TestGate_StaysOpenUntilReset(t *testing.T) {
	g := New("started")
	g.Open()
	g.Open()

	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() on open gate error = %v", err)
	}

	g.Reset()
	if g.IsOpen() {
		t.Fatal("IsOpen() = true after Reset")
	}

	g.WithTimeout(10 * time.Millisecond)
	err := g.Wait(context.Background())
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Wait() error = %v, want *TimeoutError", err)
	}
	if timeoutErr.Gate != "started" {
		t.Errorf("TimeoutError.Gate = %q, want %q", timeoutErr.Gate, "started")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("errors.Is(%v, context.DeadlineExceeded) = false", err)
	}
}

func TestGate_ContextCancel(t *testing.T) {
	g := New("cleanup")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}
