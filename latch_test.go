package macroengine

import (
	"context"
	"testing"
	"time"
)

func TestLatchSetWakesWaiter(t *testing.T) {
	l := NewLatch()
	done := make(chan error, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- l.Wait(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	l.Set()

	if err := <-done; err != nil {
		t.Fatalf("Wait() = %v, want nil", err)
	}
}

func TestLatchWaitTimesOutWhenNeverSet(t *testing.T) {
	l := NewLatch()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Fatal("Wait() = nil, want deadline error")
	}
}

func TestLatchClearThenWaitBlocksAgain(t *testing.T) {
	l := NewLatch()
	l.Set()
	if !l.IsSet() {
		t.Fatal("IsSet() = false after Set, want true")
	}

	l.Clear()
	if l.IsSet() {
		t.Fatal("IsSet() = true after Clear, want false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("Wait() = nil after Clear, want deadline error")
	}
}
