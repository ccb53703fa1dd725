package oplock

import (
	"sync"
	"testing"
)

func TestTryAcquireExcludesSecondHolder(t *testing.T) {
	g := New()

	if !g.TryAcquire("user-1") {
		t.Fatalf("first acquire expected to succeed")
	}
	if g.TryAcquire("user-1") {
		t.Fatalf("second acquire for the same subject expected to fail")
	}

	g.Release("user-1")
	if !g.TryAcquire("user-1") {
		t.Fatalf("acquire after release expected to succeed")
	}
}

func TestTryAcquireIsPerSubject(t *testing.T) {
	g := New()

	if !g.TryAcquire("user-1") {
		t.Fatalf("user-1 acquire expected to succeed")
	}
	if !g.TryAcquire("user-2") {
		t.Fatalf("user-2 must not be excluded by user-1")
	}
}

func TestReleaseUnheldIsNoOp(t *testing.T) {
	g := New()

	g.Release("user-1")
	if !g.TryAcquire("user-1") {
		t.Fatalf("acquire after spurious release expected to succeed")
	}
}

func TestGateGrantsExactlyOnceUnderContention(t *testing.T) {
	g := New()

	const attempts = 64
	var wg sync.WaitGroup
	granted := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire("user-1") {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one grant under contention, got %d", count)
	}
}
