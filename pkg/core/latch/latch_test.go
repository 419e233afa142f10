package latch

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestLatch_SingleWinner(t *testing.T) {
	var l Latch
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins.Load())
	}
	if !l.Set() {
		t.Fatalf("latch should remain set after acquisition")
	}
}

func TestLatch_ResetAllowsReacquire(t *testing.T) {
	var l Latch
	if !l.TryAcquire() {
		t.Fatalf("fresh latch should acquire")
	}
	if l.TryAcquire() {
		t.Fatalf("held latch should not acquire again")
	}
	l.Reset()
	if !l.TryAcquire() {
		t.Fatalf("reset latch should acquire again")
	}
}
