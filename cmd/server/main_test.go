package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerGroup_StopWaitsForInFlightWork(t *testing.T) {
	g := newWorkerGroup()

	var finished atomic.Int32
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		g.Go(func(ctx context.Context) {
			started <- struct{}{}
			<-ctx.Done()
			// A sweep still writing after cancellation.
			time.Sleep(50 * time.Millisecond)
			finished.Add(1)
		})
	}
	<-started
	<-started

	g.Stop()
	if got := finished.Load(); got != 2 {
		t.Fatalf("Stop returned with %d of 2 loops finished", got)
	}

	// Second Stop from the deferred cleanup must not block.
	done := make(chan struct{})
	go func() {
		g.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Stop blocked")
	}
}
