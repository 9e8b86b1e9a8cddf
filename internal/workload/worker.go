package workload

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// startWorkers launches the worker threads and returns once every worker has
// joined the hint session. The returned group completes after each worker
// has left it.
func (h *Host) startWorkers(ctx context.Context) ([]*worker, *sync.WaitGroup) {
	var (
		ready  sync.WaitGroup
		joined sync.WaitGroup
	)

	pool := make([]*worker, h.workers)
	for i := range pool {
		w := &worker{
			jobs: make(chan time.Duration),
			done: make(chan struct{}, 1),
		}
		pool[i] = w

		ready.Add(1)
		joined.Add(1)
		go h.runWorker(ctx, w, &ready, &joined)
	}
	ready.Wait()

	return pool, &joined
}

func (h *Host) runWorker(ctx context.Context, w *worker, ready, joined *sync.WaitGroup) {
	defer joined.Done()

	// The hint session tracks kernel threads, so the goroutine must stay on
	// one for its whole life.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid := h.threadID()
	h.coord.AddThreadIdToHintSession(tid)
	h.log.Debug().Int32("tid", tid).Msg("Worker joined hint session")
	ready.Done()

	defer func() {
		h.coord.RemoveThreadIdFromHintSession(tid)
		h.log.Debug().Int32("tid", tid).Msg("Worker left hint session")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case share := <-w.jobs:
			h.work(ctx, share)
			w.done <- struct{}{}
		}
	}
}

// spin burns CPU until budget has elapsed on the host clock.
func (h *Host) spin(ctx context.Context, budget time.Duration) {
	start := h.clock.Now()
	x := uint64(1)
	for h.clock.Since(start) < budget {
		if ctx.Err() != nil {
			return
		}
		for i := 0; i < 1000; i++ {
			x = x*6364136223846793005 + 1442695040888963407
		}
	}
	sink.Store(x)
}
