package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeResult struct{ err error }

func (r *fakeResult) GetError() error { return r.err }

// fakeJob simulates one document extraction. Running and peak track concurrency.
type fakeJob struct {
	delay   time.Duration
	err     error
	ran     *atomic.Int32
	running *atomic.Int32
	peak    *atomic.Int32
}

func (j *fakeJob) Execute(ctx context.Context) Result {
	if j.ran != nil {
		j.ran.Add(1)
	}
	if j.running != nil {
		n := j.running.Add(1)
		defer j.running.Add(-1)
		for {
			p := j.peak.Load()
			if n <= p || j.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	if j.delay > 0 {
		select {
		case <-time.After(j.delay):
		case <-ctx.Done():
			return &fakeResult{err: ctx.Err()}
		}
	}
	return &fakeResult{err: j.err}
}

func TestNewPool_WorkerFloor(t *testing.T) {
	for in, want := range map[int]int{4: 4, 0: 1, -3: 1} {
		if got := NewPool(in).workers; got != want {
			t.Errorf("NewPool(%d).workers = %d, want %d", in, got, want)
		}
	}
}

func TestPool_RunsEveryJob(t *testing.T) {
	var ran atomic.Int32
	pool := NewPool(3)
	pool.Start()
	for i := 0; i < 25; i++ {
		if !pool.Submit(&fakeJob{ran: &ran}) {
			t.Fatal("submit refused on a live pool")
		}
	}

	results := pool.Wait()
	if len(results) != 25 || ran.Load() != 25 {
		t.Errorf("expected 25 results and runs, got %d and %d", len(results), ran.Load())
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const workers = 4
	var running, peak atomic.Int32
	pool := NewPool(workers)
	pool.Start()
	for i := 0; i < 20; i++ {
		pool.Submit(&fakeJob{delay: 5 * time.Millisecond, running: &running, peak: &peak})
	}
	pool.Wait()

	if p := peak.Load(); p > workers {
		t.Errorf("peak concurrency %d exceeded %d workers", p, workers)
	}
}

func TestPool_KeepsPerJobErrors(t *testing.T) {
	failure := errors.New("API error (429): quota")
	pool := NewPool(2)
	pool.Start()
	pool.Submit(&fakeJob{err: failure})
	pool.Submit(&fakeJob{})
	pool.Submit(&fakeJob{})

	failed := 0
	for _, r := range pool.Wait() {
		if errors.Is(r.GetError(), failure) {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected exactly one failed result, got %d", failed)
	}
}

func TestPool_QueueLargerThanBuffer(t *testing.T) {
	pool := NewPool(1)
	pool.Start()

	done := make(chan int)
	go func() {
		for i := 0; i < 200; i++ {
			pool.Submit(&fakeJob{})
		}
		done <- len(pool.Wait())
	}()

	select {
	case n := <-done:
		if n != 200 {
			t.Errorf("expected 200 results, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pool blocked with more jobs than queue capacity")
	}
}

func TestPool_ShutdownCancelsRunningJobs(t *testing.T) {
	pool := NewPool(1)
	pool.Start()
	pool.Submit(&fakeJob{delay: time.Minute})
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not cancel the running job")
	}

	submitted := make(chan bool)
	go func() { submitted <- pool.Submit(&fakeJob{}) }()
	select {
	case ok := <-submitted:
		if ok {
			t.Error("expected Submit to refuse jobs after Shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("Submit after Shutdown blocked")
	}
}

func TestPool_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPoolWithContext(ctx, 2)
	pool.Start()
	cancel()

	if pool.Submit(&fakeJob{}) {
		t.Error("expected Submit to refuse jobs after the parent context is cancelled")
	}
	if results := pool.Wait(); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestResultCollector_ReturnsCopy(t *testing.T) {
	c := NewResultCollector()
	c.Add(&fakeResult{})
	got := c.Results()
	got[0] = &fakeResult{err: errors.New("mutated")}

	if c.Results()[0].GetError() != nil {
		t.Error("Results must return a copy")
	}
}
