package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func makeJobs(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = Job{ID: fmt.Sprintf("job-%02d", i), Payload: i}
	}
	return jobs
}

func TestRunPreservesJobOrder(t *testing.T) {
	jobs := makeJobs(25)

	outcomes := Run(context.Background(), 4, jobs, func(_ context.Context, job Job) (any, error) {
		return job.Payload.(int) * 2, nil
	}, nil)

	if len(outcomes) != len(jobs) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(jobs))
	}
	for i, o := range outcomes {
		if o.JobID != jobs[i].ID {
			t.Errorf("outcome %d is for %s, want %s", i, o.JobID, jobs[i].ID)
		}
		if o.Err != nil {
			t.Errorf("job %s failed: %v", o.JobID, o.Err)
		}
		if o.Data != i*2 {
			t.Errorf("job %s data = %v, want %d", o.JobID, o.Data, i*2)
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const workers = 3
	var inFlight, peak int64

	Run(context.Background(), workers, makeJobs(30), func(_ context.Context, _ Job) (any, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return nil, nil
	}, nil)

	if got := atomic.LoadInt64(&peak); got > workers {
		t.Errorf("peak concurrency %d exceeded worker bound %d", got, workers)
	}
}

func TestRunRecordsFailuresWithoutStopping(t *testing.T) {
	boom := errors.New("boom")
	jobs := makeJobs(10)

	outcomes := Run(context.Background(), 2, jobs, func(_ context.Context, job Job) (any, error) {
		if job.Payload.(int)%3 == 0 {
			return nil, boom
		}
		return "ok", nil
	}, nil)

	var failed int
	for i, o := range outcomes {
		if i%3 == 0 {
			if !errors.Is(o.Err, boom) {
				t.Errorf("job %s err = %v, want boom", o.JobID, o.Err)
			}
			failed++
		} else if o.Err != nil {
			t.Errorf("job %s unexpectedly failed: %v", o.JobID, o.Err)
		}
	}

	s := Summarize(outcomes)
	if s.Total != 10 || s.Failed != failed || s.Succeeded != 10-failed {
		t.Errorf("summary = %+v, want total 10, failed %d", s, failed)
	}
}

func TestRunCancelledContextFailsUnstartedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var started sync.WaitGroup
	started.Add(1)
	var once sync.Once

	outcomes := Run(ctx, 1, makeJobs(5), func(_ context.Context, job Job) (any, error) {
		once.Do(func() {
			cancel()
			started.Done()
		})
		return "ran", nil
	}, nil)

	started.Wait()

	// The first job ran; the rest were refused before starting.
	if outcomes[0].Err != nil {
		t.Errorf("first job failed: %v", outcomes[0].Err)
	}
	for _, o := range outcomes[1:] {
		if o.Err == nil {
			t.Errorf("job %s ran after cancellation", o.JobID)
			continue
		}
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("job %s err = %v, want context.Canceled", o.JobID, o.Err)
		}
	}
}

func TestRunWithZeroWorkersUsesDefault(t *testing.T) {
	outcomes := Run(context.Background(), 0, makeJobs(3), func(_ context.Context, job Job) (any, error) {
		return job.ID, nil
	}, nil)
	for _, o := range outcomes {
		if o.Err != nil {
			t.Errorf("job %s failed: %v", o.JobID, o.Err)
		}
	}
}

func TestRunEmptyJobs(t *testing.T) {
	outcomes := Run(context.Background(), 4, nil, func(_ context.Context, _ Job) (any, error) {
		t.Error("run func called for an empty batch")
		return nil, nil
	}, nil)
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes for an empty batch", len(outcomes))
	}

	s := Summarize(outcomes)
	if s.Total != 0 || s.Failed != 0 || s.Succeeded != 0 {
		t.Errorf("summary = %+v, want zeros", s)
	}
}
