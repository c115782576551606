// Package workerpool runs a fixed-size batch of jobs with bounded
// concurrency. Used for cohort re-assessment, where every patient on file is
// re-run through the rule pipeline without letting the fan-out grow
// unbounded.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Job is one unit of batch work.
type Job struct {
	ID      string
	Payload any
}

// Outcome is the result of one job. Err is nil on success.
type Outcome struct {
	JobID string
	Data  any
	Err   error
}

// RunFunc processes a single job.
type RunFunc func(ctx context.Context, job Job) (any, error)

// DefaultWorkers bounds batch concurrency when the caller passes zero.
const DefaultWorkers = 8

// Run executes every job with at most workers goroutines in flight and
// returns outcomes in job order. A cancelled context fails the jobs that
// have not started yet; in-flight jobs see the cancellation through ctx.
func Run(ctx context.Context, workers int, jobs []Job, fn RunFunc, logger *zap.Logger) []Outcome {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	outcomes := make([]Outcome, len(jobs))
	next := int64(-1)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= len(jobs) {
					return
				}
				job := jobs[i]

				if err := ctx.Err(); err != nil {
					outcomes[i] = Outcome{JobID: job.ID, Err: fmt.Errorf("job not started: %w", err)}
					continue
				}

				data, err := fn(ctx, job)
				outcomes[i] = Outcome{JobID: job.ID, Data: data, Err: err}
				if err != nil {
					logger.Warn("batch job failed",
						zap.String("job_id", job.ID),
						zap.Int("worker_id", workerID),
						zap.Error(err))
				}
			}
		}(w)
	}

	wg.Wait()
	return outcomes
}

// Summary aggregates a batch run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summarize counts successes and failures in a set of outcomes.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Err != nil {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	return s
}
