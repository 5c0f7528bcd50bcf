package job

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Factory feeds the manager with jobs in dependency order.
//
// NextJob and JobFinished are only ever called from the dispatcher
// goroutine, so a factory may mutate shared state (the cache
// included) without additional locking.
type Factory interface {
	// NextJob returns a job whose dependencies have all completed
	// successfully, or nil when nothing is runnable right now.
	NextJob() Job
	// Pending reports whether undispatched jobs remain.
	Pending() bool
	// JobFinished notifies the factory that a dispatched job
	// completed, successfully or not.
	JobFinished(j Job, ok bool)
}

// Manager dispatches jobs to a bounded pool of workers. On the first
// failure it stops handing out new jobs, lets in-flight work drain
// and reports the failure.
type Manager struct {
	factory Factory
	limit   int
}

func NewManager(factory Factory, limit int) *Manager {
	if limit < 1 {
		limit = 1
	}
	return &Manager{factory: factory, limit: limit}
}

type jobResult struct {
	job Job
	err error
}

// Run drives the factory until it is exhausted or a job fails.
func (m *Manager) Run() error {
	jobs := make(chan Job)
	results := make(chan jobResult)

	var eg errgroup.Group
	for i := 0; i < m.limit; i++ {
		eg.Go(func() error {
			for j := range jobs {
				results <- jobResult{job: j, err: j.Run()}
			}
			return nil
		})
	}

	running := 0
	var buildErr error
	for {
		if buildErr == nil {
			// Keep every worker busy. A send never blocks here: the
			// number of busy workers equals the number of dispatched,
			// unfinished jobs.
			for running < m.limit {
				j := m.factory.NextJob()
				if j == nil {
					break
				}
				jobs <- j
				running++
			}
		}

		if running == 0 {
			if buildErr == nil && m.factory.Pending() {
				buildErr = errors.New("job dependency cycle, nothing is runnable")
			}
			break
		}

		r := <-results
		running--
		if r.err != nil && buildErr == nil {
			buildErr = fmt.Errorf("%s: %w", r.job.Name(), r.err)
		}
		m.factory.JobFinished(r.job, r.err == nil)
	}

	close(jobs)
	eg.Wait()
	return buildErr
}
