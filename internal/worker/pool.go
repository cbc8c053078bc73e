package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dyscraper/pkg/logger"
	"dyscraper/pkg/models"
)

// ErrDuplicate is returned for a reference already handled by the pool
var ErrDuplicate = errors.New("reference already submitted")

// Job is one reference to harvest
type Job struct {
	Index     int
	Reference string
}

// Result is the outcome of one job
type Result struct {
	Job      Job
	Report   *models.Report
	Err      error
	Duration time.Duration
}

// Runner executes a single harvest run
type Runner interface {
	Run(ctx context.Context, reference string) (*models.Report, error)
}

// Pool runs jobs for distinct accounts concurrently. Each job is one serial
// run; only the runner's shared session crosses job boundaries.
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	runner      Runner
	logger      logger.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// NewPool creates a pool of numWorkers workers. Cancelling ctx stops the
// runs in progress and fails the jobs still queued.
func NewPool(ctx context.Context, numWorkers int, runner Runner, log logger.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		runner:      runner,
		logger:      logger.Component(log, "worker"),
		seen:        make(map[string]bool),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop waits for queued jobs to drain and closes the result channel
func (p *Pool) Stop() {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.resultQueue)
	p.cancel()

	p.logger.Debug("Worker pool stopped")
}

// Submit queues a job
func (p *Pool) Submit(job Job) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", p.ctx.Err())
	default:
	}

	select {
	case p.jobQueue <- job:
		p.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"index":     job.Index,
			"reference": job.Reference,
		})
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", p.ctx.Err())
	}
}

// Results returns the channel results are delivered on, in completion order
func (p *Pool) Results() <-chan Result {
	return p.resultQueue
}

// QueueSize returns the number of jobs waiting for a worker
func (p *Pool) QueueSize() int {
	return len(p.jobQueue)
}

// Workers returns the number of workers
func (p *Pool) Workers() int {
	return p.numWorkers
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		// results are still delivered after cancellation, so every
		// submitted job gets one
		p.resultQueue <- p.process(job, id)
	}
}

func (p *Pool) process(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if err := p.ctx.Err(); err != nil {
		result.Report = aborted(job.Reference, err)
		result.Err = err
		return result
	}

	if !p.claim(job.Reference) {
		p.logger.WarnWithFields("Skipping duplicate reference", map[string]interface{}{
			"worker_id": workerID,
			"reference": job.Reference,
		})
		result.Report = aborted(job.Reference, ErrDuplicate)
		result.Err = ErrDuplicate
		return result
	}

	p.logger.DebugWithFields("Worker processing job", map[string]interface{}{
		"worker_id": workerID,
		"index":     job.Index,
		"reference": job.Reference,
	})

	report, err := p.runner.Run(p.ctx, job.Reference)
	if report == nil {
		report = aborted(job.Reference, err)
	}
	result.Report = report
	result.Err = err
	result.Duration = time.Since(start)

	fields := map[string]interface{}{
		"worker_id": workerID,
		"reference": job.Reference,
		"state":     string(report.State),
		"duration":  result.Duration,
	}
	if err != nil {
		p.logger.WithError(err).WarnWithFields("Worker run aborted", fields)
	} else {
		p.logger.DebugWithFields("Worker completed job", fields)
	}
	return result
}

// claim records reference, reporting false when it was seen before
func (p *Pool) claim(reference string) bool {
	key := strings.TrimSpace(reference)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[key] {
		return false
	}
	p.seen[key] = true
	return true
}

func aborted(reference string, err error) *models.Report {
	r := models.NewReport(reference)
	r.State = models.StateAborted
	if err != nil {
		r.Err = err.Error()
	}
	r.FinishedAt = r.StartedAt
	return r
}

// RunAll harvests every reference with up to n concurrent runs and returns
// the results in submission order
func RunAll(ctx context.Context, runner Runner, references []string, n int, log logger.Logger) []Result {
	return Stream(ctx, runner, references, n, log, nil)
}

// Stream is RunAll with a callback invoked for each result as it completes.
// fn runs on the calling goroutine.
func Stream(ctx context.Context, runner Runner, references []string, n int, log logger.Logger, fn func(Result)) []Result {
	results := make([]Result, len(references))
	if len(references) == 0 {
		return results
	}
	if n > len(references) {
		n = len(references)
	}

	pool := NewPool(ctx, n, runner, log)
	pool.Start()

	rejected := make(chan Result, len(references))
	go func() {
		for i, ref := range references {
			if err := pool.Submit(Job{Index: i, Reference: ref}); err != nil {
				rejected <- Result{
					Job:    Job{Index: i, Reference: ref},
					Report: aborted(ref, err),
					Err:    err,
				}
			}
		}
		close(rejected)
		pool.Stop()
	}()

	for result := range pool.Results() {
		results[result.Job.Index] = result
		if fn != nil {
			fn(result)
		}
	}
	for result := range rejected {
		results[result.Job.Index] = result
		if fn != nil {
			fn(result)
		}
	}
	return results
}
