// Package pipeline runs stage jobs on a fixed pool of workers fed by a
// bounded queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/notesmith/internal/stage"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no room.
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned by Submit once Stop has been called.
	ErrStopped = errors.New("orchestrator stopped")
)

// Runner executes a single stage. *stage.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, st stage.Stage, docID string) (stage.Result, error)
}

// Config sizes the worker pool.
type Config struct {
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration
}

// Orchestrator manages queued stage jobs.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	runner Runner
	log    *slog.Logger
	cfg    Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards stopped and every send on queue.
	mu      sync.Mutex
	stopped bool
}

func NewOrchestrator(cfg Config, runner Runner, log *slog.Logger) *Orchestrator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 1
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		jobs:   NewJobStore(cfg.JobTTL),
		queue:  make(chan *Job, cfg.MaxQueueSize),
		runner: runner,
		log:    log,
		cfg:    cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop cancels running jobs and waits for the workers to exit. Jobs still
// queued are marked cancelled. Later calls do nothing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.mu.Unlock()
	o.wg.Wait()
	for job := range o.queue {
		job.SetStatus(StatusCancelled, "shutdown")
	}
}

// Submit queues stages to run, in order, against docID.
func (o *Orchestrator) Submit(docID string, stages ...stage.Stage) (*Job, error) {
	if len(stages) == 0 {
		return nil, errors.New("no stages to run")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return nil, ErrStopped
	}
	job := NewJob(docID, stages...)
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		o.log.Info("job queued", "job_id", job.ID, "doc_id", docID, "stages", stages)
		return job, nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return job, fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// Jobs lists job snapshots for docID, or every job when docID is empty.
func (o *Orchestrator) Jobs(docID string) []JobSnapshot {
	return o.jobs.List(docID)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// process runs the job's stages in order and stops at the first error.
func (o *Orchestrator) process(ctx context.Context, job *Job) {
	log := o.log.With("job_id", job.ID, "doc_id", job.DocID)
	start := time.Now()
	partial := false

	for _, st := range job.Stages {
		job.SetStatus(StatusRunning, string(st))
		res, err := o.runner.Run(ctx, st, job.DocID)
		job.AddResult(res)
		if err != nil {
			job.AddError(fmt.Sprintf("%s: %s", st, err))
			if ctx.Err() != nil {
				log.Warn("job cancelled", "stage", string(st))
				job.SetStatus(StatusCancelled, string(st))
				return
			}
			log.Error("stage failed", "stage", string(st), "error", err)
			job.SetStatus(StatusFailed, string(st))
			return
		}
		if len(res.Failures) > 0 {
			partial = true
		}
	}

	status := StatusCompleted
	if partial {
		status = StatusPartial
	}
	job.SetStatus(status, "done")
	log.Info("job finished", "status", string(status), "duration_ms", time.Since(start).Milliseconds())
}
