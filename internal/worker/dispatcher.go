package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/ytget/yt-audio/internal/download"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/store"
)

// Pool size limits
const (
	DefaultWorkers = 5
	MinWorkers     = 1
	MaxWorkers     = 32
)

// ErrClosed is returned by Submit after Shutdown has been called.
var ErrClosed = errors.New("dispatcher is shut down")

// Uploader copies a finished audio file from dir to remote storage and
// returns its object key.
type Uploader interface {
	Upload(ctx context.Context, jobID, dir, filename string) (string, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for job lifecycle messages
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithUploader enables uploading of completed files
func WithUploader(u Uploader) Option {
	return func(d *Dispatcher) {
		d.uploader = u
	}
}

// Limiter caps how many jobs of one group run at the same time, on top of the
// dispatcher's own pool size.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a limiter admitting n concurrent jobs. n < 1 is treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// SubmitOption configures a single submission.
type SubmitOption func(*submission)

// WithLimiter makes the job wait for a slot in l before taking a pool slot
func WithLimiter(l *Limiter) SubmitOption {
	return func(s *submission) {
		s.limiter = l
	}
}

type submission struct {
	limiter *Limiter
}

// Dispatcher runs accepted jobs in the background with at most Workers()
// extractions executing at once. Excess jobs wait in FIFO order for a slot.
type Dispatcher struct {
	store      *store.Store
	downloader download.Downloader
	outputDir  string
	workers    int
	sem        *semaphore.Weighted
	logger     *slog.Logger
	uploader   Uploader

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	active atomic.Int64
}

// New creates a dispatcher writing job state to st. workers is clamped to
// [MinWorkers, MaxWorkers].
func New(st *store.Store, downloader download.Downloader, outputDir string, workers int, opts ...Option) *Dispatcher {
	workers = ClampWorkers(workers)

	d := &Dispatcher{
		store:      st,
		downloader: downloader,
		outputDir:  outputDir,
		workers:    workers,
		sem:        semaphore.NewWeighted(int64(workers)),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ClampWorkers keeps a pool size within the supported range
func ClampWorkers(n int) int {
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Closed reports whether Shutdown has been called.
func (d *Dispatcher) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Active returns the number of extractions currently executing.
func (d *Dispatcher) Active() int {
	return int(d.active.Load())
}

// Submit schedules job for background execution and returns immediately.
// The job must already exist in the store in queued state.
func (d *Dispatcher) Submit(job model.Job, opts ...SubmitOption) error {
	var sub submission
	for _, opt := range opts {
		opt(&sub)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		// Acquire never fails on a background context.
		ctx := context.Background()
		if sub.limiter != nil {
			_ = sub.limiter.sem.Acquire(ctx, 1)
			defer sub.limiter.sem.Release(1)
		}
		_ = d.sem.Acquire(ctx, 1)
		defer d.sem.Release(1)

		d.active.Add(1)
		defer d.active.Add(-1)

		d.run(job)
	}()
	return nil
}

// Wait blocks until every submitted job has reached a terminal state.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown stops accepting new jobs and waits for running and queued ones to
// finish or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for jobs: %w", ctx.Err())
	}
}

// run executes one job and always leaves it in a terminal state.
func (d *Dispatcher) run(job model.Job) {
	log := d.logger.With("job_id", job.ID, "url", job.URL)

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r)
			d.finish(log, job.ID, store.Mutation{
				Status: model.StatusFailed,
				Error:  fmt.Sprintf("%s%v", download.UnexpectedErrorPrefix, r),
			})
		}
	}()

	if _, err := d.store.Update(job.ID, store.Mutation{Status: model.StatusProcessing}); err != nil {
		log.Error("failed to start job", "error", err)
		return
	}
	log.Info("job started", "format", job.Format)

	req := download.Request{
		URL:       job.URL,
		OutputDir: d.outputDir,
		Format:    job.Format,
	}

	// Extraction is not cancellable once started.
	res, err := d.downloader.Extract(context.Background(), req, d.sink(log, job.ID))
	if err != nil {
		log.Warn("job failed", "error", err)
		d.finish(log, job.ID, store.Mutation{Status: model.StatusFailed, Error: err.Error()})
		return
	}

	mut := store.Mutation{
		Status:   model.StatusCompleted,
		Title:    res.Title,
		Filename: res.Filename,
	}
	if d.uploader != nil {
		key, upErr := d.uploader.Upload(context.Background(), job.ID, d.outputDir, res.Filename)
		if upErr != nil {
			log.Warn("upload failed", "filename", res.Filename, "error", upErr)
		} else {
			mut.ObjectKey = key
		}
	}

	log.Info("job completed", "title", res.Title, "filename", res.Filename)
	d.finish(log, job.ID, mut)
}

func (d *Dispatcher) finish(log *slog.Logger, id string, mut store.Mutation) {
	if _, err := d.store.Update(id, mut); err != nil {
		log.Error("failed to record job result", "status", mut.Status, "error", err)
	}
}

// sink mirrors adapter progress events into the store.
func (d *Dispatcher) sink(log *slog.Logger, id string) download.ProgressSink {
	return download.SinkFunc(func(p model.Progress) {
		progress := p
		mut := store.Mutation{
			Status:   StatusForPhase(p.Status),
			Progress: &progress,
		}
		if _, err := d.store.Update(id, mut); err != nil {
			log.Debug("progress update rejected", "phase", p.Status, "error", err)
		}
	})
}

// StatusForPhase maps an adapter phase to a job status. Phases without a
// matching status, such as complete, map to the empty status and only
// update the progress record.
func StatusForPhase(phase string) model.JobStatus {
	switch phase {
	case download.PhaseExtracting:
		return model.StatusExtracting
	case download.PhaseDownloading:
		return model.StatusDownloading
	case download.PhaseConverting:
		return model.StatusConverting
	default:
		return ""
	}
}
