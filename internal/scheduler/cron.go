package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/config"
	"github.com/amaumene/harvestarr/internal/metrics"
	"github.com/amaumene/harvestarr/internal/models"
)

// Retry delays between job attempts
const (
	retryInitialInterval = 5 * time.Second
	retryMultiplier      = 2
	retryMaxInterval     = 10 * time.Minute
)

// JobRunner executes one job descriptor
type JobRunner interface {
	Run(ctx context.Context, desc models.JobDescriptor) error
}

// JobHost persists transfer jobs and runs them on a cron sweep, retrying
// retryable failures with exponential backoff
type JobHost struct {
	cron        *cron.Cron
	db          *models.Database
	runner      JobRunner
	schedule    string
	maxAttempts int
	concurrency int
	metrics     *metrics.Metrics
	logger      *logrus.Logger

	sweeping atomic.Bool
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewJobHost creates a new job host
func NewJobHost(db *models.Database, runner JobRunner, cfg *config.Config, m *metrics.Metrics, logger *logrus.Logger) *JobHost {
	return &JobHost{
		cron:        cron.New(),
		db:          db,
		runner:      runner,
		schedule:    cfg.JobSweepSchedule,
		maxAttempts: cfg.JobMaxAttempts,
		concurrency: config.ClampConcurrency(cfg.MaxConcurrentTransfers),
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// Enqueue persists a new job, due immediately
func (h *JobHost) Enqueue(desc models.JobDescriptor) (*models.Job, error) {
	if desc.MediaURL == "" || desc.FilePath == "" {
		return nil, models.NewError(models.KindInvalidURL, "enqueue", errors.New("job needs a media URL and a file path"))
	}

	job := &models.Job{
		ID:            uuid.NewString(),
		Descriptor:    desc,
		State:         models.JobStateEnqueued,
		NextAttemptAt: h.now(),
	}
	if err := h.db.CreateJob(job); err != nil {
		return nil, models.NewError(models.KindPersistence, "enqueue", fmt.Errorf("failed to create job: %w", err))
	}

	h.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"url":    desc.MediaURL,
		"file":   desc.FileName,
	}).Info("Job enqueued")

	return job, nil
}

// Start recovers interrupted jobs, registers the sweep and runs a first sweep
func (h *JobHost) Start() error {
	h.logger.Info("Starting job host")

	if err := h.recoverRunning(); err != nil {
		return err
	}

	_, err := h.cron.AddFunc(h.schedule, func() {
		h.Sweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	h.cron.Start()
	h.logger.WithField("schedule", h.schedule).Info("Job host started")

	// Run initial sweep immediately
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.Sweep(context.Background())
	}()

	return nil
}

// Stop stops the cron and waits for running sweeps until ctx is done.
// Jobs interrupted by an expired ctx are recovered on the next start.
func (h *JobHost) Stop(ctx context.Context) {
	h.logger.Info("Stopping job host")
	cronCtx := h.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("Job host stopped with jobs still running")
	}
}

// recoverRunning puts jobs left running by an interrupted process back in the queue
func (h *JobHost) recoverRunning() error {
	jobs, err := h.db.GetJobsByState(models.JobStateRunning)
	if err != nil {
		return fmt.Errorf("failed to get running jobs: %w", err)
	}

	for _, job := range jobs {
		job.State = models.JobStateEnqueued
		job.NextAttemptAt = h.now()
		if err := h.db.UpdateJob(job); err != nil {
			return fmt.Errorf("failed to recover job %s: %w", job.ID, err)
		}
	}

	if len(jobs) > 0 {
		h.logger.WithField("count", len(jobs)).Warn("Recovered interrupted jobs")
	}
	return nil
}

// Sweep runs every due job, at most concurrency at once. A sweep that
// starts while another is running returns immediately.
func (h *JobHost) Sweep(ctx context.Context) {
	if !h.sweeping.CompareAndSwap(false, true) {
		h.logger.Debug("Sweep already running, skipping")
		return
	}
	defer h.sweeping.Store(false)

	jobs, err := h.db.GetDueJobs(h.now())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get due jobs")
		return
	}

	if len(jobs) == 0 {
		h.logger.Debug("No due jobs")
		return
	}

	h.logger.WithField("count", len(jobs)).Info("Processing due jobs")

	sem := make(chan struct{}, h.concurrency)
	var wg sync.WaitGroup
	for _, job := range jobs {
		// A job is only marked running once it holds a slot
		sem <- struct{}{}
		job.State = models.JobStateRunning
		if err := h.db.UpdateJob(job); err != nil {
			<-sem
			h.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to mark job running")
			continue
		}

		wg.Add(1)
		go func(job *models.Job) {
			defer func() {
				<-sem
				wg.Done()
			}()
			h.runJob(ctx, job)
		}(job)
	}
	wg.Wait()

	h.logger.Info("Sweep completed")
}

// runJob hands one job to the runner and records the outcome
func (h *JobHost) runJob(ctx context.Context, job *models.Job) {
	log := h.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"attempt": job.Attempts + 1,
	})

	err := h.runner.Run(ctx, job.Descriptor)
	job.Attempts++
	now := h.now()

	var outcome string
	switch {
	case err == nil:
		job.State = models.JobStateSucceeded
		job.LastError = ""
		job.FinishedAt = &now
		outcome = "succeeded"
		log.Info("Job succeeded")

	case models.IsRetryable(err) && job.Attempts < h.maxAttempts:
		job.State = models.JobStateEnqueued
		job.LastError = err.Error()
		delay := RetryDelay(job.Attempts)
		job.NextAttemptAt = now.Add(delay)
		outcome = "retried"
		log.WithError(err).WithField("retry_in", delay).Warn("Job failed, will retry")

	default:
		job.State = models.JobStateFailed
		job.LastError = err.Error()
		job.FinishedAt = &now
		outcome = "failed"
		log.WithError(err).Error("Job failed permanently")
	}

	h.metrics.JobFinished(outcome)
	if err := h.db.UpdateJob(job); err != nil {
		log.WithError(err).Error("Failed to update job")
	}
}

// RetryDelay returns the wait before the next attempt after attempts failures
func RetryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.Multiplier = retryMultiplier
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// Jobs returns every job, oldest first
func (h *JobHost) Jobs() ([]*models.Job, error) {
	jobs, err := h.db.GetAllJobs()
	if err != nil {
		return nil, models.NewError(models.KindPersistence, "jobs", err)
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	return jobs, nil
}

// Counts returns the number of jobs per state
func (h *JobHost) Counts() map[models.JobState]int {
	counts := map[models.JobState]int{
		models.JobStateEnqueued:  0,
		models.JobStateRunning:   0,
		models.JobStateSucceeded: 0,
		models.JobStateFailed:    0,
	}

	jobs, err := h.db.GetAllJobs()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count jobs")
		return counts
	}
	for _, job := range jobs {
		counts[job.State]++
	}
	return counts
}
