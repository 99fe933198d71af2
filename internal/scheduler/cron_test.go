package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/harvestarr/internal/config"
	"github.com/amaumene/harvestarr/internal/models"
	"github.com/amaumene/harvestarr/internal/utils"
)

type stubRunner struct {
	mu    sync.Mutex
	errs  []error // returned in order, nil once exhausted
	calls int
}

func (r *stubRunner) Run(ctx context.Context, desc models.JobDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) == 0 {
		return nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

func newTestHost(t *testing.T, runner JobRunner, maxAttempts int) (*JobHost, *models.Database) {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		JobSweepSchedule:       "@every 1h",
		JobMaxAttempts:         maxAttempts,
		MaxConcurrentTransfers: 2,
	}
	return NewJobHost(db, runner, cfg, nil, utils.NewDiscardLogger()), db
}

func descriptor() models.JobDescriptor {
	return models.JobDescriptor{
		MediaURL:    "https://video.twimg.com/900.mp4",
		FilePath:    "/tmp/alice_42_1_0_high.mp4",
		FileName:    "alice_42_1_0_high.mp4",
		MediaKind:   models.MediaKindVideo,
		QualityTier: "high",
	}
}

func transportErr() error {
	return models.NewStatusError(models.KindTransport, "fetch", 503, errors.New("unavailable"))
}

func TestEnqueueAndSweep(t *testing.T) {
	runner := &stubRunner{}
	host, db := newTestHost(t, runner, 3)

	job, err := host.Enqueue(descriptor())
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if job.State != models.JobStateEnqueued {
		t.Errorf("Expected enqueued, got %s", job.State)
	}

	host.Sweep(context.Background())

	got, err := db.GetJobByID(job.ID)
	if err != nil {
		t.Fatalf("GetJobByID() error = %v", err)
	}
	if got.State != models.JobStateSucceeded || got.Attempts != 1 || got.FinishedAt == nil {
		t.Errorf("Unexpected job after sweep: %+v", got)
	}
	if runner.calls != 1 {
		t.Errorf("Expected 1 run, got %d", runner.calls)
	}

	// Finished jobs are not picked up again
	host.Sweep(context.Background())
	if runner.calls != 1 {
		t.Errorf("Expected no further runs, got %d", runner.calls)
	}
}

func TestSweepRetriesWithBackoff(t *testing.T) {
	runner := &stubRunner{errs: []error{transportErr()}}
	host, db := newTestHost(t, runner, 3)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	host.now = func() time.Time { return now }

	job, _ := host.Enqueue(descriptor())
	host.Sweep(context.Background())

	got, _ := db.GetJobByID(job.ID)
	if got.State != models.JobStateEnqueued {
		t.Fatalf("Expected job back in queue, got %s", got.State)
	}
	if got.Attempts != 1 || got.LastError == "" {
		t.Errorf("Expected one recorded failure, got %+v", got)
	}
	if !got.NextAttemptAt.Equal(now.Add(5 * time.Second)) {
		t.Errorf("Expected next attempt at +5s, got %v", got.NextAttemptAt.Sub(now))
	}

	// Not due yet
	host.Sweep(context.Background())
	if runner.calls != 1 {
		t.Errorf("Job ran before its backoff elapsed")
	}

	now = now.Add(time.Minute)
	host.Sweep(context.Background())
	got, _ = db.GetJobByID(job.ID)
	if got.State != models.JobStateSucceeded || got.Attempts != 2 {
		t.Errorf("Expected success on second attempt, got %+v", got)
	}
}

func TestSweepStopsAtMaxAttempts(t *testing.T) {
	runner := &stubRunner{errs: []error{transportErr(), transportErr()}}
	host, db := newTestHost(t, runner, 2)

	now := time.Now()
	host.now = func() time.Time { return now }

	job, _ := host.Enqueue(descriptor())
	host.Sweep(context.Background())
	now = now.Add(time.Hour)
	host.Sweep(context.Background())

	got, _ := db.GetJobByID(job.ID)
	if got.State != models.JobStateFailed || got.Attempts != 2 {
		t.Errorf("Expected failed after 2 attempts, got %+v", got)
	}
}

func TestSweepDoesNotRetryPermanentErrors(t *testing.T) {
	runner := &stubRunner{errs: []error{models.NewError(models.KindPersistence, "history.append", errors.New("disk full"))}}
	host, db := newTestHost(t, runner, 5)

	job, _ := host.Enqueue(descriptor())
	host.Sweep(context.Background())

	got, _ := db.GetJobByID(job.ID)
	if got.State != models.JobStateFailed || got.Attempts != 1 {
		t.Errorf("Expected immediate failure, got %+v", got)
	}
}

func TestStartRecoversRunningJobs(t *testing.T) {
	runner := &stubRunner{}
	host, db := newTestHost(t, runner, 3)

	job, _ := host.Enqueue(descriptor())
	job.State = models.JobStateRunning
	if err := db.UpdateJob(job); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	if err := host.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	host.Stop(ctx)

	got, _ := db.GetJobByID(job.ID)
	if got.State != models.JobStateSucceeded {
		t.Errorf("Expected recovered job to run, got %s", got.State)
	}
}

func TestEnqueueRejectsIncompleteDescriptor(t *testing.T) {
	host, _ := newTestHost(t, &stubRunner{}, 3)

	if _, err := host.Enqueue(models.JobDescriptor{MediaURL: "https://video.twimg.com/a.mp4"}); !errors.Is(err, models.ErrInvalidURL) {
		t.Errorf("Expected invalid descriptor error, got %v", err)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{7, 320 * time.Second},
		{8, 10 * time.Minute},
		{20, 10 * time.Minute},
	}

	for _, test := range tests {
		if got := RetryDelay(test.attempts); got != test.expected {
			t.Errorf("RetryDelay(%d) = %v, expected %v", test.attempts, got, test.expected)
		}
	}
}

func TestCounts(t *testing.T) {
	host, _ := newTestHost(t, &stubRunner{errs: []error{models.NewError(models.KindInvalidURL, "worker", errors.New("bad"))}}, 3)

	host.Enqueue(descriptor())
	host.Enqueue(descriptor())
	host.Sweep(context.Background())

	counts := host.Counts()
	if counts[models.JobStateSucceeded]+counts[models.JobStateFailed] != 2 || counts[models.JobStateFailed] != 1 {
		t.Errorf("Unexpected counts %v", counts)
	}
	if _, ok := counts[models.JobStateRunning]; !ok {
		t.Error("Expected every state to be present")
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, desc models.JobDescriptor) error {
	r.started <- struct{}{}
	<-r.release
	return nil
}

func TestSweepMarksRunningOnlyWithinConcurrency(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 5), release: make(chan struct{})}
	host, _ := newTestHost(t, runner, 3)

	for i := 0; i < 5; i++ {
		if _, err := host.Enqueue(descriptor()); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		host.Sweep(context.Background())
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-runner.started:
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for jobs to start")
		}
	}
	// Give the sweep loop time to reach the next job
	time.Sleep(50 * time.Millisecond)

	if running := host.Counts()[models.JobStateRunning]; running != 2 {
		t.Errorf("Expected 2 running jobs with concurrency 2, got %d", running)
	}

	close(runner.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sweep did not finish")
	}

	if succeeded := host.Counts()[models.JobStateSucceeded]; succeeded != 5 {
		t.Errorf("Expected 5 succeeded jobs, got %d", succeeded)
	}
}
