package controllers

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/config"
	"github.com/amaumene/harvestarr/internal/metrics"
	"github.com/amaumene/harvestarr/internal/models"
	"github.com/amaumene/harvestarr/internal/services/transport"
	"github.com/amaumene/harvestarr/internal/utils"
)

// ProgressFunc receives task updates. It is called synchronously from the
// task goroutines and must be safe for concurrent use.
type ProgressFunc func(models.ProgressUpdate)

// BatchResult summarises a finished batch by item ID
type BatchResult struct {
	CompletedIDs []string
	FailedIDs    []string
	FirstError   error
}

// BatchError is returned when at least one task of a batch failed.
// Completed tasks keep their history records.
type BatchError struct {
	FailedIDs  []string
	Total      int
	FirstError error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d transfers failed (%v): %v", len(e.FailedIDs), e.Total, e.FailedIDs, e.FirstError)
}

func (e *BatchError) Unwrap() error {
	return e.FirstError
}

// TransferController runs batches of transfers under a shared concurrency budget
type TransferController struct {
	transporter  transport.Transporter
	history      HistoryStore
	saveLocation string
	timeout      time.Duration
	metrics      *metrics.Metrics
	logger       *logrus.Logger

	sem    chan struct{}
	active atomic.Int32

	mu    sync.Mutex
	tasks map[string]*models.TransferTask
	order []string
	// Closed by CancelAll; batches capture the channel current at their start
	cancelled chan struct{}

	now func() time.Time
}

// NewTransferController creates a new transfer controller. The concurrency
// budget comes from cfg.MaxConcurrentTransfers, clamped to the supported range.
func NewTransferController(
	transporter transport.Transporter,
	history HistoryStore,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *TransferController {
	return &TransferController{
		transporter:  transporter,
		history:      history,
		saveLocation: cfg.SaveLocation,
		timeout:      cfg.TransferTimeout,
		metrics:      m,
		logger:       logger,
		sem:          make(chan struct{}, config.ClampConcurrency(cfg.MaxConcurrentTransfers)),
		tasks:        make(map[string]*models.TransferTask),
		cancelled:    make(chan struct{}),
		now:          time.Now,
	}
}

// ActiveCount returns the number of tasks holding a concurrency slot
func (c *TransferController) ActiveCount() int {
	return int(c.active.Load())
}

// Tasks returns a snapshot of the tasks of running batches
func (c *TransferController) Tasks() []models.TransferTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.TransferTask, 0, len(c.order))
	for _, id := range c.order {
		if task, ok := c.tasks[id]; ok {
			out = append(out, *task)
		}
	}
	return out
}

// CancelAll stops admission for every running batch and drops their
// bookkeeping. Transfers already past admission are not aborted and may
// still complete and record history.
func (c *TransferController) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	close(c.cancelled)
	c.cancelled = make(chan struct{})
	dropped := len(c.tasks)
	c.tasks = make(map[string]*models.TransferTask)
	c.order = nil

	c.logger.WithField("tasks", dropped).Info("Cancelled running batches")
}

// RunBatch transfers items concurrently and waits for every task to finish.
// Files go to targetDir, or to the per-kind directory under the save location
// when targetDir is empty. The result is always returned; the error is a
// *BatchError when any task failed.
func (c *TransferController) RunBatch(
	ctx context.Context,
	items []models.MediaItem,
	tier models.QualityTier,
	targetDir string,
	onProgress ProgressFunc,
) (*BatchResult, error) {
	result := &BatchResult{CompletedIDs: []string{}, FailedIDs: []string{}}
	if len(items) == 0 {
		return result, nil
	}
	if onProgress == nil {
		onProgress = func(models.ProgressUpdate) {}
	}

	at := c.now()
	tasks := make([]*models.TransferTask, len(items))
	for i, item := range items {
		tasks[i] = &models.TransferTask{
			ID:        "task-" + uuid.NewString(),
			Item:      item,
			Tier:      tier,
			TargetDir: targetDir,
			FileName:  utils.GenerateFileName(utils.FileNameParams{Item: item, Tier: tier, Index: i, At: at}),
			Status:    models.TaskStatusPending,
		}
	}

	c.mu.Lock()
	cancelled := c.cancelled
	for _, task := range tasks {
		c.tasks[task.ID] = task
		c.order = append(c.order, task.ID)
	}
	c.mu.Unlock()
	defer c.forget(tasks)

	c.logger.WithFields(logrus.Fields{
		"items": len(items),
		"tier":  tier,
		"limit": cap(c.sem),
	}).Info("Starting transfer batch")

	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, task := range tasks {
		wg.Add(1)
		go func(task *models.TransferTask) {
			defer wg.Done()

			err := c.runTask(ctx, task, cancelled, onProgress)

			rmu.Lock()
			defer rmu.Unlock()
			if err != nil {
				result.FailedIDs = append(result.FailedIDs, task.Item.ID)
				if result.FirstError == nil {
					result.FirstError = fmt.Errorf("item %s: %w", task.Item.ID, err)
				}
				return
			}
			result.CompletedIDs = append(result.CompletedIDs, task.Item.ID)
		}(task)
	}
	wg.Wait()

	c.logger.WithFields(logrus.Fields{
		"completed": len(result.CompletedIDs),
		"failed":    len(result.FailedIDs),
	}).Info("Transfer batch finished")

	if len(result.FailedIDs) > 0 {
		return result, &BatchError{
			FailedIDs:  result.FailedIDs,
			Total:      len(items),
			FirstError: result.FirstError,
		}
	}
	return result, nil
}

// runTask admits one task and performs its transfer
func (c *TransferController) runTask(ctx context.Context, task *models.TransferTask, cancelled <-chan struct{}, onProgress ProgressFunc) error {
	select {
	case c.sem <- struct{}{}:
	case <-cancelled:
		return c.fail(task, onProgress, models.NewError(models.KindCancelled, "transfer", fmt.Errorf("batch cancelled")))
	case <-ctx.Done():
		return c.fail(task, onProgress, models.NewError(models.KindCancelled, "transfer", ctx.Err()))
	}
	defer func() { <-c.sem }()

	c.active.Add(1)
	c.metrics.TransferStarted()
	var written int64
	var err error
	defer func() {
		c.active.Add(-1)
		c.metrics.TransferFinished(string(task.Item.Kind), written, err)
	}()

	c.update(task, onProgress, models.TaskStatusActive, 0, nil)

	// Last cancellation point before bytes move
	select {
	case <-cancelled:
		err = models.NewError(models.KindCancelled, "transfer", fmt.Errorf("batch cancelled"))
		return c.fail(task, onProgress, err)
	default:
	}

	dir := task.TargetDir
	if dir == "" {
		dir = utils.KindDirectory(c.saveLocation, task.Item.Kind)
	}
	path := filepath.Join(dir, task.FileName)

	written, err = fetchToFile(ctx, c.transporter, c.timeout, task.Item.SourceURL, path, func(done, total int64) {
		c.update(task, onProgress, models.TaskStatusActive, percentOf(done, total), nil)
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"task_id": task.ID,
			"item_id": task.Item.ID,
			"url":     task.Item.SourceURL,
		}).Warn("Transfer failed")
		return c.fail(task, onProgress, err)
	}

	if err = c.history.Append(historyRecord(task.Item, utils.QualityLabel(task.Item.Kind, task.Tier), task.FileName, path, written)); err != nil {
		return c.fail(task, onProgress, err)
	}

	c.update(task, onProgress, models.TaskStatusCompleted, 100, nil)
	c.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"file":    path,
		"bytes":   written,
	}).Info("Transfer completed")
	return nil
}

func (c *TransferController) fail(task *models.TransferTask, onProgress ProgressFunc, err error) error {
	c.update(task, onProgress, models.TaskStatusFailed, -1, err)
	return err
}

// update applies a transition and notifies. Finished tasks never change and
// a negative percent keeps the current value.
func (c *TransferController) update(task *models.TransferTask, onProgress ProgressFunc, status models.TaskStatus, percent int, err error) {
	c.mu.Lock()
	if task.Status.IsFinished() {
		c.mu.Unlock()
		return
	}
	if task.Status == status && (percent < 0 || percent <= task.Percent) && err == nil {
		c.mu.Unlock()
		return
	}
	task.Status = status
	if percent >= 0 {
		task.Percent = percent
	}
	if err != nil {
		task.Error = err.Error()
	}
	update := models.ProgressUpdate{
		TaskID:   task.ID,
		ItemID:   task.Item.ID,
		FileName: task.FileName,
		Percent:  task.Percent,
		Status:   task.Status,
		Err:      err,
	}
	c.mu.Unlock()

	onProgress(update)
}

func (c *TransferController) forget(tasks []*models.TransferTask) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, task := range tasks {
		delete(c.tasks, task.ID)
	}
	order := c.order[:0]
	for _, id := range c.order {
		if _, ok := c.tasks[id]; ok {
			order = append(order, id)
		}
	}
	c.order = order
}

// fetchToFile streams url into path with one transport call bounded by timeout
func fetchToFile(ctx context.Context, tr transport.Transporter, timeout time.Duration, url, path string, onBytes func(done, total int64)) (int64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, size, err := tr.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	var r io.Reader = body
	if onBytes != nil && size > 0 {
		r = &progressReader{r: body, total: size, onBytes: onBytes}
	}
	return tr.WriteFile(path, r)
}

type progressReader struct {
	r       io.Reader
	done    int64
	total   int64
	onBytes func(done, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.onBytes(p.done, p.total)
	}
	return n, err
}

// percentOf keeps 100 for the completed transition
func percentOf(done, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(done * 100 / total)
	if pct > 99 {
		pct = 99
	}
	return pct
}

func historyRecord(item models.MediaItem, quality, fileName, path string, size int64) *models.HistoryRecord {
	return &models.HistoryRecord{
		ID:             uuid.NewString(),
		SourceURL:      item.SourceURL,
		Kind:           item.Kind,
		Quality:        quality,
		FileName:       fileName,
		FilePath:       path,
		FileSize:       size,
		PostID:         item.PostID,
		PostAuthor:     item.PostAuthor,
		DownloadedAtMs: time.Now().UnixMilli(),
	}
}
