package controllers

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/metrics"
	"github.com/amaumene/harvestarr/internal/models"
)

// DefaultHistoryMax is the retention limit when none is configured
const DefaultHistoryMax = 100

// HistoryStore is the bounded log of completed transfers.
// Reads are fail-soft, writes return a persistence error.
type HistoryStore interface {
	Append(record *models.HistoryRecord) error
	List() []*models.HistoryRecord
	Filter(filter models.HistoryFilter) []*models.HistoryRecord
	Clear() error
	Delete(id string) error
	Count() int
	TotalBytes() int64
}

// HistoryController implements HistoryStore on the bolthold database
type HistoryController struct {
	db      *models.Database
	max     int
	metrics *metrics.Metrics
	logger  *logrus.Logger

	// Serialises appends so eviction sees a consistent history
	mu sync.Mutex
}

// NewHistoryController creates a new history controller
func NewHistoryController(db *models.Database, max int, m *metrics.Metrics, logger *logrus.Logger) *HistoryController {
	if max <= 0 {
		max = DefaultHistoryMax
	}
	return &HistoryController{
		db:      db,
		max:     max,
		metrics: m,
		logger:  logger,
	}
}

// Append inserts a record at the head of the history, dropping the oldest
// records beyond the retention limit. ID and timestamp are filled when empty.
func (c *HistoryController) Append(record *models.HistoryRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.DownloadedAtMs == 0 {
		record.DownloadedAtMs = time.Now().UnixMilli()
	}

	c.mu.Lock()
	evicted, err := c.db.AppendHistory(record, c.max)
	c.mu.Unlock()
	if err != nil {
		c.logger.WithError(err).WithField("record_id", record.ID).Error("Failed to append history record")
		return models.NewError(models.KindPersistence, "history.append", err)
	}

	c.metrics.HistoryEvicted(len(evicted))
	c.logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"file":      record.FileName,
		"evicted":   len(evicted),
	}).Debug("History record appended")

	return nil
}

// List returns all records, most recent first
func (c *HistoryController) List() []*models.HistoryRecord {
	return c.Filter(models.HistoryFilter{})
}

// Filter returns matching records, most recent first
func (c *HistoryController) Filter(filter models.HistoryFilter) []*models.HistoryRecord {
	records, err := c.db.GetHistory(filter)
	if err != nil {
		c.logger.WithError(err).Error("Failed to read history")
		return []*models.HistoryRecord{}
	}
	if records == nil {
		records = []*models.HistoryRecord{}
	}
	return records
}

// Clear deletes every record
func (c *HistoryController) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.ClearHistory(); err != nil {
		c.logger.WithError(err).Error("Failed to clear history")
		return models.NewError(models.KindPersistence, "history.clear", err)
	}
	c.logger.Info("History cleared")
	return nil
}

// Delete removes one record
func (c *HistoryController) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.DeleteHistory(id); err != nil {
		c.logger.WithError(err).WithField("record_id", id).Error("Failed to delete history record")
		return models.NewError(models.KindPersistence, "history.delete", fmt.Errorf("record %s: %w", id, err))
	}
	return nil
}

// Count returns the number of retained records
func (c *HistoryController) Count() int {
	return len(c.List())
}

// TotalBytes returns the summed size of retained records
func (c *HistoryController) TotalBytes() int64 {
	var total int64
	for _, r := range c.List() {
		total += r.FileSize
	}
	return total
}

// Statistics summarises the retained history
type Statistics struct {
	TotalDownloads int                      `json:"total_downloads"`
	TotalBytes     int64                    `json:"total_bytes"`
	ByKind         map[models.MediaKind]int `json:"by_kind"`
}

// Stats computes statistics from a single read
func (c *HistoryController) Stats() Statistics {
	records := c.List()
	stats := Statistics{
		TotalDownloads: len(records),
		ByKind:         make(map[models.MediaKind]int),
	}
	for _, r := range records {
		stats.TotalBytes += r.FileSize
		stats.ByKind[r.Kind]++
	}
	return stats
}
