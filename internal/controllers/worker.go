package controllers

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/metrics"
	"github.com/amaumene/harvestarr/internal/models"
	"github.com/amaumene/harvestarr/internal/services/transport"
	"github.com/amaumene/harvestarr/internal/utils"
)

// WorkerController executes one durable job: a single transfer followed by
// one history record. It never retries; that is left to the job host.
type WorkerController struct {
	transporter transport.Transporter
	history     HistoryStore
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *logrus.Logger
}

// NewWorkerController creates a new worker controller
func NewWorkerController(transporter transport.Transporter, history HistoryStore, timeout time.Duration, m *metrics.Metrics, logger *logrus.Logger) *WorkerController {
	return &WorkerController{
		transporter: transporter,
		history:     history,
		timeout:     timeout,
		metrics:     m,
		logger:      logger,
	}
}

// Run performs the transfer described by desc. On any error no history
// record is written.
func (w *WorkerController) Run(ctx context.Context, desc models.JobDescriptor) error {
	if desc.MediaURL == "" || desc.FilePath == "" {
		return models.NewError(models.KindInvalidURL, "worker", fmt.Errorf("job needs a media URL and a file path"))
	}

	fileName := desc.FileName
	if fileName == "" {
		fileName = filepath.Base(desc.FilePath)
	}

	log := w.logger.WithFields(logrus.Fields{
		"url":  desc.MediaURL,
		"file": desc.FilePath,
	})
	log.Debug("Running transfer job")

	w.metrics.TransferStarted()
	written, err := fetchToFile(ctx, w.transporter, w.timeout, desc.MediaURL, desc.FilePath, nil)
	w.metrics.TransferFinished(string(desc.MediaKind), written, err)
	if err != nil {
		log.WithError(err).Warn("Transfer job failed")
		return err
	}

	quality := desc.QualityTier
	if quality == "" {
		quality = utils.QualityLabel(desc.MediaKind, "")
	}
	record := historyRecord(models.MediaItem{
		SourceURL:  desc.MediaURL,
		Kind:       desc.MediaKind,
		PostID:     desc.PostID,
		PostAuthor: desc.PostAuthor,
	}, quality, fileName, desc.FilePath, written)

	if err := w.history.Append(record); err != nil {
		return err
	}

	log.WithField("bytes", written).Info("Transfer job completed")
	return nil
}

// JobDescriptors builds one descriptor per item, with file names unique
// within the call. Files go to targetDir, or to the per-kind directory
// under saveLocation.
func JobDescriptors(items []models.MediaItem, tier models.QualityTier, targetDir, saveLocation string, at time.Time) []models.JobDescriptor {
	descs := make([]models.JobDescriptor, 0, len(items))
	for i, item := range items {
		name := utils.GenerateFileName(utils.FileNameParams{Item: item, Tier: tier, Index: i, At: at})
		dir := targetDir
		if dir == "" {
			dir = utils.KindDirectory(saveLocation, item.Kind)
		}

		descs = append(descs, models.JobDescriptor{
			MediaURL:    item.SourceURL,
			FilePath:    filepath.Join(dir, name),
			FileName:    name,
			MediaKind:   item.Kind,
			QualityTier: utils.QualityLabel(item.Kind, tier),
			PostID:      item.PostID,
			PostAuthor:  item.PostAuthor,
		})
	}
	return descs
}

// SelectItems keeps the items whose IDs are listed, in resolution order.
// No IDs selects everything.
func SelectItems(items []models.MediaItem, ids []string) []models.MediaItem {
	if len(ids) == 0 {
		return items
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var selected []models.MediaItem
	for _, item := range items {
		if wanted[item.ID] {
			selected = append(selected, item)
		}
	}
	return selected
}
