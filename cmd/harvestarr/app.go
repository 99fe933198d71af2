package main

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/config"
	"github.com/amaumene/harvestarr/internal/controllers"
	"github.com/amaumene/harvestarr/internal/metrics"
	"github.com/amaumene/harvestarr/internal/models"
	"github.com/amaumene/harvestarr/internal/scheduler"
	"github.com/amaumene/harvestarr/internal/services/transport"
	"github.com/amaumene/harvestarr/internal/services/twitter"
	"github.com/amaumene/harvestarr/internal/utils"
)

// app holds the wired components shared by every command
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *models.Database
	metrics *metrics.Metrics

	resolver  *controllers.ResolveController
	history   *controllers.HistoryController
	transfers *controllers.TransferController
	worker    *controllers.WorkerController
	jobs      *scheduler.JobHost
}

// options override configuration for one invocation
type options struct {
	concurrency int
}

func newApp(opts options) (*app, error) {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.concurrency > 0 {
		cfg.MaxConcurrentTransfers = config.ClampConcurrency(opts.concurrency)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Debug("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 4. Initialize services
	m := metrics.New()
	client, err := twitter.NewClient(cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize lookup client: %w", err)
	}
	transporter := transport.NewHTTPTransporter(logger)

	// 5. Initialize controllers
	history := controllers.NewHistoryController(db, cfg.HistoryMax, m, logger)
	worker := controllers.NewWorkerController(transporter, history, cfg.TransferTimeout, m, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		metrics:   m,
		resolver:  controllers.NewResolveController(client, cfg.DefaultQualityTier, cfg.ResolveCacheTTL, m, logger),
		history:   history,
		transfers: controllers.NewTransferController(transporter, history, cfg, m, logger),
		worker:    worker,
		jobs:      scheduler.NewJobHost(db, worker, cfg, m, logger),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
