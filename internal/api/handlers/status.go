package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/controllers"
	"github.com/amaumene/harvestarr/internal/models"
)

// StatsSource provides history statistics
type StatsSource interface {
	Stats() controllers.Statistics
}

// JobCounter provides durable job counts per state
type JobCounter interface {
	Counts() map[models.JobState]int
}

// StatusHandler handles status requests
type StatusHandler struct {
	history StatsSource
	jobs    JobCounter
	logger  *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(history StatsSource, jobs JobCounter, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		history: history,
		jobs:    jobs,
		logger:  logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalDownloads int                      `json:"total_downloads"`
	TotalBytes     int64                    `json:"total_bytes"`
	ByKind         map[models.MediaKind]int `json:"by_kind"`
	Jobs           map[models.JobState]int  `json:"jobs"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	stats := h.history.Stats()
	response := StatusResponse{
		TotalDownloads: stats.TotalDownloads,
		TotalBytes:     stats.TotalBytes,
		ByKind:         stats.ByKind,
		Jobs:           map[models.JobState]int{},
	}
	if h.jobs != nil {
		response.Jobs = h.jobs.Counts()
	}

	writeJSON(w, http.StatusOK, response)
}
