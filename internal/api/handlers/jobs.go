package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/controllers"
	"github.com/amaumene/harvestarr/internal/models"
)

// JobQueue persists and lists durable jobs
type JobQueue interface {
	Enqueue(desc models.JobDescriptor) (*models.Job, error)
	Jobs() ([]*models.Job, error)
}

// EnqueueRequest is the body of POST /jobs. Items selects media item IDs
// from the resolved post; empty means all of them. Dir is relative to the
// save location and may not leave it.
type EnqueueRequest struct {
	URL     string   `json:"url"`
	Quality string   `json:"quality"`
	Items   []string `json:"items"`
	Dir     string   `json:"dir"`
}

// EnqueueResponse lists the created jobs
type EnqueueResponse struct {
	JobIDs []string `json:"job_ids"`
	Error  string   `json:"error,omitempty"`
}

// JobsHandler handles durable job requests
type JobsHandler struct {
	resolver     Resolver
	queue        JobQueue
	saveLocation string
	defaultTier  models.QualityTier
	logger       *logrus.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(resolver Resolver, queue JobQueue, saveLocation string, defaultTier models.QualityTier, logger *logrus.Logger) *JobsHandler {
	return &JobsHandler{
		resolver:     resolver,
		queue:        queue,
		saveLocation: saveLocation,
		defaultTier:  defaultTier,
		logger:       logger,
	}
}

// ServeHTTP handles GET /jobs and POST /jobs
func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs, err := h.queue.Jobs()
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	case http.MethodPost:
		h.enqueue(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *JobsHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}

	tier, ok := parseTier(req.Quality)
	if !ok {
		badRequest(w, "quality must be one of low, medium, high")
		return
	}
	if tier == "" {
		tier = h.defaultTier
	}

	dir, ok := confineDir(h.saveLocation, req.Dir)
	if !ok {
		badRequest(w, "dir must be inside the save location")
		return
	}

	items, err := h.resolver.Resolve(r.Context(), req.URL, tier)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	selected := controllers.SelectItems(items, req.Items)
	if len(selected) == 0 {
		badRequest(w, "no media items to enqueue")
		return
	}

	// Jobs enqueued before a failure stay queued; the response carries their IDs
	response := EnqueueResponse{JobIDs: []string{}}
	for _, desc := range controllers.JobDescriptors(selected, tier, dir, h.saveLocation, time.Now()) {
		job, err := h.queue.Enqueue(desc)
		if err != nil {
			h.logger.WithError(err).WithField("enqueued", len(response.JobIDs)).Error("Enqueue stopped part-way")
			response.Error = err.Error()
			writeJSON(w, statusFor(err), response)
			return
		}
		response.JobIDs = append(response.JobIDs, job.ID)
	}

	h.logger.WithFields(logrus.Fields{
		"url":  req.URL,
		"jobs": len(response.JobIDs),
	}).Info("Jobs enqueued")

	writeJSON(w, http.StatusAccepted, response)
}

// confineDir resolves dir under root. Absolute paths are accepted only
// when they already lie under root.
func confineDir(root, dir string) (string, bool) {
	if dir == "" {
		return "", true
	}
	root = filepath.Clean(root)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return dir, true
}
