package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/models"
)

// Resolver resolves a post URL into media items
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, tier models.QualityTier) ([]models.MediaItem, error)
}

// ResolveRequest is the body of POST /resolve
type ResolveRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

// ResolveHandler handles resolution requests
type ResolveHandler struct {
	resolver Resolver
	logger   *logrus.Logger
}

// NewResolveHandler creates a new resolve handler
func NewResolveHandler(resolver Resolver, logger *logrus.Logger) *ResolveHandler {
	return &ResolveHandler{resolver: resolver, logger: logger}
}

// ServeHTTP handles the resolve endpoint
func (h *ResolveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to decode resolve request")
		badRequest(w, "invalid payload")
		return
	}

	tier, ok := parseTier(req.Quality)
	if !ok {
		badRequest(w, "quality must be one of low, medium, high")
		return
	}

	items, err := h.resolver.Resolve(r.Context(), req.URL, tier)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// parseTier accepts an empty value as the resolver default
func parseTier(s string) (models.QualityTier, bool) {
	if s == "" {
		return "", true
	}
	return models.ParseQualityTier(s)
}
