package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/controllers"
	"github.com/amaumene/harvestarr/internal/models"
)

// HistoryHandler serves the download history
type HistoryHandler struct {
	history controllers.HistoryStore
	logger  *logrus.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history controllers.HistoryStore, logger *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// ServeHTTP handles GET /history (list with kind, author and since filters)
// and DELETE /history (clear)
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := parseFilter(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, h.history.Filter(filter))

	case http.MethodDelete:
		if err := h.history.Clear(); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w)
	}
}

// ServeRecord handles DELETE /history/{id}
func (h *HistoryHandler) ServeRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/history/")
	if id == "" || strings.Contains(id, "/") {
		badRequest(w, "record id is required")
		return
	}

	if err := h.history.Delete(id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseFilter(r *http.Request) (models.HistoryFilter, error) {
	q := r.URL.Query()
	filter := models.HistoryFilter{
		Kind:   models.MediaKind(q.Get("kind")),
		Author: q.Get("author"),
	}

	if filter.Kind != "" && !filter.Kind.Valid() {
		return filter, filterError("kind must be one of image, video, animated_image")
	}
	if since := q.Get("since"); since != "" {
		ms, err := strconv.ParseInt(since, 10, 64)
		if err != nil || ms < 0 {
			return filter, filterError("since must be a unix timestamp in milliseconds")
		}
		filter.SinceMs = ms
	}
	return filter, nil
}
