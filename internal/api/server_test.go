package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amaumene/harvestarr/internal/api/handlers"
	"github.com/amaumene/harvestarr/internal/api/middleware"
	"github.com/amaumene/harvestarr/internal/config"
	"github.com/amaumene/harvestarr/internal/controllers"
	"github.com/amaumene/harvestarr/internal/metrics"
	"github.com/amaumene/harvestarr/internal/models"
	"github.com/amaumene/harvestarr/internal/scheduler"
	"github.com/amaumene/harvestarr/internal/services/transport"
	"github.com/amaumene/harvestarr/internal/services/twitter"
	"github.com/amaumene/harvestarr/internal/utils"
)

const lookupBody = `{
  "id_str": "42",
  "full_text": "hello",
  "user": {"screen_name": "alice"},
  "extended_entities": {"media": [
    {"id_str": "1", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/a.jpg"},
    {"id_str": "2", "type": "video", "media_url_https": "https://pbs.twimg.com/t.jpg",
     "video_info": {"variants": [
       {"content_type": "video/mp4", "bitrate": 300000, "url": "https://video.twimg.com/300.mp4"},
       {"content_type": "video/mp4", "bitrate": 900000, "url": "https://video.twimg.com/900.mp4"}
     ]}}
  ]}
}`

type testEnv struct {
	server  *Server
	history *controllers.HistoryController
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := utils.NewDiscardLogger()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(lookupBody))
	}))
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		LookupBaseURL:          upstream.URL,
		DefaultQualityTier:     models.QualityHigh,
		MaxConcurrentTransfers: 2,
		SaveLocation:           filepath.Join(dir, "media"),
		TransferTimeout:        time.Second,
		HistoryMax:             100,
		JobMaxAttempts:         3,
		JobSweepSchedule:       "@every 1h",
		ServerPort:             "0",
	}

	db, err := models.NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	client, err := twitter.NewClient(cfg, logger)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	resolver := controllers.NewResolveController(client, cfg.DefaultQualityTier, 0, m, logger)
	history := controllers.NewHistoryController(db, cfg.HistoryMax, m, logger)
	worker := controllers.NewWorkerController(transport.NewHTTPTransporter(logger), history, cfg.TransferTimeout, m, logger)
	host := scheduler.NewJobHost(db, worker, cfg, m, logger)

	return &testEnv{
		server:  NewServer(cfg, resolver, history, host, m, logger),
		history: history,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("Expected a request ID header")
	}

	var body map[string]interface{}
	decode(t, rec, &body)
	if body["status"] != "healthy" {
		t.Errorf("Unexpected body %v", body)
	}

	if rec := env.do(t, http.MethodPost, "/health", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/resolve", `{"url": "https://x.com/alice/status/42", "quality": "low"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var items []models.MediaItem
	decode(t, rec, &items)
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[1].SourceURL != "https://video.twimg.com/300.mp4" {
		t.Errorf("Expected low variant, got %s", items[1].SourceURL)
	}
}

func TestResolveEndpointErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"invalid url", `{"url": "https://example.com/a/status/1"}`, http.StatusBadRequest, "invalid_url"},
		{"bad quality", `{"url": "https://x.com/a/status/1", "quality": "ultra"}`, http.StatusBadRequest, ""},
		{"bad json", `{`, http.StatusBadRequest, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/resolve", test.body)
			if rec.Code != test.status {
				t.Fatalf("Expected %d, got %d", test.status, rec.Code)
			}
			var body handlers.ErrorResponse
			decode(t, rec, &body)
			if body.Kind != test.kind {
				t.Errorf("Expected kind %q, got %q", test.kind, body.Kind)
			}
		})
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t)

	env.history.Append(&models.HistoryRecord{ID: "v", Kind: models.MediaKindVideo, PostAuthor: "alice", FileSize: 10, DownloadedAtMs: 1000})
	env.history.Append(&models.HistoryRecord{ID: "i", Kind: models.MediaKindImage, PostAuthor: "bob", FileSize: 5, DownloadedAtMs: 2000})

	var records []models.HistoryRecord
	rec := env.do(t, http.MethodGet, "/history", "")
	decode(t, rec, &records)
	if len(records) != 2 || records[0].ID != "i" {
		t.Fatalf("Unexpected history %+v", records)
	}

	rec = env.do(t, http.MethodGet, "/history?kind=video", "")
	decode(t, rec, &records)
	if len(records) != 1 || records[0].ID != "v" {
		t.Errorf("Unexpected filtered history %+v", records)
	}

	if rec := env.do(t, http.MethodGet, "/history?kind=audio", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown kind, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/history?since=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad since, got %d", rec.Code)
	}

	var status handlers.StatusResponse
	decode(t, env.do(t, http.MethodGet, "/status", ""), &status)
	if status.TotalDownloads != 2 || status.TotalBytes != 15 {
		t.Errorf("Unexpected status %+v", status)
	}

	if rec := env.do(t, http.MethodDelete, "/history/v", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if env.history.Count() != 1 {
		t.Errorf("Expected 1 record after delete, got %d", env.history.Count())
	}

	if rec := env.do(t, http.MethodDelete, "/history", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if env.history.Count() != 0 {
		t.Errorf("Expected empty history after clear, got %d", env.history.Count())
	}
}

func TestJobsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/jobs", `{"url": "https://twitter.com/alice/status/42", "items": ["42_1"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var created handlers.EnqueueResponse
	decode(t, rec, &created)
	if len(created.JobIDs) != 1 {
		t.Fatalf("Expected 1 job, got %v", created.JobIDs)
	}

	var jobs []models.Job
	decode(t, env.do(t, http.MethodGet, "/jobs", ""), &jobs)
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job listed, got %d", len(jobs))
	}
	job := jobs[0]
	if job.State != models.JobStateEnqueued || job.Descriptor.MediaURL != "https://video.twimg.com/900.mp4" {
		t.Errorf("Unexpected job %+v", job)
	}
	if filepath.Base(filepath.Dir(job.Descriptor.FilePath)) != "Videos" || !strings.HasSuffix(job.Descriptor.FileName, "_high.mp4") {
		t.Errorf("Unexpected target %s", job.Descriptor.FilePath)
	}

	var status handlers.StatusResponse
	decode(t, env.do(t, http.MethodGet, "/status", ""), &status)
	if status.Jobs[models.JobStateEnqueued] != 1 {
		t.Errorf("Expected 1 enqueued job, got %v", status.Jobs)
	}

	if rec := env.do(t, http.MethodPost, "/jobs", `{"url": "https://twitter.com/alice/status/42", "items": ["nope"]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown items, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/jobs", `{"url": "https://twitter.com/alice/status/42", "dir": "/etc/cron.d"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a dir outside the save location, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/resolve", `{"url": "https://x.com/alice/status/42"}`)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `harvestarr_resolutions_total{result="success"} 1`) {
		t.Errorf("Missing resolution counter in:\n%s", rec.Body.String())
	}
}
