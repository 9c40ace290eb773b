package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/internal/application/orchestrator"
	queuememory "github.com/JonasDEMA/agentify-os/pkg/adapters/queue/memory"
	registrymemory "github.com/JonasDEMA/agentify-os/pkg/adapters/registry/memory"
	storagememory "github.com/JonasDEMA/agentify-os/pkg/adapters/storage/memory"
	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

type nopMetrics struct{}

func (nopMetrics) RecordJobSubmitted(string)                         {}
func (nopMetrics) RecordJobCompleted(string, time.Duration)          {}
func (nopMetrics) RecordTaskDispatched(string)                       {}
func (nopMetrics) RecordTaskCompleted(string, string, time.Duration) {}
func (nopMetrics) RecordMessageDropped(string)                       {}
func (nopMetrics) SetQueueDepth(int)                                 {}
func (nopMetrics) RecordWorkerPoolStatus(int, int, int)              {}

func newTestServer(t *testing.T) (*Server, *storagememory.JobStore, *registrymemory.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	store := storagememory.NewJobStore()
	queue := queuememory.NewJobQueue(store, 32)
	registry := registrymemory.NewRegistry(time.Minute)

	manager := orchestrator.NewManager(
		store, queue, registry,
		orchestrator.NewValidator(),
		orchestrator.NewTracker(),
		nopMetrics{},
		logger,
	)

	return NewServer(&Config{Port: 0, Orchestrator: manager, Logger: logger}), store, registry
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestSubmitJob(t *testing.T) {
	s, store, _ := newTestServer(t)

	body := `{
		"intent": "scrape-site",
		"max_retries": 2,
		"tasks": {
			"open": {"action": "navigate", "parameters": {"url": "https://example.com"}},
			"scrape": {"action": "extract", "depends_on": ["open"], "timeout_seconds": 30}
		}
	}`
	w := doRequest(s, http.MethodPost, "/api/v1/jobs", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp SubmitJobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "pending" || resp.ID == "" {
		t.Errorf("resp = %+v", resp)
	}

	job, err := store.Get(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("stored job: %v", err)
	}
	if job.Graph.Len() != 2 || job.MaxRetries != 2 {
		t.Errorf("stored job = %+v", job)
	}
	spec, ok := job.Graph.Task("scrape")
	if !ok || spec.Timeout != 30*time.Second {
		t.Errorf("scrape spec = %+v", spec)
	}
}

func TestSubmitJobRejectsCycle(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := `{
		"intent": "cyclic",
		"tasks": {
			"a": {"action": "work", "depends_on": ["b"]},
			"b": {"action": "work", "depends_on": ["a"]}
		}
	}`
	w := doRequest(s, http.MethodPost, "/api/v1/jobs", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body: %s)", w.Code, w.Body.String())
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != "INVALID_GRAPH" {
		t.Errorf("error code = %s", resp.Error.Code)
	}
}

func TestSubmitJobRejectsMissingIntent(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/v1/jobs", `{"tasks": {"a": {"action": "work"}}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetJob(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/v1/jobs", `{"intent": "x", "tasks": {"a": {"action": "work"}}}`)
	var created SubmitJobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/jobs/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["status"] != "pending" || got["task_count"] != float64(1) {
		t.Errorf("got %v", got)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/jobs/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", w.Code)
	}
}

func TestListJobsFilter(t *testing.T) {
	s, store, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		doRequest(s, http.MethodPost, "/api/v1/jobs", `{"intent": "x", "tasks": {"a": {"action": "work"}}}`)
	}

	jobs, _, err := store.List(context.Background(), ports.JobFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	jobs[0].Status = domain.JobDone
	if err := store.Save(context.Background(), jobs[0]); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w := doRequest(s, http.MethodGet, "/api/v1/jobs?status=done", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Jobs  []JobResponse `json:"jobs"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 1 || len(resp.Jobs) != 1 || resp.Jobs[0].Status != "done" {
		t.Errorf("resp = %+v", resp)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/jobs?status=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d, want 400", w.Code)
	}
}

func TestCancelAndRetryEndpoints(t *testing.T) {
	s, store, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/v1/jobs", `{"intent": "x", "max_retries": 1, "tasks": {"a": {"action": "work"}}}`)
	var created SubmitJobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = doRequest(s, http.MethodPost, "/api/v1/jobs/"+created.ID+"/cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body = %s", w.Code, w.Body.String())
	}

	// Terminal now: second cancel conflicts, retry reports not-failed.
	w = doRequest(s, http.MethodPost, "/api/v1/jobs/"+created.ID+"/cancel", "")
	if w.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", w.Code)
	}
	w = doRequest(s, http.MethodPost, "/api/v1/jobs/"+created.ID+"/retry", "")
	if w.Code != http.StatusConflict {
		t.Errorf("retry of cancelled status = %d, want 409", w.Code)
	}

	// Exhausted failed job reports RETRIES_EXHAUSTED.
	job, err := store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	job.Status = domain.JobFailed
	job.RetryCount = job.MaxRetries
	if err := store.Save(context.Background(), job); err != nil {
		t.Fatalf("Save: %v", err)
	}
	w = doRequest(s, http.MethodPost, "/api/v1/jobs/"+created.ID+"/retry", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("retry exhausted status = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != "RETRIES_EXHAUSTED" {
		t.Errorf("error code = %s", resp.Error.Code)
	}
}

func TestGetResult(t *testing.T) {
	s, store, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/v1/jobs", `{"intent": "x", "tasks": {"a": {"action": "work"}}}`)
	var created SubmitJobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/jobs/"+created.ID+"/result", "")
	if w.Code != http.StatusConflict {
		t.Errorf("result of pending job status = %d, want 409", w.Code)
	}

	job, err := store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	job.Status = domain.JobDone
	job.Tasks["a"].Status = domain.TaskDone
	job.Tasks["a"].Result = []byte(`{"answer":42}`)
	if err := store.Save(context.Background(), job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/jobs/"+created.ID+"/result", "")
	if w.Code != http.StatusOK {
		t.Fatalf("result status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"answer":42`) {
		t.Errorf("result body = %s", w.Body.String())
	}
}

func TestListAgents(t *testing.T) {
	s, _, registry := newTestServer(t)

	if err := registry.Register(context.Background(), ports.AgentInfo{
		ID:           "agent-1",
		Capabilities: []string{"navigate"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	w := doRequest(s, http.MethodGet, "/api/v1/agents?capability=navigate", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"agent-1"`) {
		t.Errorf("body = %s", w.Body.String())
	}

	w = doRequest(s, http.MethodGet, "/api/v1/agents?capability=unknown", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"total":0`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("body = %s", w.Body.String())
	}
}
