package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// TaskRequest is one task inside a job submission.
type TaskRequest struct {
	Action         string          `json:"action" binding:"required"`
	Parameters     json.RawMessage `json:"parameters"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	DependsOn      []string        `json:"depends_on"`
}

// SubmitJobRequest represents a job submission request
type SubmitJobRequest struct {
	Intent     string                 `json:"intent" binding:"required"`
	Tasks      map[string]TaskRequest `json:"tasks" binding:"required"`
	MaxRetries int                    `json:"max_retries"`
}

// SubmitJobResponse represents a job submission response
type SubmitJobResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// JobResponse is the query view of a job record.
type JobResponse struct {
	ID          string     `json:"id"`
	Intent      string     `json:"intent"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	TaskCount   int        `json:"task_count"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks": gin.H{
			"orchestrator": "ok",
		},
	})
}

// handleSubmitJob handles job submission
func (s *Server) handleSubmitJob(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	jobID, err := s.orchestrator.Submit(c.Request.Context(), req.Intent, specsFromRequest(req.Tasks), req.MaxRetries)
	if err != nil {
		s.logger.Error("failed to submit job", zap.Error(err))
		status := http.StatusUnprocessableEntity
		code := "SUBMISSION_FAILED"
		if errors.Is(err, domain.ErrInvalidDependency) || errors.Is(err, domain.ErrCycleDetected) || errors.Is(err, domain.ErrDuplicateTask) {
			status = http.StatusBadRequest
			code = "INVALID_GRAPH"
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    code,
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, SubmitJobResponse{
		ID:        jobID,
		Status:    string(domain.JobPending),
		CreatedAt: time.Now().UTC(),
	})
}

// handleListJobs handles listing jobs with status filter and pagination
func (s *Server) handleListJobs(c *gin.Context) {
	filter := ports.JobFilter{
		Status: domain.JobStatus(c.Query("status")),
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}

	if filter.Status != "" && !domain.IsValidJobStatus(filter.Status) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_STATUS",
				Message: "unknown job status: " + string(filter.Status),
			},
		})
		return
	}

	jobs, total, err := s.orchestrator.List(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "LIST_FAILED",
				Message: "Failed to list jobs",
				Details: err.Error(),
			},
		})
		return
	}

	responses := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = jobToResponse(job)
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   responses,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// handleGetJob handles getting job details
func (s *Server) handleGetJob(c *gin.Context) {
	jobID := c.Param("id")

	job, err := s.orchestrator.Get(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Job not found",
			},
		})
		return
	}

	resp := jobToResponse(job)
	c.JSON(http.StatusOK, gin.H{
		"id":           resp.ID,
		"intent":       resp.Intent,
		"status":       resp.Status,
		"retry_count":  resp.RetryCount,
		"max_retries":  resp.MaxRetries,
		"task_count":   resp.TaskCount,
		"created_at":   resp.CreatedAt,
		"started_at":   resp.StartedAt,
		"completed_at": resp.CompletedAt,
		"error":        resp.Error,
		"tasks":        job.Tasks,
	})
}

// handleGetResult handles getting the merged results of a done job
func (s *Server) handleGetResult(c *gin.Context) {
	jobID := c.Param("id")

	job, err := s.orchestrator.Get(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Job not found",
			},
		})
		return
	}

	if job.Status != domain.JobDone {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_COMPLETED",
				Message: "Job is not done",
				Details: gin.H{"status": job.Status},
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           job.ID,
		"status":       job.Status,
		"result":       job.MergedResults(),
		"completed_at": job.CompletedAt,
	})
}

// handleCancelJob handles job cancellation
func (s *Server) handleCancelJob(c *gin.Context) {
	jobID := c.Param("id")

	if err := s.orchestrator.Cancel(c.Request.Context(), jobID); err != nil {
		status := http.StatusConflict
		code := "CANCELLATION_FAILED"
		if errors.Is(err, domain.ErrJobNotFound) {
			status = http.StatusNotFound
			code = "NOT_FOUND"
		} else if errors.Is(err, domain.ErrJobTerminal) {
			code = "ALREADY_TERMINAL"
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    code,
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           jobID,
		"status":       string(domain.JobCancelled),
		"cancelled_at": time.Now().UTC(),
	})
}

// handleRetryJob handles manual retry of a failed job
func (s *Server) handleRetryJob(c *gin.Context) {
	jobID := c.Param("id")

	if err := s.orchestrator.Retry(c.Request.Context(), jobID); err != nil {
		status := http.StatusConflict
		code := "RETRY_FAILED"
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			status = http.StatusNotFound
			code = "NOT_FOUND"
		case errors.Is(err, domain.ErrRetriesExhausted):
			code = "RETRIES_EXHAUSTED"
		case errors.Is(err, domain.ErrJobNotFailed):
			code = "NOT_FAILED"
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    code,
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     jobID,
		"status": string(domain.JobPending),
	})
}

// handleListAgents handles listing registered agents
func (s *Server) handleListAgents(c *gin.Context) {
	agents, err := s.orchestrator.ListAgents(c.Request.Context(), c.Query("capability"))
	if err != nil {
		s.logger.Error("failed to list agents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "REGISTRY_ERROR",
				Message: "Failed to retrieve agents",
				Details: err.Error(),
			},
		})
		return
	}

	if agents == nil {
		agents = []ports.AgentInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"total":  len(agents),
	})
}

// specsFromRequest converts the submission's task map into graph specs. Map
// keys are sorted so the graph's insertion order, and with it topological
// tie-breaking, is stable across requests.
func specsFromRequest(tasks map[string]TaskRequest) []domain.TaskSpec {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	specs := make([]domain.TaskSpec, 0, len(tasks))
	for _, id := range ids {
		t := tasks[id]
		specs = append(specs, domain.TaskSpec{
			ID:         id,
			Action:     t.Action,
			Parameters: t.Parameters,
			Timeout:    time.Duration(t.TimeoutSeconds) * time.Second,
			DependsOn:  t.DependsOn,
		})
	}
	return specs
}

func jobToResponse(job *domain.Job) JobResponse {
	taskCount := 0
	if job.Graph != nil {
		taskCount = job.Graph.Len()
	}
	return JobResponse{
		ID:          job.ID,
		Intent:      job.Intent,
		Status:      string(job.Status),
		RetryCount:  job.RetryCount,
		MaxRetries:  job.MaxRetries,
		TaskCount:   taskCount,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
	}
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
