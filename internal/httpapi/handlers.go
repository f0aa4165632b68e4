package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"genflow/internal/health"
	"genflow/internal/ledger"
	"genflow/internal/orchestrator"
	"genflow/internal/workflow"
)

const defaultHistoryLimit = 20

func (s *Server) handleHealth(c *gin.Context) {
	var components []health.ComponentHealth
	if s.deps.Health != nil {
		components = s.deps.Health.CheckAll(c.Request.Context())
	}
	status, code := "ok", http.StatusOK
	if !health.Healthy(components) {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:     status,
		Version:    s.deps.Version,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Components: components,
	})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	if s.deps.Runner == nil {
		fail(c, http.StatusServiceUnavailable, "codegen agent not configured")
		return
	}
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		fail(c, http.StatusBadRequest, "description is required")
		return
	}
	if req.MaxWaitSeconds < 0 {
		fail(c, http.StatusBadRequest, "max_wait_seconds must not be negative")
		return
	}

	opts := orchestrator.RunOptions{Wait: true, MaxWait: orchestrator.DefaultMaxWait}
	if req.Wait != nil {
		opts.Wait = *req.Wait
	}
	if req.MaxWaitSeconds > 0 {
		opts.MaxWait = time.Duration(req.MaxWaitSeconds * float64(time.Second))
	}

	ctx := c.Request.Context()
	handle := s.deps.Runner.RunTask(ctx, orchestrator.TaskRequest{Description: req.Description, Files: req.Files}, opts)

	var runID string
	if s.deps.History != nil {
		taskType := req.Type
		if taskType == "" {
			taskType = "api"
		}
		rec, err := s.deps.History.Record(ctx, ledger.FromHandle(taskType, req.Description, handle))
		if err != nil {
			s.logger.Warn("Recording run failed: %v", err)
		} else {
			runID = rec.RunID
		}
	}

	resp := APIResponse{Success: !handle.Failed(), Data: TaskResponse{RunID: runID, Task: handle}}
	if handle.Failed() {
		resp.Error = handle.Error
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.deps.History == nil {
		fail(c, http.StatusServiceUnavailable, "run history disabled")
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.deps.History.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []ledger.RunRecord{}
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.deps.History == nil {
		fail(c, http.StatusServiceUnavailable, "run history disabled")
		return
	}
	rec, err := s.deps.History.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ledger.ErrNotFound) {
		fail(c, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: rec})
}

func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		fail(c, http.StatusBadRequest, "query is required")
		return
	}
	minScore := workflow.DefaultMinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	report, err := s.deps.Workflows.SmartSearch(c.Request.Context(), req.Query, req.MaxResults, minScore)
	if err != nil {
		fail(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: report})
}

func (s *Server) handleSynthesize(c *gin.Context) {
	var req SynthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		fail(c, http.StatusBadRequest, "query is required")
		return
	}
	report, err := s.deps.Workflows.SynthesizeSources(c.Request.Context(), req.Query, req.NumSources)
	if err != nil {
		fail(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: report})
}

func (s *Server) handleResearch(c *gin.Context) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		fail(c, http.StatusBadRequest, "query is required")
		return
	}
	report, err := s.deps.Workflows.DeepResearch(c.Request.Context(), req.Query, req.Iterations, req.MaxTokens)
	if err != nil {
		fail(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: report})
}

func (s *Server) handleGraph(c *gin.Context) {
	view, err := s.deps.Workflows.KnowledgeGraph(c.Request.Context(), c.Param("collection"), c.Query("entity"))
	if err != nil {
		fail(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: view})
}

func fail(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{Success: false, Error: message})
}
