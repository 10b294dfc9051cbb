package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	runmodel "github.com/yungbote/ragdesk-backend/internal/domain/ingestion"
	"github.com/yungbote/ragdesk-backend/internal/http/response"
	"github.com/yungbote/ragdesk-backend/internal/platform/apierr"
)

type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*runmodel.IngestionRun, error)
	RecentRuns(ctx context.Context, limit int) ([]*runmodel.IngestionRun, error)
}

type RunHandler struct {
	runs RunReader
}

func NewRunHandler(runs RunReader) *RunHandler {
	return &RunHandler{runs: runs}
}

// GET /runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, apierr.Opaque(http.StatusInternalServerError, "load_run_failed", "Could not load the ingestion run.", err))
		return
	}
	if run == nil {
		response.RespondMessage(c, http.StatusNotFound, "run_not_found", "run not found")
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// GET /runs?limit=20
func (h *RunHandler) List(c *gin.Context) {
	limit := 20
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.runs.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		response.RespondAPIError(c, apierr.Opaque(http.StatusInternalServerError, "list_runs_failed", "Could not list ingestion runs.", err))
		return
	}
	if runs == nil {
		runs = []*runmodel.IngestionRun{}
	}
	response.RespondOK(c, gin.H{"runs": runs})
}
