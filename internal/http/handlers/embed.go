package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/http/response"
	"github.com/yungbote/ragdesk-backend/internal/ingestion"
)

const embedSuccessMessage = "Successfully downloaded documents and ran the ingestion pipeline."

// Ingester is the slice of ingestion.Service the webhook needs.
type Ingester interface {
	Ingest(ctx context.Context, req ingestion.Request) (*ingestion.Response, error)
}

type EmbedHandler struct {
	ingest           Ingester
	noMatchIsFailure bool
}

// NewEmbedHandler builds the ingestion webhook. When noMatchIsFailure is set a
// file name that matches no stored PDF answers 404 instead of 200.
func NewEmbedHandler(ingest Ingester, noMatchIsFailure bool) *EmbedHandler {
	return &EmbedHandler{ingest: ingest, noMatchIsFailure: noMatchIsFailure}
}

type embedReq struct {
	FileName string `json:"fileName"`
}

type embedResp struct {
	Message    string            `json:"message"`
	SourcePath string            `json:"source_path"`
	Outcome    ingestion.Outcome `json:"outcome"`
	RunID      string            `json:"run_id,omitempty"`
	Documents  int               `json:"documents"`
	Chunks     int               `json:"chunks"`
	Records    int               `json:"records"`
	Matched    []string          `json:"matched,omitempty"`
}

// POST /embed
func (h *EmbedHandler) Post(c *gin.Context) {
	var req embedReq
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.FileName) == "" {
		response.RespondMessage(c, http.StatusBadRequest, "invalid_request", "Message is required (or API should be renamed/repurposed)")
		return
	}

	resp, err := h.ingest.Ingest(c.Request.Context(), ingestion.Request{FileName: req.FileName})
	if err != nil {
		_ = c.Error(err)
		body := response.ErrorBody{
			Error:   "Ingestion pipeline execution failed.",
			Code:    "ingestion_failed",
			Details: err.Error(),
		}
		var ierr *domain.IngestionError
		if errors.As(err, &ierr) {
			body.Stage = string(ierr.Stage)
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}

	out := embedResp{
		Message:    embedSuccessMessage,
		SourcePath: resp.SourcePath,
		Outcome:    resp.Outcome,
		Matched:    resp.Matched,
	}
	if resp.RunID != uuid.Nil {
		out.RunID = resp.RunID.String()
	}
	if resp.Result != nil {
		out.Documents = resp.Result.DocumentsLoaded
		out.Chunks = resp.Result.ChunksProduced
		out.Records = resp.Result.RecordsWritten
	}
	if resp.Outcome == ingestion.OutcomeNoMatch {
		out.Message = "No stored PDF matches " + req.FileName + "."
		if h.noMatchIsFailure {
			c.JSON(http.StatusNotFound, out)
			return
		}
	}
	response.RespondOK(c, out)
}
