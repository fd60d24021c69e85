package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/internal/service"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
	"github.com/noah-isme/placement-rounds-api/pkg/export"
	"github.com/noah-isme/placement-rounds-api/pkg/response"
)

type roundReader interface {
	ListByJob(ctx context.Context, jobID string) ([]models.JobRound, error)
}

type rosterExporter interface {
	Export(ctx context.Context, roundID string, format export.Format) (*service.RosterDocument, error)
}

// RoundHandler serves catalog reads and round rosters.
type RoundHandler struct {
	rounds roundReader
	roster rosterExporter
}

// NewRoundHandler builds a new handler.
func NewRoundHandler(rounds roundReader, roster rosterExporter) *RoundHandler {
	return &RoundHandler{rounds: rounds, roster: roster}
}

// ListByJob godoc
// @Summary List the rounds of a job ordered by sequence
// @Tags Rounds
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{jobId}/rounds [get]
func (h *RoundHandler) ListByJob(c *gin.Context) {
	rounds, err := h.rounds.ListByJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rounds, nil)
}

// Roster godoc
// @Summary Export the roster of a round
// @Tags Rounds
// @Produce text/csv
// @Produce application/pdf
// @Param roundId path string true "Round ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /rounds/{roundId}/roster [get]
func (h *RoundHandler) Roster(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "format must be csv or pdf"))
		return
	}
	doc, err := h.roster.Export(c.Request.Context(), c.Param("roundId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.Filename, doc.ContentType, doc.Content)
}
