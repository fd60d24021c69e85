package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/service"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
	"github.com/noah-isme/placement-rounds-api/pkg/identifiers"
	"github.com/noah-isme/placement-rounds-api/pkg/response"
)

type bulkAdvancer interface {
	BulkAdvance(ctx context.Context, actor service.Actor, jobID, fromRoundID, toRoundID string, ids dto.StudentIdentifiers) (*dto.BulkAdvanceResult, error)
}

// BulkAdvanceHandler moves many students between rounds in one request.
type BulkAdvanceHandler struct {
	coordinator bulkAdvancer
}

// NewBulkAdvanceHandler builds a new handler.
func NewBulkAdvanceHandler(coordinator bulkAdvancer) *BulkAdvanceHandler {
	return &BulkAdvanceHandler{coordinator: coordinator}
}

// BulkAdvance godoc
// @Summary Advance students of a job from one round to a later one
// @Description Per-student failures are reported in the result; the request only fails as a whole for an invalid round pair.
// @Tags Applications
// @Accept json
// @Produce json
// @Param jobId path string true "Job ID"
// @Param payload body dto.BulkAdvanceRequest true "Rounds and student identifiers"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{jobId}/bulk-advance [post]
func (h *BulkAdvanceHandler) BulkAdvance(c *gin.Context) {
	var req dto.BulkAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk advance payload"))
		return
	}
	parsed := identifiers.Parse(req.Emails, req.RollNos)
	ids := dto.StudentIdentifiers{Emails: parsed.Emails, RollNos: parsed.RollNos}

	// the router shares the :id segment with single-application routes
	jobID := c.Param("id")
	result, err := h.coordinator.BulkAdvance(c.Request.Context(), actorFromContext(c), jobID, req.FromRoundID, req.ToRoundID, ids)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
