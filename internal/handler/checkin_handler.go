package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/service"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
	"github.com/noah-isme/placement-rounds-api/pkg/response"
)

type checkInRecorder interface {
	CheckIn(ctx context.Context, actor service.Actor, roundID string, req dto.CheckInRequest) (*dto.CheckInResult, error)
}

// CheckInHandler lets students record attendance with a session code.
type CheckInHandler struct {
	checkIns checkInRecorder
}

// NewCheckInHandler builds a new handler.
func NewCheckInHandler(checkIns checkInRecorder) *CheckInHandler {
	return &CheckInHandler{checkIns: checkIns}
}

// CheckIn godoc
// @Summary Check in to a round with the current or offline code
// @Tags AttendanceSessions
// @Accept json
// @Produce json
// @Param roundId path string true "Round ID"
// @Param payload body dto.CheckInRequest true "Attendance code"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /rounds/{roundId}/attendance-checkin [post]
func (h *CheckInHandler) CheckIn(c *gin.Context) {
	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-in payload"))
		return
	}
	result, err := h.checkIns.CheckIn(c.Request.Context(), actorFromContext(c), c.Param("roundId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
