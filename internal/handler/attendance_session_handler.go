package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/internal/service"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
	"github.com/noah-isme/placement-rounds-api/pkg/response"
)

type attendanceSessionManager interface {
	Start(ctx context.Context, actor service.Actor, roundID string, req dto.StartSessionRequest) (*models.AttendanceSession, error)
	Status(ctx context.Context, roundID string) (*models.AttendanceSession, error)
	Stop(ctx context.Context, actor service.Actor, roundID string) error
}

// AttendanceSessionHandler exposes the rotating code session of a round.
type AttendanceSessionHandler struct {
	sessions attendanceSessionManager
}

// NewAttendanceSessionHandler builds a new handler.
func NewAttendanceSessionHandler(sessions attendanceSessionManager) *AttendanceSessionHandler {
	return &AttendanceSessionHandler{sessions: sessions}
}

// Start godoc
// @Summary Start or restart the attendance session of a round
// @Tags AttendanceSessions
// @Accept json
// @Produce json
// @Param roundId path string true "Round ID"
// @Param payload body dto.StartSessionRequest true "Session configuration"
// @Success 200 {object} response.Envelope
// @Router /rounds/{roundId}/attendance-session/start [post]
func (h *AttendanceSessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.sessions.Start(c.Request.Context(), actorFromContext(c), c.Param("roundId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewSessionSnapshot(session, true), nil)
}

// Status godoc
// @Summary Current attendance session state, rotating the code when it expired
// @Description Codes are only returned to administrators.
// @Tags AttendanceSessions
// @Produce json
// @Param roundId path string true "Round ID"
// @Success 200 {object} response.Envelope
// @Router /rounds/{roundId}/attendance-session/status [get]
func (h *AttendanceSessionHandler) Status(c *gin.Context) {
	session, err := h.sessions.Status(c.Request.Context(), c.Param("roundId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewSessionSnapshot(session, isAdmin(c)), nil)
}

// Stop godoc
// @Summary Stop the attendance session of a round
// @Tags AttendanceSessions
// @Param roundId path string true "Round ID"
// @Success 204
// @Router /rounds/{roundId}/attendance-session/stop [post]
func (h *AttendanceSessionHandler) Stop(c *gin.Context) {
	if err := h.sessions.Stop(c.Request.Context(), actorFromContext(c), c.Param("roundId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
