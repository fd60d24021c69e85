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

type applicationManager interface {
	Get(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error)
	Progress(ctx context.Context, id string) (*dto.ApplicationProgress, error)
	AssignToRound(ctx context.Context, actor service.Actor, id string, req dto.AdvanceRequest) (*models.Application, error)
	MarkAttendance(ctx context.Context, actor service.Actor, id, roundID string, attended bool) (*models.Application, error)
	UpdateStatus(ctx context.Context, actor service.Actor, id string, req dto.UpdateStatusRequest) (*models.Application, error)
	Finalize(ctx context.Context, actor service.Actor, id string, req dto.FinalizeRequest) (*dto.FinalizeResult, error)
}

// ApplicationHandler exposes application transitions and projections.
type ApplicationHandler struct {
	applications applicationManager
}

// NewApplicationHandler builds a new handler.
func NewApplicationHandler(applications applicationManager) *ApplicationHandler {
	return &ApplicationHandler{applications: applications}
}

// List godoc
// @Summary List applications of a job
// @Tags Applications
// @Produce json
// @Param jobId path string true "Job ID"
// @Param status query string false "Final status filter (in_process, placed, rejected)"
// @Param roundId query string false "Only applications with a progress entry for this round"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /jobs/{jobId}/applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	query := dto.ApplicationQuery{
		JobID:       c.Param("jobId"),
		RoundID:     c.Query("roundId"),
		FinalStatus: c.Query("status"),
		Page:        queryInt(c, "page"),
		PageSize:    queryInt(c, "pageSize"),
	}
	items, pagination, err := h.applications.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.applications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canRead(c, app.StudentID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Progress godoc
// @Summary Round history of an application ordered by sequence
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/progress [get]
func (h *ApplicationHandler) Progress(c *gin.Context) {
	progress, err := h.applications.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canRead(c, progress.StudentID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// UpdateStatus godoc
// @Summary Update the final status and notes of an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [put]
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	app, err := h.applications.UpdateStatus(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Advance godoc
// @Summary Assign an application to a later round
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.AdvanceRequest true "Target round"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/advance [post]
func (h *ApplicationHandler) Advance(c *gin.Context) {
	var req dto.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid advance payload"))
		return
	}
	app, err := h.applications.AssignToRound(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Finalize godoc
// @Summary Close an application as placed or rejected
// @Description Repeating the same outcome is a no-op reported through meta.alreadyFinalized.
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.FinalizeRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/finalize [post]
func (h *ApplicationHandler) Finalize(c *gin.Context) {
	var req dto.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid finalize payload"))
		return
	}
	result, err := h.applications.Finalize(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Application, nil, map[string]interface{}{
		"alreadyFinalized": result.AlreadyFinalized,
	})
}

// MarkAttendance godoc
// @Summary Override attendance of an application for a round
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param roundId path string true "Round ID"
// @Param payload body dto.MarkAttendanceRequest true "Attendance flag"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/rounds/{roundId}/attendance [put]
func (h *ApplicationHandler) MarkAttendance(c *gin.Context) {
	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Attended == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "attended is required"))
		return
	}
	app, err := h.applications.MarkAttendance(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("roundId"), *req.Attended)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// canRead allows admins everything and students only their own application.
func canRead(c *gin.Context, studentID string) bool {
	claims := claimsFromContext(c)
	if claims == nil {
		return false
	}
	return claims.Role.IsAdmin() || claims.UserID == studentID
}
