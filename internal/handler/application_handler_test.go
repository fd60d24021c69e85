package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/internal/service"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

type applicationManagerMock struct {
	app          *models.Application
	progress     *dto.ApplicationProgress
	finalize     *dto.FinalizeResult
	err          error
	lastQuery    dto.ApplicationQuery
	lastAdvance  dto.AdvanceRequest
	lastStatus   dto.UpdateStatusRequest
	lastFinalize dto.FinalizeRequest
	lastRound    string
	lastAttended bool
	lastActor    service.Actor
	writes       int
}

func (m *applicationManagerMock) Get(ctx context.Context, id string) (*models.Application, error) {
	return m.app, m.err
}

func (m *applicationManagerMock) List(ctx context.Context, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error) {
	m.lastQuery = query
	if m.err != nil {
		return nil, nil, m.err
	}
	return []models.Application{*m.app}, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1}, nil
}

func (m *applicationManagerMock) Progress(ctx context.Context, id string) (*dto.ApplicationProgress, error) {
	return m.progress, m.err
}

func (m *applicationManagerMock) AssignToRound(ctx context.Context, actor service.Actor, id string, req dto.AdvanceRequest) (*models.Application, error) {
	m.writes++
	m.lastActor = actor
	m.lastAdvance = req
	return m.app, m.err
}

func (m *applicationManagerMock) MarkAttendance(ctx context.Context, actor service.Actor, id, roundID string, attended bool) (*models.Application, error) {
	m.writes++
	m.lastRound = roundID
	m.lastAttended = attended
	return m.app, m.err
}

func (m *applicationManagerMock) UpdateStatus(ctx context.Context, actor service.Actor, id string, req dto.UpdateStatusRequest) (*models.Application, error) {
	m.writes++
	m.lastStatus = req
	return m.app, m.err
}

func (m *applicationManagerMock) Finalize(ctx context.Context, actor service.Actor, id string, req dto.FinalizeRequest) (*dto.FinalizeResult, error) {
	m.writes++
	m.lastFinalize = req
	return m.finalize, m.err
}

func sampleApplication() *models.Application {
	round := "r2"
	seq := 2
	return &models.Application{
		ID:                   "a1",
		StudentID:            "stu-1",
		JobID:                "job-1",
		CurrentRoundID:       &round,
		CurrentRoundSequence: &seq,
		FinalStatus:          models.FinalStatusInProcess,
		Version:              3,
	}
}

func TestApplicationHandlerListPassesFilters(t *testing.T) {
	mockSvc := &applicationManagerMock{app: sampleApplication()}
	handler := NewApplicationHandler(mockSvc)

	c, w := newTestContext(t, http.MethodGet, "/jobs/job-1/applications?status=placed&roundId=r2&page=2&pageSize=10", "", adminClaims,
		gin.Param{Key: "jobId", Value: "job-1"})
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ApplicationQuery{JobID: "job-1", RoundID: "r2", FinalStatus: "placed", Page: 2, PageSize: 10}, mockSvc.lastQuery)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestApplicationHandlerGetRestrictsStudentsToOwnApplication(t *testing.T) {
	handler := NewApplicationHandler(&applicationManagerMock{app: sampleApplication()})

	c, w := newTestContext(t, http.MethodGet, "/applications/a1", "", studentClaims, gin.Param{Key: "id", Value: "a1"})
	handler.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)

	other := &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}
	c, w = newTestContext(t, http.MethodGet, "/applications/a1", "", other, gin.Param{Key: "id", Value: "a1"})
	handler.Get(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestApplicationHandlerProgress(t *testing.T) {
	progress := &dto.ApplicationProgress{ApplicationID: "a1", StudentID: "stu-1", Rounds: []dto.RoundProgressView{{RoundID: "r1", Sequence: 1}}}
	handler := NewApplicationHandler(&applicationManagerMock{progress: progress})

	c, w := newTestContext(t, http.MethodGet, "/applications/a1/progress", "", studentClaims, gin.Param{Key: "id", Value: "a1"})
	handler.Progress(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"roundId":"r1"`)
}

func TestApplicationHandlerAdvance(t *testing.T) {
	mockSvc := &applicationManagerMock{app: sampleApplication()}
	handler := NewApplicationHandler(mockSvc)

	c, w := newTestContext(t, http.MethodPost, "/applications/a1/advance", `{"nextRoundId":"r2","version":2}`, adminClaims, gin.Param{Key: "id", Value: "a1"})
	handler.Advance(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r2", mockSvc.lastAdvance.NextRoundID)
	require.NotNil(t, mockSvc.lastAdvance.Version)
	assert.Equal(t, int64(2), *mockSvc.lastAdvance.Version)
	assert.Equal(t, "admin-1", mockSvc.lastActor.UserID)
}

func TestApplicationHandlerAdvanceBackwardsIsConflict(t *testing.T) {
	handler := NewApplicationHandler(&applicationManagerMock{err: appErrors.Clone(appErrors.ErrInvalidTransition, "target round must come after the current round")})

	c, w := newTestContext(t, http.MethodPost, "/applications/a1/advance", `{"nextRoundId":"r1"}`, adminClaims, gin.Param{Key: "id", Value: "a1"})
	handler.Advance(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeEnvelope(t, w).Error.Code)
}

func TestApplicationHandlerUpdateStatusRejectsMalformedBody(t *testing.T) {
	mockSvc := &applicationManagerMock{}
	handler := NewApplicationHandler(mockSvc)

	c, w := newTestContext(t, http.MethodPut, "/applications/a1", `{"finalStatus":`, adminClaims, gin.Param{Key: "id", Value: "a1"})
	handler.UpdateStatus(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, mockSvc.writes)
}

func TestApplicationHandlerUpdateStatus(t *testing.T) {
	mockSvc := &applicationManagerMock{app: sampleApplication()}
	handler := NewApplicationHandler(mockSvc)

	c, w := newTestContext(t, http.MethodPut, "/applications/a1", `{"finalStatus":"rejected","notes":"no show"}`, adminClaims, gin.Param{Key: "id", Value: "a1"})
	handler.UpdateStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.FinalStatusRejected, mockSvc.lastStatus.FinalStatus)
	require.NotNil(t, mockSvc.lastStatus.Notes)
	assert.Equal(t, "no show", *mockSvc.lastStatus.Notes)
}

func TestApplicationHandlerFinalizeReportsIdempotency(t *testing.T) {
	app := sampleApplication()
	app.FinalStatus = models.FinalStatusPlaced
	mockSvc := &applicationManagerMock{finalize: &dto.FinalizeResult{Application: app, AlreadyFinalized: true}}
	handler := NewApplicationHandler(mockSvc)

	c, w := newTestContext(t, http.MethodPost, "/applications/a1/finalize", `{"outcome":"placed","roundId":"r2"}`, adminClaims, gin.Param{Key: "id", Value: "a1"})
	handler.Finalize(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r2", mockSvc.lastFinalize.RoundID)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["alreadyFinalized"])
	assert.Contains(t, string(env.Data), `"finalStatus":"placed"`)
}

func TestApplicationHandlerMarkAttendance(t *testing.T) {
	mockSvc := &applicationManagerMock{app: sampleApplication()}
	handler := NewApplicationHandler(mockSvc)

	c, w := newTestContext(t, http.MethodPut, "/applications/a1/rounds/r2/attendance", `{"attended":false}`, adminClaims,
		gin.Param{Key: "id", Value: "a1"}, gin.Param{Key: "roundId", Value: "r2"})
	handler.MarkAttendance(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r2", mockSvc.lastRound)
	assert.False(t, mockSvc.lastAttended)

	c, w = newTestContext(t, http.MethodPut, "/applications/a1/rounds/r2/attendance", `{}`, adminClaims,
		gin.Param{Key: "id", Value: "a1"}, gin.Param{Key: "roundId", Value: "r2"})
	handler.MarkAttendance(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, mockSvc.writes)
}
