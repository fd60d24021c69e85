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

type checkInRecorderMock struct {
	result    *dto.CheckInResult
	err       error
	called    bool
	lastActor service.Actor
	lastCode  string
}

func (m *checkInRecorderMock) CheckIn(ctx context.Context, actor service.Actor, roundID string, req dto.CheckInRequest) (*dto.CheckInResult, error) {
	m.called = true
	m.lastActor = actor
	m.lastCode = req.Code
	return m.result, m.err
}

func TestCheckInHandlerSuccess(t *testing.T) {
	mockSvc := &checkInRecorderMock{result: &dto.CheckInResult{RoundID: "r1", ApplicationID: "a1", Method: models.CheckInMethodOffline, Attendance: true}}
	handler := NewCheckInHandler(mockSvc)

	c, w := newTestContext(t, http.MethodPost, "/rounds/r1/attendance-checkin", `{"code":"xyz789"}`, studentClaims, gin.Param{Key: "roundId", Value: "r1"})
	handler.CheckIn(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", mockSvc.lastActor.UserID)
	assert.Equal(t, "xyz789", mockSvc.lastCode)
	assert.Contains(t, w.Body.String(), `"method":"offline"`)
}

func TestCheckInHandlerMissingCode(t *testing.T) {
	mockSvc := &checkInRecorderMock{}
	handler := NewCheckInHandler(mockSvc)

	c, w := newTestContext(t, http.MethodPost, "/rounds/r1/attendance-checkin", `{"code":`, studentClaims, gin.Param{Key: "roundId", Value: "r1"})
	handler.CheckIn(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.called)
}

func TestCheckInHandlerMapsDomainErrors(t *testing.T) {
	cases := map[*appErrors.Error]int{
		appErrors.ErrCodeAlreadyUsed: http.StatusConflict,
		appErrors.ErrCodeExpired:     http.StatusGone,
		appErrors.ErrInvalidCode:     http.StatusUnprocessableEntity,
		appErrors.ErrSessionInactive: http.StatusConflict,
	}
	for domainErr, status := range cases {
		handler := NewCheckInHandler(&checkInRecorderMock{err: domainErr})
		c, w := newTestContext(t, http.MethodPost, "/rounds/r1/attendance-checkin", `{"code":"ABC234"}`, studentClaims, gin.Param{Key: "roundId", Value: "r1"})
		handler.CheckIn(c)

		assert.Equal(t, status, w.Code, domainErr.Code)
		assert.Equal(t, domainErr.Code, decodeEnvelope(t, w).Error.Code)
	}
}
