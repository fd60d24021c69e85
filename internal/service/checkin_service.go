package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

type codeVerifier interface {
	CheckIn(ctx context.Context, roundID, submitted string) (models.CheckInMethod, error)
}

type attendanceMarker interface {
	ForStudent(ctx context.Context, studentID, jobID string) (*models.Application, error)
	MarkAttendance(ctx context.Context, actor Actor, id, roundID string, attended bool) (*models.Application, error)
}

// CheckInService records a student's own attendance after verifying the round's live code.
type CheckInService struct {
	rounds   roundCatalog
	sessions codeVerifier
	apps     attendanceMarker
	audit    *AuditService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewCheckInService constructs the service.
func NewCheckInService(rounds roundCatalog, sessions codeVerifier, apps attendanceMarker, audit *AuditService, metrics *MetricsService, logger *zap.Logger) *CheckInService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckInService{
		rounds:   rounds,
		sessions: sessions,
		apps:     apps,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CheckIn verifies code for roundID and marks the caller's attendance on that round.
// Eligibility is checked before the code so an ineligible student cannot burn the offline code.
func (s *CheckInService) CheckIn(ctx context.Context, actor Actor, roundID string, req dto.CheckInRequest) (*dto.CheckInResult, error) {
	if actor.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, s.fail("", mapRoundError(err))
	}
	app, err := s.apps.ForStudent(ctx, actor.UserID, round.JobID)
	if err != nil {
		return nil, s.fail("", err)
	}
	if app.RoundProgress.Find(roundID) < 0 {
		return nil, s.fail("", appErrors.Clone(appErrors.ErrRoundNotFound, "you are not assigned to this round"))
	}
	if app.State() != models.StateInRound || *app.CurrentRoundID != roundID {
		return nil, s.fail("", appErrors.Clone(appErrors.ErrInvalidTransition, "check-in is only open for the round you are currently in"))
	}

	method, err := s.sessions.CheckIn(ctx, roundID, req.Code)
	if err != nil {
		return nil, s.fail("", err)
	}

	if _, err := s.markWithRetry(ctx, actor, app.ID, roundID); err != nil {
		s.logger.Error("code accepted but attendance not recorded",
			zap.String("application_id", app.ID),
			zap.String("round_id", roundID),
			zap.String("method", string(method)),
			zap.Error(err))
		return nil, s.fail(method, err)
	}

	s.metrics.RecordCheckIn(string(method), "ok")
	s.audit.Record(ctx, actor, models.AuditActionStudentCheckIn, models.AuditResourceApplication, app.ID, nil, map[string]interface{}{
		"roundId": roundID,
		"method":  method,
	})
	return &dto.CheckInResult{
		RoundID:       roundID,
		ApplicationID: app.ID,
		Method:        method,
		Attendance:    true,
		CheckedInAt:   s.now(),
	}, nil
}

func (s *CheckInService) markWithRetry(ctx context.Context, actor Actor, applicationID, roundID string) (*models.Application, error) {
	app, err := s.apps.MarkAttendance(ctx, actor, applicationID, roundID, true)
	if appErrors.Is(err, appErrors.ErrConcurrentModification) {
		app, err = s.apps.MarkAttendance(ctx, actor, applicationID, roundID, true)
	}
	return app, err
}

func (s *CheckInService) fail(method models.CheckInMethod, err error) error {
	s.metrics.RecordCheckIn(string(method), appErrors.FromError(err).Code)
	return err
}

func mapRoundError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrRoundNotFound
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load round")
}
