package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/internal/repository"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

type attendanceSessionStore interface {
	Get(ctx context.Context, roundID string) (*models.AttendanceSession, error)
	Upsert(ctx context.Context, session *models.AttendanceSession) error
	CompareAndSwap(ctx context.Context, session *models.AttendanceSession) error
	ConsumeOfflineCode(ctx context.Context, roundID, code string, usedAt time.Time) (bool, error)
}

type roundCatalog interface {
	GetByID(ctx context.Context, id string) (*models.JobRound, error)
	ListByJob(ctx context.Context, jobID string) ([]models.JobRound, error)
}

// CodeGenerator returns a random code of the requested length.
type CodeGenerator func(length int) (string, error)

// AttendanceSessionConfig bounds session parameters.
type AttendanceSessionConfig struct {
	MinRefreshSeconds int
	MaxRefreshSeconds int
	CodeLength        int
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// maxSessionWriteAttempts caps CAS retries against concurrent pollers.
const maxSessionWriteAttempts = 3

// AttendanceSessionService owns the rotating code lifecycle of rounds.
type AttendanceSessionService struct {
	store    attendanceSessionStore
	rounds   roundCatalog
	audit    *AuditService
	metrics  *MetricsService
	logger   *zap.Logger
	config   AttendanceSessionConfig
	now      func() time.Time
	generate CodeGenerator
}

// AttendanceSessionOption configures the service.
type AttendanceSessionOption func(*AttendanceSessionService)

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) AttendanceSessionOption {
	return func(s *AttendanceSessionService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeGenerator overrides the code generator.
func WithCodeGenerator(gen CodeGenerator) AttendanceSessionOption {
	return func(s *AttendanceSessionService) {
		if gen != nil {
			s.generate = gen
		}
	}
}

// WithSessionAudit attaches the audit writer.
func WithSessionAudit(audit *AuditService) AttendanceSessionOption {
	return func(s *AttendanceSessionService) {
		s.audit = audit
	}
}

// WithSessionMetrics attaches metrics.
func WithSessionMetrics(metrics *MetricsService) AttendanceSessionOption {
	return func(s *AttendanceSessionService) {
		s.metrics = metrics
	}
}

// NewAttendanceSessionService constructs the session manager.
func NewAttendanceSessionService(store attendanceSessionStore, rounds roundCatalog, cfg AttendanceSessionConfig, logger *zap.Logger, opts ...AttendanceSessionOption) *AttendanceSessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinRefreshSeconds <= 0 {
		cfg.MinRefreshSeconds = 30
	}
	if cfg.MaxRefreshSeconds < cfg.MinRefreshSeconds {
		cfg.MaxRefreshSeconds = cfg.MinRefreshSeconds
	}
	if cfg.CodeLength < 4 {
		cfg.CodeLength = 6
	}
	svc := &AttendanceSessionService{
		store:    store,
		rounds:   rounds,
		logger:   logger,
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
		generate: RandomCode,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// RandomCode draws an uppercase code from an unambiguous alphabet using crypto/rand.
func RandomCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims and upper-cases a submitted code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Start creates or overwrites the session of a round with fresh codes.
func (s *AttendanceSessionService) Start(ctx context.Context, actor Actor, roundID string, req dto.StartSessionRequest) (*models.AttendanceSession, error) {
	if req.RefreshIntervalSeconds < s.config.MinRefreshSeconds || req.RefreshIntervalSeconds > s.config.MaxRefreshSeconds {
		return nil, appErrors.Clone(appErrors.ErrInvalidConfig,
			fmt.Sprintf("refreshIntervalSeconds must be between %d and %d", s.config.MinRefreshSeconds, s.config.MaxRefreshSeconds))
	}
	if _, err := s.loadRound(ctx, roundID); err != nil {
		return nil, err
	}

	now := s.now()
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(time.Duration(req.RefreshIntervalSeconds) * time.Second)
	session := &models.AttendanceSession{
		RoundID:                roundID,
		Status:                 models.SessionStatusActive,
		CurrentCode:            &code,
		CodeIssuedAt:           &now,
		ExpiresAt:              &expiresAt,
		RefreshIntervalSeconds: req.RefreshIntervalSeconds,
		OfflineCodeEnabled:     req.EnableOfflineCode,
	}
	if actor.UserID != "" {
		startedBy := actor.UserID
		session.StartedBy = &startedBy
	}
	if req.EnableOfflineCode {
		offline, err := s.newCode(code)
		if err != nil {
			return nil, err
		}
		session.OfflineCode = &offline
	}

	if err := s.store.Upsert(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start attendance session")
	}

	s.logger.Info("attendance session started",
		zap.String("round_id", roundID),
		zap.Int("refresh_interval_seconds", req.RefreshIntervalSeconds),
		zap.Bool("offline_code", req.EnableOfflineCode),
		zap.String("actor", actor.UserID))
	s.audit.Record(ctx, actor, models.AuditActionSessionStart, models.AuditResourceAttendanceSession, roundID, nil, map[string]interface{}{
		"refreshIntervalSeconds": req.RefreshIntervalSeconds,
		"enableOfflineCode":      req.EnableOfflineCode,
	})
	return session, nil
}

// Status returns the session, rotating the current code in place when its window has elapsed.
// A round without a session reports an inactive one.
func (s *AttendanceSessionService) Status(ctx context.Context, roundID string) (*models.AttendanceSession, error) {
	for attempt := 0; attempt < maxSessionWriteAttempts; attempt++ {
		session, err := s.load(ctx, roundID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if !session.Active() || !session.Expired(now) {
			return session, nil
		}

		rotated, err := s.rotate(session, now)
		if err != nil {
			return nil, err
		}
		err = s.store.CompareAndSwap(ctx, rotated)
		if err == nil {
			s.metrics.RecordCodeRotation()
			s.logger.Debug("attendance code rotated", zap.String("round_id", roundID), zap.Timep("expires_at", rotated.ExpiresAt))
			return rotated, nil
		}
		if !errors.Is(err, repository.ErrStaleVersion) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate attendance code")
		}
		s.metrics.RecordConflict("attendance_session")
	}
	// Another poller keeps winning; whatever is stored now is current.
	return s.load(ctx, roundID)
}

// Stop deactivates the session and clears its codes. Stopping an inactive or missing session is a no-op.
func (s *AttendanceSessionService) Stop(ctx context.Context, actor Actor, roundID string) error {
	for attempt := 0; attempt < maxSessionWriteAttempts; attempt++ {
		session, err := s.store.Get(ctx, roundID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance session")
		}
		if !session.Active() {
			return nil
		}
		session.Status = models.SessionStatusInactive
		session.CurrentCode = nil
		session.OfflineCode = nil
		session.ExpiresAt = nil
		err = s.store.CompareAndSwap(ctx, session)
		if err == nil {
			s.logger.Info("attendance session stopped", zap.String("round_id", roundID), zap.String("actor", actor.UserID))
			s.audit.Record(ctx, actor, models.AuditActionSessionStop, models.AuditResourceAttendanceSession, roundID, nil, nil)
			return nil
		}
		if !errors.Is(err, repository.ErrStaleVersion) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stop attendance session")
		}
		s.metrics.RecordConflict("attendance_session")
	}
	return appErrors.Clone(appErrors.ErrConcurrentModification, "attendance session changed while stopping, retry")
}

// CheckIn verifies a submitted code against the round's session and reports which credential matched.
// A matching offline code is consumed with a compare-and-set so only one caller can use it.
func (s *AttendanceSessionService) CheckIn(ctx context.Context, roundID, submitted string) (models.CheckInMethod, error) {
	session, err := s.load(ctx, roundID)
	if err != nil {
		return "", err
	}
	if !session.Active() {
		return "", appErrors.ErrSessionInactive
	}
	now := s.now()
	if session.Expired(now) {
		return "", appErrors.ErrCodeExpired
	}

	code := NormalizeCode(submitted)
	if code == "" {
		return "", appErrors.ErrInvalidCode
	}
	if session.CurrentCode != nil && code == *session.CurrentCode {
		return models.CheckInMethodOnline, nil
	}
	if session.OfflineCodeEnabled && session.OfflineCode != nil && code == *session.OfflineCode {
		if session.OfflineCodeConsumed() {
			return "", appErrors.ErrCodeAlreadyUsed
		}
		won, err := s.store.ConsumeOfflineCode(ctx, roundID, code, now)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume offline code")
		}
		if !won {
			return "", appErrors.ErrCodeAlreadyUsed
		}
		s.logger.Info("offline attendance code consumed", zap.String("round_id", roundID))
		return models.CheckInMethodOffline, nil
	}
	return "", appErrors.ErrInvalidCode
}

func (s *AttendanceSessionService) rotate(session *models.AttendanceSession, now time.Time) (*models.AttendanceSession, error) {
	next := *session
	exclude := []string{}
	if session.CurrentCode != nil {
		exclude = append(exclude, *session.CurrentCode)
	}
	if session.OfflineCode != nil {
		exclude = append(exclude, *session.OfflineCode)
	}
	code, err := s.newCode(exclude...)
	if err != nil {
		return nil, err
	}
	issuedAt := now
	expiresAt := now.Add(time.Duration(session.RefreshIntervalSeconds) * time.Second)
	next.CurrentCode = &code
	next.CodeIssuedAt = &issuedAt
	next.ExpiresAt = &expiresAt

	if session.OfflineCodeEnabled && (session.OfflineCode == nil || session.OfflineCodeConsumed()) {
		offline, err := s.newCode(append(exclude, code)...)
		if err != nil {
			return nil, err
		}
		next.OfflineCode = &offline
		next.OfflineCodeUsedAt = nil
	}
	return &next, nil
}

func (s *AttendanceSessionService) newCode(exclude ...string) (string, error) {
	for i := 0; i < 8; i++ {
		code, err := s.generate(s.config.CodeLength)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate attendance code")
		}
		code = NormalizeCode(code)
		if !containsString(exclude, code) {
			return code, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "could not generate a distinct attendance code")
}

func (s *AttendanceSessionService) load(ctx context.Context, roundID string) (*models.AttendanceSession, error) {
	session, err := s.store.Get(ctx, roundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := s.loadRound(ctx, roundID); err != nil {
				return nil, err
			}
			return &models.AttendanceSession{RoundID: roundID, Status: models.SessionStatusInactive}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance session")
	}
	return session, nil
}

func (s *AttendanceSessionService) loadRound(ctx context.Context, roundID string) (*models.JobRound, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, mapRoundError(err)
	}
	return round, nil
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
