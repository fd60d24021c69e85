package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

const (
	reasonStudentNotFound = "student not found or not eligible for this job"
	reasonNotInRound      = "not in expected round"
	reasonNoAttendance    = "attendance not marked for source round"
)

type studentDirectory interface {
	ResolveStudents(ctx context.Context, jobID string, emails, rollNos []string) ([]models.StudentRef, error)
}

type roundAssigner interface {
	Load(ctx context.Context, id string) (*models.Application, error)
	AssignToRound(ctx context.Context, actor Actor, id string, req dto.AdvanceRequest) (*models.Application, error)
}

// BulkAdvanceConfig tunes the coordinator.
type BulkAdvanceConfig struct {
	RequireAttendance bool
	Concurrency       int
}

// BulkAdvanceService advances many students between two rounds of a job, tolerating per-student failures.
type BulkAdvanceService struct {
	rounds    roundCatalog
	directory studentDirectory
	apps      roundAssigner
	audit     *AuditService
	metrics   *MetricsService
	logger    *zap.Logger
	config    BulkAdvanceConfig
}

// NewBulkAdvanceService constructs the coordinator.
func NewBulkAdvanceService(rounds roundCatalog, directory studentDirectory, apps roundAssigner, audit *AuditService, metrics *MetricsService, cfg BulkAdvanceConfig, logger *zap.Logger) *BulkAdvanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &BulkAdvanceService{
		rounds:    rounds,
		directory: directory,
		apps:      apps,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
	}
}

type bulkTarget struct {
	identifier    string
	applicationID string
}

type bulkOutcome struct {
	failure *dto.BulkFailure
	warning *dto.BulkWarning
}

// BulkAdvance moves the identified students of jobID from fromRoundID to toRoundID.
// An invalid round pair rejects the whole call before anything is written; every other
// problem is reported per student.
func (s *BulkAdvanceService) BulkAdvance(ctx context.Context, actor Actor, jobID, fromRoundID, toRoundID string, ids dto.StudentIdentifiers) (*dto.BulkAdvanceResult, error) {
	started := time.Now()
	if jobID == "" || fromRoundID == "" || toRoundID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "jobId, fromRoundId and toRoundId are required")
	}
	if ids.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one email or roll number is required")
	}

	from, err := s.jobRound(ctx, jobID, fromRoundID)
	if err != nil {
		return nil, err
	}
	to, err := s.jobRound(ctx, jobID, toRoundID)
	if err != nil {
		return nil, err
	}
	if to.Sequence <= from.Sequence {
		return nil, appErrors.Clone(appErrors.ErrInvalidRoundPair,
			fmt.Sprintf("target round sequence %d must be greater than source round sequence %d", to.Sequence, from.Sequence))
	}

	refs, err := s.directory.ResolveStudents(ctx, jobID, ids.Emails, ids.RollNos)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
	}

	targets, unmatched := matchIdentifiers(ids, refs)
	result := &dto.BulkAdvanceResult{Failures: []dto.BulkFailure{}}
	for _, identifier := range unmatched {
		result.Failures = append(result.Failures, dto.BulkFailure{Identifier: identifier, Reason: reasonStudentNotFound})
	}

	outcomes := make([]bulkOutcome, len(targets))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.Concurrency)
	for i := range targets {
		i := i
		group.Go(func() error {
			outcomes[i] = s.advanceOne(groupCtx, actor, targets[i], from, to)
			return nil
		})
	}
	_ = group.Wait()

	for _, outcome := range outcomes {
		if outcome.failure != nil {
			result.Failures = append(result.Failures, *outcome.failure)
			continue
		}
		result.SuccessCount++
		if outcome.warning != nil {
			result.Warnings = append(result.Warnings, *outcome.warning)
		}
	}
	result.FailureCount = len(result.Failures)

	s.metrics.ObserveBulkAdvance(result.SuccessCount, result.FailureCount, time.Since(started))
	s.logger.Info("bulk advance completed",
		zap.String("job_id", jobID),
		zap.String("from_round_id", fromRoundID),
		zap.String("to_round_id", toRoundID),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailureCount),
		zap.Int("warnings", len(result.Warnings)),
		zap.String("actor", actor.UserID))
	s.audit.Record(ctx, actor, models.AuditActionBulkAdvance, models.AuditResourceJob, jobID, nil, map[string]interface{}{
		"fromRoundId":  fromRoundID,
		"toRoundId":    toRoundID,
		"successCount": result.SuccessCount,
		"failureCount": result.FailureCount,
	})
	return result, nil
}

func (s *BulkAdvanceService) advanceOne(ctx context.Context, actor Actor, target bulkTarget, from, to *models.JobRound) bulkOutcome {
	var warning *dto.BulkWarning
	for attempt := 0; attempt < 2; attempt++ {
		app, err := s.apps.Load(ctx, target.applicationID)
		if err != nil {
			return failed(target, err)
		}
		if app.CurrentRoundID == nil || *app.CurrentRoundID != from.ID {
			return bulkOutcome{failure: &dto.BulkFailure{Identifier: target.identifier, Reason: reasonNotInRound}}
		}
		idx := app.RoundProgress.Find(from.ID)
		if idx < 0 || !app.RoundProgress[idx].Attendance {
			if s.config.RequireAttendance {
				return bulkOutcome{failure: &dto.BulkFailure{Identifier: target.identifier, Reason: reasonNoAttendance}}
			}
			warning = &dto.BulkWarning{Identifier: target.identifier, Message: reasonNoAttendance}
		}

		version := app.Version
		_, err = s.apps.AssignToRound(ctx, actor, app.ID, dto.AdvanceRequest{NextRoundID: to.ID, Version: &version})
		if err == nil {
			return bulkOutcome{warning: warning}
		}
		if attempt == 0 && appErrors.Is(err, appErrors.ErrConcurrentModification) {
			s.logger.Debug("retrying bulk advance after concurrent modification", zap.String("application_id", app.ID))
			continue
		}
		return failed(target, err)
	}
	return bulkOutcome{failure: &dto.BulkFailure{Identifier: target.identifier, Reason: appErrors.ErrConcurrentModification.Message}}
}

func (s *BulkAdvanceService) jobRound(ctx context.Context, jobID, roundID string) (*models.JobRound, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRoundNotFound, fmt.Sprintf("round %s not found", roundID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load round")
	}
	if round.JobID != jobID {
		return nil, appErrors.Clone(appErrors.ErrInvalidRoundPair, fmt.Sprintf("round %s does not belong to job %s", roundID, jobID))
	}
	return round, nil
}

func failed(target bulkTarget, err error) bulkOutcome {
	return bulkOutcome{failure: &dto.BulkFailure{Identifier: target.identifier, Reason: appErrors.FromError(err).Message}}
}

// matchIdentifiers pairs each submitted identifier with a resolved application, keeping submission
// order. An application reached through both its email and roll number is processed once.
func matchIdentifiers(ids dto.StudentIdentifiers, refs []models.StudentRef) ([]bulkTarget, []string) {
	byEmail := make(map[string]models.StudentRef, len(refs))
	byRoll := make(map[string]models.StudentRef, len(refs))
	for _, ref := range refs {
		byEmail[normalizeEmail(ref.Email)] = ref
		byRoll[normalizeRoll(ref.RollNo)] = ref
	}

	var (
		targets   []bulkTarget
		unmatched []string
		seen      = make(map[string]struct{})
	)
	add := func(identifier string, ref models.StudentRef, ok bool) {
		if !ok {
			unmatched = append(unmatched, identifier)
			return
		}
		if _, dup := seen[ref.ApplicationID]; dup {
			return
		}
		seen[ref.ApplicationID] = struct{}{}
		targets = append(targets, bulkTarget{identifier: identifier, applicationID: ref.ApplicationID})
	}
	for _, email := range ids.Emails {
		ref, ok := byEmail[normalizeEmail(email)]
		add(email, ref, ok)
	}
	for _, roll := range ids.RollNos {
		ref, ok := byRoll[normalizeRoll(roll)]
		add(roll, ref, ok)
	}
	return targets, unmatched
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeRoll(roll string) string {
	return strings.ToUpper(strings.TrimSpace(roll))
}
