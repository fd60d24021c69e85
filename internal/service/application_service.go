package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/internal/repository"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

type applicationStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	GetByStudentAndJob(ctx context.Context, studentID, jobID string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	Update(ctx context.Context, app *models.Application) error
}

// ApplicationService runs the per-application round state machine.
type ApplicationService struct {
	apps      applicationStore
	rounds    roundCatalog
	cache     *CacheService
	audit     *AuditService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// ApplicationServiceOption configures the service.
type ApplicationServiceOption func(*ApplicationService)

// WithApplicationClock overrides the time source.
func WithApplicationClock(now func() time.Time) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithApplicationCache enables read-through caching of projections.
func WithApplicationCache(cache *CacheService) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.cache = cache
	}
}

// WithApplicationAudit attaches the audit writer.
func WithApplicationAudit(audit *AuditService) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.audit = audit
	}
}

// WithApplicationMetrics attaches metrics.
func WithApplicationMetrics(metrics *MetricsService) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.metrics = metrics
	}
}

// NewApplicationService constructs the state machine service.
func NewApplicationService(apps applicationStore, rounds roundCatalog, validate *validator.Validate, logger *zap.Logger, opts ...ApplicationServiceOption) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApplicationService{
		apps:      apps,
		rounds:    rounds,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Get returns one application.
func (s *ApplicationService) Get(ctx context.Context, id string) (*models.Application, error) {
	var cached models.Application
	if hit, _ := s.cache.Get(ctx, applicationCacheKey(id), &cached); hit {
		return &cached, nil
	}
	app, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, applicationCacheKey(id), app, 0)
	return app, nil
}

// ForStudent returns the application a student holds for a job.
func (s *ApplicationService) ForStudent(ctx context.Context, studentID, jobID string) (*models.Application, error) {
	app, err := s.apps.GetByStudentAndJob(ctx, studentID, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no application for this job")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

// List returns applications of a job with pagination.
func (s *ApplicationService) List(ctx context.Context, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error) {
	if query.JobID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "jobId is required")
	}
	filter := models.ApplicationFilter{
		JobID:    query.JobID,
		RoundID:  query.RoundID,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if query.FinalStatus != "" {
		status := models.FinalStatus(query.FinalStatus)
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
		}
		filter.FinalStatus = &status
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 500 {
		filter.PageSize = 50
	}

	type listing struct {
		Items []models.Application `json:"items"`
		Total int                  `json:"total"`
	}
	key := applicationListKey(filter)
	var cached listing
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}, nil
	}

	items, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	_ = s.cache.Set(ctx, key, listing{Items: items, Total: total}, 0)
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Progress returns the ledger enriched with catalog data, ordered by round sequence.
func (s *ApplicationService) Progress(ctx context.Context, id string) (*dto.ApplicationProgress, error) {
	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rounds, err := s.rounds.ListByJob(ctx, app.JobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rounds")
	}
	catalog := make(map[string]models.JobRound, len(rounds))
	for _, round := range rounds {
		catalog[round.ID] = round
	}

	views := make([]dto.RoundProgressView, 0, len(app.RoundProgress))
	for _, entry := range app.RoundProgress {
		view := dto.RoundProgressView{
			RoundID:    entry.RoundID,
			Sequence:   entry.Sequence,
			Attendance: entry.Attendance,
			Result:     entry.Result,
			DecidedAt:  entry.DecidedAt,
			Feedback:   entry.Feedback,
			IsCurrent:  app.CurrentRoundID != nil && *app.CurrentRoundID == entry.RoundID,
		}
		if round, ok := catalog[entry.RoundID]; ok {
			view.RoundName = round.Name
			view.Mode = round.Mode
		}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].Sequence < views[j].Sequence })

	return &dto.ApplicationProgress{
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		JobID:         app.JobID,
		State:         app.State(),
		FinalStatus:   app.FinalStatus,
		Rounds:        views,
	}, nil
}

// AssignToRound moves an application strictly forward into nextRoundID.
func (s *ApplicationService) AssignToRound(ctx context.Context, actor Actor, id string, req dto.AdvanceRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid advance payload")
	}
	round, err := s.loadRound(ctx, req.NextRoundID)
	if err != nil {
		return nil, err
	}
	app, err := s.mutate(ctx, "assign", id, req.Version, func(app *models.Application, now time.Time) error {
		return applyAssign(app, round, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("application advanced",
		zap.String("application_id", app.ID),
		zap.String("round_id", round.ID),
		zap.Int("sequence", round.Sequence),
		zap.String("actor", actor.UserID))
	s.audit.Record(ctx, actor, models.AuditActionRoundAssign, models.AuditResourceApplication, app.ID, nil, map[string]interface{}{
		"roundId":  round.ID,
		"sequence": round.Sequence,
	})
	return app, nil
}

// MarkAttendance sets the attendance flag on an existing ledger entry.
func (s *ApplicationService) MarkAttendance(ctx context.Context, actor Actor, id, roundID string, attended bool) (*models.Application, error) {
	app, err := s.mutate(ctx, "mark_attendance", id, nil, func(app *models.Application, _ time.Time) error {
		return applyAttendance(app, roundID, attended)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("attendance marked",
		zap.String("application_id", app.ID),
		zap.String("round_id", roundID),
		zap.Bool("attended", attended),
		zap.String("actor", actor.UserID))
	s.audit.Record(ctx, actor, models.AuditActionAttendanceMark, models.AuditResourceApplication, app.ID, nil, map[string]interface{}{
		"roundId":  roundID,
		"attended": attended,
	})
	return app, nil
}

// UpdateStatus changes the overall outcome and notes.
func (s *ApplicationService) UpdateStatus(ctx context.Context, actor Actor, id string, req dto.UpdateStatusRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if req.FinalStatus == "" && req.Notes == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "finalStatus or notes is required")
	}
	var before models.FinalStatus
	app, err := s.mutate(ctx, "update_status", id, req.Version, func(app *models.Application, now time.Time) error {
		before = app.FinalStatus
		if req.FinalStatus != "" {
			if err := applyStatus(app, req.FinalStatus, "", "", now); err != nil {
				return err
			}
		}
		if req.Notes != nil {
			app.Notes = *req.Notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("application status updated",
		zap.String("application_id", app.ID),
		zap.String("from", string(before)),
		zap.String("to", string(app.FinalStatus)),
		zap.String("actor", actor.UserID))
	s.audit.Record(ctx, actor, models.AuditActionStatusUpdate, models.AuditResourceApplication, app.ID,
		map[string]interface{}{"finalStatus": before},
		map[string]interface{}{"finalStatus": app.FinalStatus})
	return app, nil
}

// Finalize closes an application crediting an explicit or the current round.
// Repeating a finalize with the outcome already stored changes nothing.
func (s *ApplicationService) Finalize(ctx context.Context, actor Actor, id string, req dto.FinalizeRequest) (*dto.FinalizeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid finalize payload")
	}
	current, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.FinalStatus == req.Outcome {
		s.metrics.RecordTransition("finalize", "already_finalized")
		return &dto.FinalizeResult{Application: current, AlreadyFinalized: true}, nil
	}

	app, err := s.mutateLoaded(ctx, "finalize", current, req.Version, func(app *models.Application, now time.Time) error {
		if err := applyStatus(app, req.Outcome, req.RoundID, req.Feedback, now); err != nil {
			return err
		}
		if req.Notes != nil {
			app.Notes = *req.Notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("application finalized",
		zap.String("application_id", app.ID),
		zap.String("outcome", string(app.FinalStatus)),
		zap.String("actor", actor.UserID))
	s.audit.Record(ctx, actor, models.AuditActionFinalize, models.AuditResourceApplication, app.ID,
		map[string]interface{}{"finalStatus": current.FinalStatus},
		map[string]interface{}{"finalStatus": app.FinalStatus, "roundId": req.RoundID})
	return &dto.FinalizeResult{Application: app}, nil
}

func (s *ApplicationService) mutate(ctx context.Context, operation, id string, expectedVersion *int64, apply func(*models.Application, time.Time) error) (*models.Application, error) {
	current, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.mutateLoaded(ctx, operation, current, expectedVersion, apply)
}

func (s *ApplicationService) mutateLoaded(ctx context.Context, operation string, current *models.Application, expectedVersion *int64, apply func(*models.Application, time.Time) error) (*models.Application, error) {
	if expectedVersion != nil && *expectedVersion != current.Version {
		// the caller may have been served an outdated projection
		s.invalidate(ctx, current)
		s.metrics.RecordConflict("application")
		s.metrics.RecordTransition(operation, appErrors.ErrConcurrentModification.Code)
		return nil, appErrors.Clone(appErrors.ErrConcurrentModification,
			fmt.Sprintf("application is at version %d, not %d", current.Version, *expectedVersion))
	}

	next := current.Clone()
	if err := apply(next, s.now()); err != nil {
		s.metrics.RecordTransition(operation, appErrors.FromError(err).Code)
		return nil, err
	}
	if err := s.apps.Update(ctx, next); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleVersion):
			s.invalidate(ctx, current)
			s.metrics.RecordConflict("application")
			s.metrics.RecordTransition(operation, appErrors.ErrConcurrentModification.Code)
			return nil, appErrors.ErrConcurrentModification
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
		}
	}
	s.metrics.RecordTransition(operation, "ok")
	s.invalidate(ctx, next)
	return next, nil
}

// Load reads the application from the store, bypassing the projection cache.
// Callers that decide a write from what they read must use it instead of Get.
func (s *ApplicationService) Load(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) loadRound(ctx context.Context, roundID string) (*models.JobRound, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, mapRoundError(err)
	}
	return round, nil
}

func (s *ApplicationService) invalidate(ctx context.Context, app *models.Application) {
	s.cache.ForgetApplication(ctx, app)
}
