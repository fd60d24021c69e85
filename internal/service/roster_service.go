package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
	"github.com/noah-isme/placement-rounds-api/pkg/export"
)

type rosterSource interface {
	ListRoster(ctx context.Context, jobID, roundID string) ([]models.RosterRecord, error)
}

var rosterHeaders = []string{"Roll No", "Email", "Application", "Attendance", "Round Result", "Final Status", "Decided At"}

// RosterDocument is a rendered roster ready to stream.
type RosterDocument struct {
	Filename    string
	ContentType string
	Content     []byte
}

// RosterService lists and exports the applications that reached a round.
type RosterService struct {
	rounds roundCatalog
	source rosterSource
	logger *zap.Logger
	now    func() time.Time
}

// NewRosterService constructs the service.
func NewRosterService(rounds roundCatalog, source rosterSource, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{rounds: rounds, source: source, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Rows returns the roster of a round.
func (s *RosterService) Rows(ctx context.Context, roundID string) (*models.JobRound, []dto.RosterRow, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, nil, mapRoundError(err)
	}
	records, err := s.source.ListRoster(ctx, round.JobID, round.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	rows := make([]dto.RosterRow, 0, len(records))
	for _, record := range records {
		row := dto.RosterRow{
			ApplicationID: record.ID,
			StudentID:     record.StudentID,
			Email:         record.Email,
			RollNo:        record.RollNo,
			FinalStatus:   record.FinalStatus,
		}
		if idx := record.RoundProgress.Find(round.ID); idx >= 0 {
			entry := record.RoundProgress[idx]
			row.Attendance = entry.Attendance
			row.Result = entry.Result
			row.DecidedAt = entry.DecidedAt
		}
		rows = append(rows, row)
	}
	return round, rows, nil
}

// Export renders the roster of a round in the requested format.
func (s *RosterService) Export(ctx context.Context, roundID string, format export.Format) (*RosterDocument, error) {
	round, rows, err := s.Rows(ctx, roundID)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{
		Title:    fmt.Sprintf("Round %d: %s", round.Sequence, round.Name),
		Subtitle: fmt.Sprintf("Job %s, %d students, generated %s", round.JobID, len(rows), s.now().Format(time.RFC3339)),
		Headers:  rosterHeaders,
		Rows:     make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		decided := ""
		if row.DecidedAt != nil {
			decided = row.DecidedAt.Format(time.RFC3339)
		}
		data.Rows = append(data.Rows, map[string]string{
			"Roll No":      row.RollNo,
			"Email":        row.Email,
			"Application":  row.ApplicationID,
			"Attendance":   strconv.FormatBool(row.Attendance),
			"Round Result": string(row.Result),
			"Final Status": string(row.FinalStatus),
			"Decided At":   decided,
		})
	}
	content, err := export.Render(format, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	s.logger.Info("roster exported", zap.String("round_id", round.ID), zap.String("format", string(format)), zap.Int("rows", len(rows)))
	return &RosterDocument{
		Filename:    fmt.Sprintf("roster-%s.%s", round.ID, format),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}
