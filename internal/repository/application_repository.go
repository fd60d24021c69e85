package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/placement-rounds-api/internal/models"
)

// ErrStaleVersion reports that the row changed since it was read.
var ErrStaleVersion = errors.New("application version is stale")

// ApplicationRepository persists applications with their embedded round progress ledger.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, student_id, job_id, current_round_id, current_round_sequence, final_status,
       round_progress, notes, version, created_at, updated_at`

// GetByID fetches an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := r.db.GetContext(ctx, &app, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetByStudentAndJob fetches the single application a student holds for a job.
func (r *ApplicationRepository) GetByStudentAndJob(ctx context.Context, studentID, jobID string) (*models.Application, error) {
	var app models.Application
	if err := r.db.GetContext(ctx, &app, `SELECT `+applicationColumns+` FROM applications WHERE student_id = $1 AND job_id = $2`, studentID, jobID); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications for a job, optionally narrowed to those that have a ledger entry for a round.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	where := []string{"job_id = $1"}
	args := []interface{}{filter.JobID}
	if filter.RoundID != "" {
		args = append(args, filter.RoundID)
		where = append(where, fmt.Sprintf("round_progress @> jsonb_build_array(jsonb_build_object('roundId', $%d::text))", len(args)))
	}
	if filter.FinalStatus != nil && filter.FinalStatus.Valid() {
		args = append(args, *filter.FinalStatus)
		where = append(where, fmt.Sprintf("final_status = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM applications WHERE %s ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d`,
		applicationColumns, whereClause, size, offset)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM applications WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// Update writes the mutable columns guarded by the optimistic version token.
// On success the application's Version and UpdatedAt reflect the stored row.
func (r *ApplicationRepository) Update(ctx context.Context, app *models.Application) error {
	now := time.Now().UTC()
	const query = `UPDATE applications SET
	current_round_id = :current_round_id,
	current_round_sequence = :current_round_sequence,
	final_status = :final_status,
	round_progress = :round_progress,
	notes = :notes,
	version = version + 1,
	updated_at = :updated_at
	WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                     app.ID,
		"current_round_id":       app.CurrentRoundID,
		"current_round_sequence": app.CurrentRoundSequence,
		"final_status":           app.FinalStatus,
		"round_progress":         app.RoundProgress,
		"notes":                  app.Notes,
		"updated_at":             now,
		"version":                app.Version,
	})
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check application update rows: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM applications WHERE id = $1)`, app.ID); err != nil {
			return fmt.Errorf("check application existence: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
		return ErrStaleVersion
	}
	app.Version++
	app.UpdatedAt = now
	return nil
}
