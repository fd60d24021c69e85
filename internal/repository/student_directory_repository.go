package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/placement-rounds-api/internal/models"
)

// StudentDirectoryRepository resolves student identifiers against the applications of a job.
type StudentDirectoryRepository struct {
	db *sqlx.DB
}

// NewStudentDirectoryRepository constructs the repository.
func NewStudentDirectoryRepository(db *sqlx.DB) *StudentDirectoryRepository {
	return &StudentDirectoryRepository{db: db}
}

// ResolveStudents returns students matching any email or roll number that hold an application for jobID.
// Identifiers are expected lower-cased (emails) and upper-cased (roll numbers).
func (r *StudentDirectoryRepository) ResolveStudents(ctx context.Context, jobID string, emails, rollNos []string) ([]models.StudentRef, error) {
	if len(emails) == 0 && len(rollNos) == 0 {
		return []models.StudentRef{}, nil
	}
	const query = `SELECT s.id AS student_id, a.id AS application_id, s.email, s.roll_no
FROM students s
JOIN applications a ON a.student_id = s.id AND a.job_id = $1
WHERE LOWER(s.email) = ANY($2) OR UPPER(s.roll_no) = ANY($3)
ORDER BY s.roll_no ASC`
	var refs []models.StudentRef
	if err := r.db.SelectContext(ctx, &refs, query, jobID, pq.Array(emails), pq.Array(rollNos)); err != nil {
		return nil, fmt.Errorf("resolve students: %w", err)
	}
	return refs, nil
}

// ListRoster returns every application of a job that has a ledger entry for roundID, with directory fields.
func (r *StudentDirectoryRepository) ListRoster(ctx context.Context, jobID, roundID string) ([]models.RosterRecord, error) {
	const query = `SELECT a.id, a.student_id, a.job_id, a.current_round_id, a.current_round_sequence, a.final_status,
       a.round_progress, a.notes, a.version, a.created_at, a.updated_at, s.email, s.roll_no
FROM applications a
JOIN students s ON s.id = a.student_id
WHERE a.job_id = $1 AND a.round_progress @> jsonb_build_array(jsonb_build_object('roundId', $2::text))
ORDER BY s.roll_no ASC`
	var records []models.RosterRecord
	if err := r.db.SelectContext(ctx, &records, query, jobID, roundID); err != nil {
		return nil, fmt.Errorf("list round roster: %w", err)
	}
	return records, nil
}
