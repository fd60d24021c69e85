package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/placement-rounds-api/internal/models"
)

// RoundRepository reads the job round catalog.
type RoundRepository struct {
	db *sqlx.DB
}

// NewRoundRepository constructs the repository.
func NewRoundRepository(db *sqlx.DB) *RoundRepository {
	return &RoundRepository{db: db}
}

const roundColumns = `id, job_id, sequence, round_name, mode, created_at`

// GetByID returns a round or sql.ErrNoRows.
func (r *RoundRepository) GetByID(ctx context.Context, id string) (*models.JobRound, error) {
	var round models.JobRound
	if err := r.db.GetContext(ctx, &round, `SELECT `+roundColumns+` FROM job_rounds WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &round, nil
}

// ListByJob returns the rounds of a job ordered by sequence.
func (r *RoundRepository) ListByJob(ctx context.Context, jobID string) ([]models.JobRound, error) {
	var rounds []models.JobRound
	if err := r.db.SelectContext(ctx, &rounds, `SELECT `+roundColumns+` FROM job_rounds WHERE job_id = $1 ORDER BY sequence ASC`, jobID); err != nil {
		return nil, fmt.Errorf("list job rounds: %w", err)
	}
	return rounds, nil
}
