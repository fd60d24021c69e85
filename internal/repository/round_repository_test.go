package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoundEngineMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var roundRowColumns = []string{"id", "job_id", "sequence", "round_name", "mode", "created_at"}

func TestRoundRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRoundEngineMock(t)
	defer cleanup()

	repo := NewRoundRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM job_rounds WHERE id = $1")).
		WithArgs("round-2").
		WillReturnRows(sqlmock.NewRows(roundRowColumns).AddRow("round-2", "job-1", 2, "Technical", "offline", time.Now()))

	round, err := repo.GetByID(context.Background(), "round-2")
	require.NoError(t, err)
	assert.Equal(t, 2, round.Sequence)
	assert.Equal(t, "Technical", round.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepositoryGetByIDMissing(t *testing.T) {
	db, mock, cleanup := newRoundEngineMock(t)
	defer cleanup()

	repo := NewRoundRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM job_rounds WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundRepositoryListByJob(t *testing.T) {
	db, mock, cleanup := newRoundEngineMock(t)
	defer cleanup()

	repo := NewRoundRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM job_rounds WHERE job_id = $1 ORDER BY sequence ASC")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(roundRowColumns).
			AddRow("round-1", "job-1", 1, "Aptitude", "online", now).
			AddRow("round-2", "job-1", 2, "Technical", "offline", now))

	rounds, err := repo.ListByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, "round-1", rounds[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
