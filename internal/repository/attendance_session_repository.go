package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/placement-rounds-api/internal/models"
)

// AttendanceSessionRepository stores the per-round rotating code sessions.
type AttendanceSessionRepository struct {
	db *sqlx.DB
}

// NewAttendanceSessionRepository constructs the repository.
func NewAttendanceSessionRepository(db *sqlx.DB) *AttendanceSessionRepository {
	return &AttendanceSessionRepository{db: db}
}

const sessionColumns = `round_id, status, current_code, code_issued_at, expires_at, refresh_interval_seconds,
       offline_code_enabled, offline_code, offline_code_used_at, started_by, version, updated_at`

// Get returns the session for a round or sql.ErrNoRows when none was ever started.
func (r *AttendanceSessionRepository) Get(ctx context.Context, roundID string) (*models.AttendanceSession, error) {
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, `SELECT `+sessionColumns+` FROM round_attendance_sessions WHERE round_id = $1`, roundID); err != nil {
		return nil, err
	}
	return &session, nil
}

// Upsert replaces the session of a round unconditionally. Starting twice restarts the session.
func (r *AttendanceSessionRepository) Upsert(ctx context.Context, session *models.AttendanceSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO round_attendance_sessions (
	round_id, status, current_code, code_issued_at, expires_at, refresh_interval_seconds,
	offline_code_enabled, offline_code, offline_code_used_at, started_by, version, updated_at
) VALUES (
	:round_id, :status, :current_code, :code_issued_at, :expires_at, :refresh_interval_seconds,
	:offline_code_enabled, :offline_code, :offline_code_used_at, :started_by, 1, :updated_at
)
ON CONFLICT (round_id) DO UPDATE SET
	status = EXCLUDED.status,
	current_code = EXCLUDED.current_code,
	code_issued_at = EXCLUDED.code_issued_at,
	expires_at = EXCLUDED.expires_at,
	refresh_interval_seconds = EXCLUDED.refresh_interval_seconds,
	offline_code_enabled = EXCLUDED.offline_code_enabled,
	offline_code = EXCLUDED.offline_code,
	offline_code_used_at = EXCLUDED.offline_code_used_at,
	started_by = EXCLUDED.started_by,
	version = round_attendance_sessions.version + 1,
	updated_at = EXCLUDED.updated_at
RETURNING version`
	rows, err := r.db.NamedQueryContext(ctx, query, session)
	if err != nil {
		return fmt.Errorf("upsert attendance session: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&session.Version); err != nil {
			return fmt.Errorf("scan attendance session version: %w", err)
		}
	}
	return rows.Err()
}

// CompareAndSwap writes the session only if its stored version still equals session.Version.
// It returns ErrStaleVersion when another writer got there first.
func (r *AttendanceSessionRepository) CompareAndSwap(ctx context.Context, session *models.AttendanceSession) error {
	now := time.Now().UTC()
	const query = `UPDATE round_attendance_sessions SET
	status = :status,
	current_code = :current_code,
	code_issued_at = :code_issued_at,
	expires_at = :expires_at,
	offline_code = :offline_code,
	offline_code_used_at = :offline_code_used_at,
	version = version + 1,
	updated_at = :updated_at
	WHERE round_id = :round_id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"round_id":             session.RoundID,
		"status":               session.Status,
		"current_code":         session.CurrentCode,
		"code_issued_at":       session.CodeIssuedAt,
		"expires_at":           session.ExpiresAt,
		"offline_code":         session.OfflineCode,
		"offline_code_used_at": session.OfflineCodeUsedAt,
		"updated_at":           now,
		"version":              session.Version,
	})
	if err != nil {
		return fmt.Errorf("update attendance session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check attendance session rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleVersion
	}
	session.Version++
	session.UpdatedAt = now
	return nil
}

// ConsumeOfflineCode atomically marks the offline code as used. Exactly one caller
// observes true for a given code; every other concurrent caller observes false.
func (r *AttendanceSessionRepository) ConsumeOfflineCode(ctx context.Context, roundID, code string, usedAt time.Time) (bool, error) {
	const query = `UPDATE round_attendance_sessions SET
	offline_code_used_at = $3,
	version = version + 1,
	updated_at = $3
	WHERE round_id = $1 AND status = 'active' AND offline_code_enabled
	  AND offline_code = $2 AND offline_code_used_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, roundID, code, usedAt)
	if err != nil {
		return false, fmt.Errorf("consume offline code: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check offline code rows: %w", err)
	}
	return rows == 1, nil
}
