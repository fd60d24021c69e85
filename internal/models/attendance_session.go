package models

import "time"

// SessionStatus marks whether a round currently accepts check-ins.
type SessionStatus string

const (
	SessionStatusInactive SessionStatus = "inactive"
	SessionStatusActive   SessionStatus = "active"
)

// AttendanceSession is the rotating-code state for one round. At most one row exists per round.
type AttendanceSession struct {
	RoundID                string        `db:"round_id" json:"roundId"`
	Status                 SessionStatus `db:"status" json:"status"`
	CurrentCode            *string       `db:"current_code" json:"currentCode,omitempty"`
	CodeIssuedAt           *time.Time    `db:"code_issued_at" json:"codeIssuedAt,omitempty"`
	ExpiresAt              *time.Time    `db:"expires_at" json:"expiresAt,omitempty"`
	RefreshIntervalSeconds int           `db:"refresh_interval_seconds" json:"refreshIntervalSeconds"`
	OfflineCodeEnabled     bool          `db:"offline_code_enabled" json:"offlineCodeEnabled"`
	OfflineCode            *string       `db:"offline_code" json:"offlineCode,omitempty"`
	OfflineCodeUsedAt      *time.Time    `db:"offline_code_used_at" json:"offlineCodeUsedAt,omitempty"`
	StartedBy              *string       `db:"started_by" json:"startedBy,omitempty"`
	Version                int64         `db:"version" json:"version"`
	UpdatedAt              time.Time     `db:"updated_at" json:"updatedAt"`
}

// Active reports whether the session accepts check-ins.
func (s *AttendanceSession) Active() bool {
	return s != nil && s.Status == SessionStatusActive
}

// Expired reports whether the current code window has elapsed at now.
func (s *AttendanceSession) Expired(now time.Time) bool {
	return s.ExpiresAt == nil || !now.Before(*s.ExpiresAt)
}

// OfflineCodeConsumed reports whether the single-use fallback has been spent.
func (s *AttendanceSession) OfflineCodeConsumed() bool {
	return s.OfflineCodeUsedAt != nil
}

// CheckInMethod names the credential that matched.
type CheckInMethod string

const (
	CheckInMethodOnline  CheckInMethod = "online"
	CheckInMethodOffline CheckInMethod = "offline"
)
