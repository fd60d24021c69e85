package dto

import (
	"time"

	"github.com/noah-isme/placement-rounds-api/internal/models"
)

// StartSessionRequest configures a new attendance session for a round.
type StartSessionRequest struct {
	RefreshIntervalSeconds int  `json:"refreshIntervalSeconds"`
	EnableOfflineCode      bool `json:"enableOfflineCode"`
}

// CheckInRequest carries the code a student typed or scanned.
type CheckInRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// SessionSnapshot is the externally visible session state. Codes are only filled for admins.
type SessionSnapshot struct {
	RoundID                string               `json:"roundId"`
	Status                 models.SessionStatus `json:"status"`
	CurrentCode            string               `json:"currentCode,omitempty"`
	CodeIssuedAt           *time.Time           `json:"codeIssuedAt,omitempty"`
	ExpiresAt              *time.Time           `json:"expiresAt,omitempty"`
	RefreshIntervalSeconds int                  `json:"refreshIntervalSeconds"`
	OfflineCodeEnabled     bool                 `json:"offlineCodeEnabled"`
	OfflineCode            string               `json:"offlineCode,omitempty"`
	OfflineCodeUsed        bool                 `json:"offlineCodeUsed"`
	OfflineCodeUsedAt      *time.Time           `json:"offlineCodeUsedAt,omitempty"`
}

// NewSessionSnapshot renders a session, exposing codes only when withCodes is set.
func NewSessionSnapshot(session *models.AttendanceSession, withCodes bool) SessionSnapshot {
	snapshot := SessionSnapshot{
		RoundID:                session.RoundID,
		Status:                 session.Status,
		CodeIssuedAt:           session.CodeIssuedAt,
		ExpiresAt:              session.ExpiresAt,
		RefreshIntervalSeconds: session.RefreshIntervalSeconds,
		OfflineCodeEnabled:     session.OfflineCodeEnabled,
		OfflineCodeUsed:        session.OfflineCodeUsedAt != nil,
		OfflineCodeUsedAt:      session.OfflineCodeUsedAt,
	}
	if withCodes {
		if session.CurrentCode != nil {
			snapshot.CurrentCode = *session.CurrentCode
		}
		if session.OfflineCode != nil {
			snapshot.OfflineCode = *session.OfflineCode
		}
	}
	return snapshot
}

// CheckInResult confirms a recorded check-in.
type CheckInResult struct {
	RoundID       string               `json:"roundId"`
	ApplicationID string               `json:"applicationId"`
	Method        models.CheckInMethod `json:"method"`
	Attendance    bool                 `json:"attendance"`
	CheckedInAt   time.Time            `json:"checkedInAt"`
}
