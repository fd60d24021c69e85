package dto

import (
	"time"

	"github.com/noah-isme/placement-rounds-api/internal/models"
)

// AdvanceRequest moves one application into a later round.
type AdvanceRequest struct {
	NextRoundID string `json:"nextRoundId" validate:"required"`
	Version     *int64 `json:"version,omitempty" validate:"omitempty,min=0"`
}

// UpdateStatusRequest changes the overall outcome and/or notes.
type UpdateStatusRequest struct {
	FinalStatus models.FinalStatus `json:"finalStatus" validate:"omitempty,oneof=in_process placed rejected"`
	Notes       *string            `json:"notes,omitempty"`
	Version     *int64             `json:"version,omitempty" validate:"omitempty,min=0"`
}

// FinalizeRequest closes an application crediting the decision to a round.
type FinalizeRequest struct {
	Outcome  models.FinalStatus `json:"outcome" validate:"required,oneof=placed rejected"`
	Notes    *string            `json:"notes,omitempty"`
	RoundID  string             `json:"roundId,omitempty"`
	Feedback string             `json:"feedback,omitempty" validate:"max=2000"`
	Version  *int64             `json:"version,omitempty" validate:"omitempty,min=0"`
}

// MarkAttendanceRequest is the administrative attendance override.
type MarkAttendanceRequest struct {
	Attended *bool `json:"attended" validate:"required"`
}

// FinalizeResult reports whether finalize changed anything.
type FinalizeResult struct {
	Application      *models.Application `json:"application"`
	AlreadyFinalized bool                `json:"alreadyFinalized"`
}

// ApplicationQuery mirrors supported listing filters.
type ApplicationQuery struct {
	JobID       string
	RoundID     string
	FinalStatus string
	Page        int
	PageSize    int
}

// RoundProgressView is a ledger entry enriched with catalog data.
type RoundProgressView struct {
	RoundID    string             `json:"roundId"`
	RoundName  string             `json:"roundName"`
	Mode       models.RoundMode   `json:"mode"`
	Sequence   int                `json:"sequence"`
	Attendance bool               `json:"attendance"`
	Result     models.RoundResult `json:"result"`
	DecidedAt  *time.Time         `json:"decidedAt,omitempty"`
	Feedback   string             `json:"feedback,omitempty"`
	IsCurrent  bool               `json:"isCurrent"`
}

// ApplicationProgress is the read-side view of one application's round history.
type ApplicationProgress struct {
	ApplicationID string                  `json:"applicationId"`
	StudentID     string                  `json:"studentId"`
	JobID         string                  `json:"jobId"`
	State         models.ApplicationState `json:"state"`
	FinalStatus   models.FinalStatus      `json:"finalStatus"`
	Rounds        []RoundProgressView     `json:"rounds"`
}

// RosterRow is one application's standing in a round.
type RosterRow struct {
	ApplicationID string             `json:"applicationId"`
	StudentID     string             `json:"studentId"`
	Email         string             `json:"email"`
	RollNo        string             `json:"rollNo"`
	Attendance    bool               `json:"attendance"`
	Result        models.RoundResult `json:"result"`
	FinalStatus   models.FinalStatus `json:"finalStatus"`
	DecidedAt     *time.Time         `json:"decidedAt,omitempty"`
}
