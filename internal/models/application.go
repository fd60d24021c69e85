package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FinalStatus is the overall outcome of an application.
type FinalStatus string

const (
	FinalStatusInProcess FinalStatus = "in_process"
	FinalStatusPlaced    FinalStatus = "placed"
	FinalStatusRejected  FinalStatus = "rejected"
)

// Valid reports whether the status is supported.
func (s FinalStatus) Valid() bool {
	switch s {
	case FinalStatusInProcess, FinalStatusPlaced, FinalStatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status closes the application.
func (s FinalStatus) Terminal() bool {
	return s == FinalStatusPlaced || s == FinalStatusRejected
}

// RoundResult is the outcome recorded for one round.
type RoundResult string

const (
	RoundResultPending  RoundResult = "pending"
	RoundResultAdvanced RoundResult = "advanced"
	RoundResultPlaced   RoundResult = "placed"
	RoundResultRejected RoundResult = "rejected"
)

// ApplicationState is the state machine position derived from the stored columns.
type ApplicationState string

const (
	StateUnassigned ApplicationState = "unassigned"
	StateInRound    ApplicationState = "in_round"
	StateDecided    ApplicationState = "decided"
)

// RoundProgressEntry records attendance and outcome for one round of one application.
type RoundProgressEntry struct {
	RoundID    string      `json:"roundId"`
	Sequence   int         `json:"sequence"`
	Attendance bool        `json:"attendance"`
	Result     RoundResult `json:"result"`
	DecidedAt  *time.Time  `json:"decidedAt,omitempty"`
	Feedback   string      `json:"feedback,omitempty"`
}

// RoundProgressLedger is the append-only history stored as JSONB on the application row.
type RoundProgressLedger []RoundProgressEntry

// Value implements driver.Valuer.
func (l RoundProgressLedger) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *RoundProgressLedger) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = RoundProgressLedger{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("round progress: unsupported source %T", src)
	}
	if len(raw) == 0 {
		*l = RoundProgressLedger{}
		return nil
	}
	var entries RoundProgressLedger
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("round progress: %w", err)
	}
	*l = entries
	return nil
}

// Find returns the entry index for roundID or -1.
func (l RoundProgressLedger) Find(roundID string) int {
	for i := range l {
		if l[i].RoundID == roundID {
			return i
		}
	}
	return -1
}

// MaxSequence returns the highest sequence recorded, or 0 for an empty ledger.
func (l RoundProgressLedger) MaxSequence() int {
	max := 0
	for _, entry := range l {
		if entry.Sequence > max {
			max = entry.Sequence
		}
	}
	return max
}

// Application is one student's candidacy for one job.
type Application struct {
	ID                   string              `db:"id" json:"applicationId"`
	StudentID            string              `db:"student_id" json:"studentId"`
	JobID                string              `db:"job_id" json:"jobId"`
	CurrentRoundID       *string             `db:"current_round_id" json:"currentRoundId"`
	CurrentRoundSequence *int                `db:"current_round_sequence" json:"currentRoundSequence"`
	FinalStatus          FinalStatus         `db:"final_status" json:"finalStatus"`
	RoundProgress        RoundProgressLedger `db:"round_progress" json:"roundProgress"`
	Notes                string              `db:"notes" json:"notes"`
	Version              int64               `db:"version" json:"version"`
	CreatedAt            time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time           `db:"updated_at" json:"updatedAt"`
}

// State derives the state machine position.
func (a *Application) State() ApplicationState {
	switch {
	case a.FinalStatus.Terminal():
		return StateDecided
	case a.CurrentRoundID != nil:
		return StateInRound
	default:
		return StateUnassigned
	}
}

// Clone returns a deep copy so transitions can be computed without touching the loaded value.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	clone := *a
	if a.CurrentRoundID != nil {
		id := *a.CurrentRoundID
		clone.CurrentRoundID = &id
	}
	if a.CurrentRoundSequence != nil {
		seq := *a.CurrentRoundSequence
		clone.CurrentRoundSequence = &seq
	}
	clone.RoundProgress = make(RoundProgressLedger, len(a.RoundProgress))
	for i, entry := range a.RoundProgress {
		if entry.DecidedAt != nil {
			decided := *entry.DecidedAt
			entry.DecidedAt = &decided
		}
		clone.RoundProgress[i] = entry
	}
	return &clone
}

// ApplicationFilter scopes application listings.
type ApplicationFilter struct {
	JobID       string
	RoundID     string
	FinalStatus *FinalStatus
	StudentID   string
	Page        int
	PageSize    int
}
