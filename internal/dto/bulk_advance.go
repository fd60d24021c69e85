package dto

// BulkAdvanceRequest moves many students of one job from a source round to a target round.
// Emails and RollNos are free text separated by commas, whitespace or newlines.
type BulkAdvanceRequest struct {
	FromRoundID string `json:"fromRoundId" validate:"required"`
	ToRoundID   string `json:"toRoundId" validate:"required"`
	Emails      string `json:"emails"`
	RollNos     string `json:"rollNos"`
}

// StudentIdentifiers is the normalized identifier set handed to the coordinator.
type StudentIdentifiers struct {
	Emails  []string
	RollNos []string
}

// Empty reports whether no identifiers were supplied.
func (s StudentIdentifiers) Empty() bool {
	return len(s.Emails) == 0 && len(s.RollNos) == 0
}

// BulkFailure names a student the batch could not advance.
type BulkFailure struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

// BulkWarning flags a student that was advanced with a caveat.
type BulkWarning struct {
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
}

// BulkAdvanceResult summarises a batch run; failures never abort the batch.
type BulkAdvanceResult struct {
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	Failures     []BulkFailure `json:"failures"`
	Warnings     []BulkWarning `json:"warnings,omitempty"`
}
