package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

// The functions below mutate an application in memory. Callers pass a clone and persist it
// with the version token of the loaded row.

func applyAssign(app *models.Application, round *models.JobRound, now time.Time) error {
	if round.JobID != app.JobID {
		return appErrors.Clone(appErrors.ErrRoundNotFound, fmt.Sprintf("round %s does not belong to job %s", round.ID, app.JobID))
	}
	switch app.State() {
	case models.StateDecided:
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("application is already %s", app.FinalStatus))
	case models.StateInRound:
		current := currentSequence(app)
		if round.Sequence <= current {
			if round.ID == *app.CurrentRoundID {
				return appErrors.Clone(appErrors.ErrInvalidTransition, "application is already in this round")
			}
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot move from round sequence %d to %d", current, round.Sequence))
		}
		idx := app.RoundProgress.Find(*app.CurrentRoundID)
		if idx < 0 {
			app.RoundProgress = append(app.RoundProgress, models.RoundProgressEntry{
				RoundID:  *app.CurrentRoundID,
				Sequence: current,
			})
			idx = len(app.RoundProgress) - 1
		}
		decided := now
		app.RoundProgress[idx].Result = models.RoundResultAdvanced
		app.RoundProgress[idx].DecidedAt = &decided
	case models.StateUnassigned:
		// A reopened application resumes at or after the furthest round it reached.
		if max := app.RoundProgress.MaxSequence(); round.Sequence < max {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot resume at round sequence %d before reached sequence %d", round.Sequence, max))
		}
	}

	if idx := app.RoundProgress.Find(round.ID); idx >= 0 {
		app.RoundProgress[idx].Result = models.RoundResultPending
		app.RoundProgress[idx].DecidedAt = nil
	} else {
		app.RoundProgress = append(app.RoundProgress, models.RoundProgressEntry{
			RoundID:  round.ID,
			Sequence: round.Sequence,
			Result:   models.RoundResultPending,
		})
	}
	roundID := round.ID
	sequence := round.Sequence
	app.CurrentRoundID = &roundID
	app.CurrentRoundSequence = &sequence
	app.FinalStatus = models.FinalStatusInProcess
	return nil
}

func applyAttendance(app *models.Application, roundID string, attended bool) error {
	idx := app.RoundProgress.Find(roundID)
	if idx < 0 {
		return appErrors.Clone(appErrors.ErrRoundNotFound, fmt.Sprintf("application has no progress entry for round %s", roundID))
	}
	app.RoundProgress[idx].Attendance = attended
	return nil
}

// applyStatus implements updateStatus. creditRoundID, when set, names the ledger entry that receives a terminal decision.
func applyStatus(app *models.Application, status models.FinalStatus, creditRoundID, feedback string, now time.Time) error {
	if !status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported final status %q", status))
	}
	if status == models.FinalStatusInProcess {
		if app.State() == models.StateDecided {
			app.FinalStatus = models.FinalStatusInProcess
			app.CurrentRoundID = nil
			app.CurrentRoundSequence = nil
		}
		return nil
	}

	var decided []int
	switch {
	case creditRoundID != "":
		idx := app.RoundProgress.Find(creditRoundID)
		if idx < 0 {
			return appErrors.Clone(appErrors.ErrRoundNotFound, fmt.Sprintf("application has no progress entry for round %s", creditRoundID))
		}
		decided = append(decided, idx)
		// the awaited round closes with the application even when another round is credited
		if app.CurrentRoundID != nil {
			if cur := app.RoundProgress.Find(*app.CurrentRoundID); cur >= 0 && cur != idx && app.RoundProgress[cur].Result == models.RoundResultPending {
				decided = append(decided, cur)
			}
		}
	case app.CurrentRoundID != nil:
		if idx := app.RoundProgress.Find(*app.CurrentRoundID); idx >= 0 {
			decided = append(decided, idx)
		}
	case app.State() == models.StateDecided:
		decided = closedEntries(app.RoundProgress, models.RoundResult(app.FinalStatus))
	}

	at := now
	for _, idx := range decided {
		app.RoundProgress[idx].Result = models.RoundResult(status)
		app.RoundProgress[idx].DecidedAt = &at
		if feedback != "" {
			app.RoundProgress[idx].Feedback = feedback
		}
	}
	app.FinalStatus = status
	app.CurrentRoundID = nil
	app.CurrentRoundSequence = nil
	return nil
}

func currentSequence(app *models.Application) int {
	if app.CurrentRoundSequence != nil {
		return *app.CurrentRoundSequence
	}
	if app.CurrentRoundID != nil {
		if idx := app.RoundProgress.Find(*app.CurrentRoundID); idx >= 0 {
			return app.RoundProgress[idx].Sequence
		}
	}
	return 0
}

// closedEntries returns the ledger entries stamped by the previous decision.
func closedEntries(ledger models.RoundProgressLedger, result models.RoundResult) []int {
	var out []int
	for i, entry := range ledger {
		if entry.Result == result {
			out = append(out, i)
		}
	}
	return out
}
