package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/placement-rounds-api/internal/dto"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

var adminActor = Actor{UserID: "admin-1", Role: models.RoleAdmin}

func newApplicationServiceForTest(store *applicationStoreStub, rounds *roundCatalogStub, clock *testClock) *ApplicationService {
	return NewApplicationService(store, rounds, nil, nil, WithApplicationClock(clock.Now), WithApplicationMetrics(NewMetricsService()))
}

func unassigned(id string) *models.Application {
	return &models.Application{ID: id, StudentID: "stu-" + id, JobID: "job-1", FinalStatus: models.FinalStatusInProcess, Version: 1}
}

func TestAssignToRoundFromUnassigned(t *testing.T) {
	clock := newTestClock()
	store := newApplicationStoreStub(unassigned("a1"))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(3)...), clock)

	app, err := svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, models.StateInRound, app.State())
	assert.Equal(t, "r1", *app.CurrentRoundID)
	assert.Equal(t, 1, *app.CurrentRoundSequence)
	require.Len(t, app.RoundProgress, 1)
	assert.Equal(t, models.RoundResultPending, app.RoundProgress[0].Result)
	assert.False(t, app.RoundProgress[0].Attendance)
	assert.EqualValues(t, 2, app.Version)
}

func TestAssignToRoundMarksPreviousRoundAdvanced(t *testing.T) {
	clock := newTestClock()
	store := newApplicationStoreStub(inRound("a1", "stu-1", 1, true))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(3)...), clock)

	app, err := svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: "r3"})
	require.NoError(t, err)
	require.Len(t, app.RoundProgress, 2)
	assert.Equal(t, models.RoundResultAdvanced, app.RoundProgress[0].Result)
	require.NotNil(t, app.RoundProgress[0].DecidedAt)
	assert.Equal(t, testEpoch, *app.RoundProgress[0].DecidedAt)
	assert.Equal(t, "r3", app.RoundProgress[1].RoundID)
	assert.Equal(t, models.RoundResultPending, app.RoundProgress[1].Result)
	assert.Equal(t, 3, *store.get("a1").CurrentRoundSequence)
}

func TestAssignToRoundRejectsBackwardAndSidewaysMoves(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 3, false))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(4)...), newTestClock())

	for _, target := range []string{"r2", "r3", "r1"} {
		_, err := svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: target})
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition), "target %s", target)
	}
	assert.Zero(t, store.updates)
}

func TestAssignToRoundUnknownOrForeignRound(t *testing.T) {
	foreign := models.JobRound{ID: "other", JobID: "job-2", Sequence: 5}
	store := newApplicationStoreStub(inRound("a1", "stu-1", 1, false))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(append(jobRounds(2), foreign)...), newTestClock())

	_, err := svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: "missing"})
	assert.True(t, appErrors.Is(err, appErrors.ErrRoundNotFound))

	_, err = svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: "other"})
	assert.True(t, appErrors.Is(err, appErrors.ErrRoundNotFound))

	_, err = svc.AssignToRound(context.Background(), adminActor, "ghost", dto.AdvanceRequest{NextRoundID: "r2"})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestAssignToRoundRejectsDecidedApplication(t *testing.T) {
	decided := inRound("a1", "stu-1", 1, true)
	decided.CurrentRoundID = nil
	decided.CurrentRoundSequence = nil
	decided.FinalStatus = models.FinalStatusRejected
	store := newApplicationStoreStub(decided)
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(3)...), newTestClock())

	_, err := svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: "r2"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestAssignToRoundSequenceStrictlyIncreasesWithOneEntryPerRound(t *testing.T) {
	store := newApplicationStoreStub(unassigned("a1"))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(5)...), newTestClock())

	last := 0
	for _, target := range []string{"r1", "r3", "r2", "r3", "r4", "r1", "r5"} {
		app, err := svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: target})
		if err != nil {
			assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
			continue
		}
		assert.Greater(t, *app.CurrentRoundSequence, last)
		last = *app.CurrentRoundSequence
	}
	app := store.get("a1")
	seen := map[string]int{}
	for _, entry := range app.RoundProgress {
		seen[entry.RoundID]++
	}
	assert.Equal(t, map[string]int{"r1": 1, "r3": 1, "r4": 1, "r5": 1}, seen)
}

func TestAssignToRoundStaleClientVersion(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 1, false))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(3)...), newTestClock())

	_, err := svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: "r2", Version: int64Ptr(7)})
	assert.True(t, appErrors.Is(err, appErrors.ErrConcurrentModification))
	assert.Zero(t, store.updates)
}

func TestAssignToRoundSurfacesLostRace(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 1, false))
	store.staleUpdates = 1
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(3)...), newTestClock())

	_, err := svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: "r2"})
	assert.True(t, appErrors.Is(err, appErrors.ErrConcurrentModification))
	assert.Equal(t, "r1", *store.get("a1").CurrentRoundID)
}

func TestMarkAttendance(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 2, false))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(3)...), newTestClock())

	app, err := svc.MarkAttendance(context.Background(), adminActor, "a1", "r2", true)
	require.NoError(t, err)
	assert.True(t, app.RoundProgress[1].Attendance)

	_, err = svc.MarkAttendance(context.Background(), adminActor, "a1", "r3", true)
	assert.True(t, appErrors.Is(err, appErrors.ErrRoundNotFound))
}

func TestUpdateStatusClosesAndReopens(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 2, true))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(3)...), newTestClock())

	notes := "strong technical round"
	app, err := svc.UpdateStatus(context.Background(), adminActor, "a1", dto.UpdateStatusRequest{FinalStatus: models.FinalStatusPlaced, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, models.StateDecided, app.State())
	assert.Nil(t, app.CurrentRoundID)
	assert.Equal(t, models.RoundResultPlaced, app.RoundProgress[1].Result)
	assert.Equal(t, notes, app.Notes)

	app, err = svc.UpdateStatus(context.Background(), adminActor, "a1", dto.UpdateStatusRequest{FinalStatus: models.FinalStatusInProcess})
	require.NoError(t, err)
	assert.Equal(t, models.StateUnassigned, app.State())
	assert.Nil(t, app.CurrentRoundID)

	_, err = svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: "r1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))

	app, err = svc.AssignToRound(context.Background(), adminActor, "a1", dto.AdvanceRequest{NextRoundID: "r2"})
	require.NoError(t, err)
	assert.Len(t, app.RoundProgress, 2)
	assert.Equal(t, models.RoundResultPending, app.RoundProgress[1].Result)
}

func TestUpdateStatusRequiresAField(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 1, false))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(2)...), newTestClock())

	_, err := svc.UpdateStatus(context.Background(), adminActor, "a1", dto.UpdateStatusRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.UpdateStatus(context.Background(), adminActor, "a1", dto.UpdateStatusRequest{FinalStatus: "withdrawn"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestFinalizeIsIdempotent(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 2, true))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(3)...), newTestClock())

	first, err := svc.Finalize(context.Background(), adminActor, "a1", dto.FinalizeRequest{Outcome: models.FinalStatusRejected, Feedback: "communication"})
	require.NoError(t, err)
	assert.False(t, first.AlreadyFinalized)
	assert.Equal(t, models.RoundResultRejected, first.Application.RoundProgress[1].Result)
	assert.Equal(t, "communication", first.Application.RoundProgress[1].Feedback)

	second, err := svc.Finalize(context.Background(), adminActor, "a1", dto.FinalizeRequest{Outcome: models.FinalStatusRejected})
	require.NoError(t, err)
	assert.True(t, second.AlreadyFinalized)
	assert.Equal(t, first.Application.Version, second.Application.Version)
	assert.Equal(t, first.Application.RoundProgress, second.Application.RoundProgress)
	assert.Equal(t, 1, store.updates)
}

func TestFinalizeCreditsExplicitRoundAndFlipsOutcome(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 3, true))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(3)...), newTestClock())

	_, err := svc.Finalize(context.Background(), adminActor, "a1", dto.FinalizeRequest{Outcome: models.FinalStatusPlaced, RoundID: "r9"})
	assert.True(t, appErrors.Is(err, appErrors.ErrRoundNotFound))

	result, err := svc.Finalize(context.Background(), adminActor, "a1", dto.FinalizeRequest{Outcome: models.FinalStatusPlaced, RoundID: "r2"})
	require.NoError(t, err)
	assert.Equal(t, models.RoundResultPlaced, result.Application.RoundProgress[1].Result)
	assert.Nil(t, result.Application.CurrentRoundID)
	awaited := result.Application.RoundProgress[2]
	assert.Equal(t, models.RoundResultPlaced, awaited.Result, "the round being awaited is closed too")
	assert.NotNil(t, awaited.DecidedAt)

	result, err = svc.Finalize(context.Background(), adminActor, "a1", dto.FinalizeRequest{Outcome: models.FinalStatusRejected})
	require.NoError(t, err)
	assert.False(t, result.AlreadyFinalized)
	assert.Equal(t, models.FinalStatusRejected, result.Application.FinalStatus)
	assert.Equal(t, models.RoundResultRejected, result.Application.RoundProgress[1].Result)
	assert.Equal(t, models.RoundResultRejected, result.Application.RoundProgress[2].Result)
	assert.Equal(t, models.RoundResultAdvanced, result.Application.RoundProgress[0].Result)
	for _, entry := range result.Application.RoundProgress {
		assert.NotEqual(t, models.RoundResultPending, entry.Result)
	}
}

func TestFinalizeValidatesOutcome(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 1, true))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(1)...), newTestClock())

	_, err := svc.Finalize(context.Background(), adminActor, "a1", dto.FinalizeRequest{Outcome: models.FinalStatusInProcess})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestProgressOrdersBySequence(t *testing.T) {
	app := inRound("a1", "stu-1", 2, false)
	app.RoundProgress[0], app.RoundProgress[1] = app.RoundProgress[1], app.RoundProgress[0]
	store := newApplicationStoreStub(app)
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(2)...), newTestClock())

	progress, err := svc.Progress(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, progress.Rounds, 2)
	assert.Equal(t, "Round 1", progress.Rounds[0].RoundName)
	assert.False(t, progress.Rounds[0].IsCurrent)
	assert.True(t, progress.Rounds[1].IsCurrent)
	assert.Equal(t, models.StateInRound, progress.State)
}

func TestListFiltersAndPaginates(t *testing.T) {
	store := newApplicationStoreStub(inRound("a1", "stu-1", 1, false), inRound("a2", "stu-2", 2, false))
	svc := newApplicationServiceForTest(store, newRoundCatalogStub(jobRounds(2)...), newTestClock())

	items, page, err := svc.List(context.Background(), dto.ApplicationQuery{JobID: "job-1", RoundID: "r2"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a2", items[0].ID)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 50, page.PageSize)

	_, _, err = svc.List(context.Background(), dto.ApplicationQuery{JobID: "job-1", FinalStatus: "hired"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
