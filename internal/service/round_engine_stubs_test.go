package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/internal/repository"
)

var testEpoch = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialCodes() CodeGenerator {
	var (
		mu sync.Mutex
		n  int
	)
	return func(length int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("c%0*d", length-1, n), nil
	}
}

type roundCatalogStub struct {
	rounds map[string]models.JobRound
}

func newRoundCatalogStub(rounds ...models.JobRound) *roundCatalogStub {
	stub := &roundCatalogStub{rounds: make(map[string]models.JobRound)}
	for _, round := range rounds {
		stub.rounds[round.ID] = round
	}
	return stub
}

func (s *roundCatalogStub) GetByID(ctx context.Context, id string) (*models.JobRound, error) {
	round, ok := s.rounds[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &round, nil
}

func (s *roundCatalogStub) ListByJob(ctx context.Context, jobID string) ([]models.JobRound, error) {
	var rounds []models.JobRound
	for _, round := range s.rounds {
		if round.JobID == jobID {
			rounds = append(rounds, round)
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Sequence < rounds[j].Sequence })
	return rounds, nil
}

// jobRounds builds rounds r1..rn for job-1 with sequences 1..n.
func jobRounds(n int) []models.JobRound {
	rounds := make([]models.JobRound, 0, n)
	for i := 1; i <= n; i++ {
		rounds = append(rounds, models.JobRound{
			ID:       fmt.Sprintf("r%d", i),
			JobID:    "job-1",
			Sequence: i,
			Name:     fmt.Sprintf("Round %d", i),
			Mode:     models.RoundModeOffline,
		})
	}
	return rounds
}

type applicationStoreStub struct {
	mu      sync.Mutex
	apps    map[string]*models.Application
	updates int
	// staleUpdates makes the next N updates lose to a simulated concurrent writer.
	staleUpdates int
}

func newApplicationStoreStub(apps ...*models.Application) *applicationStoreStub {
	stub := &applicationStoreStub{apps: make(map[string]*models.Application)}
	for _, app := range apps {
		stub.apps[app.ID] = app.Clone()
	}
	return stub
}

func (s *applicationStoreStub) GetByID(ctx context.Context, id string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return app.Clone(), nil
}

func (s *applicationStoreStub) GetByStudentAndJob(ctx context.Context, studentID, jobID string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.apps {
		if app.StudentID == studentID && app.JobID == jobID {
			return app.Clone(), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *applicationStoreStub) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Application
	for _, app := range s.apps {
		if app.JobID != filter.JobID {
			continue
		}
		if filter.RoundID != "" && app.RoundProgress.Find(filter.RoundID) < 0 {
			continue
		}
		if filter.FinalStatus != nil && app.FinalStatus != *filter.FinalStatus {
			continue
		}
		result = append(result, *app.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, len(result), nil
}

func (s *applicationStoreStub) Update(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.apps[app.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if s.staleUpdates > 0 {
		s.staleUpdates--
		stored.Version++
		return repository.ErrStaleVersion
	}
	if stored.Version != app.Version {
		return repository.ErrStaleVersion
	}
	app.Version++
	s.apps[app.ID] = app.Clone()
	s.updates++
	return nil
}

func (s *applicationStoreStub) get(id string) *models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apps[id].Clone()
}

type sessionStoreStub struct {
	mu       sync.Mutex
	sessions map[string]models.AttendanceSession
}

func newSessionStoreStub() *sessionStoreStub {
	return &sessionStoreStub{sessions: make(map[string]models.AttendanceSession)}
}

func (s *sessionStoreStub) Get(ctx context.Context, roundID string) (*models.AttendanceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[roundID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

func (s *sessionStoreStub) Upsert(ctx context.Context, session *models.AttendanceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Version = s.sessions[session.RoundID].Version + 1
	s.sessions[session.RoundID] = *session
	return nil
}

func (s *sessionStoreStub) CompareAndSwap(ctx context.Context, session *models.AttendanceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.RoundID]
	if !ok || stored.Version != session.Version {
		return repository.ErrStaleVersion
	}
	session.Version++
	s.sessions[session.RoundID] = *session
	return nil
}

func (s *sessionStoreStub) ConsumeOfflineCode(ctx context.Context, roundID, code string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[roundID]
	if !ok || !stored.Active() || !stored.OfflineCodeEnabled || stored.OfflineCode == nil ||
		*stored.OfflineCode != code || stored.OfflineCodeUsedAt != nil {
		return false, nil
	}
	stored.OfflineCodeUsedAt = &usedAt
	stored.Version++
	s.sessions[roundID] = stored
	return true, nil
}

type directoryStub struct {
	refs  []models.StudentRef
	calls int
}

func (d *directoryStub) ResolveStudents(ctx context.Context, jobID string, emails, rollNos []string) ([]models.StudentRef, error) {
	d.calls++
	wanted := make(map[string]struct{})
	for _, v := range append(append([]string{}, emails...), rollNos...) {
		wanted[v] = struct{}{}
	}
	var out []models.StudentRef
	for _, ref := range d.refs {
		_, byEmail := wanted[ref.Email]
		_, byRoll := wanted[ref.RollNo]
		if byEmail || byRoll {
			out = append(out, ref)
		}
	}
	return out, nil
}

type auditLogStub struct {
	mu   sync.Mutex
	logs []*models.AuditEntry
}

func (a *auditLogStub) Append(ctx context.Context, log *models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditLogStub) actions() []models.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AuditAction, 0, len(a.logs))
	for _, log := range a.logs {
		out = append(out, log.Action)
	}
	return out
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

// inRound builds an application of job-1 sitting in round rN with a pending ledger entry per reached round.
func inRound(id, studentID string, seq int, attended bool) *models.Application {
	app := &models.Application{
		ID:          id,
		StudentID:   studentID,
		JobID:       "job-1",
		FinalStatus: models.FinalStatusInProcess,
		Version:     1,
	}
	for i := 1; i <= seq; i++ {
		entry := models.RoundProgressEntry{RoundID: fmt.Sprintf("r%d", i), Sequence: i, Result: models.RoundResultAdvanced, Attendance: true}
		if i == seq {
			entry.Result = models.RoundResultPending
			entry.Attendance = attended
		}
		app.RoundProgress = append(app.RoundProgress, entry)
	}
	app.CurrentRoundID = strPtr(fmt.Sprintf("r%d", seq))
	app.CurrentRoundSequence = intPtr(seq)
	return app
}
