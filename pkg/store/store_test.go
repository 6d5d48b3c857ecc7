package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldworks/event-scheduler-go/pkg/database"
	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

func setupTestStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return New(db)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAcquireRunIsSingleFlight(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := day(2025, 2, 3)

	first, err := s.AcquireRun(ctx, models.RunScheduled, now)
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	assert.Equal(t, models.RunRunning, first.Status)

	_, err = s.AcquireRun(ctx, models.RunManual, now)
	assert.ErrorIs(t, err, ErrRunActive)

	// Finishing the first run frees the slot.
	require.NoError(t, s.FinishRun(ctx, first, RunOutcome{
		Status: models.RunCompleted, CompletedAt: now.Add(time.Minute),
		NewTaskIndex: map[int]int{},
	}))
	_, err = s.AcquireRun(ctx, models.RunManual, now)
	assert.NoError(t, err)
}

func TestAcquireRunSingleFlightIsEnforcedByTheDatabase(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := day(2025, 2, 3)

	first, err := s.AcquireRun(ctx, models.RunScheduled, now)
	require.NoError(t, err)

	// Insert a second running row directly, bypassing the status count a
	// racing acquisition could slip past: the unique sentinel index rejects
	// it at the database.
	sentinel := runningSentinel
	err = s.db.Create(&models.Run{
		RunType:         models.RunManual,
		Status:          models.RunRunning,
		StartedAt:       now,
		RunningSentinel: &sentinel,
	}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// A finished run releases the sentinel, so the next acquisition gets a
	// fresh one without colliding with the old row.
	require.NoError(t, s.FinishRun(ctx, first, RunOutcome{
		Status: models.RunCompleted, CompletedAt: now.Add(time.Minute),
		NewTaskIndex: map[int]int{},
	}))
	var reloaded models.Run
	require.NoError(t, s.db.First(&reloaded, first.ID).Error)
	assert.Nil(t, reloaded.RunningSentinel)

	_, err = s.AcquireRun(ctx, models.RunManual, now)
	assert.NoError(t, err)
}

func TestFinishRunPersistsEverythingAtOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := day(2025, 2, 3)

	core := models.Task{Name: "aisle reset", Kind: models.KindCore,
		Earliest: now, Latest: now.AddDate(0, 0, 7), DurationMinutes: 120}
	require.NoError(t, s.db.Create(&core).Error)
	bumped := models.Task{Name: "signage", Kind: models.KindOther,
		Earliest: now, Latest: now.AddDate(0, 0, 9), DurationMinutes: 60}
	require.NoError(t, s.db.Create(&bumped).Error)

	run, err := s.AcquireRun(ctx, models.RunScheduled, now)
	require.NoError(t, err)

	empID := uint(4)
	pairing := &models.Task{Name: "aisle reset supervisor pairing",
		Kind: models.KindSupervisorPairing, ParentTaskID: &core.ID,
		Earliest: now, Latest: now.AddDate(0, 0, 1), DurationMinutes: 120}

	out := RunOutcome{
		Status:      models.RunCompleted,
		CompletedAt: now.Add(time.Minute),
		NewTasks:    []*models.Task{pairing},
		Proposals: []*models.Proposal{
			{TaskID: core.ID, EmployeeID: &empID, ProposedAt: now.Add(10 * time.Hour), Status: models.ProposalProposed},
			{EmployeeID: &empID, ProposedAt: now.Add(10 * time.Hour), Status: models.ProposalProposed},
		},
		NewTaskIndex:  map[int]int{1: 0},
		BumpCounts:    map[uint]int{bumped.ID: 1},
		Processed:     2,
		Scheduled:     2,
		RequiringSwap: 0,
		Failed:        0,
	}
	require.NoError(t, s.FinishRun(ctx, run, out))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.Len(t, got.Proposals, 2)

	// The second proposal adopted the synthesized task's generated ID.
	require.NotZero(t, pairing.ID)
	assert.Equal(t, pairing.ID, got.Proposals[1].TaskID)

	var reloaded models.Task
	require.NoError(t, s.db.First(&reloaded, bumped.ID).Error)
	assert.Equal(t, 1, reloaded.BumpCount)
}

func TestEligibleTasksWindowQuery(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	pivot := day(2025, 2, 6)

	inWindow := models.Task{Kind: models.KindCore, Earliest: day(2025, 2, 4), Latest: day(2025, 2, 10)}
	opensLater := models.Task{Kind: models.KindCore, Earliest: day(2025, 2, 7), Latest: day(2025, 2, 12)}
	closesAtPivot := models.Task{Kind: models.KindCore, Earliest: day(2025, 2, 1), Latest: pivot}
	alreadyDone := models.Task{Kind: models.KindCore, Earliest: day(2025, 2, 4), Latest: day(2025, 2, 10), Scheduled: true}
	for _, tk := range []*models.Task{&inWindow, &opensLater, &closesAtPivot, &alreadyDone} {
		require.NoError(t, s.db.Create(tk).Error)
	}

	tasks, err := s.EligibleTasks(ctx, pivot)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, inWindow.ID, tasks[0].ID)
}

func TestStaleRunsAndDismiss(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := day(2025, 2, 3).Add(12 * time.Hour)

	stuck, err := s.AcquireRun(ctx, models.RunScheduled, now.Add(-3*time.Hour))
	require.NoError(t, err)

	runs, err := s.StaleRuns(ctx, 2*time.Hour, now)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, stuck.ID, runs[0].ID)

	dismissed, err := s.DismissRun(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCrashed, dismissed.Status)

	// A terminal run cannot be dismissed again.
	_, err = s.DismissRun(ctx, stuck.ID)
	assert.Error(t, err)
}

func TestPurgeRunsBeforeSkipsRunning(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := day(2025, 3, 1)

	old, err := s.AcquireRun(ctx, models.RunScheduled, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	empID := uint(1)
	require.NoError(t, s.FinishRun(ctx, old, RunOutcome{
		Status: models.RunCompleted, CompletedAt: now.AddDate(0, 0, -30),
		Proposals:    []*models.Proposal{{TaskID: 1, EmployeeID: &empID, Status: models.ProposalProposed}},
		NewTaskIndex: map[int]int{},
	}))

	stuck, err := s.AcquireRun(ctx, models.RunScheduled, now.AddDate(0, 0, -28))
	require.NoError(t, err)

	n, err := s.PurgeRunsBefore(ctx, now.AddDate(0, 0, -21))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetRun(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetRun(ctx, stuck.ID)
	assert.NoError(t, err)

	var orphaned int64
	require.NoError(t, s.db.Model(&models.Proposal{}).Where("run_id = ?", old.ID).Count(&orphaned).Error)
	assert.Zero(t, orphaned)
}

func TestCommitProposalWritesAssignmentAndFlipsTask(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := day(2025, 2, 3)

	task := models.Task{Kind: models.KindCore, Earliest: now, Latest: now.AddDate(0, 0, 7), DurationMinutes: 120}
	require.NoError(t, s.db.Create(&task).Error)

	empID := uint(9)
	prop := &models.Proposal{RunID: 1, TaskID: task.ID, EmployeeID: &empID,
		ProposedAt: now.Add(10 * time.Hour), Status: models.ProposalSubmitted}
	require.NoError(t, s.db.Create(prop).Error)

	require.NoError(t, s.CommitProposal(ctx, prop, &task))

	var asg models.Assignment
	require.NoError(t, s.db.Where("task_id = ?", task.ID).First(&asg).Error)
	assert.Equal(t, empID, asg.EmployeeID)
	assert.Equal(t, models.KindCore, asg.Kind)

	var reloaded models.Task
	require.NoError(t, s.db.First(&reloaded, task.ID).Error)
	assert.True(t, reloaded.Scheduled)
}

func TestUnscheduleReopensTask(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := day(2025, 2, 3)

	task := models.Task{Kind: models.KindCore, Earliest: now, Latest: now.AddDate(0, 0, 7), Scheduled: true}
	require.NoError(t, s.db.Create(&task).Error)
	asg := models.Assignment{TaskID: task.ID, EmployeeID: 9, Kind: models.KindCore,
		StartsAt: now.Add(10 * time.Hour), DurationMinutes: 120}
	require.NoError(t, s.db.Create(&asg).Error)

	require.NoError(t, s.UnscheduleAssignment(ctx, &asg))

	_, err := s.GetAssignment(ctx, asg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	var reloaded models.Task
	require.NoError(t, s.db.First(&reloaded, task.ID).Error)
	assert.False(t, reloaded.Scheduled)
}

func TestPairedAssignmentLookup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := day(2025, 2, 3)

	core := models.Task{Kind: models.KindCore, Earliest: now, Latest: now.AddDate(0, 0, 7)}
	require.NoError(t, s.db.Create(&core).Error)

	// No pairing yet.
	got, err := s.PairedAssignment(ctx, core.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	child := models.Task{Kind: models.KindSupervisorPairing, ParentTaskID: &core.ID,
		Earliest: now, Latest: now.AddDate(0, 0, 1)}
	require.NoError(t, s.db.Create(&child).Error)
	asg := models.Assignment{TaskID: child.ID, EmployeeID: 7, Kind: models.KindSupervisorPairing,
		StartsAt: now.Add(10 * time.Hour), DurationMinutes: 120}
	require.NoError(t, s.db.Create(&asg).Error)

	got, err = s.PairedAssignment(ctx, core.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, asg.ID, got.ID)
}
