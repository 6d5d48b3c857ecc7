// Package store persists runs, proposals and the business rows the engine
// reads. All run-scoped writes happen inside one transaction so a crash
// leaves consistent, resumable state.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

// ErrRunActive means another run is still in status running; only one run
// may execute at a time.
var ErrRunActive = errors.New("a scheduling run is already active")

// ErrNotFound wraps gorm's record-not-found for callers that do not want
// to import gorm.
var ErrNotFound = errors.New("record not found")

// Store wraps the database for the engine and the approval step.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by the given database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for collaborators that share the
// connection (handlers, rotation manager).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// runningSentinel is the value held in Run.RunningSentinel while a run is
// active; the column's unique index allows at most one such row.
const runningSentinel = "running"

// AcquireRun creates the run row in status running. The count check gives
// callers a clean ErrRunActive in the common case; the unique sentinel
// index backs it up when two acquisitions race under read committed.
func (s *Store) AcquireRun(ctx context.Context, runType models.RunType, startedAt time.Time) (*models.Run, error) {
	sentinel := runningSentinel
	run := &models.Run{
		RunType:         runType,
		Status:          models.RunRunning,
		StartedAt:       startedAt,
		RunningSentinel: &sentinel,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.Run{}).
			Where("status = ?", models.RunRunning).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrRunActive
		}
		return tx.Create(run).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrRunActive
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RunOutcome is everything a finished run writes back in one transaction.
type RunOutcome struct {
	Status       models.RunStatus
	ErrorMessage string
	CompletedAt  time.Time

	// NewTasks are tasks the engine synthesized (supervisor pairings);
	// they are created first so proposals can reference their IDs.
	NewTasks []*models.Task
	// Proposals reference tasks either by TaskID or, for synthesized
	// tasks, through the NewTaskIndex mapping (index into NewTasks).
	Proposals []*models.Proposal
	// NewTaskIndex maps a proposal's position to the NewTasks entry whose
	// generated ID it must adopt; absent positions keep their TaskID.
	NewTaskIndex map[int]int
	// BumpCounts carries updated lifetime displacement counters by task ID.
	BumpCounts map[uint]int

	Processed     int
	Scheduled     int
	RequiringSwap int
	Failed        int
}

// FinishRun persists a run's outcome atomically: synthesized tasks, all
// proposals, bump counters and the terminal run row.
func (s *Store) FinishRun(ctx context.Context, run *models.Run, out RunOutcome) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range out.NewTasks {
			if err := tx.Create(t).Error; err != nil {
				return err
			}
		}
		for i, p := range out.Proposals {
			if idx, ok := out.NewTaskIndex[i]; ok {
				p.TaskID = out.NewTasks[idx].ID
			}
			p.RunID = run.ID
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		for taskID, count := range out.BumpCounts {
			if err := tx.Model(&models.Task{}).
				Where("id = ?", taskID).
				Update("bump_count", count).Error; err != nil {
				return err
			}
		}

		completed := out.CompletedAt
		run.Status = out.Status
		run.RunningSentinel = nil
		run.CompletedAt = &completed
		run.ErrorMessage = out.ErrorMessage
		run.Processed = out.Processed
		run.Scheduled = out.Scheduled
		run.RequiringSwap = out.RequiringSwap
		run.Failed = out.Failed
		return tx.Save(run).Error
	})
}

// GetRun loads a run with its proposals.
func (s *Store) GetRun(ctx context.Context, id uint) (*models.Run, error) {
	var run models.Run
	err := s.db.WithContext(ctx).Preload("Proposals").First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	var runs []models.Run
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// StaleRuns lists runs stuck in status running since before the cutoff.
// They are surfaced for explicit human resolution, never auto-cleaned.
func (s *Store) StaleRuns(ctx context.Context, olderThan time.Duration, now time.Time) ([]models.Run, error) {
	var runs []models.Run
	err := s.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", models.RunRunning, now.Add(-olderThan)).
		Order("started_at ASC").
		Find(&runs).Error
	return runs, err
}

// DismissRun marks a stuck running run as crashed. Only running runs may
// be dismissed.
func (s *Store) DismissRun(ctx context.Context, id uint) (*models.Run, error) {
	var run models.Run
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&run, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if run.Status != models.RunRunning {
			return errors.New("only running runs can be dismissed")
		}
		run.Status = models.RunCrashed
		run.RunningSentinel = nil
		now := time.Now()
		run.CompletedAt = &now
		return tx.Save(&run).Error
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// PurgeRunsBefore deletes runs started before the cutoff; their proposals
// go with them.
func (s *Store) PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("started_at < ? AND status <> ?", cutoff, models.RunRunning).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id IN ?", ids).Delete(&models.Proposal{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.Run{}).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}
