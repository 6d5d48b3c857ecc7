package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

// ActiveEmployees loads the roster snapshot for a run, with overrides and
// time-off preloaded.
func (s *Store) ActiveEmployees(ctx context.Context) ([]models.Employee, error) {
	var emps []models.Employee
	err := s.db.WithContext(ctx).
		Preload("Overrides").
		Preload("TimeOff").
		Where("active = ?", true).
		Order("id ASC").
		Find(&emps).Error
	return emps, err
}

// EligibleTasks returns unscheduled tasks whose window contains the first
// proposable day (pivot = today plus the minimum lead time).
func (s *Store) EligibleTasks(ctx context.Context, pivot time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.WithContext(ctx).
		Where("scheduled = ?", false).
		Where("earliest <= ? AND latest > ?", pivot, pivot).
		Order("latest ASC, id ASC").
		Find(&tasks).Error
	return tasks, err
}

// AssignmentsBetween loads committed work intersecting [from, to).
func (s *Store) AssignmentsBetween(ctx context.Context, from, to time.Time) ([]models.Assignment, error) {
	var asgs []models.Assignment
	err := s.db.WithContext(ctx).
		Where("starts_at >= ? AND starts_at < ?", from, to).
		Find(&asgs).Error
	return asgs, err
}

// GetTask loads one task.
func (s *Store) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	var t models.Task
	err := s.db.WithContext(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetEmployee loads one employee with availability preloaded.
func (s *Store) GetEmployee(ctx context.Context, id uint) (*models.Employee, error) {
	var e models.Employee
	err := s.db.WithContext(ctx).
		Preload("Overrides").
		Preload("TimeOff").
		First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetProposal loads one proposal.
func (s *Store) GetProposal(ctx context.Context, id uint) (*models.Proposal, error) {
	var p models.Proposal
	err := s.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProposal persists proposal mutations made by review or submission.
func (s *Store) SaveProposal(ctx context.Context, p *models.Proposal) error {
	return s.db.WithContext(ctx).Save(p).Error
}

// SiblingProposals returns the other proposals of a run, for re-validating
// an edit against in-run capacity.
func (s *Store) SiblingProposals(ctx context.Context, runID, exceptID uint) ([]models.Proposal, error) {
	var props []models.Proposal
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND id <> ?", runID, exceptID).
		Find(&props).Error
	return props, err
}

// SaveRun persists run mutations (approval stamp, counters).
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	return s.db.WithContext(ctx).Save(run).Error
}

// MarkRunApproved stamps the run and moves its reviewable proposals to
// approved in one transaction, so a crash between approval and submission
// leaves a state distinguishable from unreviewed.
func (s *Store) MarkRunApproved(ctx context.Context, run *models.Run, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Run{}).
			Where("id = ?", run.ID).
			Update("approved_at", at).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Proposal{}).
			Where("run_id = ? AND status IN ? AND employee_id IS NOT NULL",
				run.ID, []models.ProposalStatus{models.ProposalProposed, models.ProposalUserEdited}).
			Update("status", models.ProposalApproved).Error; err != nil {
			return err
		}
		run.ApprovedAt = &at
		return nil
	})
}

// CommitProposal writes the authoritative state after a successful
// submission: the committed assignment and the task's scheduled flag, in
// one transaction with the proposal update.
func (s *Store) CommitProposal(ctx context.Context, p *models.Proposal, task *models.Task) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		asg := models.Assignment{
			TaskID:          p.TaskID,
			EmployeeID:      *p.EmployeeID,
			Kind:            task.Kind,
			StartsAt:        p.ProposedAt,
			DurationMinutes: task.DurationMinutes,
		}
		if err := tx.Create(&asg).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Task{}).
			Where("id = ?", task.ID).
			Update("scheduled", true).Error; err != nil {
			return err
		}
		return tx.Save(p).Error
	})
}

// GetAssignment loads one committed assignment.
func (s *Store) GetAssignment(ctx context.Context, id uint) (*models.Assignment, error) {
	var a models.Assignment
	err := s.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// PairedAssignment finds the committed supervisor-pairing assignment whose
// task is the child of the given core task, or nil when none exists.
func (s *Store) PairedAssignment(ctx context.Context, coreTaskID uint) (*models.Assignment, error) {
	var child models.Task
	err := s.db.WithContext(ctx).
		Where("parent_task_id = ? AND kind = ?", coreTaskID, models.KindSupervisorPairing).
		First(&child).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var asg models.Assignment
	err = s.db.WithContext(ctx).Where("task_id = ?", child.ID).First(&asg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asg, nil
}

// UnscheduleAssignment removes a committed assignment and reopens its task.
func (s *Store) UnscheduleAssignment(ctx context.Context, a *models.Assignment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Assignment{}, a.ID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Task{}).
			Where("id = ?", a.TaskID).
			Update("scheduled", false).Error
	})
}

// RescheduleAssignment moves a committed assignment to a new start.
func (s *Store) RescheduleAssignment(ctx context.Context, a *models.Assignment, newStart time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ?", a.ID).
		Update("starts_at", newStart).Error
}

// SetTaskExternalRef updates the external system's task reference.
func (s *Store) SetTaskExternalRef(ctx context.Context, taskID uint, ref string) error {
	return s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", taskID).
		Update("external_ref", ref).Error
}
