// Package approval implements the human review step between a run and the
// external platform: editing proposals, approving a run, and submitting
// its shifts.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
	"github.com/fieldworks/event-scheduler-go/pkg/platform"
	"github.com/fieldworks/event-scheduler-go/pkg/rules"
	"github.com/fieldworks/event-scheduler-go/pkg/store"
)

// ErrNotEditable means the proposal has already reached the platform or is
// a failure row.
var ErrNotEditable = errors.New("proposal can no longer be edited")

// ErrNotApprovable means the run is not in a state that allows approval.
var ErrNotApprovable = errors.New("only completed runs can be approved")

// ErrNotRetryable means the proposal is not in submit_failed.
var ErrNotRetryable = errors.New("only failed submissions can be retried")

// Service carries reviewers' decisions through validation and out to the
// platform.
type Service struct {
	store     *store.Store
	validator *rules.Validator
	submitter platform.Submitter
	log       *zap.Logger
}

// NewService wires the approval workflow.
func NewService(st *store.Store, val *rules.Validator, sub platform.Submitter, log *zap.Logger) *Service {
	return &Service{store: st, validator: val, submitter: sub, log: log}
}

// EditProposal reassigns a proposal to a new employee and start time. The
// edit is re-validated against committed assignments and the run's other
// proposals; hard violations reject it, soft ones are recorded as
// advisories.
func (s *Service) EditProposal(ctx context.Context, proposalID, employeeID uint, startsAt time.Time) (*models.Proposal, error) {
	prop, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !prop.Editable() {
		return nil, ErrNotEditable
	}

	task, err := s.store.GetTask(ctx, prop.TaskID)
	if err != nil {
		return nil, err
	}
	if !task.WindowContains(startsAt) {
		return nil, fmt.Errorf("%s is outside the task window [%s, %s)",
			startsAt.Format(time.RFC3339),
			task.Earliest.Format("2006-01-02"), task.Latest.Format("2006-01-02"))
	}

	emp, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	state, err := s.reviewState(ctx, prop, startsAt)
	if err != nil {
		return nil, err
	}

	res := s.validator.Validate(*task, *emp, startsAt, state)
	if !res.OK {
		hard := res.Hard()
		msgs := make([]string, len(hard))
		for i, v := range hard {
			msgs[i] = v.Message
		}
		return nil, fmt.Errorf("edit rejected: %v", msgs)
	}

	prop.EmployeeID = &employeeID
	prop.ProposedAt = startsAt
	prop.Status = models.ProposalUserEdited
	prop.Advisories = res.Advisories()
	if err := s.store.SaveProposal(ctx, prop); err != nil {
		return nil, err
	}
	s.log.Info("proposal edited",
		zap.Uint("proposal_id", prop.ID),
		zap.Uint("employee_id", employeeID))
	return prop, nil
}

// reviewState rebuilds the capacity picture an edit must be checked
// against: committed assignments around the new date plus the run's other
// still-standing proposals.
func (s *Service) reviewState(ctx context.Context, prop *models.Proposal, startsAt time.Time) (*rules.State, error) {
	date := models.DateOf(startsAt)
	assignments, err := s.store.AssignmentsBetween(ctx, date.AddDate(0, 0, -1), date.AddDate(0, 0, 2))
	if err != nil {
		return nil, err
	}

	state := rules.NewState()
	for _, a := range assignments {
		state.AddAssignment(a)
	}

	siblings, err := s.store.SiblingProposals(ctx, prop.RunID, prop.ID)
	if err != nil {
		return nil, err
	}
	for _, sib := range siblings {
		if sib.EmployeeID == nil || sib.Status == models.ProposalFailed || sib.Status == models.ProposalSubmitted {
			// Submitted siblings are already committed assignments.
			continue
		}
		t, err := s.store.GetTask(ctx, sib.TaskID)
		if err != nil {
			return nil, err
		}
		state.AddProposal(sib.TaskID, t.Kind, *sib.EmployeeID, sib.ProposedAt, t.Duration())
	}
	return state, nil
}

// ApproveRun stamps the run and its reviewable proposals approved in one
// transaction, then submits the approved proposals to the platform one by
// one. A failed submission marks only that proposal submit_failed; earlier
// successes stand and later proposals still go out. Calling it again
// resumes proposals left approved by an earlier crash.
func (s *Service) ApproveRun(ctx context.Context, runID uint) (*models.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunCompleted {
		return nil, ErrNotApprovable
	}

	if run.ApprovedAt == nil {
		if err := s.store.MarkRunApproved(ctx, run, time.Now()); err != nil {
			return nil, err
		}
		run, err = s.store.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
	}

	var submitted, failed int
	for i := range run.Proposals {
		p := &run.Proposals[i]
		if p.Status != models.ProposalApproved || p.EmployeeID == nil {
			continue
		}
		if err := s.submitOne(ctx, p); err != nil {
			failed++
			continue
		}
		submitted++
	}

	s.log.Info("run approved",
		zap.Uint("run_id", run.ID),
		zap.Int("submitted", submitted),
		zap.Int("submit_failed", failed))
	return run, nil
}

// RetrySubmission re-attempts a single failed submission.
func (s *Service) RetrySubmission(ctx context.Context, proposalID uint) (*models.Proposal, error) {
	prop, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if prop.Status != models.ProposalSubmitFailed {
		return nil, ErrNotRetryable
	}
	if err := s.submitOne(ctx, prop); err != nil {
		return prop, err
	}
	return prop, nil
}

// submitOne pushes a proposal to the platform and records the outcome. The
// submission reference is minted once and reused on retries so the
// platform can deduplicate.
func (s *Service) submitOne(ctx context.Context, p *models.Proposal) error {
	task, err := s.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return err
	}
	if p.SubmissionRef == "" {
		p.SubmissionRef = uuid.NewString()
	}

	err = s.submitter.Submit(ctx, platform.ShiftSubmission{
		Reference:       p.SubmissionRef,
		TaskID:          p.TaskID,
		EmployeeID:      *p.EmployeeID,
		StartsAt:        p.ProposedAt,
		DurationMinutes: task.DurationMinutes,
		Kind:            string(task.Kind),
	})
	if err != nil {
		p.Status = models.ProposalSubmitFailed
		p.SubmissionError = err.Error()
		if saveErr := s.store.SaveProposal(ctx, p); saveErr != nil {
			return saveErr
		}
		s.log.Warn("submission failed",
			zap.Uint("proposal_id", p.ID),
			zap.Error(err))
		return err
	}

	p.Status = models.ProposalSubmitted
	p.SubmissionError = ""
	if err := s.store.CommitProposal(ctx, p, task); err != nil {
		return err
	}
	s.log.Info("shift submitted",
		zap.Uint("proposal_id", p.ID),
		zap.String("submission_ref", p.SubmissionRef))
	return nil
}
