package models

import "time"

// Run is one engine invocation. Its proposals are cascade-deleted when the
// run is purged by the retention job.
type Run struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	RunType     RunType    `gorm:"type:varchar(16);not null" json:"run_type"`
	Status      RunStatus  `gorm:"type:varchar(16);not null;index" json:"status"`
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`

	// RunningSentinel is non-null only while the run is running. Its unique
	// index lets the database reject a second concurrent running row even
	// when two acquisitions race past the status check.
	RunningSentinel *string `gorm:"uniqueIndex" json:"-"`

	Processed     int `gorm:"default:0" json:"processed"`
	Scheduled     int `gorm:"default:0" json:"scheduled"`
	RequiringSwap int `gorm:"default:0" json:"requiring_swap"`
	Failed        int `gorm:"default:0" json:"failed"`

	ErrorMessage string `json:"error_message,omitempty"`

	Proposals []Proposal `gorm:"constraint:OnDelete:CASCADE" json:"proposals,omitempty"`
}

// Proposal is one task-level outcome of a run: either a concrete
// task-employee-datetime pairing awaiting review, or a failure row whose
// FailureReason explains why the task could not be placed.
type Proposal struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	RunID      uint           `gorm:"not null;index" json:"run_id"`
	TaskID     uint           `gorm:"not null;index" json:"task_id"`
	EmployeeID *uint          `gorm:"index" json:"employee_id,omitempty"`
	ProposedAt time.Time      `json:"proposed_at"`
	Status     ProposalStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	IsSwap          bool   `gorm:"default:false" json:"is_swap"`
	DisplacedTaskID *uint  `json:"displaced_task_id,omitempty"`
	SwapReason      string `json:"swap_reason,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`
	// Advisories records soft violations the engine accepted, so reviewers
	// can audit overrides.
	Advisories string `json:"advisories,omitempty"`

	// SubmissionRef is the idempotency key sent to the external platform,
	// minted at approval time.
	SubmissionRef   string `gorm:"type:varchar(36)" json:"submission_ref,omitempty"`
	SubmissionError string `json:"submission_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Editable reports whether a human may still change the proposal.
// Proposals are immutable once they reach the external platform.
func (p *Proposal) Editable() bool {
	return p.Status == ProposalProposed || p.Status == ProposalUserEdited
}
