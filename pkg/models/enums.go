package models

// Role is the closed set of employee roles.
type Role string

const (
	RoleGeneralist       Role = "generalist"
	RoleLead             Role = "lead"
	RoleSupervisor       Role = "supervisor"
	RoleSpecialtyBarista Role = "specialty_barista"
)

// TaskKind is the closed set of work types the engine schedules.
type TaskKind string

const (
	KindCore              TaskKind = "core"
	KindSupervisorPairing TaskKind = "supervisor_pairing"
	KindSpecialtyBarista  TaskKind = "specialty_barista"
	KindLeadSetup         TaskKind = "lead_setup"
	KindLeadRefresh       TaskKind = "lead_refresh"
	KindLeadTeardown      TaskKind = "lead_teardown"
	KindKiosk             TaskKind = "kiosk"
	KindOther             TaskKind = "other"
)

// kindRank orders kinds by scheduling priority. Lower rank is scheduled
// earlier and is the last to be displaced.
var kindRank = map[TaskKind]int{
	KindSpecialtyBarista:  0,
	KindLeadSetup:         1,
	KindLeadRefresh:       1,
	KindKiosk:             2,
	KindLeadTeardown:      3,
	KindCore:              4,
	KindSupervisorPairing: 5,
	KindOther:             6,
}

// Rank returns the priority rank for the kind. Unknown kinds sort last.
func (k TaskKind) Rank() int {
	if r, ok := kindRank[k]; ok {
		return r
	}
	return len(kindRank)
}

// allowedRoles maps each task kind to the roles that may work it.
// Supervisors appear under core so that a supervisor on core work is an
// advisory, not a hard block.
var allowedRoles = map[TaskKind]map[Role]bool{
	KindCore:              {RoleGeneralist: true, RoleLead: true, RoleSpecialtyBarista: true, RoleSupervisor: true},
	KindSupervisorPairing: {RoleSupervisor: true, RoleLead: true},
	KindSpecialtyBarista:  {RoleSpecialtyBarista: true},
	KindLeadSetup:         {RoleLead: true, RoleSupervisor: true},
	KindLeadRefresh:       {RoleLead: true, RoleSupervisor: true},
	KindLeadTeardown:      {RoleLead: true, RoleSupervisor: true},
	KindKiosk:             {RoleLead: true, RoleSupervisor: true},
	KindOther:             {RoleGeneralist: true, RoleLead: true, RoleSupervisor: true, RoleSpecialtyBarista: true},
}

// Allows reports whether the role may be assigned work of this kind.
func (k TaskKind) Allows(r Role) bool {
	return allowedRoles[k][r]
}

// RotationType identifies a standing weekly duty rotation.
type RotationType string

const (
	RotationSpecialtyBarista RotationType = "specialty_barista"
	RotationPrimaryLead      RotationType = "primary_lead"
)

// RunType distinguishes timer-triggered runs from operator-triggered ones.
type RunType string

const (
	RunScheduled RunType = "scheduled"
	RunManual    RunType = "manual"
)

// RunStatus is the run state machine: running terminates in exactly one of
// completed, failed or crashed.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCrashed   RunStatus = "crashed"
)

// ProposalStatus tracks a proposal from engine output through human review
// to external submission.
type ProposalStatus string

const (
	ProposalProposed     ProposalStatus = "proposed"
	ProposalUserEdited   ProposalStatus = "user_edited"
	ProposalApproved     ProposalStatus = "approved"
	ProposalSubmitted    ProposalStatus = "submitted"
	ProposalSubmitFailed ProposalStatus = "submit_failed"
	// ProposalFailed marks tasks the engine could not place at all; these
	// rows carry FailureReason and are skipped by approval.
	ProposalFailed ProposalStatus = "failed"
)
