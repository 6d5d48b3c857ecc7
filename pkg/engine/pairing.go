package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

// pairingOffset places the derived supervisor shift a fixed two hours
// after its core shift's start. The cascade for rescheduled core work uses
// the same offset.
const pairingOffset = 2 * time.Hour

// derivePairings emits one fixed-duration supervisor shift for every core
// proposal made this run, starting at the core start plus the fixed
// offset. Monday through Friday the shift goes to the supervisor pool; on
// weekends it goes to a lead already working core that day, falling back
// to a supervisor.
func (p *pass) derivePairings() {
	for _, cp := range p.corePlacements {
		// A placement withdrawn by a displacement derives nothing; if the
		// task was re-placed, its newer placement carries the pairing.
		if p.removed[cp.prop] {
			continue
		}
		parent, ok := p.taskIndex[cp.taskID]
		if !ok {
			continue
		}
		p.processed++

		when := cp.when.Add(pairingOffset)
		parentID := parent.ID
		date := models.DateOf(cp.when)
		child := &models.Task{
			Name:            parent.Name + " supervisor pairing",
			Kind:            models.KindSupervisorPairing,
			Earliest:        date,
			Latest:          date.AddDate(0, 0, 1),
			ParentTaskID:    &parentID,
			DurationMinutes: p.e.cfg.SupervisorDurationMinutes,
		}

		pool := p.pairingPool(cp.when)
		eligible := p.e.validator.Eligible(*child, when, pool, p.state)
		if len(eligible) == 0 {
			prop := &models.Proposal{
				Status:        models.ProposalFailed,
				FailureReason: "no supervisor available for core pairing",
			}
			p.proposals = append(p.proposals, prop)
			p.pairTask[prop] = child
			p.failed++
			p.e.log.Warn("pairing not placed", zap.Uint("core_task", parent.ID))
			continue
		}

		chosen := eligible[0]
		res := p.e.validator.Validate(*child, chosen, when, p.state)
		empID := chosen.ID
		prop := &models.Proposal{
			EmployeeID: &empID,
			ProposedAt: when,
			Status:     models.ProposalProposed,
			Advisories: res.Advisories(),
		}
		p.proposals = append(p.proposals, prop)
		p.pairTask[prop] = child

		// Pseudo ID keeps the state internally consistent; the real task
		// ID is assigned when the outcome is persisted.
		p.pseudoID++
		p.state.AddProposal(p.pseudoID, models.KindSupervisorPairing, empID, when, child.Duration())
		p.placed++
	}
}

// pairingPool applies the day-of-week assignment rule for derived
// supervisor shifts.
func (p *pass) pairingPool(when time.Time) []models.Employee {
	wd := when.Weekday()
	if wd >= time.Monday && wd <= time.Friday {
		return p.byRole[models.RoleSupervisor]
	}

	date := models.DateOf(when)
	var workingLeads []models.Employee
	for _, emp := range p.byRole[models.RoleLead] {
		if p.state.HasKindOn(emp.ID, models.KindCore, date) {
			workingLeads = append(workingLeads, emp)
		}
	}
	if len(workingLeads) > 0 {
		return concat(workingLeads, p.byRole[models.RoleSupervisor])
	}
	return p.byRole[models.RoleSupervisor]
}
