// Package conflict selects which lower-priority slot to give up when a
// more urgent task finds no free capacity. Displacement is bounded: work
// close to its deadline is protected, and any single task is displaced at
// most a fixed number of times over its lifetime.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

// Resolver holds the displacement safety limits.
type Resolver struct {
	// MaxBumps is the per-task lifetime displacement cap.
	MaxBumps int
	// ProtectionDays shields tasks whose window closes within this many
	// days; a displaced task must have room to be rescheduled.
	ProtectionDays int
}

// New returns a Resolver with the given limits.
func New(maxBumps, protectionDays int) *Resolver {
	return &Resolver{MaxBumps: maxBumps, ProtectionDays: protectionDays}
}

// Target is the slot selected for displacement.
type Target struct {
	Proposal *models.Proposal
	Task     models.Task
	Reason   string
}

// SelectTarget picks the in-run proposal to displace so the blocked task
// can be placed. Candidates are proposals held by employees who are
// role-eligible for the blocked task; near-deadline and bump-capped tasks
// are excluded. Among the rest the least urgent (largest days-remaining)
// loses; ties break on lowest kind priority, then ascending task ID.
// Returns nil when nothing may be displaced.
func (r *Resolver) SelectTarget(
	blocked models.Task,
	pool []models.Employee,
	pending []*models.Proposal,
	tasks map[uint]models.Task,
	today time.Time,
) *Target {
	eligible := make(map[uint]bool, len(pool))
	for _, emp := range pool {
		if blocked.Kind.Allows(emp.Role) {
			eligible[emp.ID] = true
		}
	}

	protected := models.DateOf(today).AddDate(0, 0, r.ProtectionDays)

	type candidate struct {
		proposal *models.Proposal
		task     models.Task
		daysLeft int
	}
	var candidates []candidate

	for _, p := range pending {
		if p.Status != models.ProposalProposed || p.EmployeeID == nil {
			continue
		}
		if !eligible[*p.EmployeeID] {
			continue
		}
		t, ok := tasks[p.TaskID]
		if !ok || t.ID == blocked.ID {
			continue
		}
		// Never displace work whose window closes too soon to re-place.
		if !t.Latest.After(protected) {
			continue
		}
		if t.BumpCount >= r.MaxBumps {
			continue
		}
		daysLeft := int(models.DateOf(t.Latest).Sub(models.DateOf(today)).Hours() / 24)
		candidates = append(candidates, candidate{proposal: p, task: t, daysLeft: daysLeft})
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.daysLeft != b.daysLeft {
			return a.daysLeft > b.daysLeft // least urgent first
		}
		if a.task.Kind.Rank() != b.task.Kind.Rank() {
			return a.task.Kind.Rank() > b.task.Kind.Rank() // lowest priority first
		}
		return a.task.ID < b.task.ID
	})

	chosen := candidates[0]
	return &Target{
		Proposal: chosen.proposal,
		Task:     chosen.task,
		Reason: fmt.Sprintf("displaced task %d (%s, due in %dd) for task %d (%s, due %s)",
			chosen.task.ID, chosen.task.Kind, chosen.daysLeft,
			blocked.ID, blocked.Kind, blocked.Latest.Format("2006-01-02")),
	}
}
