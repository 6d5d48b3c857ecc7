package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
	"github.com/fieldworks/event-scheduler-go/pkg/rules"
	"github.com/fieldworks/event-scheduler-go/pkg/store"
)

// corePlacement remembers a new core proposal so the pairing phase can
// derive its supervisor shift. The proposal pointer lets the pairing phase
// skip placements that were later withdrawn by a displacement.
type corePlacement struct {
	taskID uint
	when   time.Time
	prop   *models.Proposal
}

// pass is the run-local working state. Decisions accumulate in memory and
// are flushed once by the caller; nothing here touches the database except
// rotation lookups.
type pass struct {
	e     *Engine
	today time.Time
	pivot time.Time

	employees []models.Employee
	byRole    map[models.Role][]models.Employee
	taskIndex map[uint]models.Task
	state     *rules.State

	proposals []*models.Proposal
	removed   map[*models.Proposal]bool
	pairTask  map[*models.Proposal]*models.Task
	bumped    map[uint]int

	corePlacements []corePlacement
	pseudoID       uint

	processed, placed, swaps, failed int

	tasks []models.Task
}

func newPass(e *Engine, employees []models.Employee, tasks []models.Task, assignments []models.Assignment, today, pivot time.Time) *pass {
	p := &pass{
		e:         e,
		today:     today,
		pivot:     pivot,
		employees: employees,
		byRole:    make(map[models.Role][]models.Employee),
		taskIndex: make(map[uint]models.Task, len(tasks)),
		state:     rules.NewState(),
		removed:   make(map[*models.Proposal]bool),
		pairTask:  make(map[*models.Proposal]*models.Task),
		bumped:    make(map[uint]int),
		pseudoID:  1 << 30,
		tasks:     tasks,
	}
	for _, emp := range employees {
		p.byRole[emp.Role] = append(p.byRole[emp.Role], emp)
	}
	for _, t := range tasks {
		p.taskIndex[t.ID] = t
	}
	for _, a := range assignments {
		p.state.AddAssignment(a)
	}
	return p
}

// run walks the fixed wave order. Any error is an internal fault.
func (p *pass) run(ctx context.Context) error {
	if err := p.wave(ctx, models.KindSpecialtyBarista); err != nil {
		return err
	}
	if err := p.wave(ctx, models.KindLeadSetup, models.KindLeadRefresh); err != nil {
		return err
	}
	if err := p.wave(ctx, models.KindKiosk); err != nil {
		return err
	}
	if err := p.wave(ctx, models.KindLeadTeardown); err != nil {
		return err
	}
	if err := p.coreWave(ctx); err != nil {
		return err
	}
	if err := p.wave(ctx, models.KindSupervisorPairing); err != nil {
		return err
	}
	p.derivePairings()
	return p.wave(ctx, models.KindOther)
}

// tasksOf returns the wave's tasks sorted soonest-due first, ties by ID.
func (p *pass) tasksOf(kinds ...models.TaskKind) []models.Task {
	want := make(map[models.TaskKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []models.Task
	for _, t := range p.tasks {
		if want[t.Kind] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Latest.Equal(out[j].Latest) {
			return out[i].Latest.Before(out[j].Latest)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// wave processes every task of the given kinds. A blocked task is the
// most urgent unplaced work at that moment, so it may displace; a task it
// displaces is re-queued at the tail when it belongs to this wave,
// otherwise it is left unscheduled for the next run.
func (p *pass) wave(ctx context.Context, kinds ...models.TaskKind) error {
	inWave := make(map[models.TaskKind]bool, len(kinds))
	for _, k := range kinds {
		inWave[k] = true
	}

	queue := p.tasksOf(kinds...)
	for len(queue) > 0 {
		task := queue[0]
		queue = queue[1:]
		p.processed++

		prop, err := p.place(ctx, task, func(time.Time) []models.Employee {
			return p.poolFor(task.Kind)
		})
		if err != nil {
			return err
		}
		if prop != nil {
			continue
		}

		requeued, err := p.tryDisplace(ctx, task, p.poolFor(task.Kind))
		if err != nil {
			return err
		}
		if requeued != nil && inWave[requeued.Kind] {
			queue = append(queue, *requeued)
			p.processed-- // the re-queued task is counted once
		}
	}
	return nil
}

// coreWave attempts core tasks in three role sub-waves: leads first, then
// specialty baristas not already on duty that day, then generalists.
// Tasks still unplaced afterwards go through displacement.
func (p *pass) coreWave(ctx context.Context) error {
	remaining := p.tasksOf(models.KindCore)

	subPools := []func(date time.Time) []models.Employee{
		func(time.Time) []models.Employee { return p.byRole[models.RoleLead] },
		func(date time.Time) []models.Employee {
			var out []models.Employee
			for _, emp := range p.byRole[models.RoleSpecialtyBarista] {
				if !p.state.HasKindOn(emp.ID, models.KindSpecialtyBarista, date) {
					out = append(out, emp)
				}
			}
			return out
		},
		func(time.Time) []models.Employee { return p.byRole[models.RoleGeneralist] },
	}

	for _, pool := range subPools {
		var still []models.Task
		for _, task := range remaining {
			prop, err := p.place(ctx, task, pool)
			if err != nil {
				return err
			}
			if prop == nil {
				still = append(still, task)
			} else {
				p.processed++
			}
		}
		remaining = still
	}

	corePool := p.poolFor(models.KindCore)
	queue := remaining
	for len(queue) > 0 {
		task := queue[0]
		queue = queue[1:]
		p.processed++

		requeued, err := p.tryDisplace(ctx, task, corePool)
		if err != nil {
			return err
		}
		if requeued != nil && requeued.Kind == models.KindCore {
			queue = append(queue, *requeued)
			p.processed--
		}
	}
	return nil
}

// tryDisplace frees a slot for the blocked task, retries the placement,
// and records a failure proposal if nothing helps. It returns the
// displaced task, if any, so the caller can re-queue it.
func (p *pass) tryDisplace(ctx context.Context, task models.Task, pool []models.Employee) (*models.Task, error) {
	target := p.e.resolver.SelectTarget(task, pool, p.activeProposals(), p.taskIndex, p.today)
	if target == nil {
		p.fail(task, "no eligible employee with free capacity and no displaceable slot")
		return nil, nil
	}

	p.removed[target.Proposal] = true
	p.state.Remove(target.Task.ID)
	p.placed--

	displaced := p.taskIndex[target.Task.ID]
	displaced.BumpCount++
	p.taskIndex[displaced.ID] = displaced
	p.bumped[displaced.ID] = displaced.BumpCount

	p.e.log.Info("displaced slot",
		zap.Uint("displaced_task", displaced.ID),
		zap.Uint("for_task", task.ID),
		zap.Int("bump_count", displaced.BumpCount))

	prop, err := p.place(ctx, task, func(time.Time) []models.Employee { return pool })
	if err != nil {
		return nil, err
	}
	if prop == nil {
		p.fail(task, "no free capacity even after displacement")
		return &displaced, nil
	}

	prop.IsSwap = true
	displacedID := displaced.ID
	prop.DisplacedTaskID = &displacedID
	prop.SwapReason = target.Reason
	p.swaps++
	return &displaced, nil
}

// place searches candidate dates and slot times for the first spot the
// rules allow. Rotation-bound kinds consult the rotation for each date and
// fall back to the pool only on dates with no rotation employee. Returns
// nil when the task cannot be placed; errors are internal faults.
func (p *pass) place(ctx context.Context, task models.Task, poolFn func(date time.Time) []models.Employee) (*models.Proposal, error) {
	start := models.DateOf(task.Earliest)
	if start.Before(p.pivot) {
		start = p.pivot
	}
	rt, rotationBound := rotationTypeFor(task.Kind)

	for d := start; d.Before(task.Latest); d = d.AddDate(0, 0, 1) {
		var rotEmp *models.Employee
		if rotationBound {
			empID, found, err := p.e.rotations.Resolve(ctx, d, rt)
			if err != nil {
				return nil, fmt.Errorf("resolving %s rotation for %s: %w", rt, d.Format("2006-01-02"), err)
			}
			if found {
				rotEmp = p.employeeByID(empID)
			}
		}

		for _, h := range slotHoursFor(task.Kind, d) {
			when := d.Add(time.Duration(h) * time.Hour)
			if !task.WindowContains(when) {
				continue
			}

			if rotEmp != nil {
				// The rotation names the employee; the pool is not a
				// fallback on a date the rotation covers.
				res := p.e.validator.Validate(task, *rotEmp, when, p.state)
				if res.OK {
					return p.propose(task, *rotEmp, when, res.Advisories()), nil
				}
				continue
			}

			pool := poolFn(d)
			eligible := p.e.validator.Eligible(task, when, pool, p.state)
			if len(eligible) == 0 {
				continue
			}
			chosen := eligible[0]
			res := p.e.validator.Validate(task, chosen, when, p.state)
			return p.propose(task, chosen, when, res.Advisories()), nil
		}
	}
	return nil, nil
}

// propose records a placement and feeds it back into the capacity state so
// later decisions see it.
func (p *pass) propose(task models.Task, emp models.Employee, when time.Time, advisories string) *models.Proposal {
	empID := emp.ID
	prop := &models.Proposal{
		TaskID:     task.ID,
		EmployeeID: &empID,
		ProposedAt: when,
		Status:     models.ProposalProposed,
		Advisories: advisories,
	}
	p.proposals = append(p.proposals, prop)
	p.state.AddProposal(task.ID, task.Kind, empID, when, task.Duration())
	p.placed++
	if task.Kind == models.KindCore {
		p.corePlacements = append(p.corePlacements, corePlacement{taskID: task.ID, when: when, prop: prop})
	}
	return prop
}

// fail records a failure proposal carrying the reason for human review.
func (p *pass) fail(task models.Task, reason string) {
	p.proposals = append(p.proposals, &models.Proposal{
		TaskID:        task.ID,
		Status:        models.ProposalFailed,
		FailureReason: reason,
	})
	p.failed++
	p.e.log.Warn("task not placed", zap.Uint("task_id", task.ID), zap.String("reason", reason))
}

// poolFor orders candidates by the wave's role priority.
func (p *pass) poolFor(kind models.TaskKind) []models.Employee {
	switch kind {
	case models.KindSpecialtyBarista:
		return p.byRole[models.RoleSpecialtyBarista]
	case models.KindLeadSetup, models.KindLeadRefresh, models.KindLeadTeardown, models.KindKiosk:
		return concat(p.byRole[models.RoleLead], p.byRole[models.RoleSupervisor])
	case models.KindSupervisorPairing:
		return concat(p.byRole[models.RoleSupervisor], p.byRole[models.RoleLead])
	case models.KindCore:
		return concat(p.byRole[models.RoleLead], p.byRole[models.RoleSpecialtyBarista], p.byRole[models.RoleGeneralist])
	default:
		return concat(p.byRole[models.RoleGeneralist], p.byRole[models.RoleSpecialtyBarista], p.byRole[models.RoleLead], p.byRole[models.RoleSupervisor])
	}
}

func (p *pass) employeeByID(id uint) *models.Employee {
	for i := range p.employees {
		if p.employees[i].ID == id {
			return &p.employees[i]
		}
	}
	return nil
}

// activeProposals returns placements still standing in this run.
func (p *pass) activeProposals() []*models.Proposal {
	var out []*models.Proposal
	for _, pr := range p.proposals {
		if !p.removed[pr] && pr.Status == models.ProposalProposed {
			out = append(out, pr)
		}
	}
	return out
}

// fill moves the pass results into the outcome the store persists.
func (p *pass) fill(out *store.RunOutcome) {
	var final []*models.Proposal
	for _, pr := range p.proposals {
		if p.removed[pr] {
			continue
		}
		final = append(final, pr)
	}
	for i, pr := range final {
		if t, ok := p.pairTask[pr]; ok {
			out.NewTasks = append(out.NewTasks, t)
			out.NewTaskIndex[i] = len(out.NewTasks) - 1
		}
	}
	out.Proposals = final
	out.BumpCounts = p.bumped
	out.Processed = p.processed
	out.Scheduled = p.placed
	out.RequiringSwap = p.swaps
	out.Failed = p.failed
}

func concat(groups ...[]models.Employee) []models.Employee {
	var out []models.Employee
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
