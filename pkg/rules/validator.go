// Package rules evaluates scheduling constraints. Validation is pure: it
// reads the capacity State but never mutates it, so calling it twice with
// unchanged state yields identical results.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

// Severity splits violations into blocking and advisory.
type Severity string

const (
	Hard Severity = "hard"
	Soft Severity = "soft"
)

// ViolationKind identifies the failed check.
type ViolationKind string

const (
	ViolationHoliday            ViolationKind = "holiday"
	ViolationTimeOff            ViolationKind = "time_off"
	ViolationDateUnavailable    ViolationKind = "date_unavailable"
	ViolationWeeklyAvailability ViolationKind = "weekly_availability"
	ViolationRoleIneligible     ViolationKind = "role_ineligible"
	ViolationDailyCoreCap       ViolationKind = "daily_core_cap"
	ViolationTimeOverlap        ViolationKind = "time_overlap"
	ViolationProximity          ViolationKind = "proximity"
	ViolationSupervisorOnCore   ViolationKind = "supervisor_on_core"
)

// Violation is one failed check with a human-readable message.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
}

// Result carries every violation found for a candidate. OK is true when no
// hard violation is present; soft violations alone never block.
type Result struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations"`
}

// Hard returns only the blocking violations.
func (r Result) Hard() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == Hard {
			out = append(out, v)
		}
	}
	return out
}

// Advisories joins soft-violation messages for storage on a proposal.
func (r Result) Advisories() string {
	var msgs []string
	for _, v := range r.Violations {
		if v.Severity == Soft {
			msgs = append(msgs, v.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// Validator runs the constraint checks in a fixed order without
// short-circuiting, so one call surfaces every violation at once.
type Validator struct {
	holidays        map[string]bool
	ProximityBuffer time.Duration
}

// NewValidator builds a validator for the given holiday calendar and
// proximity buffer.
func NewValidator(holidays []time.Time, proximityBuffer time.Duration) *Validator {
	m := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		m[models.DateOf(h).Format("2006-01-02")] = true
	}
	return &Validator{holidays: m, ProximityBuffer: proximityBuffer}
}

// Validate checks a candidate (task, employee, start time) against the
// capacity state and returns every violation found.
func (v *Validator) Validate(task models.Task, emp models.Employee, when time.Time, state *State) Result {
	var out []Violation
	date := models.DateOf(when)

	// 1. Holiday
	if v.holidays[date.Format("2006-01-02")] {
		out = append(out, Violation{ViolationHoliday, Hard,
			fmt.Sprintf("%s is a holiday", date.Format("2006-01-02"))})
	}

	// 2. Time off
	if emp.OnTimeOff(date) {
		out = append(out, Violation{ViolationTimeOff, Hard,
			fmt.Sprintf("%s has time off on %s", emp.Name, date.Format("2006-01-02"))})
	}

	// 3. Date-level override
	if o := emp.OverrideFor(date); o != nil && !o.Available {
		out = append(out, Violation{ViolationDateUnavailable, Hard,
			fmt.Sprintf("%s is marked unavailable on %s", emp.Name, date.Format("2006-01-02"))})
	}

	// 4. Weekly mask (advisory; the reviewer may override)
	if !emp.AvailableOn(when.Weekday()) {
		out = append(out, Violation{ViolationWeeklyAvailability, Soft,
			fmt.Sprintf("%s does not normally work %s", emp.Name, when.Weekday())})
	}

	// 5. Role eligibility
	if !task.Kind.Allows(emp.Role) {
		out = append(out, Violation{ViolationRoleIneligible, Hard,
			fmt.Sprintf("role %s may not take %s work", emp.Role, task.Kind)})
	}

	// 6. Daily core cap
	if task.Kind == models.KindCore && state.CoreCountOn(emp.ID, date) >= 1 {
		out = append(out, Violation{ViolationDailyCoreCap, Hard,
			fmt.Sprintf("%s already has a core task on %s", emp.Name, date.Format("2006-01-02"))})
	}

	// 7. Time overlap
	if blocking := state.Overlapping(emp.ID, when, when.Add(task.Duration())); blocking != 0 {
		out = append(out, Violation{ViolationTimeOverlap, Hard,
			fmt.Sprintf("overlaps task %d for %s", blocking, emp.Name)})
	}

	// 8. Proximity (advisory)
	if state.StartsWithin(emp.ID, when, v.ProximityBuffer) {
		out = append(out, Violation{ViolationProximity, Soft,
			fmt.Sprintf("another slot for %s starts within %s", emp.Name, v.ProximityBuffer)})
	}

	// 9. Supervisor on core work (advisory)
	if task.Kind == models.KindCore && emp.Role == models.RoleSupervisor {
		out = append(out, Violation{ViolationSupervisorOnCore, Soft,
			fmt.Sprintf("supervisor %s assigned to core work", emp.Name)})
	}

	ok := true
	for _, viol := range out {
		if viol.Severity == Hard {
			ok = false
			break
		}
	}
	return Result{OK: ok, Violations: out}
}

// Eligible filters the candidate pool down to employees with no hard
// violation for the slot, preserving input order. Soft violations do not
// exclude anyone.
func (v *Validator) Eligible(task models.Task, when time.Time, pool []models.Employee, state *State) []models.Employee {
	var out []models.Employee
	for _, emp := range pool {
		if v.Validate(task, emp, when, state).OK {
			out = append(out, emp)
		}
	}
	return out
}
