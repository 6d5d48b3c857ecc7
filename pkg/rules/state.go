package rules

import (
	"time"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

// entry is one slot an employee already holds: either a committed
// assignment loaded at run start or a proposal made earlier in this run.
type entry struct {
	taskID    uint
	kind      models.TaskKind
	start     time.Time
	end       time.Time
	committed bool
}

// State is the capacity picture the validator checks against. The engine
// seeds it with committed assignments and feeds every proposal back in, so
// later decisions see the capacity earlier decisions consumed.
type State struct {
	byEmployee map[uint][]entry
}

// NewState returns an empty capacity state.
func NewState() *State {
	return &State{byEmployee: make(map[uint][]entry)}
}

// AddAssignment records a committed slot.
func (s *State) AddAssignment(a models.Assignment) {
	s.byEmployee[a.EmployeeID] = append(s.byEmployee[a.EmployeeID], entry{
		taskID:    a.TaskID,
		kind:      a.Kind,
		start:     a.StartsAt,
		end:       a.EndsAt(),
		committed: true,
	})
}

// AddProposal records a slot proposed during the current run.
func (s *State) AddProposal(taskID uint, kind models.TaskKind, employeeID uint, start time.Time, d time.Duration) {
	s.byEmployee[employeeID] = append(s.byEmployee[employeeID], entry{
		taskID: taskID,
		kind:   kind,
		start:  start,
		end:    start.Add(d),
	})
}

// Remove drops the in-run slot for a task, e.g. after a displacement.
// Committed entries are never removed this way.
func (s *State) Remove(taskID uint) {
	for empID, entries := range s.byEmployee {
		kept := entries[:0]
		for _, e := range entries {
			if e.taskID == taskID && !e.committed {
				continue
			}
			kept = append(kept, e)
		}
		s.byEmployee[empID] = kept
	}
}

// CoreCountOn counts core slots the employee holds on the given date,
// committed and in-run alike.
func (s *State) CoreCountOn(employeeID uint, date time.Time) int {
	n := 0
	for _, e := range s.byEmployee[employeeID] {
		if e.kind == models.KindCore && models.SameDay(e.start, date) {
			n++
		}
	}
	return n
}

// HasKindOn reports whether the employee holds a slot of the given kind on
// the date.
func (s *State) HasKindOn(employeeID uint, kind models.TaskKind, date time.Time) bool {
	for _, e := range s.byEmployee[employeeID] {
		if e.kind == kind && models.SameDay(e.start, date) {
			return true
		}
	}
	return false
}

// Overlapping returns the task ID of a slot intersecting [start, end), or
// 0 when the employee is free.
func (s *State) Overlapping(employeeID uint, start, end time.Time) uint {
	for _, e := range s.byEmployee[employeeID] {
		if start.Before(e.end) && e.start.Before(end) {
			return e.taskID
		}
	}
	return 0
}

// StartsWithin reports whether any other slot for the employee starts
// within buffer of the candidate start.
func (s *State) StartsWithin(employeeID uint, start time.Time, buffer time.Duration) bool {
	for _, e := range s.byEmployee[employeeID] {
		gap := e.start.Sub(start)
		if gap < 0 {
			gap = -gap
		}
		if gap > 0 && gap <= buffer {
			return true
		}
	}
	return false
}

// HoldersOf returns the employee currently holding the in-run slot for a
// task, or 0 when the task holds no in-run slot.
func (s *State) HolderOf(taskID uint) uint {
	for empID, entries := range s.byEmployee {
		for _, e := range entries {
			if e.taskID == taskID && !e.committed {
				return empID
			}
		}
	}
	return 0
}
