package models

import "time"

// Employee is a field-staff member. The engine only reads employee rows;
// they are owned by the roster import.
type Employee struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"not null" json:"name"`
	Role   Role   `gorm:"type:varchar(32);not null;index" json:"role"`
	Active bool   `gorm:"default:true" json:"active"`
	// WeeklyMask holds one byte per weekday, Monday first; '1' means the
	// employee normally works that day.
	WeeklyMask string    `gorm:"type:varchar(7);default:'1111100'" json:"weekly_mask"`
	CreatedAt  time.Time `json:"created_at"`

	Overrides []AvailabilityOverride `gorm:"constraint:OnDelete:CASCADE" json:"overrides,omitempty"`
	TimeOff   []TimeOffRange         `gorm:"constraint:OnDelete:CASCADE" json:"time_off,omitempty"`
}

// AvailableOn reports the weekly-mask default for the given weekday.
func (e *Employee) AvailableOn(wd time.Weekday) bool {
	idx := (int(wd) + 6) % 7 // Monday-first
	if idx >= len(e.WeeklyMask) {
		return false
	}
	return e.WeeklyMask[idx] == '1'
}

// OverrideFor returns the date-specific availability override for the day,
// or nil when none exists.
func (e *Employee) OverrideFor(date time.Time) *AvailabilityOverride {
	d := DateOf(date)
	for i := range e.Overrides {
		if DateOf(e.Overrides[i].Date).Equal(d) {
			return &e.Overrides[i]
		}
	}
	return nil
}

// OnTimeOff reports whether the date falls inside any approved time-off
// range (inclusive on both ends).
func (e *Employee) OnTimeOff(date time.Time) bool {
	d := DateOf(date)
	for i := range e.TimeOff {
		if !d.Before(DateOf(e.TimeOff[i].StartDate)) && !d.After(DateOf(e.TimeOff[i].EndDate)) {
			return true
		}
	}
	return false
}

// AvailabilityOverride is a one-off, date-level availability flag that
// beats the weekly mask.
type AvailabilityOverride struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EmployeeID uint      `gorm:"not null;index" json:"employee_id"`
	Date       time.Time `gorm:"type:date;not null" json:"date"`
	Available  bool      `json:"available"`
	Note       string    `json:"note,omitempty"`
}

// TimeOffRange is an approved absence, inclusive of both end dates.
type TimeOffRange struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EmployeeID uint      `gorm:"not null;index" json:"employee_id"`
	StartDate  time.Time `gorm:"type:date;not null" json:"start_date"`
	EndDate    time.Time `gorm:"type:date;not null" json:"end_date"`
}

// Task is a unit of demand to be staffed within its [Earliest, Latest)
// window. The engine never flips Scheduled itself; that happens only after
// approval and successful submission.
type Task struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `json:"name"`
	Kind            TaskKind  `gorm:"type:varchar(32);not null;index" json:"kind"`
	Earliest        time.Time `gorm:"not null" json:"earliest"`
	Latest          time.Time `gorm:"not null;index" json:"latest"`
	ParentTaskID    *uint     `gorm:"index" json:"parent_task_id,omitempty"`
	DurationMinutes int       `gorm:"default:120" json:"duration_minutes"`
	Scheduled       bool      `gorm:"default:false;index" json:"scheduled"`
	// BumpCount is the lifetime number of times this task has been
	// displaced to make room for more urgent work.
	BumpCount   int    `gorm:"default:0" json:"bump_count"`
	ExternalRef string `json:"external_ref,omitempty"`
}

// Duration returns the estimated working time for the task.
func (t *Task) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// WindowContains reports whether ts lies in [Earliest, Latest).
func (t *Task) WindowContains(ts time.Time) bool {
	return !ts.Before(t.Earliest) && ts.Before(t.Latest)
}

// Assignment is a committed task-employee-datetime pairing. It is written
// only by the approval step and by the core-action cascade; during a run it
// is read-only input.
type Assignment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TaskID          uint      `gorm:"not null;uniqueIndex" json:"task_id"`
	EmployeeID      uint      `gorm:"not null;index" json:"employee_id"`
	Kind            TaskKind  `gorm:"type:varchar(32);not null" json:"kind"`
	StartsAt        time.Time `gorm:"not null;index" json:"starts_at"`
	DurationMinutes int       `gorm:"default:120" json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}

// EndsAt returns the exclusive end of the committed slot.
func (a *Assignment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// RotationAssignment is a standing weekly duty: weekday 0 (Monday) through
// 4 (Friday) and rotation type map to exactly one employee.
type RotationAssignment struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	Weekday    int          `gorm:"uniqueIndex:idx_rotation_day_type;not null" json:"weekday"`
	Type       RotationType `gorm:"type:varchar(32);uniqueIndex:idx_rotation_day_type;not null" json:"type"`
	EmployeeID uint         `gorm:"not null" json:"employee_id"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// RotationException overrides the standing rotation for one exact date.
type RotationException struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	Date       time.Time    `gorm:"type:date;uniqueIndex:idx_rotation_exc_date_type;not null" json:"date"`
	Type       RotationType `gorm:"type:varchar(32);uniqueIndex:idx_rotation_exc_date_type;not null" json:"type"`
	EmployeeID uint         `gorm:"not null" json:"employee_id"`
	Reason     string       `json:"reason,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same UTC date.
func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
