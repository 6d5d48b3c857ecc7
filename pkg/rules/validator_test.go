package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func barista(id uint) models.Employee {
	return models.Employee{
		ID:         id,
		Name:       "Priya",
		Role:       models.RoleSpecialtyBarista,
		Active:     true,
		WeeklyMask: "1111100",
	}
}

func coreTask(id uint) models.Task {
	return models.Task{
		ID:              id,
		Kind:            models.KindCore,
		Earliest:        day(2025, 1, 13),
		Latest:          day(2025, 1, 20),
		DurationMinutes: 120,
	}
}

func TestTimeOffBlocksMiddleOfRange(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)
	emp := barista(1)
	emp.TimeOff = []models.TimeOffRange{
		{EmployeeID: 1, StartDate: day(2025, 1, 15), EndDate: day(2025, 1, 17)},
	}

	// Wednesday the 16th sits strictly inside the inclusive range.
	res := v.Validate(coreTask(10), emp, day(2025, 1, 16).Add(10*time.Hour), NewState())
	require.False(t, res.OK)
	require.Len(t, res.Hard(), 1)
	assert.Equal(t, ViolationTimeOff, res.Hard()[0].Kind)

	// Both boundary dates are blocked too.
	assert.False(t, v.Validate(coreTask(10), emp, day(2025, 1, 15).Add(10*time.Hour), NewState()).OK)
	assert.False(t, v.Validate(coreTask(10), emp, day(2025, 1, 17).Add(10*time.Hour), NewState()).OK)
	// The day after the range is open again.
	assert.True(t, v.Validate(coreTask(10), emp, day(2025, 1, 18).Add(10*time.Hour), NewState()).OK)
}

func TestHolidayBlocksWholeDate(t *testing.T) {
	v := NewValidator([]time.Time{day(2025, 1, 14)}, 2*time.Hour)
	emp := barista(1)

	res := v.Validate(coreTask(10), emp, day(2025, 1, 14).Add(13*time.Hour), NewState())
	require.False(t, res.OK)
	assert.Equal(t, ViolationHoliday, res.Hard()[0].Kind)
}

func TestDateOverrideBeatsWeeklyMask(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)
	emp := barista(1)
	emp.Overrides = []models.AvailabilityOverride{
		{EmployeeID: 1, Date: day(2025, 1, 16), Available: false},
	}

	res := v.Validate(coreTask(10), emp, day(2025, 1, 16).Add(10*time.Hour), NewState())
	require.False(t, res.OK)
	assert.Equal(t, ViolationDateUnavailable, res.Hard()[0].Kind)
}

func TestWeeklyMaskIsAdvisoryOnly(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)
	emp := barista(1)
	emp.WeeklyMask = "1111000" // off Friday

	// Friday 2025-01-17.
	res := v.Validate(coreTask(10), emp, day(2025, 1, 17).Add(10*time.Hour), NewState())
	assert.True(t, res.OK)
	require.Empty(t, res.Hard())
	assert.Contains(t, res.Advisories(), "does not normally work")
}

func TestRoleEligibility(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)

	gen := models.Employee{ID: 2, Name: "Sam", Role: models.RoleGeneralist, WeeklyMask: "1111100"}
	specialty := models.Task{ID: 20, Kind: models.KindSpecialtyBarista,
		Earliest: day(2025, 1, 13), Latest: day(2025, 1, 20), DurationMinutes: 240}

	res := v.Validate(specialty, gen, day(2025, 1, 14).Add(9*time.Hour), NewState())
	require.False(t, res.OK)
	assert.Equal(t, ViolationRoleIneligible, res.Hard()[0].Kind)
}

func TestDailyCoreCapCountsCommittedAndProposed(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)
	emp := barista(1)
	when := day(2025, 1, 16).Add(10 * time.Hour)

	state := NewState()
	state.AddProposal(99, models.KindCore, 1, day(2025, 1, 16).Add(16*time.Hour), 2*time.Hour)

	res := v.Validate(coreTask(10), emp, when, state)
	require.False(t, res.OK)
	assert.Equal(t, ViolationDailyCoreCap, res.Hard()[0].Kind)

	// A non-core slot the same day does not trip the cap.
	state2 := NewState()
	state2.AddProposal(99, models.KindKiosk, 1, day(2025, 1, 16).Add(14*time.Hour), 2*time.Hour)
	assert.True(t, v.Validate(coreTask(10), emp, when, state2).OK)
}

func TestTimeOverlapIsHard(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)
	emp := barista(1)

	state := NewState()
	state.AddAssignment(models.Assignment{
		TaskID: 77, EmployeeID: 1, Kind: models.KindKiosk,
		StartsAt: day(2025, 1, 16).Add(10 * time.Hour), DurationMinutes: 180,
	})

	// Starts an hour into the committed slot.
	res := v.Validate(coreTask(10), emp, day(2025, 1, 16).Add(11*time.Hour), state)
	require.False(t, res.OK)
	assert.Equal(t, ViolationTimeOverlap, res.Hard()[0].Kind)
}

func TestProximityIsAdvisory(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)
	emp := barista(1)

	state := NewState()
	state.AddProposal(77, models.KindKiosk, 1, day(2025, 1, 16).Add(8*time.Hour), time.Hour)

	// Starts 90 minutes after the other slot's start, inside the buffer,
	// but does not overlap it.
	res := v.Validate(coreTask(10), emp, day(2025, 1, 16).Add(9*time.Hour+30*time.Minute), state)
	assert.True(t, res.OK)
	assert.Contains(t, res.Advisories(), "starts within")
}

func TestSupervisorOnCoreIsAdvisory(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)
	sup := models.Employee{ID: 3, Name: "Dana", Role: models.RoleSupervisor, WeeklyMask: "1111100"}

	res := v.Validate(coreTask(10), sup, day(2025, 1, 16).Add(10*time.Hour), NewState())
	assert.True(t, res.OK)
	assert.Contains(t, res.Advisories(), "supervisor")
}

func TestValidateCollectsAllViolationsAtOnce(t *testing.T) {
	v := NewValidator([]time.Time{day(2025, 1, 16)}, 2*time.Hour)
	emp := barista(1)
	emp.TimeOff = []models.TimeOffRange{
		{EmployeeID: 1, StartDate: day(2025, 1, 16), EndDate: day(2025, 1, 16)},
	}
	emp.WeeklyMask = "0000000"

	res := v.Validate(coreTask(10), emp, day(2025, 1, 16).Add(10*time.Hour), NewState())
	require.False(t, res.OK)
	// Holiday, time off and weekly mask all surface in one call.
	assert.Len(t, res.Violations, 3)
	assert.Len(t, res.Hard(), 2)
}

func TestValidateIsIdempotent(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)
	emp := barista(1)
	when := day(2025, 1, 16).Add(10 * time.Hour)
	state := NewState()
	state.AddProposal(77, models.KindKiosk, 1, day(2025, 1, 16).Add(9*time.Hour), time.Hour)

	first := v.Validate(coreTask(10), emp, when, state)
	second := v.Validate(coreTask(10), emp, when, state)
	assert.Equal(t, first, second)
}

func TestEligiblePreservesOrderAndKeepsSoftOffenders(t *testing.T) {
	v := NewValidator(nil, 2*time.Hour)

	offFriday := barista(1)
	offFriday.WeeklyMask = "1111000"
	onDuty := barista(2)
	blocked := barista(3)
	blocked.TimeOff = []models.TimeOffRange{
		{EmployeeID: 3, StartDate: day(2025, 1, 17), EndDate: day(2025, 1, 17)},
	}

	// Friday 2025-01-17: 1 has only a soft violation, 3 a hard one.
	pool := []models.Employee{offFriday, onDuty, blocked}
	out := v.Eligible(coreTask(10), day(2025, 1, 17).Add(10*time.Hour), pool, NewState())

	require.Len(t, out, 2)
	assert.Equal(t, uint(1), out[0].ID)
	assert.Equal(t, uint(2), out[1].ID)
}
