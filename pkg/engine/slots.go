package engine

import (
	"time"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

// slotHours is the per-kind start-time table. Core starts rotate through
// the day so repeated runs spread work across the store's busy blocks.
var slotHours = map[models.TaskKind][]int{
	models.KindSpecialtyBarista:  {9},
	models.KindLeadSetup:         {8},
	models.KindLeadRefresh:       {11},
	models.KindKiosk:             {11, 14},
	models.KindLeadTeardown:      {18},
	models.KindCore:              {10, 13, 16},
	models.KindSupervisorPairing: {10},
	models.KindOther:             {12},
}

// slotHoursFor returns candidate start hours for a kind on a date. For
// core work the table is rotated by day-of-year, which is the "rotating"
// half of the slot table.
func slotHoursFor(kind models.TaskKind, date time.Time) []int {
	hours, ok := slotHours[kind]
	if !ok {
		return slotHours[models.KindOther]
	}
	if kind != models.KindCore || len(hours) < 2 {
		return hours
	}
	shift := date.YearDay() % len(hours)
	rotated := make([]int, 0, len(hours))
	rotated = append(rotated, hours[shift:]...)
	rotated = append(rotated, hours[:shift]...)
	return rotated
}

// rotationTypeFor maps rotation-bound kinds to their rotation. Core and
// catch-all work is pool-assigned.
func rotationTypeFor(kind models.TaskKind) (models.RotationType, bool) {
	switch kind {
	case models.KindSpecialtyBarista:
		return models.RotationSpecialtyBarista, true
	case models.KindLeadSetup, models.KindLeadRefresh, models.KindLeadTeardown, models.KindKiosk:
		return models.RotationPrimaryLead, true
	default:
		return "", false
	}
}
