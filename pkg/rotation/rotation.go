// Package rotation resolves standing weekly duties and their one-off
// exceptions. An exception for an exact date always beats the standing
// weekday assignment.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

var (
	// ErrDuplicateException means an exception already exists for that
	// date and type; exceptions are never silently overwritten.
	ErrDuplicateException = errors.New("rotation exception already exists for that date and type")
	// ErrInvalidWeekday means the weekday is outside Monday..Friday.
	ErrInvalidWeekday = errors.New("rotation weekday must be 0 (Monday) through 4 (Friday)")
)

// Manager owns rotation assignments and exceptions.
type Manager struct {
	db *gorm.DB
}

// New returns a Manager backed by the given database.
func New(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// Resolve returns the employee on duty for the rotation type on the given
// date. Lookup order: exact-date exception, then weekday assignment, then
// none (found=false).
func (m *Manager) Resolve(ctx context.Context, date time.Time, rt models.RotationType) (uint, bool, error) {
	day := models.DateOf(date)

	var exc models.RotationException
	err := m.db.WithContext(ctx).
		Where("date = ? AND type = ?", day, rt).
		First(&exc).Error
	if err == nil {
		return exc.EmployeeID, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, err
	}

	wd := weekdayIndex(day)
	if wd < 0 {
		return 0, false, nil // weekend: no standing rotation
	}

	var asg models.RotationAssignment
	err = m.db.WithContext(ctx).
		Where("weekday = ? AND type = ?", wd, rt).
		First(&asg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return asg.EmployeeID, true, nil
}

// UpsertAssignment sets the standing employee for a weekday and rotation
// type, last write wins.
func (m *Manager) UpsertAssignment(ctx context.Context, weekday int, rt models.RotationType, employeeID uint) error {
	if weekday < 0 || weekday > 4 {
		return fmt.Errorf("%w: got %d", ErrInvalidWeekday, weekday)
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "weekday"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"employee_id", "updated_at"}),
	}).Create(&models.RotationAssignment{
		Weekday:    weekday,
		Type:       rt,
		EmployeeID: employeeID,
	}).Error
}

// AddException records a one-off override for an exact date. A second
// exception for the same date and type is an error.
func (m *Manager) AddException(ctx context.Context, date time.Time, rt models.RotationType, employeeID uint, reason string) error {
	day := models.DateOf(date)

	var count int64
	if err := m.db.WithContext(ctx).
		Model(&models.RotationException{}).
		Where("date = ? AND type = ?", day, rt).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateException
	}

	return m.db.WithContext(ctx).Create(&models.RotationException{
		Date:       day,
		Type:       rt,
		EmployeeID: employeeID,
		Reason:     reason,
	}).Error
}

// weekdayIndex maps a date to the rotation weekday 0..4 (Monday..Friday),
// or -1 for weekends.
func weekdayIndex(date time.Time) int {
	idx := (int(date.Weekday()) + 6) % 7
	if idx > 4 {
		return -1
	}
	return idx
}
