package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fieldworks/event-scheduler-go/pkg/models"
)

// CoreAction is a change applied to a committed core assignment from
// outside a scheduling run.
type CoreAction string

const (
	// ActionUnschedule cancels the committed assignment and reopens the
	// task for a later run.
	ActionUnschedule CoreAction = "unschedule"
	// ActionReschedule moves the assignment to a new start time.
	ActionReschedule CoreAction = "reschedule"
	// ActionReissue points the task at a replacement shift in the external
	// system without moving it locally.
	ActionReissue CoreAction = "reissue"
)

// ApplyCoreAction applies an action to a committed core assignment and
// cascades it to the paired supervisor shift, if one exists. The pairing
// follows the core shift: it is cancelled with it, moves with it at the
// fixed two-hour offset, and is left alone on a reissue (the pairing is a
// scheduling construct the external system knows nothing about).
func (e *Engine) ApplyCoreAction(ctx context.Context, assignmentID uint, action CoreAction, newStart time.Time, externalRef string) error {
	asg, err := e.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if asg.Kind != models.KindCore {
		return fmt.Errorf("assignment %d is %s, not core", asg.ID, asg.Kind)
	}

	paired, err := e.store.PairedAssignment(ctx, asg.TaskID)
	if err != nil {
		return err
	}

	switch action {
	case ActionUnschedule:
		if err := e.store.UnscheduleAssignment(ctx, asg); err != nil {
			return err
		}
		if paired != nil {
			if err := e.store.UnscheduleAssignment(ctx, paired); err != nil {
				return err
			}
		}
	case ActionReschedule:
		if err := e.store.RescheduleAssignment(ctx, asg, newStart); err != nil {
			return err
		}
		if paired != nil {
			if err := e.store.RescheduleAssignment(ctx, paired, newStart.Add(pairingOffset)); err != nil {
				return err
			}
		}
	case ActionReissue:
		if externalRef == "" {
			return fmt.Errorf("reissue needs an external reference")
		}
		if err := e.store.SetTaskExternalRef(ctx, asg.TaskID, externalRef); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown core action %q", action)
	}

	e.log.Info("core action applied",
		zap.Uint("assignment_id", asg.ID),
		zap.String("action", string(action)),
		zap.Bool("cascaded_to_pairing", paired != nil))
	return nil
}
