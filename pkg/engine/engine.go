// Package engine runs the scheduling pass: it pulls eligible work inside
// the rolling window, walks it in priority waves, and records a proposal
// or a failure reason for every task. Runs are single-flight and their
// output is persisted atomically at the end of the pass.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fieldworks/event-scheduler-go/pkg/conflict"
	"github.com/fieldworks/event-scheduler-go/pkg/models"
	"github.com/fieldworks/event-scheduler-go/pkg/rotation"
	"github.com/fieldworks/event-scheduler-go/pkg/rules"
	"github.com/fieldworks/event-scheduler-go/pkg/store"
)

// Config holds the engine's scheduling tunables.
type Config struct {
	// LeadDays is the minimum lead time: nothing is proposed earlier than
	// today plus this many days.
	LeadDays int
	// HorizonDays bounds how far ahead committed assignments are loaded
	// into the run snapshot.
	HorizonDays int
	// SupervisorDurationMinutes is the fixed length of derived supervisor
	// pairing shifts.
	SupervisorDurationMinutes int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LeadDays:                  3,
		HorizonDays:               30,
		SupervisorDurationMinutes: 120,
	}
}

// Engine orchestrates rotations, rule validation and conflict resolution
// over a single run.
type Engine struct {
	store     *store.Store
	rotations *rotation.Manager
	validator *rules.Validator
	resolver  *conflict.Resolver
	log       *zap.Logger
	cfg       Config

	// Now is replaceable in tests.
	Now func() time.Time
}

// New wires an Engine from its collaborators.
func New(st *store.Store, rot *rotation.Manager, val *rules.Validator, res *conflict.Resolver, log *zap.Logger, cfg Config) *Engine {
	if cfg.LeadDays == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		store:     st,
		rotations: rot,
		validator: val,
		resolver:  res,
		log:       log,
		cfg:       cfg,
		Now:       time.Now,
	}
}

// Run executes one scheduling pass. It returns store.ErrRunActive when
// another run is still in flight. Internal faults mark the run failed but
// keep the proposals made before the fault.
func (e *Engine) Run(ctx context.Context, runType models.RunType) (*models.Run, error) {
	now := e.Now()

	run, err := e.store.AcquireRun(ctx, runType, now)
	if err != nil {
		return nil, err
	}
	e.log.Info("run started",
		zap.Uint("run_id", run.ID),
		zap.String("run_type", string(runType)))

	outcome, execErr := e.execute(ctx, now)
	outcome.CompletedAt = e.Now()
	if execErr != nil {
		// A fault aborts the pass but proposals already made stay.
		outcome.Status = models.RunFailed
		outcome.ErrorMessage = execErr.Error()
		e.log.Error("run aborted", zap.Uint("run_id", run.ID), zap.Error(execErr))
	} else {
		outcome.Status = models.RunCompleted
	}

	if err := e.store.FinishRun(ctx, run, outcome); err != nil {
		e.log.Error("persisting run outcome failed", zap.Uint("run_id", run.ID), zap.Error(err))
		return nil, err
	}

	e.log.Info("run finished",
		zap.Uint("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("processed", run.Processed),
		zap.Int("scheduled", run.Scheduled),
		zap.Int("requiring_swap", run.RequiringSwap),
		zap.Int("failed", run.Failed))

	// Return the run with its proposals attached.
	return e.store.GetRun(ctx, run.ID)
}

// execute performs the pass itself; every error it returns is an internal
// fault, never a business-rule outcome.
func (e *Engine) execute(ctx context.Context, now time.Time) (store.RunOutcome, error) {
	out := store.RunOutcome{
		NewTaskIndex: make(map[int]int),
		BumpCounts:   make(map[uint]int),
	}

	today := models.DateOf(now)
	pivot := today.AddDate(0, 0, e.cfg.LeadDays)

	employees, err := e.store.ActiveEmployees(ctx)
	if err != nil {
		return out, fmt.Errorf("loading roster: %w", err)
	}
	tasks, err := e.store.EligibleTasks(ctx, pivot)
	if err != nil {
		return out, fmt.Errorf("loading tasks: %w", err)
	}
	assignments, err := e.store.AssignmentsBetween(ctx, today.AddDate(0, 0, -1), today.AddDate(0, 0, e.cfg.HorizonDays))
	if err != nil {
		return out, fmt.Errorf("loading committed work: %w", err)
	}

	pass := newPass(e, employees, tasks, assignments, today, pivot)
	if err := pass.run(ctx); err != nil {
		// Salvage whatever the pass recorded before the fault.
		pass.fill(&out)
		return out, err
	}

	pass.fill(&out)
	return out, nil
}
