package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/model"
	"github.com/signalsfoundry/impact-simulator/timectrl"
)

// runner drives the controller's active run with a TimeController, one
// controller per run. Starting, aborting and ticking are serialised on mu so
// a stale loop can never tick a newer run.
type runner struct {
	mu   sync.Mutex
	ctrl *core.Controller
	tick time.Duration
	mode timectrl.Mode
	log  logging.Logger

	active *timectrl.TimeController
	done   <-chan struct{}
}

func newRunner(ctrl *core.Controller, tick time.Duration, mode timectrl.Mode, log logging.Logger) *runner {
	return &runner{ctrl: ctrl, tick: tick, mode: mode, log: log}
}

// begin starts a run with the given selection and launches its tick loop.
// launchAt is the rotation-clock time at launch.
func (r *runner) begin(ctx context.Context, impactor model.ImpactorProfile, target model.GeoCoordinate, launchAt time.Duration) (model.SimulationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check before touching the selection so a rejected start leaves the
	// run in flight untouched.
	switch r.ctrl.State() {
	case model.RunInFlight:
		return model.SimulationRun{}, core.ErrRunInProgress
	case model.RunImpacted:
		return model.SimulationRun{}, core.ErrRunNotReset
	}
	if err := r.ctrl.SelectImpactor(impactor); err != nil {
		return model.SimulationRun{}, err
	}
	if err := r.ctrl.SelectTarget(target); err != nil {
		return model.SimulationRun{}, err
	}
	run, err := r.ctrl.Begin(ctx, launchAt)
	if err != nil {
		return model.SimulationRun{}, err
	}

	tc := timectrl.NewTimeController(run.StartedAt, r.tick, r.mode)
	runCtx := context.WithoutCancel(ctx)
	tc.AddListener(func(time.Time) {
		r.step(runCtx, tc, tc.Elapsed())
	})
	r.active = tc
	r.done = tc.Start(0)
	return run, nil
}

// step is the per-tick listener. It runs on the TimeController goroutine.
func (r *runner) step(ctx context.Context, tc *timectrl.TimeController, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != tc {
		tc.Stop()
		return
	}

	res, err := r.ctrl.Tick(ctx, elapsed)
	if err != nil {
		if !errors.Is(err, core.ErrNoRun) {
			r.log.Warn(ctx, "run tick failed", logging.Err(err))
		}
		r.stopLocked()
		return
	}
	if res.State != model.RunInFlight {
		r.stopLocked()
	}
}

// abort cancels the run in flight and stops its loop.
func (r *runner) abort(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ctrl.Abort(ctx); err != nil {
		return err
	}
	r.stopLocked()
	return nil
}

// stop halts any loop without touching the run.
func (r *runner) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *runner) stopLocked() {
	if r.active != nil {
		r.active.Stop()
		r.active = nil
	}
}

// wait blocks until the most recent loop has exited or ctx ends.
func (r *runner) wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
