// Package supervisor implements the Supervisor (spec.md §4.7-§4.8,
// component C8): the state machine that turns the dependency graph into
// actual process lifecycle, sitting on top of the Unit/Status/PID/FD
// tables, the Socket Unit Manager, and the Service Starter.
//
// Grounded on the teacher's internal/systemd/orchestrator.go
// (StartUnitDependencyAware / RestartChangedUnits): resolve a unit's
// dependencies first, handle one-shot units specially, then the
// remaining units concurrently, logging every transition through the
// same structured logger idiom. Unlike the teacher — which drives an
// already-running systemd and therefore only ever starts/restarts units
// systemd itself manages — the Supervisor here owns the process
// lifecycle directly: it forks, waits for readiness, signals, and reaps
// (via the Signal Reactor, see reaper.go) rather than shelling out to
// `systemctl`.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/unitd/unitd/internal/config"
	"github.com/unitd/unitd/internal/depgraph"
	"github.com/unitd/unitd/internal/execproto"
	"github.com/unitd/unitd/internal/fdstore"
	"github.com/unitd/unitd/internal/log"
	"github.com/unitd/unitd/internal/pidtable"
	"github.com/unitd/unitd/internal/registry"
	"github.com/unitd/unitd/internal/socketunit"
	"github.com/unitd/unitd/internal/starter"
	"github.com/unitd/unitd/internal/unitmodel"
)

// Supervisor coordinates every other core component to carry units
// through their lifecycle. All fields are wired once at startup by
// cmd/unitd and never reassigned afterward.
type Supervisor struct {
	Units   *registry.UnitTable
	Status  *registry.StatusTable
	Deps    *depgraph.Graph
	Pids    *pidtable.Table
	FDs     *fdstore.Store
	Sockets *socketunit.Manager
	Starter *starter.Starter
	Reaper  ReapWaiter
	Cfg     config.Settings
	Log     log.Logger

	sem chan struct{}
}

// New creates a Supervisor whose worker pool is sized from cfg.Workers().
func New(units *registry.UnitTable, status *registry.StatusTable, deps *depgraph.Graph,
	pids *pidtable.Table, fds *fdstore.Store, sockets *socketunit.Manager,
	st *starter.Starter, reaper ReapWaiter, cfg config.Settings, logger log.Logger) *Supervisor {
	workers := cfg.Workers()
	if workers <= 0 {
		workers = 1
	}
	return &Supervisor{
		Units: units, Status: status, Deps: deps, Pids: pids, FDs: fds,
		Sockets: sockets, Starter: st, Reaper: reaper, Cfg: cfg, Log: logger,
		sem: make(chan struct{}, workers),
	}
}

// StartAll starts every registered unit in dependency order (spec.md
// §4.8 "start_all"), running independent units concurrently through the
// worker pool while cascading a predecessor's start failure to every
// unit that depends on it, instead of attempting to start it anyway.
func (s *Supervisor) StartAll(ctx context.Context) error {
	order, err := s.Deps.StartOrder()
	if err != nil {
		return fmt.Errorf("supervisor: start order: %w", err)
	}

	done := make(map[unitmodel.UnitID]chan struct{}, len(order))
	for _, id := range order {
		done[id] = make(chan struct{})
	}

	var wg sync.WaitGroup
	errsMu := sync.Mutex{}
	var errs []error

	for _, id := range order {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[id])

			preds, err := s.Deps.Predecessors(id)
			if err != nil {
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
				return
			}
			for _, p := range preds {
				<-done[p]
			}
			if !s.predecessorsSatisfied(preds) {
				s.Status.Set(id, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonDependencyFailed, UpdatedAt: now()})
				return
			}

			select {
			case s.sem <- struct{}{}:
			case <-ctx.Done():
				errsMu.Lock()
				errs = append(errs, ctx.Err())
				errsMu.Unlock()
				return
			}
			defer func() { <-s.sem }()

			if err := s.startOne(ctx, id); err != nil {
				s.Log.Error("unit failed to start", "unit", id, "error", err)
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("supervisor: %d unit(s) failed to start: %w", len(errs), errs[0])
}

// predecessorsSatisfied reports whether every id in preds reached a
// status that lets its dependents proceed: Started, or a oneshot's
// successful StoppedFinal(Ok) (spec.md §4.4 "required_by... cascading
// failure").
func (s *Supervisor) predecessorsSatisfied(preds []unitmodel.UnitID) bool {
	for _, p := range preds {
		rec, ok := s.Status.Get(p)
		if !ok {
			return false
		}
		if rec.Status == unitmodel.Started {
			continue
		}
		if rec.Status == unitmodel.StoppedFinal && rec.Reason == unitmodel.ReasonOk {
			continue
		}
		return false
	}
	return true
}

// Start starts id and any not-yet-satisfied predecessor it needs,
// without disturbing units that have nothing to do with it (spec.md §6
// control-socket "start <name>").
func (s *Supervisor) Start(ctx context.Context, id unitmodel.UnitID) error {
	pending, err := s.pendingClosure(id)
	if err != nil {
		return err
	}
	order, err := s.Deps.StartOrder()
	if err != nil {
		return fmt.Errorf("supervisor: start order: %w", err)
	}
	for _, u := range order {
		if !pending[u] {
			continue
		}
		preds, err := s.Deps.Predecessors(u)
		if err != nil {
			return err
		}
		if !s.predecessorsSatisfied(preds) {
			s.Status.Set(u, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonDependencyFailed, UpdatedAt: now()})
			return unitmodel.NewError(unitmodel.KindConfigError, u.String(), fmt.Errorf("predecessor not satisfied"))
		}
		if err := s.startOne(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// pendingClosure returns id plus every transitive predecessor that
// hasn't already reached a satisfied status.
func (s *Supervisor) pendingClosure(id unitmodel.UnitID) (map[unitmodel.UnitID]bool, error) {
	out := map[unitmodel.UnitID]bool{}
	queue := []unitmodel.UnitID{id}
	seen := map[unitmodel.UnitID]bool{id: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !s.predecessorsSatisfied([]unitmodel.UnitID{cur}) {
			out[cur] = true
		}
		preds, err := s.Deps.Predecessors(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range preds {
			if seen[p] {
				continue
			}
			seen[p] = true
			queue = append(queue, p)
		}
	}
	out[id] = true
	return out, nil
}

// startOne starts a single unit, assuming its predecessors are already
// satisfied; it dispatches on Kind (spec.md §4.8 step "per unit kind").
func (s *Supervisor) startOne(ctx context.Context, id unitmodel.UnitID) error {
	unit, ok := s.Units.Get(id)
	if !ok {
		return fmt.Errorf("supervisor: unknown unit %s", id)
	}
	s.Log.Debug("starting unit", "unit", unit.Name, "kind", unit.Kind)

	switch unit.Kind {
	case unitmodel.KindTarget:
		s.Status.Set(id, registry.Record{Status: unitmodel.Started, UpdatedAt: now()})
		return nil
	case unitmodel.KindSocket:
		return s.startSocket(unit)
	case unitmodel.KindService:
		return s.startService(ctx, unit)
	default:
		return fmt.Errorf("supervisor: unit %s has unknown kind %d", unit.Name, unit.Kind)
	}
}

func (s *Supervisor) startSocket(unit *unitmodel.Unit) error {
	if err := s.Sockets.Open(unit.Name, unit.Socket); err != nil {
		wrapped := unitmodel.NewError(unitmodel.KindSocketOpenError, unit.Name, err)
		s.Status.Set(unit.ID, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonStartFailed, UpdatedAt: now()})
		return wrapped
	}
	s.Status.Set(unit.ID, registry.Record{Status: unitmodel.Started, UpdatedAt: now()})
	return nil
}

// startService runs a service unit's full pre-start/exec/readiness/
// post-start sequence (spec.md §4.6/§4.8).
func (s *Supervisor) startService(ctx context.Context, unit *unitmodel.Unit) error {
	svc := unit.Service
	s.Status.Set(unit.ID, registry.Record{Status: unitmodel.Starting, UpdatedAt: now()})

	startTimeout := svc.StartTimeout
	if startTimeout <= 0 {
		startTimeout = s.Cfg.DefaultStartTimeout
	}

	if err := s.runHookSequence(ctx, unit, svc.PreStart, execproto.PhaseStartPre, pidtable.RolePreStart, startTimeout); err != nil {
		s.failStart(unit.ID, err)
		return err
	}

	fds, err := fdstore.OrderedFDs(s.FDs, svc.Sockets)
	if err != nil {
		wrapped := unitmodel.NewError(unitmodel.KindSpawnError, unit.Name, err)
		s.failStart(unit.ID, wrapped)
		return wrapped
	}

	var notifySock string
	if svc.Type == unitmodel.TypeNotify {
		notifySock = filepath.Join(s.Cfg.NotifySocketDir(), unit.Name+".sock")
	}

	pid, err := s.Starter.Launch(starter.LaunchSpec{
		Name: unit.Name, Conf: svc, Phase: execproto.PhaseStart, FDs: fds, NotifySock: notifySock,
	})
	if err != nil {
		s.failStart(unit.ID, err)
		return err
	}
	role := pidtable.RoleService
	if svc.Type == unitmodel.TypeOneshot {
		// A oneshot main is waited on synchronously below, not
		// classified by the Reactor's restart-policy path (see
		// pidtable.RoleOneshotMain): tagging it RoleService here would
		// let the Reactor race that WaitForExit call and finalize the
		// unit with Reason=Exited even when the oneshot actually
		// succeeded.
		role = pidtable.RoleOneshotMain
	}
	s.Pids.Insert(pid, pidtable.Entry{UnitID: unit.ID, Role: role})
	s.Status.Update(unit.ID, func(r registry.Record) registry.Record {
		r.MainPID = pid
		r.UpdatedAt = now()
		return r
	})

	switch svc.Type {
	case unitmodel.TypeOneshot:
		exit, err := s.Reaper.WaitForExit(ctx, pid)
		if err != nil {
			wrapped := unitmodel.NewError(unitmodel.KindSpawnError, unit.Name, err)
			s.failStart(unit.ID, wrapped)
			return wrapped
		}
		if !exit.Success() {
			s.Status.Set(unit.ID, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonStartFailed, MainPID: pid, LastExit: exit, UpdatedAt: now()})
			return unitmodel.NewError(unitmodel.KindSpawnError, unit.Name, fmt.Errorf("oneshot exited %+v", exit))
		}
		s.Status.Set(unit.ID, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonOk, MainPID: pid, LastExit: exit, UpdatedAt: now()})
		return nil

	case unitmodel.TypeNotify:
		deadline := time.Now().Add(startTimeout)
		_, ok := s.Status.Wait(unit.ID, isReadyOrFinal, deadline)
		rec, _ := s.Status.Get(unit.ID)
		if !ok || rec.Status != unitmodel.Started {
			s.Status.Set(unit.ID, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonStartFailed, MainPID: pid, UpdatedAt: now()})
			return unitmodel.NewError(unitmodel.KindNotificationTimeout, unit.Name, fmt.Errorf("no READY=1 within %s", startTimeout))
		}

	default: // TypeSimple, TypeDBus
		// TypeDBus's real readiness signal is a name-ownership event on
		// the bus, delegated to an external collaborator this core
		// doesn't implement (spec.md §4.8 step 5); treated like simple
		// readiness here since there is no bus integration to wait on.
		//
		// Compare-and-set on Starting only: the child may already have
		// exited and been reaped by the Reactor by the time we get
		// here, which moves the record straight to a terminal status.
		// An unconditional write would resurrect that unit as Started
		// with MainPID 0, and nothing would ever reap it again.
		s.Status.Update(unit.ID, func(r registry.Record) registry.Record {
			if r.Status != unitmodel.Starting {
				return r
			}
			r.Status = unitmodel.Started
			r.UpdatedAt = now()
			return r
		})
	}

	if err := s.runHookSequence(ctx, unit, svc.PostStart, execproto.PhaseStartPost, pidtable.RolePostStart, startTimeout); err != nil {
		s.Status.Set(unit.ID, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonStartFailed, MainPID: pid, UpdatedAt: now()})
		return err
	}
	return nil
}

func isReadyOrFinal(r registry.Record) bool {
	return r.Status == unitmodel.Started || r.Status == unitmodel.StoppedFinal
}

func (s *Supervisor) failStart(id unitmodel.UnitID, err error) {
	s.Status.Set(id, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonStartFailed, UpdatedAt: now()})
	s.Log.Error("unit start failed", "unit", id, "error", err)
}

// runHookSequence runs cmds one at a time, in order, each through the
// Service Starter and waited-for via the Reaper; the first non-zero
// exit aborts the sequence (spec.md §4.6 "hook commands run
// synchronously and block until completion or timeout").
func (s *Supervisor) runHookSequence(ctx context.Context, unit *unitmodel.Unit, cmds []unitmodel.Command, phase execproto.Phase, role pidtable.Role, timeout time.Duration) error {
	for i := range cmds {
		pid, err := s.Starter.Launch(starter.LaunchSpec{Name: unit.Name, Conf: unit.Service, Phase: phase, CmdIdx: i})
		if err != nil {
			return unitmodel.NewError(unitmodel.KindHookFailed, unit.Name, err)
		}
		s.Pids.Insert(pid, pidtable.Entry{UnitID: unit.ID, Role: role, Index: i})

		hctx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			hctx, cancel = context.WithTimeout(ctx, timeout)
		}
		exit, err := s.Reaper.WaitForExit(hctx, pid)
		if cancel != nil {
			cancel()
		}
		s.Pids.Remove(pid)
		if err != nil {
			return unitmodel.NewError(unitmodel.KindHookFailed, unit.Name, fmt.Errorf("phase %s[%d]: %w", phase, i, err))
		}
		if !exit.Success() {
			return unitmodel.NewError(unitmodel.KindHookFailed, unit.Name, fmt.Errorf("phase %s[%d] exited %+v", phase, i, exit))
		}
	}
	return nil
}

// Stop stops id and every unit that depends on it, in reverse
// dependency order, so a dependent never outlives what it requires
// (spec.md §4.4 "stop_order... restricted to currently-started units").
func (s *Supervisor) Stop(ctx context.Context, id unitmodel.UnitID) error {
	dependents, err := s.Deps.RequiredBy(id)
	if err != nil {
		return err
	}
	scope := map[unitmodel.UnitID]bool{id: true}
	for _, d := range dependents {
		scope[d] = true
	}
	order, err := s.Deps.StopOrder(func(u unitmodel.UnitID) bool { return scope[u] })
	if err != nil {
		return err
	}
	var firstErr error
	for _, u := range order {
		if err := s.stopOne(ctx, u); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Restart stops and then starts id in place, without touching its
// dependents (matching the teacher's direct-restart approach in
// RestartChangedUnits: "systemd will handle dependency propagation" —
// here, a unit's dependents keep running across its brief restart gap).
func (s *Supervisor) Restart(ctx context.Context, id unitmodel.UnitID) error {
	if err := s.stopOne(ctx, id); err != nil {
		return err
	}
	return s.startOne(ctx, id)
}

// Shutdown stops every currently-running unit in reverse dependency
// order (spec.md §4.8 "shutdown").
func (s *Supervisor) Shutdown(ctx context.Context) error {
	order, err := s.Deps.StopOrder(s.isRunning)
	if err != nil {
		return err
	}
	var firstErr error
	for _, id := range order {
		if err := s.stopOne(ctx, id); err != nil {
			s.Log.Error("unit failed to stop cleanly during shutdown", "unit", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Supervisor) isRunning(id unitmodel.UnitID) bool {
	rec, ok := s.Status.Get(id)
	if !ok {
		return false
	}
	switch rec.Status {
	case unitmodel.Started, unitmodel.Starting, unitmodel.StartedWaitingForSocket, unitmodel.Stopping:
		return true
	default:
		return false
	}
}

func (s *Supervisor) stopOne(ctx context.Context, id unitmodel.UnitID) error {
	unit, ok := s.Units.Get(id)
	if !ok {
		return fmt.Errorf("supervisor: unknown unit %s", id)
	}

	switch unit.Kind {
	case unitmodel.KindTarget:
		s.Status.Set(id, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonManagerShutdown, UpdatedAt: now()})
		return nil
	case unitmodel.KindSocket:
		err := s.Sockets.Close(unit.Name, unit.Socket)
		s.Status.Set(id, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonManagerShutdown, UpdatedAt: now()})
		if err != nil {
			return unitmodel.NewError(unitmodel.KindShutdownError, unit.Name, err)
		}
		return nil
	case unitmodel.KindService:
		return s.stopService(ctx, unit)
	default:
		return fmt.Errorf("supervisor: unit %s has unknown kind %d", unit.Name, unit.Kind)
	}
}

// stopService stops a service unit: runs its explicit stop commands if
// configured, otherwise signals its process group directly, escalating
// to SIGKILL if the main process has not exited within Cfg.GracePeriod
// (the stop timeout when GracePeriod is zero), then runs post-stop hooks
// (spec.md §5 "SIGTERM, grace period, SIGKILL").
func (s *Supervisor) stopService(ctx context.Context, unit *unitmodel.Unit) error {
	rec, ok := s.Status.Get(unit.ID)
	if !ok || !s.isRunning(unit.ID) {
		return nil
	}
	svc := unit.Service
	s.Status.Update(unit.ID, func(r registry.Record) registry.Record { r.Status = unitmodel.Stopping; r.UpdatedAt = now(); return r })

	stopTimeout := svc.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = s.Cfg.DefaultStopTimeout
	}

	var stopErr error
	if len(svc.Stop) > 0 {
		stopErr = s.runHookSequence(ctx, unit, svc.Stop, execproto.PhaseStop, pidtable.RoleStop, stopTimeout)
	} else if rec.MainPID > 0 {
		_ = unix.Kill(-rec.MainPID, unix.SIGTERM)
	}

	if rec.MainPID > 0 {
		grace := s.Cfg.GracePeriod
		if grace <= 0 {
			grace = stopTimeout
		}
		deadline := time.Now().Add(grace)
		wctx, cancel := context.WithDeadline(ctx, deadline)
		_, err := s.Reaper.WaitForExit(wctx, rec.MainPID)
		cancel()
		if err != nil {
			_ = unix.Kill(-rec.MainPID, unix.SIGKILL)
			_, _ = s.Reaper.WaitForExit(ctx, rec.MainPID)
		}
	}

	if err := s.runHookSequence(ctx, unit, svc.PostStop, execproto.PhaseStopPost, pidtable.RolePostStop, stopTimeout); err != nil && stopErr == nil {
		stopErr = err
	}

	s.Status.Set(unit.ID, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonManagerShutdown, UpdatedAt: now()})
	if stopErr != nil {
		return unitmodel.NewError(unitmodel.KindShutdownError, unit.Name, stopErr)
	}
	return nil
}

func now() time.Time { return time.Now() }
