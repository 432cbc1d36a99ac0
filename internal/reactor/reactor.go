// Package reactor implements the Signal Reactor (spec.md §4.9,
// component C9): the single goroutine that owns signal reception and
// the single wait4(-1, WNOHANG) reap loop, so no two goroutines ever
// race to reap the same pid.
//
// Grounded on Tuxdude-pico's service_manager.go signalHandler/reaper
// split (signal.Notify into a buffered channel, SIGCHLD triggers a
// drain-to-ECHILD reap pass, every other monitored signal is handled
// separately) and rustysd's signal_handler.rs (SIGCHLD drives
// get_next_exited_child in a loop; SIGTERM/SIGINT/SIGQUIT drive
// shutdown_sequence) — generalized from pico's "forward signal to every
// child" model to this core's "resolve which unit owns the pid via the
// PID Table, then apply restart policy" model.
package reactor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/unitd/unitd/internal/log"
	"github.com/unitd/unitd/internal/pidtable"
	"github.com/unitd/unitd/internal/registry"
	"github.com/unitd/unitd/internal/unitmodel"
)

// Restarter is the thin seam back into the Supervisor: on an
// unsolicited service exit under RestartAlways, the Reactor asks the
// Restarter to bring the unit back up. Structurally satisfied by
// *supervisor.Supervisor without either package importing the other.
type Restarter interface {
	Restart(ctx context.Context, id unitmodel.UnitID) error
}

// Reactor owns SIGCHLD/SIGTERM/SIGINT/SIGQUIT reception and process
// reaping for the whole manager.
type Reactor struct {
	Units      *registry.UnitTable
	Status     *registry.StatusTable
	Pids       *pidtable.Table
	Restarter  Restarter
	Log        log.Logger

	sigCh      chan os.Signal
	shutdownCh chan os.Signal

	mu            sync.Mutex
	waiters       map[int][]chan unitmodel.ExitInfo
	exited        map[int]unitmodel.ExitInfo
	restartCounts map[unitmodel.UnitID]int
}

// New creates a Reactor. Call Run in its own goroutine once every other
// component is wired, before the Supervisor starts any unit — the PID
// Table's Insert-happens-before-reap contract (internal/pidtable) only
// holds once this reap loop is live.
func New(units *registry.UnitTable, status *registry.StatusTable, pids *pidtable.Table, restarter Restarter, logger log.Logger) *Reactor {
	return &Reactor{
		Units: units, Status: status, Pids: pids, Restarter: restarter, Log: logger,
		sigCh:         make(chan os.Signal, 16),
		shutdownCh:    make(chan os.Signal, 1),
		waiters:       make(map[int][]chan unitmodel.ExitInfo),
		exited:        make(map[int]unitmodel.ExitInfo),
		restartCounts: make(map[unitmodel.UnitID]int),
	}
}

// ShutdownRequested delivers a SIGTERM, SIGINT, or SIGQUIT once it is
// received; at most one such signal is held pending, and any that
// arrive while one is pending are dropped. cmd/unitd's main goroutine drives
// Supervisor.Shutdown at its own pace rather than the Reactor doing it
// directly (spec.md §4.9 "termination signals are handed to the
// manager's shutdown sequence, not acted on here").
func (r *Reactor) ShutdownRequested() <-chan os.Signal {
	return r.shutdownCh
}

// Run registers for exactly SIGCHLD, SIGTERM, SIGINT, SIGQUIT and
// blocks, reaping children and classifying exits until ctx is done.
func (r *Reactor) Run(ctx context.Context) {
	signal.Notify(r.sigCh, unix.SIGCHLD, unix.SIGTERM, unix.SIGINT, unix.SIGQUIT)
	defer signal.Stop(r.sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-r.sigCh:
			if s, ok := sig.(unix.Signal); ok && s == unix.SIGCHLD {
				r.reapAll()
				continue
			}
			select {
			case r.shutdownCh <- sig:
			default: // already have one pending; a second term signal is a no-op here
			}
		}
	}
}

// reapAll drains every exited child with wait4(-1, WNOHANG), the only
// place in the manager that calls wait4 (spec.md §4.9 "single reaper").
func (r *Reactor) reapAll() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil {
			if err == unix.ECHILD {
				return
			}
			r.Log.Error("wait4 failed", "error", err)
			return
		}
		if pid <= 0 {
			return
		}
		r.handleExit(pid, ws)
	}
}

func (r *Reactor) handleExit(pid int, ws unix.WaitStatus) {
	info := exitInfoFromWaitStatus(ws)

	entry, known := r.Pids.Remove(pid)
	r.deliver(pid, info, known)
	if !known {
		return // reparented grandchild or similar; nothing in our tables to update
	}
	if entry.Role != pidtable.RoleService {
		return // hook/stop-command/oneshot-main pid: the blocking WaitForExit caller handles it
	}
	r.handleServiceExit(entry.UnitID, info)
}

// handleServiceExit applies restart policy to an unsolicited exit of a
// long-running unit's main process (spec.md §5 "reactor applies restart
// policy"). Only pids tagged RoleService ever reach here — a oneshot
// main is tagged RoleOneshotMain precisely so its exit is never
// classified here, avoiding a race with the Supervisor's own
// WaitForExit-then-Set of the terminal status in startService.
func (r *Reactor) handleServiceExit(id unitmodel.UnitID, info unitmodel.ExitInfo) {
	rec, ok := r.Status.Get(id)
	if !ok {
		return
	}
	if rec.Status == unitmodel.Stopping {
		r.Status.Set(id, registry.Record{Status: unitmodel.Stopped, MainPID: 0, LastExit: info, UpdatedAt: time.Now()})
		return
	}
	if rec.Status != unitmodel.Started && rec.Status != unitmodel.Starting {
		return // already handled by the Supervisor's own wait, or a stale duplicate
	}

	unit, ok := r.Units.Get(id)
	if !ok || unit.Service == nil {
		return
	}
	svc := unit.Service

	if svc.Restart != unitmodel.RestartAlways {
		r.Status.Set(id, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonExited, MainPID: 0, LastExit: info, UpdatedAt: time.Now()})
		return
	}

	r.mu.Lock()
	r.restartCounts[id]++
	count := r.restartCounts[id]
	r.mu.Unlock()

	if svc.RestartBurstLimit > 0 && count > svc.RestartBurstLimit {
		r.Status.Set(id, registry.Record{Status: unitmodel.StoppedFinal, Reason: unitmodel.ReasonRestartLimit, MainPID: 0, LastExit: info, UpdatedAt: time.Now()})
		return
	}

	r.Status.Set(id, registry.Record{Status: unitmodel.Stopped, MainPID: 0, LastExit: info, UpdatedAt: time.Now()})
	r.Log.Info("restarting unit after unsolicited exit", "unit", unit.Name, "attempt", count)
	go func() {
		if err := r.Restarter.Restart(context.Background(), id); err != nil {
			r.Log.Error("restart failed", "unit", unit.Name, "error", err)
		}
	}()
}

// WaitForExit implements supervisor.ReapWaiter: block until pid is
// reaped by this Reactor's loop, or ctx ends first.
func (r *Reactor) WaitForExit(ctx context.Context, pid int) (unitmodel.ExitInfo, error) {
	r.mu.Lock()
	if info, ok := r.exited[pid]; ok {
		delete(r.exited, pid)
		r.mu.Unlock()
		return info, nil
	}
	ch := make(chan unitmodel.ExitInfo, 1)
	r.waiters[pid] = append(r.waiters[pid], ch)
	r.mu.Unlock()

	select {
	case info := <-ch:
		return info, nil
	case <-ctx.Done():
		return unitmodel.ExitInfo{}, ctx.Err()
	}
}

// deliver wakes any goroutine blocked in WaitForExit(pid), or caches
// the result for a caller that hasn't registered yet — only for pids
// known to the PID Table, since nobody ever waits on an unknown one.
func (r *Reactor) deliver(pid int, info unitmodel.ExitInfo, known bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chans := r.waiters[pid]
	delete(r.waiters, pid)
	if len(chans) == 0 {
		if known {
			r.exited[pid] = info
		}
		return
	}
	for _, c := range chans {
		c <- info
	}
}

func exitInfoFromWaitStatus(ws unix.WaitStatus) unitmodel.ExitInfo {
	switch {
	case ws.Exited():
		return unitmodel.ExitInfo{Kind: unitmodel.ExitCode, Code: ws.ExitStatus()}
	case ws.Signaled():
		return unitmodel.ExitInfo{Kind: unitmodel.ExitSignal, Signal: int(ws.Signal())}
	default:
		return unitmodel.ExitInfo{Kind: unitmodel.ExitUnknown}
	}
}
