// Package pidtable implements the PID Table (spec.md §4.2, component C2):
// the sole authority linking kernel-visible pids to managed units and
// roles. It is consulted only by the Signal Reactor and the Supervisor.
//
// Grounded on Tuxdude-pico's service_manager.go, which keeps a
// launchedServiceInfo per pid in its serviceRepo/launcher pair so the
// zombie reaper can map a reaped pid back to the service that owned it;
// here that single-role mapping is generalized to the Role-tagged
// variant spec.md requires (service main vs. pre/post/stop hooks).
package pidtable

import (
	"sync"

	"github.com/unitd/unitd/internal/unitmodel"
)

// Role disambiguates which part of a unit's lifecycle a pid belongs to.
type Role int

const (
	// RoleService tags a service unit's long-running main process —
	// one the Signal Reactor itself classifies and applies restart
	// policy to on an unsolicited exit.
	RoleService Role = iota
	// RoleOneshotMain tags a oneshot service unit's main process. The
	// Supervisor blocks on it synchronously in startService via
	// WaitForExit and owns classifying the result itself, so the
	// Reactor must treat it like a hook pid: reap and deliver, but
	// never classify or apply restart policy (that would race the
	// Supervisor's own Set of the terminal status).
	RoleOneshotMain
	// RoleStop tags a service unit's stop command.
	RoleStop
	// RolePreStart tags one of a service unit's pre-start commands.
	RolePreStart
	// RolePostStart tags one of a service unit's post-start commands.
	RolePostStart
	// RolePostStop tags one of a service unit's post-stop commands.
	RolePostStop
)

func (r Role) String() string {
	switch r {
	case RoleService:
		return "service"
	case RoleOneshotMain:
		return "oneshot-main"
	case RoleStop:
		return "stop"
	case RolePreStart:
		return "pre-start"
	case RolePostStart:
		return "post-start"
	case RolePostStop:
		return "post-stop"
	default:
		return "unknown"
	}
}

// Entry is one PID Table record (spec.md §3 "PID Table entries").
type Entry struct {
	UnitID unitmodel.UnitID
	Role   Role
	Index  int // position within the hook's command array (pre-start, post-start, stop, post-stop); 0 otherwise
}

// Table is the pid -> Entry map. Every method is safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	byPID map[int]Entry
}

// New creates an empty PID Table.
func New() *Table {
	return &Table{byPID: make(map[int]Entry)}
}

// Insert records that pid belongs to entry. Insert must happen-before
// the child can plausibly exit (spec.md §4.2 contract): callers insert
// immediately after a successful fork, before releasing any lock the
// Signal Reactor also acquires before processing a reap, so the reactor
// can never observe a SIGCHLD for a pid this table doesn't know about
// yet (spec.md §5 "Ordering guarantees").
func (t *Table) Insert(pid int, entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPID[pid] = entry
}

// Remove deletes and returns pid's entry, reporting whether it was present.
func (t *Table) Remove(pid int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byPID[pid]
	if ok {
		delete(t.byPID, pid)
	}
	return e, ok
}

// Get returns pid's entry without removing it.
func (t *Table) Get(pid int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byPID[pid]
	return e, ok
}

// Len reports how many pids are currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byPID)
}

// PIDsForUnit returns every pid currently tagged with unitID, regardless
// of role; used when cascading a kill to a unit's whole pid set.
func (t *Table) PIDsForUnit(unitID unitmodel.UnitID) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for pid, e := range t.byPID {
		if e.UnitID == unitID {
			out = append(out, pid)
		}
	}
	return out
}
