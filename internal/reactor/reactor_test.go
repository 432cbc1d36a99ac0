package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/unitd/unitd/internal/log"
	"github.com/unitd/unitd/internal/pidtable"
	"github.com/unitd/unitd/internal/registry"
	"github.com/unitd/unitd/internal/unitmodel"
)

type fakeRestarter struct {
	calls chan unitmodel.UnitID
}

func newFakeRestarter() *fakeRestarter { return &fakeRestarter{calls: make(chan unitmodel.UnitID, 8)} }

func (f *fakeRestarter) Restart(ctx context.Context, id unitmodel.UnitID) error {
	f.calls <- id
	return nil
}

func exitedStatus(code int) unix.WaitStatus { return unix.WaitStatus(code << 8) }
func signaledStatus(sig unix.Signal) unix.WaitStatus { return unix.WaitStatus(sig) }

func newTestReactor(t *testing.T) (*Reactor, *fakeRestarter, unitmodel.UnitID) {
	t.Helper()
	units := registry.NewUnitTable()
	var alloc unitmodel.IDAllocator
	id := alloc.Next()
	unit := &unitmodel.Unit{
		ID: id, Name: "web.service", Kind: unitmodel.KindService,
		Service: &unitmodel.ServiceConfig{Type: unitmodel.TypeSimple, Restart: unitmodel.RestartAlways},
	}
	require.NoError(t, units.Insert(unit))

	status := registry.NewStatusTable([]unitmodel.UnitID{id})
	pids := pidtable.New()
	restarter := newFakeRestarter()
	r := New(units, status, pids, restarter, log.Nop())
	return r, restarter, id
}

func TestHandleExitUnknownPidIsNoop(t *testing.T) {
	r, restarter, _ := newTestReactor(t)
	r.handleExit(99999, exitedStatus(0))
	select {
	case <-restarter.calls:
		t.Fatal("restarter should not be called for an unknown pid")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHandleExitHookPidDoesNotTriggerRestartOrStatusChange(t *testing.T) {
	r, restarter, id := newTestReactor(t)
	r.Status.Set(id, registry.Record{Status: unitmodel.Starting})
	r.Pids.Insert(4242, pidtable.Entry{UnitID: id, Role: pidtable.RolePreStart, Index: 0})

	r.handleExit(4242, exitedStatus(1))

	rec, _ := r.Status.Get(id)
	assert.Equal(t, unitmodel.Starting, rec.Status) // untouched; the blocking hook waiter owns this transition
	select {
	case <-restarter.calls:
		t.Fatal("restarter should not be called for a hook pid")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHandleExitStoppingMarksStopped(t *testing.T) {
	r, restarter, id := newTestReactor(t)
	r.Status.Set(id, registry.Record{Status: unitmodel.Stopping, MainPID: 555})
	r.Pids.Insert(555, pidtable.Entry{UnitID: id, Role: pidtable.RoleService})

	r.handleExit(555, exitedStatus(0))

	rec, _ := r.Status.Get(id)
	assert.Equal(t, unitmodel.Stopped, rec.Status)
	select {
	case <-restarter.calls:
		t.Fatal("a deliberate stop must not trigger a restart")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHandleExitOneshotMainDoesNotRaceSupervisorClassification(t *testing.T) {
	r, restarter, id := newTestReactor(t)
	r.Status.Set(id, registry.Record{Status: unitmodel.Starting, MainPID: 321})
	r.Pids.Insert(321, pidtable.Entry{UnitID: id, Role: pidtable.RoleOneshotMain})

	resultCh := make(chan unitmodel.ExitInfo, 1)
	go func() {
		info, err := r.WaitForExit(context.Background(), 321)
		require.NoError(t, err)
		resultCh <- info
	}()
	time.Sleep(10 * time.Millisecond) // give the waiter time to register

	r.handleExit(321, exitedStatus(0))

	select {
	case info := <-resultCh:
		assert.Equal(t, unitmodel.ExitCode, info.Kind)
		assert.Equal(t, 0, info.Code)
	case <-time.After(time.Second):
		t.Fatal("WaitForExit never unblocked for a oneshot main")
	}

	// handleExit must leave the Supervisor's own WaitForExit caller as
	// the sole authority over the terminal status here: a RoleService
	// pid in this same Starting state would be finalized as
	// StoppedFinal(Exited) by handleServiceExit, clobbering a oneshot
	// that the Supervisor is about to mark StoppedFinal(Ok).
	rec, _ := r.Status.Get(id)
	assert.Equal(t, unitmodel.Starting, rec.Status)
	select {
	case <-restarter.calls:
		t.Fatal("restarter should not be called for a oneshot main pid")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHandleExitRestartAlwaysTriggersRestart(t *testing.T) {
	r, restarter, id := newTestReactor(t)
	r.Status.Set(id, registry.Record{Status: unitmodel.Started, MainPID: 777})
	r.Pids.Insert(777, pidtable.Entry{UnitID: id, Role: pidtable.RoleService})

	r.handleExit(777, signaledStatus(unix.SIGKILL))

	select {
	case got := <-restarter.calls:
		assert.Equal(t, id, got)
	case <-time.After(time.Second):
		t.Fatal("expected a restart to be triggered")
	}

	rec, _ := r.Status.Get(id)
	assert.Equal(t, unitmodel.Stopped, rec.Status)
	assert.Equal(t, unitmodel.ExitSignal, rec.LastExit.Kind)
}

func TestHandleExitRestartNoMarksStoppedFinalExited(t *testing.T) {
	units := registry.NewUnitTable()
	var alloc unitmodel.IDAllocator
	id := alloc.Next()
	require.NoError(t, units.Insert(&unitmodel.Unit{
		ID: id, Name: "oneoff.service", Kind: unitmodel.KindService,
		Service: &unitmodel.ServiceConfig{Type: unitmodel.TypeSimple, Restart: unitmodel.RestartNo},
	}))
	status := registry.NewStatusTable([]unitmodel.UnitID{id})
	pids := pidtable.New()
	restarter := newFakeRestarter()
	r := New(units, status, pids, restarter, log.Nop())

	status.Set(id, registry.Record{Status: unitmodel.Started, MainPID: 888})
	pids.Insert(888, pidtable.Entry{UnitID: id, Role: pidtable.RoleService})

	r.handleExit(888, exitedStatus(0))

	rec, _ := status.Get(id)
	assert.Equal(t, unitmodel.StoppedFinal, rec.Status)
	assert.Equal(t, unitmodel.ReasonExited, rec.Reason)
}

func TestHandleServiceExitRestartBurstLimit(t *testing.T) {
	units := registry.NewUnitTable()
	var alloc unitmodel.IDAllocator
	id := alloc.Next()
	require.NoError(t, units.Insert(&unitmodel.Unit{
		ID: id, Name: "flapping.service", Kind: unitmodel.KindService,
		Service: &unitmodel.ServiceConfig{Type: unitmodel.TypeSimple, Restart: unitmodel.RestartAlways, RestartBurstLimit: 2},
	}))
	status := registry.NewStatusTable([]unitmodel.UnitID{id})
	restarter := newFakeRestarter()
	r := New(units, status, pidtable.New(), restarter, log.Nop())

	status.Set(id, registry.Record{Status: unitmodel.Started})
	r.handleServiceExit(id, unitmodel.ExitInfo{Kind: unitmodel.ExitCode, Code: 1})
	<-restarter.calls

	status.Set(id, registry.Record{Status: unitmodel.Started})
	r.handleServiceExit(id, unitmodel.ExitInfo{Kind: unitmodel.ExitCode, Code: 1})
	<-restarter.calls

	status.Set(id, registry.Record{Status: unitmodel.Started})
	r.handleServiceExit(id, unitmodel.ExitInfo{Kind: unitmodel.ExitCode, Code: 1})

	select {
	case <-restarter.calls:
		t.Fatal("third unsolicited exit should exceed the burst limit, not restart again")
	case <-time.After(50 * time.Millisecond):
	}
	rec, _ := status.Get(id)
	assert.Equal(t, unitmodel.StoppedFinal, rec.Status)
	assert.Equal(t, unitmodel.ReasonRestartLimit, rec.Reason)
}

func TestWaitForExitUnblocksOnDeliver(t *testing.T) {
	r, _, id := newTestReactor(t)
	r.Status.Set(id, registry.Record{Status: unitmodel.Stopping})
	r.Pids.Insert(4242, pidtable.Entry{UnitID: id, Role: pidtable.RoleStop})

	resultCh := make(chan unitmodel.ExitInfo, 1)
	go func() {
		info, err := r.WaitForExit(context.Background(), 4242)
		require.NoError(t, err)
		resultCh <- info
	}()

	time.Sleep(10 * time.Millisecond) // give the waiter time to register
	r.handleExit(4242, exitedStatus(7))

	select {
	case info := <-resultCh:
		assert.Equal(t, 7, info.Code)
	case <-time.After(time.Second):
		t.Fatal("WaitForExit never unblocked")
	}
}

func TestWaitForExitReturnsCachedExitForLateWaiter(t *testing.T) {
	r, _, id := newTestReactor(t)
	r.Status.Set(id, registry.Record{Status: unitmodel.Stopping})
	r.Pids.Insert(4242, pidtable.Entry{UnitID: id, Role: pidtable.RoleStop})

	r.handleExit(4242, exitedStatus(3))

	info, err := r.WaitForExit(context.Background(), 4242)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Code)
}

func TestWaitForExitRespectsContextDeadline(t *testing.T) {
	r, _, _ := newTestReactor(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.WaitForExit(ctx, 123456)
	assert.Error(t, err)
}

func TestRunReturnsWhenContextCancelled(t *testing.T) {
	r, _, _ := newTestReactor(t)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(doneCh)
	}()
	cancel()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
