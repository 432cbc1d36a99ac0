package supervisor

import (
	"context"

	"github.com/unitd/unitd/internal/unitmodel"
)

// ReapWaiter is the thin seam between the Supervisor and the Signal
// Reactor (spec.md §4.9, component C9): the Reactor owns the one
// wait4(-1, WNOHANG) loop that may reap any child, service main or
// hook alike, so a hook command the Supervisor launches synchronously
// cannot simply waitpid() its own pid without racing the Reactor's
// wildcard reap. Instead the Supervisor blocks on this interface, which
// the Reactor satisfies by handing back the ExitInfo once it has
// actually reaped that pid.
//
// Mirrors the teacher's ConnectionFactory/ContextProvider
// interface-injection idiom in internal/systemd/interfaces.go: the
// production implementation (internal/reactor) is wired in by cmd/unitd,
// tests substitute a fake that resolves immediately.
type ReapWaiter interface {
	// WaitForExit blocks until pid has been reaped, or ctx is done.
	WaitForExit(ctx context.Context, pid int) (unitmodel.ExitInfo, error)
}
