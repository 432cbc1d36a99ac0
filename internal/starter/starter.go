// Package starter implements the Service Starter (spec.md §4.6, component
// C7): the narrow fork/exec pipeline between "decide to launch a unit's
// command" and "a pid exists in the kernel running it".
//
// Grounded on rustysd's `src/services/start_service.rs` /
// `src/start_service.rs`: build the fd list and LISTEN_FDNAMES from the
// FD Store, build the `--conf`/`--env` JSON payload, fork, and (in the
// child) exec a small helper that applies the rest of the handshake.
// rustysd forks directly into its target binary's own fork_child
// path; we cannot do that safely in Go (the runtime is not fork-safe
// for arbitrary goroutines — spec.md §9 "Post-fork safety"), so every
// launch instead forks+execs `cmd/unitd-exec` (mirroring rustysd's own
// `rsdexec`/`sdexec` split), which — now running as its own ordinary,
// single-goroutine process rather than a forked child of the manager —
// safely computes its own pid, sets `LISTEN_PID`, drops privileges, and
// execs the real target commandline.
//
// The fork step itself uses `syscall.ForkExec`, the interface-injected
// behind a `Forker` so tests can substitute a fake — the same
// dependency-injection idiom the teacher uses for its D-Bus
// `ConnectionFactory`/`ContextProvider` pair in `internal/systemd/interfaces.go`.
package starter

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/unitd/unitd/internal/execproto"
	"github.com/unitd/unitd/internal/fdstore"
	"github.com/unitd/unitd/internal/unitmodel"
)

// Forker wraps the single syscall that performs fork+dup2+execve
// atomically inside the Go runtime without returning into Go code in
// the child (spec.md §9 "Post-fork safety": no allocation, no logging,
// no mutex touching past this point).
type Forker interface {
	ForkExec(argv0 string, argv []string, attr *syscall.ProcAttr) (pid int, err error)
}

// SyscallForker is the production Forker, backed directly by
// syscall.ForkExec.
type SyscallForker struct{}

// ForkExec implements Forker.
func (SyscallForker) ForkExec(argv0 string, argv []string, attr *syscall.ProcAttr) (int, error) {
	return syscall.ForkExec(argv0, argv, attr)
}

// Starter launches service unit commands via the helper-executor
// protocol (spec.md §6).
type Starter struct {
	Forker     Forker
	HelperPath string // path to the cmd/unitd-exec binary
}

// New creates a Starter using the real SyscallForker.
func New(helperPath string) *Starter {
	return &Starter{Forker: SyscallForker{}, HelperPath: helperPath}
}

// LaunchSpec describes one helper invocation: which phase, which
// indexed command (if any), the fds to hand over (in LISTEN_FDNAMES
// order), and the notification socket path.
type LaunchSpec struct {
	Name       string
	Conf       *unitmodel.ServiceConfig
	Phase      execproto.Phase
	CmdIdx     int
	FDs        []fdstore.Entry // already resolved via fdstore.OrderedFDs, in declared order
	NotifySock string
}

// Launch forks cmd/unitd-exec and hands it the JSON-encoded request on
// --conf/--env, remapping fds to a contiguous block starting at 3
// (spec.md I4) and placing the child in its own process group so a
// later stop can signal the whole group (spec.md §4.6/§5). It returns
// the child's pid; the caller is responsible for registering it with
// the PID Table before releasing any lock the Signal Reactor also
// takes (spec.md §4.2 Insert contract).
func (s *Starter) Launch(spec LaunchSpec) (int, error) {
	if spec.Conf == nil {
		return -1, fmt.Errorf("starter: nil ServiceConfig for unit %q", spec.Name)
	}
	if _, err := os.Stat(spec.Conf.Cmd); spec.Phase == execproto.PhaseStart && err != nil {
		return -1, unitmodel.NewError(unitmodel.KindSpawnError, spec.Name,
			fmt.Errorf("executable %q: %w", spec.Conf.Cmd, err))
	}

	conf := execproto.FromServiceConfig(spec.Conf)
	confJSON, err := execproto.EncodeConf(conf)
	if err != nil {
		return -1, fmt.Errorf("starter: encoding conf: %w", err)
	}

	env := buildHelperEnv(spec, conf)
	envJSON, err := execproto.EncodeEnv(env)
	if err != nil {
		return -1, fmt.Errorf("starter: encoding env: %w", err)
	}

	argv := []string{s.HelperPath,
		"--command", string(spec.Phase),
		"--conf", confJSON,
		"--env", envJSON,
	}
	if spec.Phase != execproto.PhaseStart {
		argv = append(argv, "--cmd_idx", strconv.Itoa(spec.CmdIdx))
	}

	files, err := remapFiles(spec.FDs)
	if err != nil {
		return -1, unitmodel.NewError(unitmodel.KindSpawnError, spec.Name, err)
	}

	attr := &syscall.ProcAttr{
		Env:   os.Environ(),
		Files: files,
		Sys: &syscall.SysProcAttr{
			Setpgid: true,
		},
	}

	pid, err := s.Forker.ForkExec(s.HelperPath, argv, attr)
	if err != nil {
		return -1, unitmodel.NewError(unitmodel.KindSpawnError, spec.Name, fmt.Errorf("fork/exec helper: %w", err))
	}
	return pid, nil
}

// remapFiles builds the ProcAttr.Files slice: stdin/stdout/stderr
// inherited at 0/1/2, then every socket fd contiguous from 3 (spec.md
// I4 "contiguous fd numbers from 3"). FD_CLOEXEC is cleared on these
// copies only at the moment of handoff since ProcAttr.Files performs
// its own dup2 into the child, independent of the parent's cloexec
// flag on the original descriptor (spec.md §4.5 note on clearing
// FD_CLOEXEC only at handoff).
func remapFiles(fds []fdstore.Entry) ([]uintptr, error) {
	files := []uintptr{0, 1, 2}
	for _, e := range fds {
		if e.FD < 0 {
			return nil, fmt.Errorf("invalid fd %d for socket %q", e.FD, e.Name)
		}
		files = append(files, uintptr(e.FD))
	}
	return files, nil
}

// buildHelperEnv constructs the --env payload: LISTEN_FDS and
// LISTEN_FDNAMES are accurate immediately (known before fork);
// LISTEN_PID is deliberately NOT set here — cmd/unitd-exec computes its
// own pid once running as a fully independent process and sets it
// itself, the only point in the pipeline where that's both accurate
// and safe to do (spec.md §4.6 step 5's "use the low-level setenv"
// applies to the helper's own process, not the forking manager, since
// the manager cannot know the child's pid until after ForkExec returns
// — by which point the helper has already exec'd). User variables with
// one of the four injected names are dropped, so they cannot replace
// the injected values.
func buildHelperEnv(spec LaunchSpec, conf execproto.ServiceConfig) []execproto.EnvVar {
	names := make([]string, len(spec.FDs))
	for i, e := range spec.FDs {
		names[i] = e.Name
	}

	env := []execproto.EnvVar{
		{Name: "LISTEN_FDS", Value: strconv.Itoa(len(spec.FDs))},
		{Name: "LISTEN_FDNAMES", Value: strings.Join(names, ":")},
		{Name: "NOTIFY_SOCKET", Value: spec.NotifySock},
	}
	for _, e := range execproto.FromEnv(spec.Conf.Environment) {
		switch e.Name {
		case "LISTEN_FDS", "LISTEN_PID", "LISTEN_FDNAMES", "NOTIFY_SOCKET":
			continue
		}
		env = append(env, e)
	}
	return env
}
