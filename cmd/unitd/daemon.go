package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/unitd/unitd/internal/control"
	"github.com/unitd/unitd/internal/depgraph"
	"github.com/unitd/unitd/internal/fdstore"
	"github.com/unitd/unitd/internal/notify"
	"github.com/unitd/unitd/internal/pidtable"
	"github.com/unitd/unitd/internal/reactor"
	"github.com/unitd/unitd/internal/registry"
	"github.com/unitd/unitd/internal/socketunit"
	"github.com/unitd/unitd/internal/starter"
	"github.com/unitd/unitd/internal/supervisor"
	"github.com/unitd/unitd/internal/unitload"
	"github.com/unitd/unitd/internal/unitmodel"
)

func newDaemonCmd() *cobra.Command {
	var helperPath string

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "run the supervisor, loading units from --unit-dir and serving the control socket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := appFromContext(cmd)
			code := runDaemon(cmd.Context(), app, helperPath)
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	daemonCmd.Flags().StringVar(&helperPath, "helper", "unitd-exec", "path to the unitd-exec helper binary")
	return daemonCmd
}

// runDaemon wires every core component and runs until a termination
// signal arrives, returning the process exit code (spec.md §6: 0 clean
// shutdown, 1 fatal startup error, 2 signal-terminated with unreaped
// children).
func runDaemon(ctx context.Context, app *App, helperPath string) int {
	log := app.Logger
	cfg := app.Config

	// syscall.ForkExec execve's argv0 directly with no $PATH search
	// (unlike os/exec), so a bare helper name needs resolving once here.
	if !filepath.IsAbs(helperPath) {
		resolved, err := exec.LookPath(helperPath)
		if err != nil {
			log.Error("resolving helper path", "helper", helperPath, "error", err)
			return 1
		}
		helperPath = resolved
	}

	for _, dir := range []string{cfg.UnitDir, cfg.NotifySocketDir(), filepath.Dir(cfg.ControlSocketPath())} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("creating directory", "dir", dir, "error", err)
			return 1
		}
	}

	units := registry.NewUnitTable()
	deps := depgraph.New()
	loader := unitload.New()

	ids, err := loader.LoadDir(cfg.UnitDir, units, deps)
	if err != nil {
		log.Error("loading units", "dir", cfg.UnitDir, "error", err)
		return 1
	}
	log.Info("loaded units", "count", len(ids), "dir", cfg.UnitDir)

	status := registry.NewStatusTable(ids)
	pids := pidtable.New()
	fds := fdstore.New()
	sockets := socketunit.New(fds)
	st := starter.New(helperPath)

	// The Reactor must exist, and Run must be launched, before the
	// Supervisor starts anything: a pid the Supervisor inserts into the
	// PID Table has to be observable to the single wait4 reap loop from
	// the instant it's inserted, never before (spec.md §4.2 Insert
	// contract, see DESIGN.md's reactor/supervisor ordering decision).
	react := reactor.New(units, status, pids, nil, log.With("component", "reactor"))

	super := supervisor.New(units, status, deps, pids, fds, sockets, st, react, cfg, log.With("component", "supervisor"))
	react.Restarter = super

	reactorCtx, stopReactor := context.WithCancel(context.Background())
	defer stopReactor()
	go react.Run(reactorCtx)

	ctrl := control.New(cfg.ControlSocketPath(), units, status, super, log.With("component", "control"))
	controlCtx, stopControl := context.WithCancel(context.Background())
	defer stopControl()
	controlErrCh := make(chan error, 1)
	go func() { controlErrCh <- ctrl.Run(controlCtx) }()

	notifyCtx, stopNotify := context.WithCancel(context.Background())
	defer stopNotify()
	for _, id := range ids {
		unit, _ := units.Get(id)
		if unit.Kind != unitmodel.KindService || unit.Service.Type != unitmodel.TypeNotify {
			continue
		}
		sockPath := filepath.Join(cfg.NotifySocketDir(), unit.Name+".sock")
		listener := notify.NewListener(id, sockPath, status, log.With("component", "notify", "unit", unit.Name))
		go func(l *notify.Listener, name string) {
			if err := l.Run(notifyCtx); err != nil {
				log.Error("notify listener exited", "unit", name, "error", err)
			}
		}(listener, unit.Name)
	}

	if err := super.StartAll(ctx); err != nil {
		log.Error("start_all", "error", err)
		return 1
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify READY failed", "error", err)
	} else if sent {
		log.Info("notified service manager of readiness")
	}

	select {
	case sig := <-react.ShutdownRequested():
		log.Info("shutdown requested", "signal", sig)
	case <-ctx.Done():
		log.Info("context cancelled")
	case err := <-controlErrCh:
		log.Error("control socket exited", "error", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DefaultStopTimeout)
	defer cancel()
	if err := super.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
		return 2
	}
	if n := pids.Len(); n > 0 {
		log.Warn("shutdown completed with unreaped children", "count", n)
		return 2
	}
	return 0
}
